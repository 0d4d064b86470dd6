package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/convtrack/internal/constants"
	"github.com/convtrack/internal/postback"
	"github.com/convtrack/internal/queue"

	"github.com/hibiken/asynq"
)

type fakeProcessor struct {
	tasks []postback.Task
	err   error
}

func (f *fakeProcessor) Process(_ context.Context, task postback.Task) (postback.Summary, error) {
	f.tasks = append(f.tasks, task)
	return postback.Summary{Matched: 1, Succeeded: 1}, f.err
}

func (f *fakeProcessor) Metrics() *postback.Metrics {
	return nil
}

func TestHandlePostbackDeliverProcessesTask(t *testing.T) {
	processor := &fakeProcessor{}
	consumer := &Consumer{Pipeline: processor}

	task, err := queue.NewPostbackDeliverTask(postback.Task{
		ConversionID: 7,
		AdvertiserID: 1,
		EventType:    constants.ConversionTypePurchase,
		Status:       constants.ConversionStatusApproved,
		ClickID:      "click-7",
	})
	if err != nil {
		t.Fatalf("build task failed: %v", err)
	}
	if err := consumer.handlePostbackDeliver(context.Background(), task); err != nil {
		t.Fatalf("handle task failed: %v", err)
	}
	if len(processor.tasks) != 1 || processor.tasks[0].ConversionID != 7 || processor.tasks[0].ClickID != "click-7" {
		t.Fatalf("unexpected processed tasks: %+v", processor.tasks)
	}
}

func TestHandlePostbackDeliverSkipsRetryOnBadPayload(t *testing.T) {
	processor := &fakeProcessor{}
	consumer := &Consumer{Pipeline: processor}

	err := consumer.handlePostbackDeliver(context.Background(), asynq.NewTask(queue.TaskPostbackDeliver, []byte(`{"conversion_id":0}`)))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected skip retry error, got %v", err)
	}
	if len(processor.tasks) != 0 {
		t.Fatalf("invalid payload should not reach the pipeline")
	}
}

func TestHandlePostbackDeliverReturnsPipelineError(t *testing.T) {
	processor := &fakeProcessor{err: errors.New("database is locked")}
	consumer := &Consumer{Pipeline: processor}

	task, err := queue.NewPostbackDeliverTask(postback.Task{
		ConversionID: 8,
		EventType:    constants.ConversionTypeReg,
		Status:       constants.ConversionStatusApproved,
	})
	if err != nil {
		t.Fatalf("build task failed: %v", err)
	}
	if err := consumer.handlePostbackDeliver(context.Background(), task); err == nil {
		t.Fatalf("expected pipeline error to be returned")
	}
}

func TestRegisterNilConsumerIsSafe(t *testing.T) {
	var consumer *Consumer
	consumer.Register(asynq.NewServeMux())
}
