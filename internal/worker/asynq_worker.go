package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/convtrack/internal/logger"
	"github.com/convtrack/internal/postback"
	"github.com/convtrack/internal/provider"
	"github.com/convtrack/internal/queue"

	"github.com/hibiken/asynq"
)

// TaskProcessor 回传任务处理器
type TaskProcessor interface {
	Process(ctx context.Context, task postback.Task) (postback.Summary, error)
	Metrics() *postback.Metrics
}

// Consumer 异步任务消费者
type Consumer struct {
	Pipeline TaskProcessor
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	if c == nil {
		return &Consumer{}
	}
	return &Consumer{Pipeline: c.PostbackPipeline}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskPostbackDeliver, c.handlePostbackDeliver)
}

// handlePostbackDeliver 队列层不重试，失败只归档；重试预算在每个回传配置内部消耗
func (c *Consumer) handlePostbackDeliver(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil || c.Pipeline == nil {
		logger.Debugw("worker_postback_deliver_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	payload, err := queue.ParsePostbackDeliverTask(task)
	if err != nil {
		logger.Warnw("worker_postback_deliver_unmarshal_failed", "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	summary, err := c.Pipeline.Process(ctx, payload)
	if err != nil {
		if errors.Is(err, postback.ErrInvalidTask) {
			logger.Warnw("worker_postback_deliver_skip_invalid_payload", "conversion_id", payload.ConversionID, "error", err)
			return nil
		}
		logger.Warnw("worker_postback_deliver_failed", "conversion_id", payload.ConversionID, "error", err)
		return err
	}
	logger.Infow("worker_postback_deliver_done",
		"conversion_id", payload.ConversionID,
		"event_type", payload.EventType,
		"status", payload.Status,
		"matched", summary.Matched,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"blocked", summary.Blocked,
		"skipped", summary.Skipped,
		"deduplicated", summary.Deduplicated,
	)
	return nil
}
