package queue

import (
	"github.com/convtrack/internal/constants"
	"github.com/convtrack/internal/postback"

	"github.com/hibiken/asynq"
)

const (
	// TaskPostbackDeliver 回传投递任务
	TaskPostbackDeliver = constants.TaskPostbackDeliver
)

// NewPostbackDeliverTask 创建回传投递任务
func NewPostbackDeliverTask(task postback.Task) (*asynq.Task, error) {
	body, err := task.Encode()
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPostbackDeliver, body), nil
}

// ParsePostbackDeliverTask 解析回传投递任务载荷
func ParsePostbackDeliverTask(t *asynq.Task) (postback.Task, error) {
	return postback.DecodeTask(t.Payload())
}
