package service

import (
	"context"
	"time"

	"github.com/convtrack/internal/config"
	"github.com/convtrack/internal/constants"
	"github.com/convtrack/internal/logger"
	"github.com/convtrack/internal/models"
	"github.com/convtrack/internal/postback"
	"github.com/convtrack/internal/queue"

	"go.uber.org/zap"
)

// 触发回传的规范状态
var postbackTriggerStatuses = map[string]struct{}{
	constants.ConversionStatusApproved:   {},
	constants.ConversionStatusDeclined:   {},
	constants.ConversionStatusRefunded:   {},
	constants.ConversionStatusChargeback: {},
}

// DeliveryBackend 投递后端能力接口
type DeliveryBackend interface {
	Name() string
	Healthy(ctx context.Context) error
	Submit(ctx context.Context, task postback.Task, delay time.Duration) error
}

// DurableQueue 持久队列客户端
type DurableQueue interface {
	Healthy(ctx context.Context) error
	EnqueuePostbackDelivery(ctx context.Context, task postback.Task, delay time.Duration) error
	Stats() (queue.Stats, error)
}

// DurableBackend 基于 asynq 的持久投递
type DurableBackend struct {
	queue DurableQueue
}

// NewDurableBackend 创建持久后端
func NewDurableBackend(q DurableQueue) *DurableBackend {
	return &DurableBackend{queue: q}
}

// Name 后端名称
func (b *DurableBackend) Name() string {
	return constants.QueueBackendDurable
}

// Healthy 调用时探测
func (b *DurableBackend) Healthy(ctx context.Context) error {
	if b == nil || b.queue == nil {
		return queue.ErrQueueDisabled
	}
	return b.queue.Healthy(ctx)
}

// Submit 延迟入队
func (b *DurableBackend) Submit(ctx context.Context, task postback.Task, delay time.Duration) error {
	if b == nil || b.queue == nil {
		return queue.ErrQueueDisabled
	}
	return b.queue.EnqueuePostbackDelivery(ctx, task, delay)
}

// Stats 持久队列统计
func (b *DurableBackend) Stats() (queue.Stats, error) {
	if b == nil || b.queue == nil {
		return queue.Stats{}, queue.ErrQueueDisabled
	}
	return b.queue.Stats()
}

// InlineBackend 同步执行流水线（忽略延迟）
type InlineBackend struct {
	pipeline *postback.Pipeline
}

// NewInlineBackend 创建同步后端
func NewInlineBackend(pipeline *postback.Pipeline) *InlineBackend {
	return &InlineBackend{pipeline: pipeline}
}

// Name 后端名称
func (b *InlineBackend) Name() string {
	return constants.QueueBackendInline
}

// Healthy 始终可用
func (b *InlineBackend) Healthy(context.Context) error {
	return nil
}

// Submit 立即处理；与调用方请求的取消解耦，重试预算完整执行
func (b *InlineBackend) Submit(ctx context.Context, task postback.Task, _ time.Duration) error {
	_, err := b.pipeline.Process(context.WithoutCancel(ctx), task)
	return err
}

// Counters 进程内计数
func (b *InlineBackend) Counters() postback.Counters {
	return b.pipeline.Metrics().Snapshot()
}

// QueueStats 队列状态
type QueueStats struct {
	Backend  string             `json:"backend"`
	Durable  *queue.Stats       `json:"durable,omitempty"`
	Counters *postback.Counters `json:"counters,omitempty"`
}

// PostbackQueueService 回传任务入队门面
type PostbackQueueService struct {
	durable    *DurableBackend
	inline     *InlineBackend
	clicks     *ClickService
	settlement time.Duration
	fallback   time.Duration
	logger     *zap.SugaredLogger
}

// NewPostbackQueueService 创建入队门面；durable 为空时全部走同步执行
func NewPostbackQueueService(durable *DurableBackend, inline *InlineBackend, clicks *ClickService, cfg config.PostbackConfig) *PostbackQueueService {
	return &PostbackQueueService{
		durable:    durable,
		inline:     inline,
		clicks:     clicks,
		settlement: time.Duration(cfg.SettlementDelaySeconds) * time.Second,
		fallback:   time.Duration(cfg.DefaultDelaySeconds) * time.Second,
		logger:     logger.Named("queue"),
	}
}

// ShouldTrigger 判断状态是否触发回传
func ShouldTrigger(status string) bool {
	_, ok := postbackTriggerStatuses[status]
	return ok
}

// DelayFor 状态对应的投递延迟
func (s *PostbackQueueService) DelayFor(status string) time.Duration {
	switch status {
	case constants.ConversionStatusApproved, constants.ConversionStatusDeclined:
		return 0
	case constants.ConversionStatusRefunded, constants.ConversionStatusChargeback:
		return s.settlement
	default:
		return s.fallback
	}
}

// Enqueue 实现 ConversionEnqueuer；持久队列不可用时同步执行
func (s *PostbackQueueService) Enqueue(ctx context.Context, conversion *models.ConversionEvent) error {
	if conversion == nil || !ShouldTrigger(conversion.ConversionStatus) {
		return nil
	}
	var click *models.Click
	if conversion.ClickID != "" && s.clicks != nil {
		found, err := s.clicks.GetClick(ctx, conversion.ClickID)
		if err != nil {
			s.logger.Warnw("postback_click_lookup_failed", "click_id", conversion.ClickID, "error", err)
		}
		click = found
	}
	task := postback.NewTask(conversion, click)
	delay := s.DelayFor(conversion.ConversionStatus)

	if s.durable != nil {
		err := s.durable.Healthy(ctx)
		if err == nil {
			err = s.durable.Submit(ctx, task, delay)
		}
		if err == nil {
			s.logger.Infow("postback_task_enqueued",
				"backend", s.durable.Name(),
				"conversion_id", task.ConversionID,
				"status", task.Status,
				"delay", delay,
			)
			return nil
		}
		s.logger.Warnw("postback_durable_unavailable_fallback_inline",
			"conversion_id", task.ConversionID,
			"error", err,
		)
	}
	if s.inline == nil {
		return queue.ErrQueueDisabled
	}
	return s.inline.Submit(ctx, task, delay)
}

// Stats 持久队列可用时返回队列统计，否则返回进程内计数
func (s *PostbackQueueService) Stats(ctx context.Context) QueueStats {
	if s.durable != nil && s.durable.Healthy(ctx) == nil {
		stats, err := s.durable.Stats()
		if err == nil {
			return QueueStats{Backend: s.durable.Name(), Durable: &stats}
		}
		s.logger.Warnw("postback_queue_stats_failed", "error", err)
	}
	result := QueueStats{Backend: constants.QueueBackendInline}
	if s.inline != nil {
		counters := s.inline.Counters()
		result.Counters = &counters
	}
	return result
}
