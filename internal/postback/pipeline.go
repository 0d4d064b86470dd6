package postback

import (
	"context"

	"github.com/convtrack/internal/logger"
	"github.com/convtrack/internal/models"

	"go.uber.org/zap"
)

// Summary 单个任务的处理汇总
type Summary struct {
	Matched      int `json:"matched"`
	Succeeded    int `json:"succeeded"`
	Failed       int `json:"failed"`
	Blocked      int `json:"blocked"`
	Skipped      int `json:"skipped"`
	Deduplicated int `json:"deduplicated"`
}

// Pipeline 闸门 + 匹配 + 投递
type Pipeline struct {
	matcher    *Matcher
	gate       *Gate
	dispatcher *Dispatcher
	metrics    *Metrics
	logger     *zap.SugaredLogger
}

// NewPipeline 创建投递流水线
func NewPipeline(matcher *Matcher, gate *Gate, dispatcher *Dispatcher, metrics *Metrics) *Pipeline {
	if gate == nil {
		gate = NewGate()
	}
	return &Pipeline{
		matcher:    matcher,
		gate:       gate,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger.Named("pipeline"),
	}
}

// Metrics 返回指标
func (p *Pipeline) Metrics() *Metrics {
	return p.metrics
}

// Process 处理一个任务；投递失败只记录不返回错误
func (p *Pipeline) Process(ctx context.Context, task Task) (Summary, error) {
	var summary Summary
	if err := task.Validate(); err != nil {
		return summary, err
	}
	profiles, err := p.matcher.MatchProfiles(ctx, task)
	if err != nil {
		p.logger.Errorw("postback_profile_match_failed", "conversion_id", task.ConversionID, "error", err)
		return summary, err
	}
	p.metrics.taskProcessed()
	summary.Matched = len(profiles)

	decisions := p.gate.FilterProfiles(task, profiles)
	proceed := make([]models.PostbackProfile, 0, len(decisions))
	for _, decision := range decisions {
		switch {
		case decision.Blocked:
			summary.Blocked++
			p.metrics.profileBlocked(task.Level())
			if decision.Profile.AfLogBlocked {
				if err := p.dispatcher.LogBlocked(task, decision); err != nil {
					p.logger.Errorw("postback_block_log_failed", "profile_id", decision.Profile.ID, "error", err)
				}
			}
			p.logger.Infow("postback_blocked",
				"conversion_id", task.ConversionID,
				"profile_id", decision.Profile.ID,
				"reason", decision.Reason,
			)
		case decision.Skipped:
			summary.Skipped++
			p.metrics.profileSkipped(decision.Reason)
		default:
			proceed = append(proceed, decision.Profile)
		}
	}

	if len(proceed) > 0 {
		for _, outcome := range p.dispatcher.DeliverAll(ctx, task, proceed) {
			switch outcome.Status {
			case OutcomeSuccess:
				summary.Succeeded++
			case OutcomeDeduplicated, OutcomeInFlight:
				summary.Deduplicated++
			default:
				summary.Failed++
			}
		}
	}

	p.logger.Infow("postback_task_processed",
		"conversion_id", task.ConversionID,
		"status", task.Status,
		"matched", summary.Matched,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"blocked", summary.Blocked,
		"skipped", summary.Skipped,
	)
	return summary, nil
}
