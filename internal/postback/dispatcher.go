package postback

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/convtrack/internal/cache"
	"github.com/convtrack/internal/constants"
	"github.com/convtrack/internal/logger"
	"github.com/convtrack/internal/models"
	"github.com/convtrack/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxAttempts = 3
	defaultTimeout     = 5 * time.Second
	maxBackoffShift    = 16
	maskedValue        = "***"
)

// 单个配置允许的投递参数上限
const (
	MaxRetries        = 10
	MaxTimeoutMs      = 60000
	MaxBackoffBaseSec = 3600
	// MaxBackoffDelay 单次重试等待上限
	MaxBackoffDelay = time.Hour
)

// 投递结果
const (
	OutcomeSuccess      = "success"
	OutcomeFailed       = "failed"
	OutcomeDeduplicated = "deduplicated"
	OutcomeInFlight     = "in_flight"
)

// DeliveryLog 投递日志（只追加）
type DeliveryLog interface {
	Create(delivery *models.PostbackDelivery) error
	HasSuccess(key repository.DeliveryDedupKey) (bool, error)
}

// Locker 投递互斥锁
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (cache.ReleaseFunc, bool, error)
}

// SleepFunc 可被 context 打断的等待
type SleepFunc func(ctx context.Context, d time.Duration) error

// Outcome 单个配置的投递结果
type Outcome struct {
	ProfileID uint
	Status    string
	Attempts  int
	Err       error
}

// DispatcherOptions 投递器配置
type DispatcherOptions struct {
	MaxParallel      int
	DefaultRetries   int
	DefaultTimeoutMs int
	LockTTL          time.Duration
	Locker           Locker
	Sleep            SleepFunc
	Metrics          *Metrics
}

// Dispatcher 回传投递器：同一任务的各配置并发，单配置内顺序重试
type Dispatcher struct {
	renderer       *Renderer
	sender         Sender
	log            DeliveryLog
	locker         Locker
	lockTTL        time.Duration
	maxParallel    int
	defaultRetries int
	defaultTimeout time.Duration
	sleep          SleepFunc
	metrics        *Metrics
	logger         *zap.SugaredLogger
}

// NewDispatcher 创建投递器
func NewDispatcher(renderer *Renderer, sender Sender, log DeliveryLog, opts DispatcherOptions) *Dispatcher {
	if renderer == nil {
		renderer = NewRenderer()
	}
	d := &Dispatcher{
		renderer:       renderer,
		sender:         sender,
		log:            log,
		locker:         opts.Locker,
		lockTTL:        opts.LockTTL,
		maxParallel:    opts.MaxParallel,
		defaultRetries: opts.DefaultRetries,
		defaultTimeout: time.Duration(opts.DefaultTimeoutMs) * time.Millisecond,
		sleep:          opts.Sleep,
		metrics:        opts.Metrics,
		logger:         logger.Named("dispatcher"),
	}
	if d.defaultRetries <= 0 {
		d.defaultRetries = defaultMaxAttempts
	}
	if d.defaultTimeout <= 0 {
		d.defaultTimeout = defaultTimeout
	}
	if d.lockTTL <= 0 {
		d.lockTTL = 2 * time.Minute
	}
	if d.sleep == nil {
		d.sleep = SleepContext
	}
	return d
}

// SleepContext 基于 timer 的等待，context 结束时提前返回
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// BackoffDelay 第 attempt 次失败后的等待：base * 2^(attempt-1)
func BackoffDelay(baseSec, attempt int) time.Duration {
	if baseSec <= 0 || attempt <= 0 {
		return 0
	}
	shift := attempt - 1
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	delay := time.Duration(baseSec) * time.Second * time.Duration(1<<uint(shift))
	if delay > MaxBackoffDelay {
		return MaxBackoffDelay
	}
	return delay
}

// RetryBudget 单个配置最坏情况下的总耗时（全部尝试超时 + 全部重试等待）
func RetryBudget(attempts int, timeout time.Duration, baseSec int) time.Duration {
	total := time.Duration(0)
	for attempt := 1; attempt <= attempts; attempt++ {
		total += timeout
		if attempt < attempts {
			total += BackoffDelay(baseSec, attempt)
		}
	}
	return total
}

// MaxRetryBudget 按配置上限计算的最坏总耗时
func MaxRetryBudget() time.Duration {
	return RetryBudget(MaxRetries, time.Duration(MaxTimeoutMs)*time.Millisecond, MaxBackoffBaseSec)
}

// DeliverAll 并发投递多个配置，结果顺序与入参一致
func (d *Dispatcher) DeliverAll(ctx context.Context, task Task, profiles []models.PostbackProfile) []Outcome {
	outcomes := make([]Outcome, len(profiles))
	if len(profiles) == 0 {
		return outcomes
	}
	g, gctx := errgroup.WithContext(ctx)
	if d.maxParallel > 0 {
		g.SetLimit(d.maxParallel)
	}
	for i := range profiles {
		i := i
		g.Go(func() error {
			outcomes[i] = d.Deliver(gctx, task, profiles[i])
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// Deliver 单配置投递：去重 -> 加锁 -> 尝试循环
func (d *Dispatcher) Deliver(ctx context.Context, task Task, profile models.PostbackProfile) Outcome {
	outcome := Outcome{ProfileID: profile.ID}
	log := d.logger.With(
		"conversion_id", task.ConversionID,
		"profile_id", profile.ID,
		"event_type", task.EventType,
		"status", task.Status,
	)

	if d.log != nil {
		delivered, err := d.log.HasSuccess(task.DedupKey(profile.ID))
		if err != nil {
			log.Warnw("postback_dedup_check_failed", "error", err)
		} else if delivered {
			log.Infow("postback_already_delivered")
			d.metrics.deliveryDeduplicated()
			outcome.Status = OutcomeDeduplicated
			return outcome
		}
	}

	if d.locker != nil {
		release, acquired, err := d.locker.TryLock(ctx, task.LockKey(profile.ID), d.lockTTL)
		switch {
		case err != nil:
			log.Warnw("postback_lock_failed", "error", err)
		case !acquired:
			log.Infow("postback_in_flight_elsewhere")
			outcome.Status = OutcomeInFlight
			return outcome
		default:
			defer func() {
				if err := release(context.Background()); err != nil {
					log.Warnw("postback_lock_release_failed", "error", err)
				}
			}()
		}
	}

	maxAttempts := profile.Retries
	if maxAttempts <= 0 {
		maxAttempts = d.defaultRetries
	}
	timeout := time.Duration(profile.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = d.defaultTimeout
	}
	deliveryKey := uuid.NewString()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		outcome.Attempts = attempt
		row := d.newRow(task, profile, deliveryKey, attempt, maxAttempts)

		req, err := d.renderer.BuildRequest(task, &profile)
		if err != nil {
			// 模板错误重试无意义，直接终止
			row.Status = constants.PostbackDeliveryFailed
			row.Error = err.Error()
			d.appendRow(log, row)
			d.metrics.deliveryFailed()
			log.Warnw("postback_request_build_failed", "error", err)
			outcome.Status = OutcomeFailed
			outcome.Err = err
			return outcome
		}
		fillRequest(row, req, &profile)

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		started := time.Now()
		resp, sendErr := d.sender.Send(attemptCtx, req)
		elapsed := time.Since(started)
		cancel()

		row.DurationMs = elapsed.Milliseconds()
		if resp != nil {
			row.ResponseCode = resp.StatusCode
			row.ResponseBody = resp.Body
		}
		failure := evaluate(resp, sendErr, profile.SuccessBodyContains)
		d.metrics.attemptObserved(failure == "", elapsed)

		if failure == "" {
			row.Status = constants.PostbackDeliverySuccess
			d.appendRow(log, row)
			d.metrics.deliverySucceeded()
			log.Infow("postback_delivered", "attempt", attempt, "response_code", row.ResponseCode, "duration_ms", row.DurationMs)
			outcome.Status = OutcomeSuccess
			return outcome
		}

		row.Error = failure
		if attempt >= maxAttempts {
			row.Status = constants.PostbackDeliveryFailed
			d.appendRow(log, row)
			d.metrics.deliveryFailed()
			log.Warnw("postback_delivery_failed", "attempt", attempt, "error", failure)
			outcome.Status = OutcomeFailed
			outcome.Err = fmt.Errorf("postback delivery failed after %d attempts: %s", attempt, failure)
			return outcome
		}

		row.Status = constants.PostbackDeliveryRetrying
		d.appendRow(log, row)
		delay := BackoffDelay(profile.BackoffBaseSec, attempt)
		log.Warnw("postback_attempt_failed", "attempt", attempt, "error", failure, "retry_in", delay)
		if err := d.sleep(ctx, delay); err != nil {
			// 等待被打断：补一条终态记录，避免日志停在 retrying
			terminal := d.newRow(task, profile, deliveryKey, attempt+1, maxAttempts)
			terminal.Status = constants.PostbackDeliveryFailed
			terminal.RequestMethod = row.RequestMethod
			terminal.RequestURL = row.RequestURL
			terminal.Error = fmt.Sprintf("retry interrupted: %v", err)
			d.appendRow(log, terminal)
			d.metrics.deliveryFailed()
			log.Warnw("postback_retry_interrupted", "attempt", attempt, "remaining", maxAttempts-attempt, "error", err)
			outcome.Status = OutcomeFailed
			outcome.Err = fmt.Errorf("postback retry interrupted after %d attempts: %w", attempt, err)
			return outcome
		}
	}
	outcome.Status = OutcomeFailed
	return outcome
}

// LogBlocked 写入拦截记录（不发送请求）
func (d *Dispatcher) LogBlocked(task Task, decision Decision) error {
	if d.log == nil {
		return nil
	}
	profile := decision.Profile
	row := d.newRow(task, profile, uuid.NewString(), 0, profile.Retries)
	row.Status = constants.PostbackDeliveryBlocked
	row.BlockReason = decision.Reason
	row.RequestMethod = strings.ToUpper(profile.Method)
	return d.log.Create(row)
}

func (d *Dispatcher) newRow(task Task, profile models.PostbackProfile, deliveryKey string, attempt, maxAttempts int) *models.PostbackDelivery {
	return &models.PostbackDelivery{
		DeliveryKey:      deliveryKey,
		ProfileID:        profile.ID,
		ConversionID:     task.ConversionID,
		EventType:        task.EventType,
		TxID:             task.TxID,
		ClickID:          task.ClickID,
		ConversionStatus: task.Status,
		Attempt:          attempt,
		MaxAttempts:      maxAttempts,
		Status:           constants.PostbackDeliveryPending,
	}
}

func (d *Dispatcher) appendRow(log *zap.SugaredLogger, row *models.PostbackDelivery) {
	if d.log == nil {
		return
	}
	if err := d.log.Create(row); err != nil {
		log.Errorw("postback_delivery_log_failed", "attempt", row.Attempt, "error", err)
	}
}

// evaluate 返回失败原因，成功时为空
func evaluate(resp *Response, sendErr error, successKeyword string) string {
	if sendErr != nil {
		return sendErr.Error()
	}
	if resp == nil {
		return "empty response"
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	keyword := strings.TrimSpace(successKeyword)
	if keyword != "" && !strings.Contains(resp.Body, keyword) {
		return fmt.Sprintf("response body missing %q", keyword)
	}
	return ""
}

// fillRequest 记录请求快照，鉴权与签名值脱敏
func fillRequest(row *models.PostbackDelivery, req *Request, profile *models.PostbackProfile) {
	row.RequestMethod = req.Method
	row.RequestBody = req.Body
	row.RequestURL = req.URL
	if strings.EqualFold(profile.AuthType, constants.PostbackAuthQuery) && profile.AuthName != "" {
		row.RequestURL = maskQueryParam(row.RequestURL, profile.AuthName)
	}
	headers := make(models.StringMap, len(req.Headers))
	for name, value := range req.Headers {
		headers[name] = value
	}
	if strings.EqualFold(profile.AuthType, constants.PostbackAuthHeader) && profile.AuthName != "" {
		if _, ok := headers[profile.AuthName]; ok {
			headers[profile.AuthName] = maskedValue
		}
	}
	row.RequestHeaders = headers
}

func maskQueryParam(rawURL, name string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	query := parsed.Query()
	if _, ok := query[name]; !ok {
		return rawURL
	}
	query.Set(name, maskedValue)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}
