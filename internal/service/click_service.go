package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/convtrack/internal/cache"
	"github.com/convtrack/internal/config"
	"github.com/convtrack/internal/logger"
	"github.com/convtrack/internal/models"
	"github.com/convtrack/internal/repository"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

const (
	maxGenericSubs     = 16
	maxClickIDLength   = 64
	defaultIDAttempts  = 3
	maxSubValueLength  = 255
	sub2PairSeparator  = "|"
	sub2ValueSeparator = "-"
)

// ClickEnricher 点击地理/设备信息补全（外部协作方）
type ClickEnricher interface {
	Enrich(ctx context.Context, click *models.Click)
}

// NoopClickEnricher 不做补全
type NoopClickEnricher struct{}

// Enrich 实现 ClickEnricher
func (NoopClickEnricher) Enrich(context.Context, *models.Click) {}

// Sub2Parser sub2 子参数解析器
type Sub2Parser struct {
	allowed   map[string]struct{}
	maxPairs  int
	maxLength int
}

// NewSub2Parser 根据配置创建解析器
func NewSub2Parser(cfg config.TrackingConfig) *Sub2Parser {
	allowed := make(map[string]struct{}, len(cfg.Sub2AllowedKeys))
	for _, key := range cfg.Sub2AllowedKeys {
		key = strings.TrimSpace(key)
		if key != "" {
			allowed[key] = struct{}{}
		}
	}
	return &Sub2Parser{allowed: allowed, maxPairs: cfg.Sub2MaxPairs, maxLength: cfg.Sub2MaxLength}
}

// Parse 解析 key-value|key-value，非法输入静默丢弃
func (p *Sub2Parser) Parse(raw string) map[string]string {
	result := map[string]string{}
	if p == nil {
		return result
	}
	if p.maxLength > 0 && len(raw) > p.maxLength {
		return result
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return result
	}
	for i, pair := range strings.Split(raw, sub2PairSeparator) {
		if p.maxPairs > 0 && i >= p.maxPairs {
			break
		}
		key, value, found := strings.Cut(pair, sub2ValueSeparator)
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		if _, ok := p.allowed[key]; !ok {
			continue
		}
		result[key] = value
	}
	return result
}

// ClickService 点击记录服务
type ClickService struct {
	repo     repository.ClickRepository
	cache    *cache.Client
	enricher ClickEnricher
	sub2     *Sub2Parser
	attempts int
	newID    func() string
}

// NewClickService 创建点击服务
func NewClickService(repo repository.ClickRepository, cacheClient *cache.Client, enricher ClickEnricher, cfg config.TrackingConfig) *ClickService {
	if enricher == nil {
		enricher = NoopClickEnricher{}
	}
	attempts := cfg.ClickIDAttempts
	if attempts <= 0 {
		attempts = defaultIDAttempts
	}
	return &ClickService{
		repo:     repo,
		cache:    cacheClient,
		enricher: enricher,
		sub2:     NewSub2Parser(cfg),
		attempts: attempts,
		newID:    func() string { return ulid.Make().String() },
	}
}

// RecordClickInput 点击记录输入
type RecordClickInput struct {
	ClickID      string
	TrackingCode string
	AdvertiserID uint
	PartnerID    uint
	OfferID      uint
	CampaignID   uint
	FlowID       uint
	Referrer     string
	Site         string
	Subs         map[string]string
	Sub2         string
	UTMSource    string
	UTMMedium    string
	UTMCampaign  string
	UTMTerm      string
	UTMContent   string
	ClientIP     string
	UserAgent    string
}

// ParseSub2 解析 sub2 子参数
func (s *ClickService) ParseSub2(raw string) map[string]string {
	return s.sub2.Parse(raw)
}

// RecordClick 记录点击；生成的标识冲突时换新重试，外部指定的标识冲突直接报错
func (s *ClickService) RecordClick(ctx context.Context, input RecordClickInput) (*models.Click, error) {
	click, err := s.buildClick(input)
	if err != nil {
		return nil, err
	}
	s.enricher.Enrich(ctx, click)

	suppliedID := strings.TrimSpace(input.ClickID)
	if suppliedID != "" {
		if len(suppliedID) > maxClickIDLength {
			return nil, fmt.Errorf("%w: click_id too long", ErrValidation)
		}
		click.ClickID = suppliedID
		if err := s.persist(click); err != nil {
			if isUniqueViolation(err) {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateClick, suppliedID)
			}
			return nil, err
		}
		s.remember(ctx, click)
		return click, nil
	}

	for attempt := 1; attempt <= s.attempts; attempt++ {
		click.ID = 0
		click.ClickID = s.newID()
		err := s.persist(click)
		if err == nil {
			s.remember(ctx, click)
			return click, nil
		}
		if !isUniqueViolation(err) {
			return nil, err
		}
		logger.Warnw("click_id_collision", "click_id", click.ClickID, "attempt", attempt)
	}
	return nil, fmt.Errorf("%w: generated id collided %d times", ErrDuplicateClick, s.attempts)
}

// GetClick 按点击标识读取（优先缓存）
func (s *ClickService) GetClick(ctx context.Context, clickID string) (*models.Click, error) {
	clickID = strings.TrimSpace(clickID)
	if clickID == "" {
		return nil, nil
	}
	if cached, ok, err := s.cache.GetClick(ctx, clickID); err != nil {
		logger.Warnw("click_cache_read_failed", "click_id", clickID, "error", err)
	} else if ok {
		return cached, nil
	}
	click, err := s.repo.GetByClickID(clickID)
	if err != nil || click == nil {
		return click, err
	}
	s.remember(ctx, click)
	return click, nil
}

func (s *ClickService) buildClick(input RecordClickInput) (*models.Click, error) {
	click := &models.Click{
		AdvertiserID: input.AdvertiserID,
		PartnerID:    input.PartnerID,
		OfferID:      input.OfferID,
		CampaignID:   input.CampaignID,
		FlowID:       input.FlowID,
		Referrer:     truncate(strings.TrimSpace(input.Referrer), 1024),
		Site:         truncate(strings.TrimSpace(input.Site), maxSubValueLength),
		UTMSource:    truncate(strings.TrimSpace(input.UTMSource), maxSubValueLength),
		UTMMedium:    truncate(strings.TrimSpace(input.UTMMedium), maxSubValueLength),
		UTMCampaign:  truncate(strings.TrimSpace(input.UTMCampaign), maxSubValueLength),
		UTMTerm:      truncate(strings.TrimSpace(input.UTMTerm), maxSubValueLength),
		UTMContent:   truncate(strings.TrimSpace(input.UTMContent), maxSubValueLength),
		ClientIP:     strings.TrimSpace(input.ClientIP),
		UserAgent:    truncate(strings.TrimSpace(input.UserAgent), 1024),
		CreatedAt:    time.Now(),
	}

	if code := strings.TrimSpace(input.TrackingCode); code != "" {
		link, err := s.repo.GetLinkByCode(code)
		if err != nil {
			return nil, err
		}
		if link == nil {
			return nil, fmt.Errorf("%w: unknown tracking link %q", ErrValidation, code)
		}
		click.TrackingLinkID = &link.ID
		if click.OfferID == 0 {
			click.OfferID = link.OfferID
		}
		if click.AdvertiserID == 0 {
			click.AdvertiserID = link.AdvertiserID
		}
	}
	if click.OfferID == 0 {
		return nil, fmt.Errorf("%w: offer_id is required", ErrValidation)
	}

	click.Subs = normalizeSubs(input.Subs)
	sub2 := input.Sub2
	if sub2 == "" {
		sub2 = input.Subs["sub2"]
	}
	click.Sub2Raw = truncate(sub2, 512)
	click.Sub2Params = models.StringMap(s.sub2.Parse(sub2))
	return click, nil
}

func (s *ClickService) persist(click *models.Click) error {
	return s.repo.Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(click); err != nil {
			return err
		}
		if click.TrackingLinkID != nil {
			return repo.IncrementLinkClicks(*click.TrackingLinkID, click.CreatedAt)
		}
		return nil
	})
}

func (s *ClickService) remember(ctx context.Context, click *models.Click) {
	if err := s.cache.SetClick(ctx, click); err != nil {
		logger.Warnw("click_cache_write_failed", "click_id", click.ClickID, "error", err)
	}
}

// normalizeSubs 仅保留 sub1..sub16
func normalizeSubs(subs map[string]string) models.StringMap {
	result := models.StringMap{}
	for i := 1; i <= maxGenericSubs; i++ {
		key := fmt.Sprintf("sub%d", i)
		value := strings.TrimSpace(subs[key])
		if value != "" {
			result[key] = truncate(value, maxSubValueLength)
		}
	}
	return result
}

// truncate 按字节截断并剔除非法 UTF-8（含被截断的半个字符）
func truncate(value string, limit int) string {
	if limit > 0 && len(value) > limit {
		value = value[:limit]
	}
	return strings.ToValidUTF8(value, "")
}
