package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/convtrack/internal/constants"
	"github.com/convtrack/internal/logger"
	"github.com/convtrack/internal/models"
	"github.com/convtrack/internal/repository"

	"gorm.io/gorm"
)

const (
	maxTxIDLength        = 128
	maxCurrencyLength    = 8
	conversionWriteTries = 3
)

// ConversionEnqueuer 转化投递入队
type ConversionEnqueuer interface {
	Enqueue(ctx context.Context, conversion *models.ConversionEvent) error
}

// ConversionService 转化事件服务
type ConversionService struct {
	repo   repository.ConversionRepository
	clicks *ClickService
	queue  ConversionEnqueuer
}

// NewConversionService 创建转化服务
func NewConversionService(repo repository.ConversionRepository, clicks *ClickService, queue ConversionEnqueuer) *ConversionService {
	return &ConversionService{repo: repo, clicks: clicks, queue: queue}
}

// EventInput 入站事件（第一方 / 推广追踪 / 支付回调）
type EventInput struct {
	Source         string
	AdvertiserID   uint
	OwnerID        uint
	Type           string
	TxID           string
	Status         string
	ClickID        string
	Revenue        *models.Money
	Currency       string
	AntifraudLevel string
	AntifraudScore *float64
	Details        map[string]interface{}
}

// IngestResult 事件处理结果
type IngestResult struct {
	Conversion     *models.ConversionEvent
	Created        bool
	PreviousStatus string
	StatusChanged  bool
}

// Ingest 校验 -> 映射状态 -> 事务内合并写入 -> 状态变化时入队
func (s *ConversionService) Ingest(ctx context.Context, input EventInput) (*IngestResult, error) {
	if err := validateEventInput(&input); err != nil {
		return nil, err
	}
	canonical := MapExternalStatus(input.Status, input.Source)

	var click *models.Click
	if input.ClickID != "" && s.clicks != nil {
		found, err := s.clicks.GetClick(ctx, input.ClickID)
		if err != nil {
			return nil, err
		}
		click = found
	}

	var result *IngestResult
	var err error
	for attempt := 1; attempt <= conversionWriteTries; attempt++ {
		result, err = s.mergeAndSave(input, canonical, click)
		if !errors.Is(err, repository.ErrConversionKeyConflict) {
			break
		}
		logger.Warnw("conversion_key_conflict_retry",
			"advertiser_id", input.AdvertiserID,
			"type", input.Type,
			"tx_id", input.TxID,
			"attempt", attempt,
		)
	}
	if errors.Is(err, repository.ErrConversionKeyConflict) {
		return nil, fmt.Errorf("%w: %s/%s", ErrConversionConflict, input.Type, input.TxID)
	}
	if err != nil {
		return nil, err
	}

	conversion := result.Conversion
	logger.Infow("conversion_upserted",
		"conversion_id", conversion.ID,
		"advertiser_id", conversion.AdvertiserID,
		"type", conversion.Type,
		"tx_id", conversion.TxID,
		"source", input.Source,
		"incoming_status", canonical,
		"previous_status", result.PreviousStatus,
		"status", conversion.ConversionStatus,
		"created", result.Created,
	)

	if (result.Created || result.StatusChanged) && s.queue != nil {
		if err := s.queue.Enqueue(ctx, conversion); err != nil {
			logger.Errorw("conversion_enqueue_failed", "conversion_id", conversion.ID, "error", err)
		}
	}
	return result, nil
}

// GetByID 读取转化
func (s *ConversionService) GetByID(id uint) (*models.ConversionEvent, error) {
	conversion, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if conversion == nil {
		return nil, ErrConversionNotFound
	}
	return conversion, nil
}

// GetForOwner 读取转化并校验归属（owner/advertiser/partner 对应各自字段）
func (s *ConversionService) GetForOwner(owner repository.PostbackOwnerRef, id uint) (*models.ConversionEvent, error) {
	conversion, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}
	if !conversionVisibleTo(conversion, owner) {
		return nil, ErrProfileForbidden
	}
	return conversion, nil
}

func conversionVisibleTo(conversion *models.ConversionEvent, owner repository.PostbackOwnerRef) bool {
	if owner.ID == 0 {
		return false
	}
	switch owner.Scope {
	case constants.PostbackOwnerScopeOwner:
		return conversion.OwnerID == owner.ID
	case constants.PostbackOwnerScopeAdvertiser:
		return conversion.AdvertiserID == owner.ID
	case constants.PostbackOwnerScopePartner:
		return conversion.PartnerID == owner.ID
	default:
		return false
	}
}

func (s *ConversionService) mergeAndSave(input EventInput, canonical string, click *models.Click) (*IngestResult, error) {
	result := &IngestResult{}
	err := s.repo.Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindByKeyForUpdate(input.AdvertiserID, input.Type, input.TxID)
		if err != nil {
			return err
		}
		conversion := existing
		if conversion == nil {
			result.Created = true
			conversion = &models.ConversionEvent{
				AdvertiserID:   input.AdvertiserID,
				Type:           input.Type,
				TxID:           input.TxID,
				AntifraudLevel: constants.AntifraudLevelOK,
			}
		} else {
			result.PreviousStatus = conversion.ConversionStatus
		}

		conversion.ConversionStatus = NormalizeStatus(result.PreviousStatus, canonical, input.Type)
		result.StatusChanged = conversion.ConversionStatus != result.PreviousStatus
		mergeConversion(conversion, input, click)

		if err := repo.Upsert(conversion); err != nil {
			return err
		}
		result.Conversion = conversion
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// mergeConversion 合并字段：金额/币种/风控以最新事件为准，明细按键累积，点击只填一次
func mergeConversion(conversion *models.ConversionEvent, input EventInput, click *models.Click) {
	conversion.Source = input.Source
	if input.Revenue != nil {
		conversion.Revenue = *input.Revenue
	}
	if input.Currency != "" {
		conversion.Currency = input.Currency
	}
	if input.AntifraudLevel != "" {
		conversion.AntifraudLevel = input.AntifraudLevel
	}
	if input.AntifraudScore != nil {
		conversion.AntifraudScore = *input.AntifraudScore
	}
	if len(input.Details) > 0 {
		conversion.Details = conversion.Details.Merge(input.Details)
	}
	if conversion.ClickID == "" && input.ClickID != "" {
		conversion.ClickID = input.ClickID
	}
	if conversion.OwnerID == 0 {
		conversion.OwnerID = input.OwnerID
	}
	if click != nil && click.ClickID == conversion.ClickID {
		if conversion.PartnerID == 0 {
			conversion.PartnerID = click.PartnerID
		}
		if conversion.OfferID == 0 {
			conversion.OfferID = click.OfferID
		}
		if conversion.CampaignID == 0 {
			conversion.CampaignID = click.CampaignID
		}
		if conversion.FlowID == 0 {
			conversion.FlowID = click.FlowID
		}
	}
}

func validateEventInput(input *EventInput) error {
	input.Source = strings.ToLower(strings.TrimSpace(input.Source))
	input.Type = strings.ToLower(strings.TrimSpace(input.Type))
	input.TxID = strings.TrimSpace(input.TxID)
	input.Status = strings.TrimSpace(input.Status)
	input.ClickID = strings.TrimSpace(input.ClickID)
	input.Currency = strings.ToUpper(strings.TrimSpace(input.Currency))
	input.AntifraudLevel = strings.ToLower(strings.TrimSpace(input.AntifraudLevel))

	switch input.Source {
	case constants.EventSourceFirstParty, constants.EventSourceTracker, constants.EventSourcePayment:
	default:
		return fmt.Errorf("%w: unknown source %q", ErrValidation, input.Source)
	}
	if input.AdvertiserID == 0 {
		return fmt.Errorf("%w: advertiser_id is required", ErrValidation)
	}
	if !IsConversionType(input.Type) {
		return fmt.Errorf("%w: invalid event type %q", ErrValidation, input.Type)
	}
	if input.TxID == "" || len(input.TxID) > maxTxIDLength {
		return fmt.Errorf("%w: txid is required (max %d chars)", ErrValidation, maxTxIDLength)
	}
	if input.Status == "" {
		return fmt.Errorf("%w: status is required", ErrValidation)
	}
	if input.Source == constants.EventSourceFirstParty && !IsCanonicalStatus(strings.ToLower(input.Status)) {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, input.Status)
	}
	if len(input.ClickID) > maxClickIDLength {
		return fmt.Errorf("%w: click_id too long", ErrValidation)
	}
	if len(input.Currency) > maxCurrencyLength {
		return fmt.Errorf("%w: invalid currency", ErrValidation)
	}
	if input.Revenue != nil && input.Revenue.IsNegative() {
		return fmt.Errorf("%w: revenue must not be negative", ErrValidation)
	}
	switch input.AntifraudLevel {
	case "", constants.AntifraudLevelOK, constants.AntifraudLevelSoft, constants.AntifraudLevelHard:
	default:
		return fmt.Errorf("%w: invalid antifraud level %q", ErrValidation, input.AntifraudLevel)
	}
	return nil
}
