package postback

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/convtrack/internal/constants"
	"github.com/convtrack/internal/models"
	"github.com/convtrack/internal/repository"
)

var (
	// ErrRequestBuild 回传请求构建失败
	ErrRequestBuild = errors.New("postback request build failed")
	// ErrInvalidTask 任务载荷非法
	ErrInvalidTask = errors.New("postback task invalid")
)

// Task 一次转化投递任务（队列载荷）
type Task struct {
	ConversionID   uint                   `json:"conversion_id"`
	AdvertiserID   uint                   `json:"advertiser_id"`
	OwnerID        uint                   `json:"owner_id,omitempty"`
	PartnerID      uint                   `json:"partner_id,omitempty"`
	OfferID        uint                   `json:"offer_id,omitempty"`
	CampaignID     uint                   `json:"campaign_id,omitempty"`
	FlowID         uint                   `json:"flow_id,omitempty"`
	ClickID        string                 `json:"click_id,omitempty"`
	EventType      string                 `json:"event_type"`
	TxID           string                 `json:"tx_id"`
	Status         string                 `json:"status"`
	Revenue        models.Money           `json:"revenue"`
	Currency       string                 `json:"currency,omitempty"`
	AntifraudLevel string                 `json:"antifraud_level,omitempty"`
	AntifraudScore float64                `json:"antifraud_score,omitempty"`
	ClickCountry   string                 `json:"click_country,omitempty"`
	ClickIsBot     bool                   `json:"click_is_bot,omitempty"`
	Details        map[string]interface{} `json:"details,omitempty"`
}

// NewTask 由转化记录（及可选点击）构建任务
func NewTask(event *models.ConversionEvent, click *models.Click) Task {
	if event == nil {
		return Task{}
	}
	task := Task{
		ConversionID:   event.ID,
		AdvertiserID:   event.AdvertiserID,
		OwnerID:        event.OwnerID,
		PartnerID:      event.PartnerID,
		OfferID:        event.OfferID,
		CampaignID:     event.CampaignID,
		FlowID:         event.FlowID,
		ClickID:        event.ClickID,
		EventType:      event.Type,
		TxID:           event.TxID,
		Status:         event.ConversionStatus,
		Revenue:        event.Revenue,
		Currency:       event.Currency,
		AntifraudLevel: event.AntifraudLevel,
		AntifraudScore: event.AntifraudScore,
	}
	if len(event.Details) > 0 {
		task.Details = make(map[string]interface{}, len(event.Details))
		for k, v := range event.Details {
			task.Details[k] = v
		}
	}
	if click != nil {
		task.ClickCountry = click.Country
		task.ClickIsBot = click.IsBot
	}
	return task
}

// Validate 校验任务必填字段
func (t Task) Validate() error {
	if t.ConversionID == 0 {
		return fmt.Errorf("%w: conversion_id is required", ErrInvalidTask)
	}
	if strings.TrimSpace(t.EventType) == "" || strings.TrimSpace(t.Status) == "" {
		return fmt.Errorf("%w: event_type and status are required", ErrInvalidTask)
	}
	return nil
}

// Level 规范化后的反作弊等级
func (t Task) Level() string {
	switch strings.ToLower(strings.TrimSpace(t.AntifraudLevel)) {
	case constants.AntifraudLevelHard:
		return constants.AntifraudLevelHard
	case constants.AntifraudLevelSoft:
		return constants.AntifraudLevelSoft
	default:
		return constants.AntifraudLevelOK
	}
}

// OwnerRefs 可匹配的配置归属：广告主、渠道、所有者
func (t Task) OwnerRefs() []repository.PostbackOwnerRef {
	refs := []repository.PostbackOwnerRef{{Scope: constants.PostbackOwnerScopeAdvertiser, ID: t.AdvertiserID}}
	if t.PartnerID != 0 {
		refs = append(refs, repository.PostbackOwnerRef{Scope: constants.PostbackOwnerScopePartner, ID: t.PartnerID})
	}
	if t.OwnerID != 0 {
		refs = append(refs, repository.PostbackOwnerRef{Scope: constants.PostbackOwnerScopeOwner, ID: t.OwnerID})
	}
	return refs
}

// ScopeRef 任务作用域
func (t Task) ScopeRef() repository.PostbackScopeRef {
	return repository.PostbackScopeRef{
		CampaignID: t.CampaignID,
		OfferID:    t.OfferID,
		FlowID:     t.FlowID,
	}
}

// DedupKey 成功投递去重键
func (t Task) DedupKey(profileID uint) repository.DeliveryDedupKey {
	return repository.DeliveryDedupKey{
		ClickID:      t.ClickID,
		ConversionID: t.ConversionID,
		EventType:    t.EventType,
		ProfileID:    profileID,
		Status:       t.Status,
	}
}

// LockKey 投递锁 key
func (t Task) LockKey(profileID uint) string {
	ref := t.ClickID
	if ref == "" {
		ref = fmt.Sprintf("conv-%d", t.ConversionID)
	}
	return fmt.Sprintf("postback:%s:%s:%d:%s", ref, t.EventType, profileID, t.Status)
}

// Encode 编码为队列载荷
func (t Task) Encode() ([]byte, error) {
	return json.Marshal(t)
}

// DecodeTask 解析队列载荷
func DecodeTask(payload []byte) (Task, error) {
	var task Task
	if err := json.Unmarshal(payload, &task); err != nil {
		return Task{}, fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}
	if err := task.Validate(); err != nil {
		return Task{}, err
	}
	return task, nil
}
