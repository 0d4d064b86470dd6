package service

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/convtrack/internal/config"
	"github.com/convtrack/internal/constants"
	"github.com/convtrack/internal/logger"
	"github.com/convtrack/internal/models"
	"github.com/convtrack/internal/postback"
	"github.com/convtrack/internal/repository"
)

const (
	minProfileRetries    = 1
	maxProfileRetries    = postback.MaxRetries
	minProfileTimeoutMs  = 100
	maxProfileTimeoutMs  = postback.MaxTimeoutMs
	maxProfileBackoffSec = postback.MaxBackoffBaseSec
	maxProfileNameLength = 128
)

// PostbackProfileInput 回传配置写入参数；更新时 AuthValue/HmacSecret 留空表示保留原值
type PostbackProfileInput struct {
	ScopeType            string           `json:"scope_type"`
	ScopeID              *uint            `json:"scope_id"`
	Name                 string           `json:"name"`
	Enabled              bool             `json:"enabled"`
	Priority             int              `json:"priority"`
	EndpointURL          string           `json:"endpoint_url"`
	Method               string           `json:"method"`
	BodyFormat           string           `json:"body_format"`
	AuthType             string           `json:"auth_type"`
	AuthName             string           `json:"auth_name"`
	AuthValue            string           `json:"auth_value"`
	StatusMap            models.StatusMap `json:"status_map"`
	ParamsTemplate       models.StringMap `json:"params_template"`
	ExtraMacros          models.StringMap `json:"extra_macros"`
	HmacEnabled          bool             `json:"hmac_enabled"`
	HmacSecret           string           `json:"hmac_secret"`
	HmacPayloadTemplate  string           `json:"hmac_payload_template"`
	HmacParamName        string           `json:"hmac_param_name"`
	Retries              int              `json:"retries"`
	TimeoutMs            int              `json:"timeout_ms"`
	BackoffBaseSec       *int             `json:"backoff_base_sec"`
	FilterRevenueGt0     bool             `json:"filter_revenue_gt0"`
	FilterCountriesAllow []string         `json:"filter_countries_allow"`
	FilterCountriesDeny  []string         `json:"filter_countries_deny"`
	FilterExcludeBots    bool             `json:"filter_exclude_bots"`
	AfBlockHard          bool             `json:"af_block_hard"`
	AfSoftOnlyPending    bool             `json:"af_soft_only_pending"`
	AfLogBlocked         bool             `json:"af_log_blocked"`
	SuccessBodyContains  string           `json:"success_body_contains"`
}

// PostbackProfileService 回传配置管理（按归属校验）
type PostbackProfileService struct {
	profiles   repository.PostbackProfileRepository
	deliveries repository.PostbackDeliveryRepository
	defaults   config.PostbackConfig
}

// NewPostbackProfileService 创建回传配置服务
func NewPostbackProfileService(profiles repository.PostbackProfileRepository, deliveries repository.PostbackDeliveryRepository, defaults config.PostbackConfig) *PostbackProfileService {
	return &PostbackProfileService{profiles: profiles, deliveries: deliveries, defaults: defaults}
}

// List 列出归属下的配置
func (s *PostbackProfileService) List(owner repository.PostbackOwnerRef, filter repository.PostbackProfileListFilter) ([]models.PostbackProfile, int64, error) {
	if err := validateOwner(owner); err != nil {
		return nil, 0, err
	}
	filter.OwnerScope = owner.Scope
	filter.OwnerID = owner.ID
	return s.profiles.List(filter)
}

// Get 获取配置
func (s *PostbackProfileService) Get(owner repository.PostbackOwnerRef, id uint) (*models.PostbackProfile, error) {
	profile, err := s.profiles.GetByID(id)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrProfileNotFound
	}
	if profile.OwnerScope != owner.Scope || profile.OwnerID != owner.ID {
		return nil, ErrProfileForbidden
	}
	return profile, nil
}

// Create 创建配置
func (s *PostbackProfileService) Create(owner repository.PostbackOwnerRef, input PostbackProfileInput) (*models.PostbackProfile, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}
	profile := &models.PostbackProfile{OwnerScope: owner.Scope, OwnerID: owner.ID}
	s.apply(profile, input)
	if err := ValidatePostbackProfile(profile); err != nil {
		return nil, err
	}
	if err := s.profiles.Create(profile); err != nil {
		return nil, err
	}
	logger.Infow("postback_profile_created", "profile_id", profile.ID, "owner_scope", owner.Scope, "owner_id", owner.ID)
	return profile, nil
}

// Update 更新配置
func (s *PostbackProfileService) Update(owner repository.PostbackOwnerRef, id uint, input PostbackProfileInput) (*models.PostbackProfile, error) {
	profile, err := s.Get(owner, id)
	if err != nil {
		return nil, err
	}
	s.apply(profile, input)
	if err := ValidatePostbackProfile(profile); err != nil {
		return nil, err
	}
	if err := s.profiles.Update(profile); err != nil {
		return nil, err
	}
	logger.Infow("postback_profile_updated", "profile_id", profile.ID, "owner_scope", owner.Scope, "owner_id", owner.ID)
	return profile, nil
}

// Delete 删除配置
func (s *PostbackProfileService) Delete(owner repository.PostbackOwnerRef, id uint) error {
	if _, err := s.Get(owner, id); err != nil {
		return err
	}
	if err := s.profiles.Delete(id); err != nil {
		return err
	}
	logger.Infow("postback_profile_deleted", "profile_id", id, "owner_scope", owner.Scope, "owner_id", owner.ID)
	return nil
}

// ListDeliveries 仅返回归属配置的投递日志
func (s *PostbackProfileService) ListDeliveries(owner repository.PostbackOwnerRef, filter repository.PostbackDeliveryListFilter) ([]models.PostbackDelivery, int64, error) {
	if err := validateOwner(owner); err != nil {
		return nil, 0, err
	}
	ids, err := s.profiles.ListIDsByOwner(owner.Scope, owner.ID)
	if err != nil {
		return nil, 0, err
	}
	if filter.ProfileID != 0 && !containsUint(ids, filter.ProfileID) {
		return nil, 0, ErrProfileForbidden
	}
	if ids == nil {
		ids = []uint{}
	}
	filter.ProfileIDs = ids
	return s.deliveries.List(filter)
}

func (s *PostbackProfileService) apply(profile *models.PostbackProfile, input PostbackProfileInput) {
	profile.ScopeType = strings.ToLower(strings.TrimSpace(input.ScopeType))
	if profile.ScopeType == "" {
		profile.ScopeType = constants.PostbackScopeGlobal
	}
	profile.ScopeID = input.ScopeID
	if profile.ScopeType == constants.PostbackScopeGlobal {
		profile.ScopeID = nil
	}
	profile.Name = strings.TrimSpace(input.Name)
	profile.Enabled = input.Enabled
	profile.Priority = input.Priority
	profile.EndpointURL = strings.TrimSpace(input.EndpointURL)
	profile.Method = strings.ToUpper(strings.TrimSpace(input.Method))
	if profile.Method == "" {
		profile.Method = constants.PostbackMethodGet
	}
	profile.BodyFormat = strings.ToLower(strings.TrimSpace(input.BodyFormat))
	if profile.BodyFormat == "" {
		profile.BodyFormat = constants.PostbackBodyFormatForm
	}
	profile.AuthType = strings.ToLower(strings.TrimSpace(input.AuthType))
	if profile.AuthType == "" {
		profile.AuthType = constants.PostbackAuthNone
	}
	profile.AuthName = strings.TrimSpace(input.AuthName)
	if input.AuthValue != "" {
		profile.AuthValue = input.AuthValue
	}
	if profile.AuthType == constants.PostbackAuthNone {
		profile.AuthName = ""
		profile.AuthValue = ""
	}
	profile.StatusMap = normalizeStatusMap(input.StatusMap)
	profile.ParamsTemplate = input.ParamsTemplate
	profile.ExtraMacros = input.ExtraMacros
	profile.HmacEnabled = input.HmacEnabled
	if input.HmacSecret != "" {
		profile.HmacSecret = input.HmacSecret
	}
	profile.HmacPayloadTemplate = input.HmacPayloadTemplate
	profile.HmacParamName = strings.TrimSpace(input.HmacParamName)
	if !profile.HmacEnabled {
		profile.HmacSecret = ""
	}

	profile.Retries = input.Retries
	if profile.Retries == 0 {
		profile.Retries = s.defaults.DefaultRetries
	}
	profile.TimeoutMs = input.TimeoutMs
	if profile.TimeoutMs == 0 {
		profile.TimeoutMs = s.defaults.DefaultTimeoutMs
	}
	if input.BackoffBaseSec != nil {
		profile.BackoffBaseSec = *input.BackoffBaseSec
	} else if profile.ID == 0 {
		profile.BackoffBaseSec = s.defaults.DefaultBackoffBaseSec
	}

	profile.FilterRevenueGt0 = input.FilterRevenueGt0
	profile.FilterCountriesAllow = normalizeCountries(input.FilterCountriesAllow)
	profile.FilterCountriesDeny = normalizeCountries(input.FilterCountriesDeny)
	profile.FilterExcludeBots = input.FilterExcludeBots
	profile.AfBlockHard = input.AfBlockHard
	profile.AfSoftOnlyPending = input.AfSoftOnlyPending
	profile.AfLogBlocked = input.AfLogBlocked
	profile.SuccessBodyContains = strings.TrimSpace(input.SuccessBodyContains)
}

// ValidatePostbackProfile 保存前校验
func ValidatePostbackProfile(profile *models.PostbackProfile) error {
	if profile == nil {
		return invalidProfile("profile is required")
	}
	if !isOwnerScope(profile.OwnerScope) {
		return invalidProfile("invalid owner_scope %q", profile.OwnerScope)
	}
	if profile.OwnerID == 0 {
		return invalidProfile("owner_id is required")
	}
	if profile.Name == "" || len(profile.Name) > maxProfileNameLength {
		return invalidProfile("name is required (max %d chars)", maxProfileNameLength)
	}
	switch profile.ScopeType {
	case constants.PostbackScopeGlobal:
	case constants.PostbackScopeCampaign, constants.PostbackScopeOffer, constants.PostbackScopeFlow:
		if profile.ScopeID == nil || *profile.ScopeID == 0 {
			return invalidProfile("scope_id is required for scope %s", profile.ScopeType)
		}
	default:
		return invalidProfile("invalid scope_type %q", profile.ScopeType)
	}

	endpoint, err := url.Parse(profile.EndpointURL)
	if err != nil || endpoint.Host == "" {
		return invalidProfile("invalid endpoint_url")
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return invalidProfile("endpoint_url must use http or https")
	}

	switch profile.Method {
	case constants.PostbackMethodGet, constants.PostbackMethodPost:
	default:
		return invalidProfile("invalid method %q", profile.Method)
	}
	switch profile.BodyFormat {
	case constants.PostbackBodyFormatForm, constants.PostbackBodyFormatJSON:
	default:
		return invalidProfile("invalid body_format %q", profile.BodyFormat)
	}
	switch profile.AuthType {
	case constants.PostbackAuthNone:
	case constants.PostbackAuthQuery, constants.PostbackAuthHeader:
		if profile.AuthName == "" || profile.AuthValue == "" {
			return invalidProfile("auth_name and auth_value are required for auth_type %s", profile.AuthType)
		}
	default:
		return invalidProfile("invalid auth_type %q", profile.AuthType)
	}

	for eventType, byStatus := range profile.StatusMap {
		if !IsConversionType(eventType) {
			return invalidProfile("status_map: unknown event type %q", eventType)
		}
		for status := range byStatus {
			if !IsCanonicalStatus(status) {
				return invalidProfile("status_map: unknown status %q", status)
			}
		}
	}
	for name := range profile.ParamsTemplate {
		if strings.TrimSpace(name) == "" {
			return invalidProfile("params_template: empty parameter name")
		}
	}
	for name := range profile.ExtraMacros {
		if strings.TrimSpace(name) == "" {
			return invalidProfile("extra_macros: empty macro name")
		}
	}
	if profile.HmacEnabled && (profile.HmacParamName == "" || profile.HmacSecret == "") {
		return invalidProfile("hmac_param_name and hmac_secret are required when hmac is enabled")
	}

	if profile.Retries < minProfileRetries || profile.Retries > maxProfileRetries {
		return invalidProfile("retries must be between %d and %d", minProfileRetries, maxProfileRetries)
	}
	if profile.TimeoutMs < minProfileTimeoutMs || profile.TimeoutMs > maxProfileTimeoutMs {
		return invalidProfile("timeout_ms must be between %d and %d", minProfileTimeoutMs, maxProfileTimeoutMs)
	}
	if profile.BackoffBaseSec < 0 || profile.BackoffBaseSec > maxProfileBackoffSec {
		return invalidProfile("backoff_base_sec must be between 0 and %d", maxProfileBackoffSec)
	}
	return nil
}

func invalidProfile(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %w: %s", ErrValidation, ErrProfileInvalid, fmt.Sprintf(format, args...))
}

func validateOwner(owner repository.PostbackOwnerRef) error {
	if owner.ID == 0 || strings.TrimSpace(owner.Scope) == "" {
		return ErrProfileForbidden
	}
	return nil
}

func normalizeStatusMap(input models.StatusMap) models.StatusMap {
	if len(input) == 0 {
		return nil
	}
	result := make(models.StatusMap, len(input))
	for eventType, byStatus := range input {
		normalized := make(map[string]string, len(byStatus))
		for status, mapped := range byStatus {
			normalized[strings.ToLower(strings.TrimSpace(status))] = strings.TrimSpace(mapped)
		}
		result[strings.ToLower(strings.TrimSpace(eventType))] = normalized
	}
	return result
}

func normalizeCountries(input []string) models.StringArray {
	if len(input) == 0 {
		return nil
	}
	result := make(models.StringArray, 0, len(input))
	for _, code := range input {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code != "" {
			result = append(result, code)
		}
	}
	return result
}

func containsUint(items []uint, target uint) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}
