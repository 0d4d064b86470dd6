package models

import (
	"time"

	"gorm.io/gorm"
)

// PostbackProfile 回传配置
type PostbackProfile struct {
	ID                   uint           `gorm:"primarykey" json:"id"`                                                             // 主键
	OwnerScope           string         `gorm:"type:varchar(16);index:idx_postback_owner,priority:1;not null" json:"owner_scope"` // 归属类型
	OwnerID              uint           `gorm:"index:idx_postback_owner,priority:2;not null" json:"owner_id"`                     // 归属ID
	ScopeType            string         `gorm:"type:varchar(16);not null;default:'global'" json:"scope_type"`                     // 作用域类型
	ScopeID              *uint          `json:"scope_id,omitempty"`                                                               // 作用域ID
	Name                 string         `gorm:"type:varchar(128);not null" json:"name"`                                           // 名称
	Enabled              bool           `gorm:"index;not null" json:"enabled"`                                                    // 是否启用
	Priority             int            `gorm:"not null;default:0" json:"priority"`                                               // 优先级（大者先发）
	EndpointURL          string         `gorm:"type:varchar(2048);not null" json:"endpoint_url"`                                  // 回传地址模板
	Method               string         `gorm:"type:varchar(8);not null;default:'GET'" json:"method"`                             // 请求方式
	BodyFormat           string         `gorm:"type:varchar(8);not null;default:'form'" json:"body_format"`                       // POST 请求体格式
	AuthType             string         `gorm:"type:varchar(16);not null;default:'none'" json:"auth_type"`                        // 鉴权方式
	AuthName             string         `gorm:"type:varchar(128)" json:"auth_name"`                                               // 鉴权参数名
	AuthValue            string         `gorm:"type:varchar(512)" json:"-"`                                                       // 鉴权凭据
	StatusMap            StatusMap      `gorm:"type:json" json:"status_map"`                                                      // 状态映射
	ParamsTemplate       StringMap      `gorm:"type:json" json:"params_template"`                                                 // 参数模板
	ExtraMacros          StringMap      `gorm:"type:json" json:"extra_macros"`                                                    // 自定义宏
	HmacEnabled          bool           `gorm:"not null;default:false" json:"hmac_enabled"`                                       // 是否签名
	HmacSecret           string         `gorm:"type:varchar(512)" json:"-"`                                                       // 签名密钥
	HmacPayloadTemplate  string         `gorm:"type:varchar(2048)" json:"hmac_payload_template"`                                  // 签名原文模板
	HmacParamName        string         `gorm:"type:varchar(128)" json:"hmac_param_name"`                                         // 签名参数名
	Retries              int            `gorm:"not null;default:3" json:"retries"`                                                // 最大尝试次数
	TimeoutMs            int            `gorm:"not null;default:5000" json:"timeout_ms"`                                          // 单次超时
	BackoffBaseSec       int            `gorm:"not null" json:"backoff_base_sec"`                                                 // 退避基数
	FilterRevenueGt0     bool           `gorm:"not null;default:false" json:"filter_revenue_gt0"`                                 // 仅收益大于 0
	FilterCountriesAllow StringArray    `gorm:"type:json" json:"filter_countries_allow"`                                          // 国家白名单
	FilterCountriesDeny  StringArray    `gorm:"type:json" json:"filter_countries_deny"`                                           // 国家黑名单
	FilterExcludeBots    bool           `gorm:"not null;default:false" json:"filter_exclude_bots"`                                // 排除爬虫
	AfBlockHard          bool           `gorm:"not null" json:"af_block_hard"`                                                    // 硬拦截
	AfSoftOnlyPending    bool           `gorm:"not null;default:false" json:"af_soft_only_pending"`                               // 软风险仅放行 pending
	AfLogBlocked         bool           `gorm:"not null;default:false" json:"af_log_blocked"`                                     // 记录拦截日志
	SuccessBodyContains  string         `gorm:"type:varchar(255)" json:"success_body_contains"`                                   // 成功响应关键字
	CreatedAt            time.Time      `json:"created_at"`                                                                       // 创建时间
	UpdatedAt            time.Time      `json:"updated_at"`                                                                       // 更新时间
	DeletedAt            gorm.DeletedAt `gorm:"index" json:"-"`                                                                   // 软删除时间
}

// TableName 指定表名
func (PostbackProfile) TableName() string {
	return "postback_profiles"
}

// HasAuthSecret 是否已配置鉴权凭据
func (p *PostbackProfile) HasAuthSecret() bool {
	return p != nil && p.AuthValue != ""
}
