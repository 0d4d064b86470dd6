package models

import "time"

// ConversionEvent 转化事件（advertiser_id + type + tx_id 幂等）
type ConversionEvent struct {
	ID               uint      `gorm:"primarykey" json:"id"`                                                              // 主键
	AdvertiserID     uint      `gorm:"uniqueIndex:idx_conversion_key,priority:1;not null" json:"advertiser_id"`           // 广告主ID
	Type             string    `gorm:"type:varchar(16);uniqueIndex:idx_conversion_key,priority:2;not null" json:"type"`   // 事件类型
	TxID             string    `gorm:"type:varchar(128);uniqueIndex:idx_conversion_key,priority:3;not null" json:"tx_id"` // 外部交易号
	ClickID          string    `gorm:"type:varchar(64);index" json:"click_id"`                                            // 关联点击
	Revenue          Money     `gorm:"type:decimal(20,4);not null;default:0" json:"revenue"`                              // 收益
	Currency         string    `gorm:"type:varchar(8)" json:"currency"`                                                   // 币种
	ConversionStatus string    `gorm:"type:varchar(16);index;not null" json:"conversion_status"`                          // 规范状态
	AntifraudLevel   string    `gorm:"type:varchar(8);not null;default:'ok'" json:"antifraud_level"`                      // 反作弊等级
	AntifraudScore   float64   `gorm:"not null;default:0" json:"antifraud_score"`                                         // 反作弊分
	Source           string    `gorm:"type:varchar(32)" json:"source"`                                                    // 最近事件来源
	Details          JSON      `gorm:"type:json" json:"details"`                                                          // 累积明细
	OwnerID          uint      `gorm:"index;not null;default:0" json:"owner_id"`                                          // 所有者ID
	PartnerID        uint      `gorm:"index;not null;default:0" json:"partner_id"`                                        // 渠道ID
	OfferID          uint      `gorm:"index;not null;default:0" json:"offer_id"`                                          // 商品/报价ID
	CampaignID       uint      `gorm:"index;not null;default:0" json:"campaign_id"`                                       // 活动ID
	FlowID           uint      `gorm:"index;not null;default:0" json:"flow_id"`                                           // 流量分配ID
	CreatedAt        time.Time `gorm:"index" json:"created_at"`                                                           // 创建时间
	UpdatedAt        time.Time `gorm:"index" json:"updated_at"`                                                           // 更新时间
}

// TableName 指定表名
func (ConversionEvent) TableName() string {
	return "conversion_events"
}
