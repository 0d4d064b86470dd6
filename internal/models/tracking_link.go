package models

import "time"

// TrackingLink 推广链接（仅点击聚合字段可变）
type TrackingLink struct {
	ID           uint       `gorm:"primarykey" json:"id"`                              // 主键
	Code         string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"code"` // 链接短码
	AdvertiserID uint       `gorm:"index;not null;default:0" json:"advertiser_id"`     // 广告主ID
	OfferID      uint       `gorm:"index;not null" json:"offer_id"`                    // 商品/报价ID
	ClickCount   int64      `gorm:"not null;default:0" json:"click_count"`             // 累计点击
	LastClickAt  *time.Time `json:"last_click_at"`                                     // 最近点击时间
	CreatedAt    time.Time  `json:"created_at"`                                        // 创建时间
	UpdatedAt    time.Time  `json:"updated_at"`                                        // 更新时间
}

// TableName 指定表名
func (TrackingLink) TableName() string {
	return "tracking_links"
}
