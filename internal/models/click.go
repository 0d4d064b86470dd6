package models

import "time"

// Click 广告点击记录（创建后不可变）
type Click struct {
	ID             uint      `gorm:"primarykey" json:"id"`                                  // 主键
	ClickID        string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"click_id"` // 点击标识（ULID）
	AdvertiserID   uint      `gorm:"index;not null;default:0" json:"advertiser_id"`         // 广告主ID
	PartnerID      uint      `gorm:"index;not null;default:0" json:"partner_id"`            // 渠道ID
	OfferID        uint      `gorm:"index;not null" json:"offer_id"`                        // 商品/报价ID
	CampaignID     uint      `gorm:"index;not null;default:0" json:"campaign_id"`           // 活动ID
	FlowID         uint      `gorm:"index;not null;default:0" json:"flow_id"`               // 流量分配ID
	TrackingLinkID *uint     `gorm:"index" json:"tracking_link_id,omitempty"`               // 推广链接ID
	Referrer       string    `gorm:"type:varchar(1024)" json:"referrer"`                    // 来源地址
	Site           string    `gorm:"type:varchar(255)" json:"site"`                         // 来源站点
	Subs           StringMap `gorm:"type:json" json:"subs"`                                 // sub1..sub16
	Sub2Raw        string    `gorm:"type:varchar(512)" json:"sub2_raw"`                     // sub2 原始串
	Sub2Params     StringMap `gorm:"type:json" json:"sub2_params"`                          // sub2 解析结果
	UTMSource      string    `gorm:"type:varchar(255)" json:"utm_source"`                   // UTM 来源
	UTMMedium      string    `gorm:"type:varchar(255)" json:"utm_medium"`                   // UTM 媒介
	UTMCampaign    string    `gorm:"type:varchar(255)" json:"utm_campaign"`                 // UTM 活动
	UTMTerm        string    `gorm:"type:varchar(255)" json:"utm_term"`                     // UTM 关键词
	UTMContent     string    `gorm:"type:varchar(255)" json:"utm_content"`                  // UTM 内容
	ClientIP       string    `gorm:"type:varchar(64)" json:"client_ip"`                     // 客户端IP
	UserAgent      string    `gorm:"type:varchar(1024)" json:"user_agent"`                  // 客户端UA
	Country        string    `gorm:"type:varchar(8);index" json:"country"`                  // 国家（ISO 3166-1）
	Region         string    `gorm:"type:varchar(128)" json:"region"`                       // 地区
	City           string    `gorm:"type:varchar(128)" json:"city"`                         // 城市
	DeviceType     string    `gorm:"type:varchar(32)" json:"device_type"`                   // 设备类型
	OS             string    `gorm:"type:varchar(64)" json:"os"`                            // 操作系统
	Browser        string    `gorm:"type:varchar(64)" json:"browser"`                       // 浏览器
	ISP            string    `gorm:"type:varchar(128)" json:"isp"`                          // 运营商
	IsBot          bool      `gorm:"not null;default:false" json:"is_bot"`                  // 是否爬虫
	CreatedAt      time.Time `gorm:"index" json:"created_at"`                               // 创建时间
}

// TableName 指定表名
func (Click) TableName() string {
	return "clicks"
}
