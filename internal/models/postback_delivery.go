package models

import "time"

// PostbackDelivery 回传投递日志（每次尝试一行，只追加）
type PostbackDelivery struct {
	ID               uint      `gorm:"primarykey" json:"id"`                                                   // 主键
	DeliveryKey      string    `gorm:"type:varchar(64);index" json:"delivery_key"`                             // 单次投递批次标识
	ProfileID        uint      `gorm:"index:idx_postback_dedup,priority:3;not null" json:"profile_id"`         // 回传配置ID
	ConversionID     uint      `gorm:"index;not null;default:0" json:"conversion_id"`                          // 转化ID
	EventType        string    `gorm:"type:varchar(16);index:idx_postback_dedup,priority:2" json:"event_type"` // 事件类型
	TxID             string    `gorm:"type:varchar(128)" json:"tx_id"`                                         // 外部交易号
	ClickID          string    `gorm:"type:varchar(64);index:idx_postback_dedup,priority:1" json:"click_id"`   // 点击标识
	ConversionStatus string    `gorm:"type:varchar(16)" json:"conversion_status"`                              // 投递时规范状态
	Attempt          int       `gorm:"not null;default:0" json:"attempt"`                                      // 第几次尝试
	MaxAttempts      int       `gorm:"not null;default:0" json:"max_attempts"`                                 // 最大尝试次数
	RequestMethod    string    `gorm:"type:varchar(8)" json:"request_method"`                                  // 请求方式
	RequestURL       string    `gorm:"type:text" json:"request_url"`                                           // 请求地址
	RequestBody      string    `gorm:"type:text" json:"request_body"`                                          // 请求体
	RequestHeaders   StringMap `gorm:"type:json" json:"request_headers"`                                       // 请求头
	ResponseCode     int       `gorm:"not null;default:0" json:"response_code"`                                // 响应码
	ResponseBody     string    `gorm:"type:text" json:"response_body"`                                         // 响应体（截断）
	Error            string    `gorm:"type:text" json:"error"`                                                 // 错误信息
	DurationMs       int64     `gorm:"not null;default:0" json:"duration_ms"`                                  // 耗时
	Status           string    `gorm:"type:varchar(16);index;not null" json:"status"`                          // 状态
	BlockReason      string    `gorm:"type:varchar(64)" json:"block_reason,omitempty"`                         // 拦截原因
	CreatedAt        time.Time `gorm:"index" json:"created_at"`                                                // 创建时间
}

// TableName 指定表名
func (PostbackDelivery) TableName() string {
	return "postback_deliveries"
}
