package repository

import (
	"time"

	"gorm.io/gorm"
)

// maxListPageSize 列表单页上限
const maxListPageSize = 200

// ConversionListFilter 查询转化列表的过滤条件
type ConversionListFilter struct {
	Page         int
	PageSize     int
	AdvertiserID uint
	Type         string
	Status       string
	ClickID      string
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
}

// PostbackProfileListFilter 查询回传配置列表的过滤条件
type PostbackProfileListFilter struct {
	Page       int
	PageSize   int
	OwnerScope string
	OwnerID    uint
	Enabled    *bool
	Search     string
}

// PostbackDeliveryListFilter 查询投递日志列表的过滤条件
type PostbackDeliveryListFilter struct {
	Page         int
	PageSize     int
	ProfileIDs   []uint
	ProfileID    uint
	ConversionID uint
	ClickID      string
	Status       string
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
}

// PostbackOwnerRef 回传配置归属引用
type PostbackOwnerRef struct {
	Scope string
	ID    uint
}

// PostbackScopeRef 任务作用域（0 表示未设置）
type PostbackScopeRef struct {
	CampaignID uint
	OfferID    uint
	FlowID     uint
}

// DeliveryDedupKey 投递去重键
type DeliveryDedupKey struct {
	ClickID      string
	ConversionID uint
	EventType    string
	ProfileID    uint
	Status       string
}

// DeliveryStatusCount 投递状态聚合
type DeliveryStatusCount struct {
	Status string
	Total  int64
}

// pageWindow 计算分页的 limit/offset；pageSize <= 0 表示不分页
func pageWindow(page, pageSize int) (limit, offset int, paged bool) {
	if pageSize <= 0 {
		return 0, 0, false
	}
	if pageSize > maxListPageSize {
		pageSize = maxListPageSize
	}
	if page < 1 {
		page = 1
	}
	return pageSize, (page - 1) * pageSize, true
}

func applyPage(query *gorm.DB, page, pageSize int) *gorm.DB {
	limit, offset, paged := pageWindow(page, pageSize)
	if query == nil || !paged {
		return query
	}
	return query.Limit(limit).Offset(offset)
}
