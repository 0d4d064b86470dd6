package repository

import (
	"strings"

	"github.com/convtrack/internal/constants"
	"github.com/convtrack/internal/models"

	"gorm.io/gorm"
)

// PostbackDeliveryRepository 投递日志数据访问接口（只追加）
type PostbackDeliveryRepository interface {
	Create(delivery *models.PostbackDelivery) error
	HasSuccess(key DeliveryDedupKey) (bool, error)
	List(filter PostbackDeliveryListFilter) ([]models.PostbackDelivery, int64, error)
	CountByStatus() ([]DeliveryStatusCount, error)
}

// GormPostbackDeliveryRepository GORM 投递日志仓储
type GormPostbackDeliveryRepository struct {
	db *gorm.DB
}

// NewPostbackDeliveryRepository 创建投递日志仓储
func NewPostbackDeliveryRepository(db *gorm.DB) *GormPostbackDeliveryRepository {
	return &GormPostbackDeliveryRepository{db: db}
}

// Create 追加一条尝试记录
func (r *GormPostbackDeliveryRepository) Create(delivery *models.PostbackDelivery) error {
	return r.db.Create(delivery).Error
}

// HasSuccess 是否已有成功投递；无点击标识时按转化ID判断
func (r *GormPostbackDeliveryRepository) HasSuccess(key DeliveryDedupKey) (bool, error) {
	query := r.db.Model(&models.PostbackDelivery{}).
		Where("profile_id = ? AND event_type = ? AND status = ?", key.ProfileID, key.EventType, constants.PostbackDeliverySuccess)
	if clickID := strings.TrimSpace(key.ClickID); clickID != "" {
		query = query.Where("click_id = ?", clickID)
	} else {
		query = query.Where("conversion_id = ?", key.ConversionID)
	}
	if status := strings.TrimSpace(key.Status); status != "" {
		query = query.Where("conversion_status = ?", status)
	}
	var count int64
	if err := query.Limit(1).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// List 投递日志列表
func (r *GormPostbackDeliveryRepository) List(filter PostbackDeliveryListFilter) ([]models.PostbackDelivery, int64, error) {
	query := r.db.Model(&models.PostbackDelivery{})
	if filter.ProfileIDs != nil {
		if len(filter.ProfileIDs) == 0 {
			return []models.PostbackDelivery{}, 0, nil
		}
		query = query.Where("profile_id IN ?", filter.ProfileIDs)
	}
	if filter.ProfileID != 0 {
		query = query.Where("profile_id = ?", filter.ProfileID)
	}
	if filter.ConversionID != 0 {
		query = query.Where("conversion_id = ?", filter.ConversionID)
	}
	if v := strings.TrimSpace(filter.ClickID); v != "" {
		query = query.Where("click_id = ?", v)
	}
	if v := strings.TrimSpace(filter.Status); v != "" {
		query = query.Where("status = ?", v)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPage(query, filter.Page, filter.PageSize)

	var rows []models.PostbackDelivery
	if err := query.Order("id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// CountByStatus 按状态聚合投递记录
func (r *GormPostbackDeliveryRepository) CountByStatus() ([]DeliveryStatusCount, error) {
	var rows []DeliveryStatusCount
	err := r.db.Model(&models.PostbackDelivery{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Order("status asc").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
