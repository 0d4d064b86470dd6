package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/convtrack/internal/models"

	"gorm.io/gorm"
)

// ClickRepository 点击数据访问接口
type ClickRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) ClickRepository

	Create(click *models.Click) error
	GetByClickID(clickID string) (*models.Click, error)
	ExistsByClickID(clickID string) (bool, error)

	GetLinkByCode(code string) (*models.TrackingLink, error)
	GetLinkByID(id uint) (*models.TrackingLink, error)
	CreateLink(link *models.TrackingLink) error
	IncrementLinkClicks(linkID uint, at time.Time) error
}

// GormClickRepository GORM 点击仓储
type GormClickRepository struct {
	db *gorm.DB
}

// NewClickRepository 创建点击仓储
func NewClickRepository(db *gorm.DB) *GormClickRepository {
	return &GormClickRepository{db: db}
}

// WithTx 绑定事务
func (r *GormClickRepository) WithTx(tx *gorm.DB) ClickRepository {
	if tx == nil {
		return r
	}
	return &GormClickRepository{db: tx}
}

// Transaction 执行事务
func (r *GormClickRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// Create 写入点击（click_id 冲突时返回唯一约束错误）
func (r *GormClickRepository) Create(click *models.Click) error {
	return r.db.Create(click).Error
}

// GetByClickID 按点击标识获取
func (r *GormClickRepository) GetByClickID(clickID string) (*models.Click, error) {
	clickID = strings.TrimSpace(clickID)
	if clickID == "" {
		return nil, nil
	}
	var click models.Click
	if err := r.db.Where("click_id = ?", clickID).First(&click).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &click, nil
}

// ExistsByClickID 点击标识是否已存在
func (r *GormClickRepository) ExistsByClickID(clickID string) (bool, error) {
	var count int64
	if err := r.db.Model(&models.Click{}).Where("click_id = ?", clickID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetLinkByCode 按短码获取推广链接
func (r *GormClickRepository) GetLinkByCode(code string) (*models.TrackingLink, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}
	var link models.TrackingLink
	if err := r.db.Where("code = ?", code).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &link, nil
}

// GetLinkByID 按ID获取推广链接
func (r *GormClickRepository) GetLinkByID(id uint) (*models.TrackingLink, error) {
	if id == 0 {
		return nil, nil
	}
	var link models.TrackingLink
	if err := r.db.First(&link, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &link, nil
}

// CreateLink 创建推广链接
func (r *GormClickRepository) CreateLink(link *models.TrackingLink) error {
	return r.db.Create(link).Error
}

// IncrementLinkClicks 原子累加点击数
func (r *GormClickRepository) IncrementLinkClicks(linkID uint, at time.Time) error {
	if linkID == 0 {
		return nil
	}
	return r.db.Model(&models.TrackingLink{}).
		Where("id = ?", linkID).
		Updates(map[string]interface{}{
			"click_count":   gorm.Expr("click_count + ?", 1),
			"last_click_at": at,
			"updated_at":    at,
		}).Error
}
