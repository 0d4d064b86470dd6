package repository

import (
	"errors"
	"strings"

	"github.com/convtrack/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrConversionKeyConflict 并发插入同一幂等键
var ErrConversionKeyConflict = errors.New("conversion key conflict")

// ConversionRepository 转化事件数据访问接口
type ConversionRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) ConversionRepository

	FindByKey(advertiserID uint, eventType, txID string) (*models.ConversionEvent, error)
	FindByKeyForUpdate(advertiserID uint, eventType, txID string) (*models.ConversionEvent, error)
	Upsert(event *models.ConversionEvent) error
	GetByID(id uint) (*models.ConversionEvent, error)
	List(filter ConversionListFilter) ([]models.ConversionEvent, int64, error)
}

// GormConversionRepository GORM 转化仓储
type GormConversionRepository struct {
	db *gorm.DB
}

// NewConversionRepository 创建转化仓储
func NewConversionRepository(db *gorm.DB) *GormConversionRepository {
	return &GormConversionRepository{db: db}
}

// WithTx 绑定事务
func (r *GormConversionRepository) WithTx(tx *gorm.DB) ConversionRepository {
	if tx == nil {
		return r
	}
	return &GormConversionRepository{db: tx}
}

// Transaction 执行事务
func (r *GormConversionRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// FindByKey 按幂等键查询
func (r *GormConversionRepository) FindByKey(advertiserID uint, eventType, txID string) (*models.ConversionEvent, error) {
	return r.findByKey(r.db, advertiserID, eventType, txID)
}

// FindByKeyForUpdate 按幂等键查询并加锁
func (r *GormConversionRepository) FindByKeyForUpdate(advertiserID uint, eventType, txID string) (*models.ConversionEvent, error) {
	return r.findByKey(r.db.Clauses(clause.Locking{Strength: "UPDATE"}), advertiserID, eventType, txID)
}

func (r *GormConversionRepository) findByKey(query *gorm.DB, advertiserID uint, eventType, txID string) (*models.ConversionEvent, error) {
	eventType = strings.TrimSpace(eventType)
	txID = strings.TrimSpace(txID)
	if eventType == "" || txID == "" {
		return nil, nil
	}
	var event models.ConversionEvent
	err := query.
		Where("advertiser_id = ? AND type = ? AND tx_id = ?", advertiserID, eventType, txID).
		First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

// Upsert 按幂等键写入：已有记录整行更新；新记录冲突时返回 ErrConversionKeyConflict
func (r *GormConversionRepository) Upsert(event *models.ConversionEvent) error {
	if event == nil {
		return nil
	}
	if event.ID != 0 {
		return r.db.Save(event).Error
	}
	result := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "advertiser_id"}, {Name: "type"}, {Name: "tx_id"}},
		DoNothing: true,
	}).Create(event)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConversionKeyConflict
	}
	return nil
}

// GetByID 按ID获取转化
func (r *GormConversionRepository) GetByID(id uint) (*models.ConversionEvent, error) {
	if id == 0 {
		return nil, nil
	}
	var event models.ConversionEvent
	if err := r.db.First(&event, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

// List 转化列表
func (r *GormConversionRepository) List(filter ConversionListFilter) ([]models.ConversionEvent, int64, error) {
	query := r.db.Model(&models.ConversionEvent{})
	if filter.AdvertiserID != 0 {
		query = query.Where("advertiser_id = ?", filter.AdvertiserID)
	}
	if v := strings.TrimSpace(filter.Type); v != "" {
		query = query.Where("type = ?", v)
	}
	if v := strings.TrimSpace(filter.Status); v != "" {
		query = query.Where("conversion_status = ?", v)
	}
	if v := strings.TrimSpace(filter.ClickID); v != "" {
		query = query.Where("click_id = ?", v)
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

	var rows []models.ConversionEvent
	if err := query.Order("id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
