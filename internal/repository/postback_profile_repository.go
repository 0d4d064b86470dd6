package repository

import (
	"errors"
	"strings"

	"github.com/convtrack/internal/constants"
	"github.com/convtrack/internal/models"

	"gorm.io/gorm"
)

// PostbackProfileRepository 回传配置数据访问接口
type PostbackProfileRepository interface {
	Create(profile *models.PostbackProfile) error
	Update(profile *models.PostbackProfile) error
	Delete(id uint) error
	GetByID(id uint) (*models.PostbackProfile, error)
	List(filter PostbackProfileListFilter) ([]models.PostbackProfile, int64, error)
	ListIDsByOwner(ownerScope string, ownerID uint) ([]uint, error)
	MatchEnabled(owners []PostbackOwnerRef, scope PostbackScopeRef) ([]models.PostbackProfile, error)
}

// GormPostbackProfileRepository GORM 回传配置仓储
type GormPostbackProfileRepository struct {
	db *gorm.DB
}

// NewPostbackProfileRepository 创建回传配置仓储
func NewPostbackProfileRepository(db *gorm.DB) *GormPostbackProfileRepository {
	return &GormPostbackProfileRepository{db: db}
}

// Create 创建回传配置
func (r *GormPostbackProfileRepository) Create(profile *models.PostbackProfile) error {
	return r.db.Create(profile).Error
}

// Update 更新回传配置
func (r *GormPostbackProfileRepository) Update(profile *models.PostbackProfile) error {
	return r.db.Save(profile).Error
}

// Delete 删除回传配置（软删除）
func (r *GormPostbackProfileRepository) Delete(id uint) error {
	if id == 0 {
		return nil
	}
	return r.db.Delete(&models.PostbackProfile{}, id).Error
}

// GetByID 按ID获取回传配置
func (r *GormPostbackProfileRepository) GetByID(id uint) (*models.PostbackProfile, error) {
	if id == 0 {
		return nil, nil
	}
	var profile models.PostbackProfile
	if err := r.db.First(&profile, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}

// List 回传配置列表
func (r *GormPostbackProfileRepository) List(filter PostbackProfileListFilter) ([]models.PostbackProfile, int64, error) {
	query := r.db.Model(&models.PostbackProfile{})
	if v := strings.TrimSpace(filter.OwnerScope); v != "" {
		query = query.Where("owner_scope = ?", v)
	}
	if filter.OwnerID != 0 {
		query = query.Where("owner_id = ?", filter.OwnerID)
	}
	if filter.Enabled != nil {
		query = query.Where("enabled = ?", *filter.Enabled)
	}
	if v := strings.TrimSpace(filter.Search); v != "" {
		condition, argCount := buildLikeCondition(r.db, []string{"name", "endpoint_url"})
		query = query.Where(condition, repeatLikeArgs("%"+v+"%", argCount)...)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPage(query, filter.Page, filter.PageSize)

	var rows []models.PostbackProfile
	if err := query.Order("priority desc, id asc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// ListIDsByOwner 获取归属下的全部配置ID
func (r *GormPostbackProfileRepository) ListIDsByOwner(ownerScope string, ownerID uint) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.PostbackProfile{}).
		Where("owner_scope = ? AND owner_id = ?", strings.TrimSpace(ownerScope), ownerID).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// MatchEnabled 按归属与作用域匹配启用的配置，priority 降序、id 升序
func (r *GormPostbackProfileRepository) MatchEnabled(owners []PostbackOwnerRef, scope PostbackScopeRef) ([]models.PostbackProfile, error) {
	ownerParts := make([]string, 0, len(owners))
	ownerArgs := make([]interface{}, 0, len(owners)*2)
	for _, owner := range owners {
		if owner.ID == 0 || strings.TrimSpace(owner.Scope) == "" {
			continue
		}
		ownerParts = append(ownerParts, "(owner_scope = ? AND owner_id = ?)")
		ownerArgs = append(ownerArgs, owner.Scope, owner.ID)
	}
	if len(ownerParts) == 0 {
		return []models.PostbackProfile{}, nil
	}

	scopeParts := []string{"scope_type = ?"}
	scopeArgs := []interface{}{constants.PostbackScopeGlobal}
	for _, item := range []struct {
		scopeType string
		id        uint
	}{
		{constants.PostbackScopeCampaign, scope.CampaignID},
		{constants.PostbackScopeOffer, scope.OfferID},
		{constants.PostbackScopeFlow, scope.FlowID},
	} {
		if item.id == 0 {
			continue
		}
		scopeParts = append(scopeParts, "(scope_type = ? AND scope_id = ?)")
		scopeArgs = append(scopeArgs, item.scopeType, item.id)
	}

	var rows []models.PostbackProfile
	err := r.db.Model(&models.PostbackProfile{}).
		Where("enabled = ?", true).
		Where(strings.Join(ownerParts, " OR "), ownerArgs...).
		Where(strings.Join(scopeParts, " OR "), scopeArgs...).
		Order("priority desc, id asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
