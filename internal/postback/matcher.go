package postback

import (
	"context"

	"github.com/convtrack/internal/models"
	"github.com/convtrack/internal/repository"
)

// ProfileSource 启用配置查询
type ProfileSource interface {
	MatchEnabled(owners []repository.PostbackOwnerRef, scope repository.PostbackScopeRef) ([]models.PostbackProfile, error)
}

// Matcher 配置匹配器（每次投递实时查询，不缓存）
type Matcher struct {
	source ProfileSource
}

// NewMatcher 创建配置匹配器
func NewMatcher(source ProfileSource) *Matcher {
	return &Matcher{source: source}
}

// MatchProfiles 查询任务可用的配置，priority 降序
func (m *Matcher) MatchProfiles(ctx context.Context, task Task) ([]models.PostbackProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m == nil || m.source == nil {
		return nil, nil
	}
	return m.source.MatchEnabled(task.OwnerRefs(), task.ScopeRef())
}
