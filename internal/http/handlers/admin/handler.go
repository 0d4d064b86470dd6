package admin

import "github.com/convtrack/internal/provider"

// Handler 管理接口处理器入口
// 说明：所有接口都按令牌中的归属身份做隔离。
type Handler struct {
	*provider.Container
}

// New 创建管理接口处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
