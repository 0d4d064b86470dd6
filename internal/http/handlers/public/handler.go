package public

import "github.com/convtrack/internal/provider"

// Handler 公开接口处理器入口
// 说明：点击、第一方事件与外部回调，不需要鉴权。
type Handler struct {
	*provider.Container
}

// New 创建公开接口处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
