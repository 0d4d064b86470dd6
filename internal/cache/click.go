package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/convtrack/internal/models"
)

// 点击创建后不可变，可以长时间缓存
const clickCacheTTL = 24 * time.Hour

func clickKey(clickID string) string {
	return fmt.Sprintf("click:%s", clickID)
}

// GetClick 读取点击快照
func (c *Client) GetClick(ctx context.Context, clickID string) (*models.Click, bool, error) {
	if clickID == "" {
		return nil, false, nil
	}
	var click models.Click
	ok, err := c.GetJSON(ctx, clickKey(clickID), &click)
	if err != nil || !ok {
		return nil, false, err
	}
	return &click, true, nil
}

// SetClick 写入点击快照
func (c *Client) SetClick(ctx context.Context, click *models.Click) error {
	if click == nil || click.ClickID == "" {
		return nil
	}
	return c.SetJSON(ctx, clickKey(click.ClickID), click, clickCacheTTL)
}
