package store

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

const viewKeyPrefix = "alert:viewed:"

// ViewKey alert:viewed:<alert_id>:<user_id>
func ViewKey(alertID, userID int64) string {
	return fmt.Sprintf("%s%d:%d", viewKeyPrefix, alertID, userID)
}

// ViewCache 缓存"用户已读告警"（只缓存已读）
type ViewCache struct {
	kv  KV
	ttl time.Duration
}

// NewViewCache 创建已读缓存；ttl <= 0 表示不过期
func NewViewCache(kv KV, ttl time.Duration) *ViewCache {
	return &ViewCache{kv: kv, ttl: ttl}
}

// Get 返回缓存的已读状态；未命中返回 ErrMiss
func (c *ViewCache) Get(ctx context.Context, alertID, userID int64) (bool, error) {
	val, err := c.kv.Get(ctx, ViewKey(alertID, userID))
	if err != nil {
		return false, err
	}
	viewed, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid cached view flag %q: %w", val, err)
	}
	return viewed, nil
}

// MarkViewed 缓存已读状态
// 只缓存已读：已读记录只会新增或随告警/用户删除，未读结果随时可能被并发的 RecordView 推翻
func (c *ViewCache) MarkViewed(ctx context.Context, alertID, userID int64) error {
	return c.kv.Set(ctx, ViewKey(alertID, userID), "1", c.ttl)
}

// PurgeAlert 删除告警的全部已读缓存
func (c *ViewCache) PurgeAlert(ctx context.Context, alertID int64) (int, error) {
	return c.purge(ctx, fmt.Sprintf("%s%d:*", viewKeyPrefix, alertID))
}

// PurgeUser 删除用户的全部已读缓存
func (c *ViewCache) PurgeUser(ctx context.Context, userID int64) (int, error) {
	return c.purge(ctx, fmt.Sprintf("%s*:%d", viewKeyPrefix, userID))
}

func (c *ViewCache) purge(ctx context.Context, pattern string) (int, error) {
	keys, err := c.kv.ScanKeys(ctx, pattern)
	if err != nil {
		return 0, fmt.Errorf("failed to scan %s: %w", pattern, err)
	}
	if err := c.kv.Del(ctx, keys...); err != nil {
		return 0, fmt.Errorf("failed to delete cached view flags: %w", err)
	}
	return len(keys), nil
}
