package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/ceyewan/minichat/internal/cache"
	"github.com/ceyewan/minichat/internal/clog"
)

// 未读计数缓存键：unread:{viewer}:{counterpart}
const unreadCountKey = "unread:%s:%s"

// UnreadStore 未读计数存储
// Redis 持有热计数，缓存未命中时从消息表重新计算（消息表是最终权威）
type UnreadStore struct {
	cache    cache.Cache
	messages *MessageRepository
	logger   clog.Logger
}

// NewUnreadStore 创建未读计数存储
func NewUnreadStore(c cache.Cache, messages *MessageRepository) *UnreadStore {
	return &UnreadStore{
		cache:    c,
		messages: messages,
		logger:   clog.Module("unread-store"),
	}
}

func unreadKey(viewerID, counterpartID string) string {
	return fmt.Sprintf(unreadCountKey, viewerID, counterpartID)
}

// Incr 在消息持久化之后增加未读计数
// 缓存中没有计数时直接从数据库重算（此时新消息已落库，重算结果包含它）
func (s *UnreadStore) Incr(ctx context.Context, viewerID, counterpartID string) (int64, error) {
	key := unreadKey(viewerID, counterpartID)

	exists, err := s.cache.Exists(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("检查未读计数失败: %w", err)
	}
	if exists == 0 {
		return s.reload(ctx, viewerID, counterpartID)
	}

	count, err := s.cache.Incr(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("增加未读计数失败: %w", err)
	}
	return count, nil
}

// Get 获取未读计数，缓存未命中时从数据库重算并回填
func (s *UnreadStore) Get(ctx context.Context, viewerID, counterpartID string) (int64, error) {
	val, err := s.cache.Get(ctx, unreadKey(viewerID, counterpartID))
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return s.reload(ctx, viewerID, counterpartID)
		}
		return 0, fmt.Errorf("获取未读计数失败: %w", err)
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		s.logger.Warn("未读计数格式错误，触发重算",
			clog.String("viewer_id", viewerID),
			clog.String("value", val))
		return s.reload(ctx, viewerID, counterpartID)
	}
	return count, nil
}

// Reset 清空未读计数（viewer 已读 counterpart 的全部消息）
func (s *UnreadStore) Reset(ctx context.Context, viewerID, counterpartID string) error {
	if err := s.cache.Del(ctx, unreadKey(viewerID, counterpartID)); err != nil {
		return fmt.Errorf("清空未读计数失败: %w", err)
	}
	return nil
}

// reload 从消息表重算计数并回填缓存
func (s *UnreadStore) reload(ctx context.Context, viewerID, counterpartID string) (int64, error) {
	count, err := s.messages.CountUnread(ctx, viewerID, counterpartID)
	if err != nil {
		return 0, err
	}
	if err := s.cache.Set(ctx, unreadKey(viewerID, counterpartID), strconv.FormatInt(count, 10), 0); err != nil {
		s.logger.Warn("回填未读计数失败", clog.Err(err))
	}
	return count, nil
}
