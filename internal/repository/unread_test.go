package repository

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ceyewan/minichat/internal/cache"
	"github.com/ceyewan/minichat/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCache 测试用内存缓存
type fakeCache struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string]string)}
}

func (f *fakeCache) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	val, ok := f.data[key]
	if !ok {
		return "", cache.ErrCacheMiss
	}
	return val, nil
}

func (f *fakeCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

func (f *fakeCache) Incr(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, _ := strconv.ParseInt(f.data[key], 10, 64)
	n++
	f.data[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (f *fakeCache) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeCache) Exists(_ context.Context, keys ...string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			n++
		}
	}
	return n, nil
}

func (f *fakeCache) Ping(context.Context) error { return nil }
func (f *fakeCache) Close() error               { return nil }

func newUnreadEnv(t *testing.T) (*UnreadStore, *MessageRepository, *fakeCache) {
	t.Helper()
	messages := NewMessageRepository(newTestDB(t))
	c := newFakeCache()
	return NewUnreadStore(c, messages), messages, c
}

func appendUnread(t *testing.T, messages *MessageRepository, id int64, sender, recipient string) {
	t.Helper()
	require.NoError(t, messages.Append(context.Background(), &model.Message{
		ID:          id,
		SenderID:    sender,
		SenderName:  sender,
		RecipientID: recipient,
		Type:        model.MessageTypeText,
		Content:     "x",
		CreatedAt:   time.Now(),
	}))
}

func TestUnreadStore_IncrReloadsOnMiss(t *testing.T) {
	store, messages, _ := newUnreadEnv(t)
	ctx := context.Background()

	// 消息先落库再计数，缓存为空时从数据库重算，重算结果包含新消息
	appendUnread(t, messages, 1, "alice", "bob")
	count, err := store.Incr(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// 缓存命中后走原子自增
	appendUnread(t, messages, 2, "alice", "bob")
	count, err = store.Incr(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestUnreadStore_GetBackfillsCache(t *testing.T) {
	store, messages, c := newUnreadEnv(t)
	ctx := context.Background()

	appendUnread(t, messages, 1, "alice", "bob")
	appendUnread(t, messages, 2, "alice", "bob")

	count, err := store.Get(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// 重算结果已回填，后续读取直接命中缓存
	val, err := c.Get(ctx, unreadKey("bob", "alice"))
	require.NoError(t, err)
	assert.Equal(t, "2", val)
}

func TestUnreadStore_GetRecoversFromCorruptValue(t *testing.T) {
	store, messages, c := newUnreadEnv(t)
	ctx := context.Background()

	appendUnread(t, messages, 1, "alice", "bob")
	require.NoError(t, c.Set(ctx, unreadKey("bob", "alice"), "not-a-number", 0))

	// 损坏的计数触发重算而不是报错
	count, err := store.Get(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestUnreadStore_Reset(t *testing.T) {
	store, messages, _ := newUnreadEnv(t)
	ctx := context.Background()

	appendUnread(t, messages, 1, "alice", "bob")
	_, err := store.Incr(ctx, "bob", "alice")
	require.NoError(t, err)

	require.NoError(t, store.Reset(ctx, "bob", "alice"))

	// 重置后读取触发重算：消息仍未读，计数恢复为 1
	count, err := store.Get(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// 标记已读后重置，计数归零
	_, err = messages.MarkConversationRead(ctx, "bob", "alice")
	require.NoError(t, err)
	require.NoError(t, store.Reset(ctx, "bob", "alice"))
	count, err = store.Get(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestUnreadStore_DirectionsIndependent(t *testing.T) {
	store, messages, _ := newUnreadEnv(t)
	ctx := context.Background()

	appendUnread(t, messages, 1, "alice", "bob")
	appendUnread(t, messages, 2, "bob", "alice")
	appendUnread(t, messages, 3, "bob", "alice")

	count, err := store.Get(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = store.Get(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
