package repository

import (
	"context"
	"testing"
	"time"

	"github.com/ceyewan/minichat/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMessage(id int64, sender, recipient string) *model.Message {
	return &model.Message{
		ID:          id,
		SenderID:    sender,
		SenderName:  sender,
		RecipientID: recipient,
		Type:        model.MessageTypeText,
		Content:     "hello",
		CreatedAt:   time.Now(),
	}
}

func newGroupMessage(id int64, sender, groupID string) *model.Message {
	return &model.Message{
		ID:         id,
		SenderID:   sender,
		SenderName: sender,
		GroupID:    groupID,
		IsGroup:    true,
		Type:       model.MessageTypeText,
		Content:    "hello group",
		CreatedAt:  time.Now(),
	}
}

func TestMessageRepository_AppendAndGet(t *testing.T) {
	repo := NewMessageRepository(newTestDB(t))
	ctx := context.Background()

	msg := newMessage(1001, "alice", "bob")
	require.NoError(t, repo.Append(ctx, msg))

	stored, err := repo.GetByID(ctx, 1001)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "alice", stored.SenderID)
	assert.Equal(t, "hello", stored.Content)
	assert.False(t, stored.IsRead)

	// 不存在的消息返回 nil 而不是错误
	missing, err := repo.GetByID(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMessageRepository_HistoryForUser(t *testing.T) {
	repo := NewMessageRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Append(ctx, newMessage(1, "alice", "bob")))
	require.NoError(t, repo.Append(ctx, newMessage(2, "bob", "alice")))
	require.NoError(t, repo.Append(ctx, newMessage(3, "alice", "carol")))
	require.NoError(t, repo.Append(ctx, newGroupMessage(4, "carol", "")))

	// bob 可见：自己参与的单聊 + 全部群聊；alice 与 carol 的单聊不可见
	history, err := repo.HistoryForUser(ctx, "bob", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, history, 3)

	// 按消息 ID 升序即生成顺序
	assert.Equal(t, int64(1), history[0].ID)
	assert.Equal(t, int64(2), history[1].ID)
	assert.Equal(t, int64(4), history[2].ID)

	// 时间窗口之外的消息不返回
	old := newMessage(5, "alice", "bob")
	old.CreatedAt = time.Now().AddDate(0, 0, -30)
	require.NoError(t, repo.Append(ctx, old))
	history, err = repo.HistoryForUser(ctx, "bob", time.Now().AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestMessageRepository_MarkConversationRead(t *testing.T) {
	repo := NewMessageRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Append(ctx, newMessage(1, "alice", "bob")))
	require.NoError(t, repo.Append(ctx, newMessage(2, "alice", "bob")))
	require.NoError(t, repo.Append(ctx, newMessage(3, "bob", "alice")))

	count, err := repo.CountUnread(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// 只影响 alice -> bob 方向
	ids, err := repo.MarkConversationRead(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2}, ids)

	count, err = repo.CountUnread(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	count, err = repo.CountUnread(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// 幂等：再次调用不再返回任何 ID
	ids, err = repo.MarkConversationRead(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestMessageRepository_ClearDirect(t *testing.T) {
	repo := NewMessageRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Append(ctx, newMessage(1, "alice", "bob")))
	require.NoError(t, repo.Append(ctx, newMessage(2, "bob", "alice")))
	require.NoError(t, repo.Append(ctx, newMessage(3, "alice", "carol")))

	// 双向删除，第三方会话不受影响
	deleted, err := repo.ClearDirect(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	remaining, err := repo.HistoryForUser(ctx, "alice", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "carol", remaining[0].RecipientID)
}

func TestMessageRepository_ClearGlobal(t *testing.T) {
	repo := NewMessageRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Append(ctx, newGroupMessage(1, "alice", "")))
	require.NoError(t, repo.Append(ctx, newGroupMessage(2, "bob", "")))
	require.NoError(t, repo.Append(ctx, newGroupMessage(3, "alice", "g1")))
	require.NoError(t, repo.Append(ctx, newMessage(4, "alice", "bob")))

	// 只删除全局群聊，私有群和单聊保留
	deleted, err := repo.ClearGlobal(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	stored, err := repo.GetByID(ctx, 3)
	require.NoError(t, err)
	assert.NotNil(t, stored)
	stored, err = repo.GetByID(ctx, 4)
	require.NoError(t, err)
	assert.NotNil(t, stored)
}

func TestMessageRepository_DeleteOlderThan(t *testing.T) {
	repo := NewMessageRepository(newTestDB(t))
	ctx := context.Background()

	old := newMessage(1, "alice", "bob")
	old.CreatedAt = time.Now().AddDate(0, 0, -60)
	require.NoError(t, repo.Append(ctx, old))
	require.NoError(t, repo.Append(ctx, newMessage(2, "alice", "bob")))

	deleted, err := repo.DeleteOlderThan(ctx, time.Now().AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	stored, err := repo.GetByID(ctx, 2)
	require.NoError(t, err)
	assert.NotNil(t, stored)
}

func TestMessageRepository_MarkDelivered(t *testing.T) {
	repo := NewMessageRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Append(ctx, newMessage(1, "alice", "bob")))
	require.NoError(t, repo.MarkDelivered(ctx, 1))

	stored, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.Delivered)
	assert.False(t, stored.IsRead)
}
