package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTypingTracker_RefreshAndExpire(t *testing.T) {
	tracker := NewTypingTracker(50 * time.Millisecond)
	defer tracker.Stop()

	fresh := tracker.Refresh("u1|u2")
	assert.True(t, fresh, "首次刷新应该是新的输入状态")
	assert.True(t, tracker.IsTyping("u1|u2"))

	// 超时后自动过期
	time.Sleep(120 * time.Millisecond)
	assert.False(t, tracker.IsTyping("u1|u2"))
}

func TestTypingTracker_RefreshExtendsDeadline(t *testing.T) {
	tracker := NewTypingTracker(80 * time.Millisecond)
	defer tracker.Stop()

	tracker.Refresh("u1|u2")

	// 持续刷新应不断顺延过期时间
	for i := 0; i < 3; i++ {
		time.Sleep(40 * time.Millisecond)
		fresh := tracker.Refresh("u1|u2")
		assert.False(t, fresh, "已有输入状态的刷新不应视为新状态")
	}
	assert.True(t, tracker.IsTyping("u1|u2"))

	time.Sleep(160 * time.Millisecond)
	assert.False(t, tracker.IsTyping("u1|u2"))
}

func TestTypingTracker_Clear(t *testing.T) {
	tracker := NewTypingTracker(time.Second)
	defer tracker.Stop()

	tracker.Refresh("u1|u2")
	tracker.Refresh("u1|g1")

	// 发送消息后只清除对应会话的输入状态
	tracker.Clear("u1|u2")
	assert.False(t, tracker.IsTyping("u1|u2"))
	assert.True(t, tracker.IsTyping("u1|g1"))

	// 清除不存在的键是空操作
	tracker.Clear("nobody|nowhere")
}

func TestTypingTracker_IndependentConversations(t *testing.T) {
	tracker := NewTypingTracker(time.Second)
	defer tracker.Stop()

	tracker.Refresh("u1|u2")
	assert.True(t, tracker.IsTyping("u1|u2"))
	assert.False(t, tracker.IsTyping("u2|u1"), "方向相反的输入状态互不影响")
	assert.False(t, tracker.IsTyping("u1|u3"))
}
