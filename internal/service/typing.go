package service

import (
	"sync"
	"time"
)

// TypingTracker 输入状态跟踪器
// 每个 (发送者, 会话) 键对应一个可取消的延迟任务：新的输入事件
// 重置计时器，超时后自动清除输入状态（去抖窗口默认 3 秒）。
type TypingTracker struct {
	mu     sync.Mutex
	ttl    time.Duration
	timers map[string]*time.Timer
}

// NewTypingTracker 创建输入状态跟踪器
func NewTypingTracker(ttl time.Duration) *TypingTracker {
	if ttl <= 0 {
		ttl = 3 * time.Second
	}
	return &TypingTracker{
		ttl:    ttl,
		timers: make(map[string]*time.Timer),
	}
}

// Refresh 刷新输入状态
// 已有计时器被取消并重新调度，返回该键是否为新出现的输入状态
func (t *TypingTracker) Refresh(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	timer, exists := t.timers[key]
	if exists {
		timer.Stop()
	}
	t.timers[key] = time.AfterFunc(t.ttl, func() {
		t.expire(key)
	})
	return !exists
}

// IsTyping 判断该键当前是否处于输入状态
func (t *TypingTracker) IsTyping(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.timers[key]
	return ok
}

// Clear 主动清除输入状态（例如发送消息后）
func (t *TypingTracker) Clear(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if timer, ok := t.timers[key]; ok {
		timer.Stop()
		delete(t.timers, key)
	}
}

// Stop 停止全部计时器
func (t *TypingTracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, timer := range t.timers {
		timer.Stop()
		delete(t.timers, key)
	}
}

func (t *TypingTracker) expire(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.timers, key)
}
