package hub

import (
	"fmt"
	"sync"
	"time"
)

// typingTracker 输入状态兜底
// 客户端崩溃或断网时收不到 typing_stop，超时后由服务端代发停止事件
type typingTracker struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	timeout time.Duration
	onStop  func(conversationID string, userID uint64)
}

func newTypingTracker(timeoutMs int, onStop func(conversationID string, userID uint64)) *typingTracker {
	return &typingTracker{
		timers:  make(map[string]*time.Timer),
		timeout: time.Duration(timeoutMs) * time.Millisecond,
		onStop:  onStop,
	}
}

func typingKey(conversationID string, userID uint64) string {
	return fmt.Sprintf("%s:%d", conversationID, userID)
}

// start 武装（或重置）超时定时器，连续的 typing_start 会不断续期
func (t *typingTracker) start(conversationID string, userID uint64) {
	key := typingKey(conversationID, userID)

	t.mu.Lock()
	defer t.mu.Unlock()

	if timer, ok := t.timers[key]; ok {
		timer.Reset(t.timeout)
		return
	}
	t.timers[key] = time.AfterFunc(t.timeout, func() {
		t.mu.Lock()
		delete(t.timers, key)
		t.mu.Unlock()
		t.onStop(conversationID, userID)
	})
}

// stop 解除定时器，收到显式 typing_stop 或连接断开时调用
func (t *typingTracker) stop(conversationID string, userID uint64) {
	key := typingKey(conversationID, userID)

	t.mu.Lock()
	defer t.mu.Unlock()

	if timer, ok := t.timers[key]; ok {
		timer.Stop()
		delete(t.timers, key)
	}
}
