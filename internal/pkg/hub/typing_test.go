package hub

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type stopRecorder struct {
	mu    sync.Mutex
	calls []string
	ch    chan struct{}
}

func newStopRecorder() *stopRecorder {
	return &stopRecorder{ch: make(chan struct{}, 8)}
}

func (r *stopRecorder) onStop(conversationID string, userID uint64) {
	r.mu.Lock()
	r.calls = append(r.calls, typingKey(conversationID, userID))
	r.mu.Unlock()
	r.ch <- struct{}{}
}

func (r *stopRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestTypingWatchdogFires(t *testing.T) {
	rec := newStopRecorder()
	tracker := newTypingTracker(20, rec.onStop)

	tracker.start("conv-a", 1)

	select {
	case <-rec.ch:
	case <-time.After(time.Second):
		t.Fatal("watchdog did not fire")
	}
	assert.Equal(t, 1, rec.count())
}

func TestTypingStopDisarmsWatchdog(t *testing.T) {
	rec := newStopRecorder()
	tracker := newTypingTracker(30, rec.onStop)

	tracker.start("conv-a", 1)
	tracker.stop("conv-a", 1)

	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, rec.count(), "显式停止后不应再触发兜底")
}

func TestTypingStartResetsWatchdog(t *testing.T) {
	rec := newStopRecorder()
	tracker := newTypingTracker(60, rec.onStop)

	tracker.start("conv-a", 1)
	time.Sleep(35 * time.Millisecond)
	tracker.start("conv-a", 1)
	time.Sleep(35 * time.Millisecond)

	// 第二次 start 续期后还没到超时
	assert.Zero(t, rec.count())

	select {
	case <-rec.ch:
	case <-time.After(time.Second):
		t.Fatal("watchdog did not fire after renewal")
	}
}

func TestTypingTracksPerConversation(t *testing.T) {
	rec := newStopRecorder()
	tracker := newTypingTracker(20, rec.onStop)

	tracker.start("conv-a", 1)
	tracker.start("conv-b", 1)
	tracker.stop("conv-a", 1)

	select {
	case <-rec.ch:
	case <-time.After(time.Second):
		t.Fatal("watchdog did not fire")
	}
	assert.Equal(t, []string{typingKey("conv-b", 1)}, rec.calls)
}
