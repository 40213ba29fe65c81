package imclient

import (
	"fmt"
	"sync"
	"time"
)

const (
	// typingIdleWindow is how long after the last keystroke the client
	// publishes its own typing stop.
	typingIdleWindow = time.Second

	// typingExpiryWindow bounds how long a counterpart's typing indicator
	// may stay up without a stop event before it is cleared locally.
	typingExpiryWindow = 5 * time.Second
)

// typingNotifier debounces keystrokes into start/stop frames. The first
// keystroke of a burst opens it; a burst with no keystroke inside the idle
// window closes with an automatic stop.
type typingNotifier struct {
	mu     sync.Mutex
	idle   time.Duration
	timers map[string]*time.Timer
}

func newTypingNotifier(idle time.Duration) *typingNotifier {
	return &typingNotifier{
		idle:   idle,
		timers: make(map[string]*time.Timer),
	}
}

// keystroke records activity in a conversation and (re)arms the idle timer.
// It reports whether this keystroke opened a new burst, in which case the
// caller emits typing_start.
func (n *typingNotifier) keystroke(conversationID string, onIdle func()) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if timer, ok := n.timers[conversationID]; ok {
		timer.Reset(n.idle)
		return false
	}
	n.timers[conversationID] = time.AfterFunc(n.idle, func() {
		if n.clear(conversationID) {
			onIdle()
		}
	})
	return true
}

// clear disarms the idle timer for a conversation, reporting whether a burst
// was open. An explicit typing_stop goes through here so the watchdog does
// not fire a second one.
func (n *typingNotifier) clear(conversationID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	timer, ok := n.timers[conversationID]
	if !ok {
		return false
	}
	timer.Stop()
	delete(n.timers, conversationID)
	return true
}

// typingExpiry clears a counterpart's typing indicator when the stop event
// never arrives, so a missed frame cannot leave a stale indicator up.
type typingExpiry struct {
	mu     sync.Mutex
	window time.Duration
	timers map[string]*time.Timer
}

func newTypingExpiry(window time.Duration) *typingExpiry {
	return &typingExpiry{
		window: window,
		timers: make(map[string]*time.Timer),
	}
}

func expiryKey(conversationID string, userID uint64) string {
	return fmt.Sprintf("%s:%d", conversationID, userID)
}

// observe tracks one inbound typing event. A start arms (or renews) the
// expiry timer; a stop disarms it. When the timer fires, onExpire receives a
// synthesized stop for the same conversation and user.
func (e *typingExpiry) observe(ev TypingEvent, onExpire func(TypingEvent)) {
	key := expiryKey(ev.ConversationID, ev.UserID)

	e.mu.Lock()
	defer e.mu.Unlock()

	if !ev.IsTyping {
		if timer, ok := e.timers[key]; ok {
			timer.Stop()
			delete(e.timers, key)
		}
		return
	}

	if timer, ok := e.timers[key]; ok {
		timer.Reset(e.window)
		return
	}
	e.timers[key] = time.AfterFunc(e.window, func() {
		e.mu.Lock()
		if _, ok := e.timers[key]; !ok {
			e.mu.Unlock()
			return
		}
		delete(e.timers, key)
		e.mu.Unlock()

		onExpire(TypingEvent{
			ConversationID: ev.ConversationID,
			UserID:         ev.UserID,
			IsTyping:       false,
		})
	})
}
