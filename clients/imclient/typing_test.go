package imclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeystrokeOpensBurstOnce(t *testing.T) {
	notifier := newTypingNotifier(50 * time.Millisecond)
	idle := make(chan struct{}, 1)

	assert.True(t, notifier.keystroke("conv-a", func() { idle <- struct{}{} }))
	assert.False(t, notifier.keystroke("conv-a", func() { idle <- struct{}{} }))
}

func TestIdleWindowClosesBurst(t *testing.T) {
	notifier := newTypingNotifier(20 * time.Millisecond)
	idle := make(chan struct{}, 1)

	notifier.keystroke("conv-a", func() { idle <- struct{}{} })

	select {
	case <-idle:
	case <-time.After(time.Second):
		t.Fatal("idle stop did not fire")
	}

	// Burst is closed, the next keystroke opens a new one.
	assert.True(t, notifier.keystroke("conv-a", func() { idle <- struct{}{} }))
}

func TestExplicitClearDisarmsIdleStop(t *testing.T) {
	notifier := newTypingNotifier(20 * time.Millisecond)
	idle := make(chan struct{}, 1)

	notifier.keystroke("conv-a", func() { idle <- struct{}{} })
	assert.True(t, notifier.clear("conv-a"))

	select {
	case <-idle:
		t.Fatal("idle stop fired after explicit clear")
	case <-time.After(80 * time.Millisecond):
	}

	assert.False(t, notifier.clear("conv-a"))
}

func TestKeystrokeRenewsIdleWindow(t *testing.T) {
	notifier := newTypingNotifier(60 * time.Millisecond)
	idle := make(chan struct{}, 1)
	onIdle := func() { idle <- struct{}{} }

	notifier.keystroke("conv-a", onIdle)
	time.Sleep(40 * time.Millisecond)
	notifier.keystroke("conv-a", onIdle)

	select {
	case <-idle:
		t.Fatal("idle stop fired inside a renewed window")
	case <-time.After(40 * time.Millisecond):
	}

	select {
	case <-idle:
	case <-time.After(time.Second):
		t.Fatal("idle stop did not fire after the renewed window")
	}
}

func TestExpiryClearsStaleIndicator(t *testing.T) {
	expiry := newTypingExpiry(20 * time.Millisecond)
	expired := make(chan TypingEvent, 1)

	expiry.observe(TypingEvent{ConversationID: "conv-a", UserID: 7, IsTyping: true}, func(ev TypingEvent) {
		expired <- ev
	})

	select {
	case ev := <-expired:
		assert.Equal(t, "conv-a", ev.ConversationID)
		assert.Equal(t, uint64(7), ev.UserID)
		assert.False(t, ev.IsTyping)
	case <-time.After(time.Second):
		t.Fatal("expiry did not fire")
	}
}

func TestStopEventDisarmsExpiry(t *testing.T) {
	expiry := newTypingExpiry(30 * time.Millisecond)
	expired := make(chan TypingEvent, 1)
	onExpire := func(ev TypingEvent) { expired <- ev }

	expiry.observe(TypingEvent{ConversationID: "conv-a", UserID: 7, IsTyping: true}, onExpire)
	expiry.observe(TypingEvent{ConversationID: "conv-a", UserID: 7, IsTyping: false}, onExpire)

	select {
	case <-expired:
		t.Fatal("expiry fired after an explicit stop")
	case <-time.After(90 * time.Millisecond):
	}
}

func TestExpiryTracksUsersIndependently(t *testing.T) {
	expiry := newTypingExpiry(20 * time.Millisecond)
	expired := make(chan TypingEvent, 2)
	onExpire := func(ev TypingEvent) { expired <- ev }

	expiry.observe(TypingEvent{ConversationID: "conv-a", UserID: 7, IsTyping: true}, onExpire)
	expiry.observe(TypingEvent{ConversationID: "conv-a", UserID: 8, IsTyping: true}, onExpire)
	expiry.observe(TypingEvent{ConversationID: "conv-a", UserID: 8, IsTyping: false}, onExpire)

	select {
	case ev := <-expired:
		assert.Equal(t, uint64(7), ev.UserID)
	case <-time.After(time.Second):
		t.Fatal("expiry did not fire for the remaining user")
	}

	select {
	case <-expired:
		t.Fatal("expiry fired for a stopped user")
	case <-time.After(60 * time.Millisecond):
	}
}
