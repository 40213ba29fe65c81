// Package imclient provides a Go client for the Mosaic messaging API,
// including the optimistic-send timeline used to reconcile locally drafted
// messages against the server's authoritative copies.
package imclient

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// MessageState is the lifecycle tag of a timeline entry.
type MessageState int

const (
	// StatePending marks an optimistic entry rendered before server confirmation.
	StatePending MessageState = iota
	// StateConfirmed marks an entry backed by a server-assigned identifier.
	StateConfirmed
	// StateFailed marks an optimistic entry whose send request failed.
	StateFailed
)

// matchWindow bounds the timestamp distance used when correlating a bus echo
// with an optimistic entry that cannot be matched by identifier.
const matchWindow = 10 * time.Second

// Message is a single timeline entry.
type Message struct {
	// LocalID is set for locally drafted entries and never leaves the client.
	LocalID string
	// ServerID is the authoritative identifier, empty while pending.
	ServerID string

	ConversationID string
	SenderID       uint64
	ReceiverID     uint64
	Text           string
	State          MessageState
	CreatedAt      time.Time
}

// Timeline holds the ordered message view for one conversation.
//
// All state transitions happen inside apply; Draft, Confirm, Fail and
// Reconcile only correlate inputs and delegate to it.
type Timeline struct {
	mu      sync.Mutex
	selfID  uint64
	entries []*Message
}

func NewTimeline(selfID uint64) *Timeline {
	return &Timeline{selfID: selfID}
}

// Draft appends an optimistic pending entry and returns its local identifier.
func (t *Timeline) Draft(receiverID uint64, text string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry := &Message{
		LocalID:    uuid.NewString(),
		SenderID:   t.selfID,
		ReceiverID: receiverID,
		Text:       text,
		State:      StatePending,
		CreatedAt:  time.Now(),
	}
	t.entries = append(t.entries, entry)
	return entry.LocalID
}

// Confirm applies the send-request response for a known local entry.
func (t *Timeline) Confirm(localID string, server *Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.apply(server, localID)
}

// Fail marks a pending entry as failed so it is never left pending forever.
// Confirmed entries are not touched: the response may have lost a race with
// the bus echo that already confirmed the entry.
func (t *Timeline) Fail(localID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, entry := range t.entries {
		if entry.LocalID == localID && entry.State == StatePending {
			entry.State = StateFailed
			return
		}
	}
}

// Reconcile applies a message received over the delivery bus.
func (t *Timeline) Reconcile(server *Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.apply(server, "")
}

// apply is the only code allowed to transition entry state.
//
// The same logical message can arrive twice, as the send-request response and
// as a bus echo, in either order. The first arrival replaces the optimistic
// entry; the second is recognized by its server identifier and dropped. A
// message from the counterpart is always appended, it can never be a
// duplicate of a local draft.
func (t *Timeline) apply(server *Message, localID string) {
	if server == nil || server.ServerID == "" {
		return
	}

	// Already applied once.
	for _, entry := range t.entries {
		if entry.ServerID == server.ServerID {
			return
		}
	}

	if server.SenderID != t.selfID {
		t.append(server)
		return
	}

	if entry := t.findPending(server, localID); entry != nil {
		entry.ServerID = server.ServerID
		entry.ConversationID = server.ConversationID
		entry.Text = server.Text
		entry.CreatedAt = server.CreatedAt
		entry.State = StateConfirmed
		return
	}

	// Own message with no matching draft: sent from another tab or session.
	t.append(server)
}

// findPending correlates by local identifier when the caller has one, and
// falls back to content plus approximate timestamp for bus echoes.
func (t *Timeline) findPending(server *Message, localID string) *Message {
	for _, entry := range t.entries {
		if entry.State != StatePending {
			continue
		}
		if localID != "" {
			if entry.LocalID == localID {
				return entry
			}
			continue
		}
		if entry.Text == server.Text && absDuration(server.CreatedAt.Sub(entry.CreatedAt)) <= matchWindow {
			return entry
		}
	}
	return nil
}

func (t *Timeline) append(server *Message) {
	clone := *server
	clone.State = StateConfirmed
	t.entries = append(t.entries, &clone)
}

// Messages returns the rendered view of the timeline. Failed drafts are
// dropped from the view but stay tracked internally so a later echo cannot
// resurrect them as pending.
func (t *Timeline) Messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Message, 0, len(t.entries))
	for _, entry := range t.entries {
		if entry.State == StateFailed {
			continue
		}
		out = append(out, *entry)
	}
	return out
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
