package imclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func serverMessage(id string, senderID uint64, text string, at time.Time) *Message {
	return &Message{
		ServerID:       id,
		ConversationID: "conv-a",
		SenderID:       senderID,
		Text:           text,
		CreatedAt:      at,
	}
}

func TestTimelineConfirmThenEcho(t *testing.T) {
	tl := NewTimeline(1)
	localID := tl.Draft(2, "hello")

	server := serverMessage("m1", 1, "hello", time.Now())
	tl.Confirm(localID, server)
	// the bus echo of the same message must not create a second entry
	tl.Reconcile(server)

	messages := tl.Messages()
	assert.Len(t, messages, 1)
	assert.Equal(t, StateConfirmed, messages[0].State)
	assert.Equal(t, "m1", messages[0].ServerID)
	assert.Equal(t, localID, messages[0].LocalID)
}

func TestTimelineEchoBeforeResponse(t *testing.T) {
	tl := NewTimeline(1)
	localID := tl.Draft(2, "hello")

	server := serverMessage("m1", 1, "hello", time.Now())
	// echo wins the race, then the send response arrives
	tl.Reconcile(server)
	tl.Confirm(localID, server)

	messages := tl.Messages()
	assert.Len(t, messages, 1)
	assert.Equal(t, StateConfirmed, messages[0].State)
}

func TestTimelineEchoMatchedByContentAndTime(t *testing.T) {
	tl := NewTimeline(1)
	tl.Draft(2, "hello")

	// correlation by content and approximate timestamp, no local id available
	tl.Reconcile(serverMessage("m1", 1, "hello", time.Now().Add(2*time.Second)))

	messages := tl.Messages()
	assert.Len(t, messages, 1)
	assert.Equal(t, StateConfirmed, messages[0].State)
	assert.Equal(t, "m1", messages[0].ServerID)
}

func TestTimelineEchoOutsideWindowAppends(t *testing.T) {
	tl := NewTimeline(1)
	tl.Draft(2, "hello")

	// same text but far in time: treat as a different message from another session
	tl.Reconcile(serverMessage("m1", 1, "hello", time.Now().Add(time.Minute)))

	messages := tl.Messages()
	assert.Len(t, messages, 2)
	assert.Equal(t, StatePending, messages[0].State)
	assert.Equal(t, StateConfirmed, messages[1].State)
}

func TestTimelineCounterpartAlwaysAppends(t *testing.T) {
	tl := NewTimeline(1)
	tl.Draft(2, "hello")

	// identical text from the counterpart is never a duplicate of a local draft
	tl.Reconcile(serverMessage("m1", 2, "hello", time.Now()))

	messages := tl.Messages()
	assert.Len(t, messages, 2)
	assert.Equal(t, StatePending, messages[0].State)
	assert.Equal(t, uint64(2), messages[1].SenderID)
}

func TestTimelineFailedSend(t *testing.T) {
	tl := NewTimeline(1)
	localID := tl.Draft(2, "hello")

	tl.Fail(localID)

	// the failed draft disappears from the rendered view
	assert.Empty(t, tl.Messages())

	// a later echo for a different message must not resurrect the failed draft
	tl.Reconcile(serverMessage("m1", 1, "hello", time.Now()))
	messages := tl.Messages()
	assert.Len(t, messages, 1)
	assert.Equal(t, "m1", messages[0].ServerID)
	assert.Equal(t, StateConfirmed, messages[0].State)
}

func TestTimelineFailAfterConfirmIsNoop(t *testing.T) {
	tl := NewTimeline(1)
	localID := tl.Draft(2, "hello")

	tl.Confirm(localID, serverMessage("m1", 1, "hello", time.Now()))
	tl.Fail(localID)

	messages := tl.Messages()
	assert.Len(t, messages, 1)
	assert.Equal(t, StateConfirmed, messages[0].State)
}
