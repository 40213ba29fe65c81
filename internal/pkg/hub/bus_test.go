package hub

import (
	"Mosaic/internal/api/dto"
	"Mosaic/internal/pkg/consts"
	"context"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
)

func recvPayload(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case payload := <-c.send:
		return payload
	case <-time.After(time.Second):
		t.Fatal("no payload received")
		return nil
	}
}

func assertNoPayload(t *testing.T, c *Client) {
	t.Helper()
	select {
	case payload := <-c.send:
		t.Fatalf("unexpected payload: %s", payload)
	default:
	}
}

func TestBusConversationDispatch(t *testing.T) {
	registry := NewRegistry(newFakeStore())
	bus := NewBus(registry, 5000)

	joined := newTestClient(1)
	outsider := newTestClient(2)
	bus.Join(joined, "conv-a")

	payload := []byte(`{"type":"new_message","conversationId":"conv-a"}`)
	bus.dispatch(consts.IMConversationKey+"conv-a", payload)

	assert.Equal(t, payload, recvPayload(t, joined))
	assertNoPayload(t, outsider)
}

func TestBusLeaveStopsDispatch(t *testing.T) {
	bus := NewBus(NewRegistry(newFakeStore()), 5000)
	c := newTestClient(1)

	bus.Join(c, "conv-a")
	bus.Leave(c, "conv-a")
	// 重复离开是安全的
	bus.Leave(c, "conv-a")

	bus.dispatch(consts.IMConversationKey+"conv-a", []byte(`{}`))
	assertNoPayload(t, c)
	assert.False(t, c.IsJoined("conv-a"))
}

func TestBusNotificationSkipsJoinedHandles(t *testing.T) {
	registry := NewRegistry(newFakeStore())
	bus := NewBus(registry, 5000)
	ctx := context.Background()

	// 同一用户两条连接：一条订阅了会话，一条没有
	inConv := newTestClient(9)
	elsewhere := newTestClient(9)
	_, _ = registry.Connect(ctx, inConv)
	_, _ = registry.Connect(ctx, elsewhere)
	bus.Join(inConv, "conv-a")

	event := dto.NewMessageNotification("conv-a", &dto.MessageDTO{Text: "hi"})
	payload, err := json.Marshal(event)
	assert.NoError(t, err)

	bus.dispatch(consts.IMUserKey+"9", payload)

	// 订阅了会话频道的连接会收到完整消息，提醒只发给另一条
	assertNoPayload(t, inConv)
	assert.Equal(t, payload, recvPayload(t, elsewhere))
}

func TestBusUserDispatchOtherEvents(t *testing.T) {
	registry := NewRegistry(newFakeStore())
	bus := NewBus(registry, 5000)
	ctx := context.Background()

	inConv := newTestClient(9)
	_, _ = registry.Connect(ctx, inConv)
	bus.Join(inConv, "conv-a")

	// 非提醒类事件不做订阅过滤
	payload, err := json.Marshal(dto.NewReadReceipt("conv-a", "", 3))
	assert.NoError(t, err)
	bus.dispatch(consts.IMUserKey+"9", payload)

	assert.Equal(t, payload, recvPayload(t, inConv))
}

func TestBusBroadcastDispatch(t *testing.T) {
	registry := NewRegistry(newFakeStore())
	bus := NewBus(registry, 5000)
	ctx := context.Background()

	a := newTestClient(1)
	b := newTestClient(2)
	_, _ = registry.Connect(ctx, a)
	_, _ = registry.Connect(ctx, b)

	payload, err := json.Marshal(dto.NewPresenceChanged(3, true))
	assert.NoError(t, err)
	bus.dispatch(consts.IMBroadcastKey, payload)

	assert.Equal(t, payload, recvPayload(t, a))
	assert.Equal(t, payload, recvPayload(t, b))
}
