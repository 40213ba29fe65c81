package hub

import (
	"Mosaic/internal/api/dto"
	"Mosaic/internal/pkg/consts"
	"Mosaic/internal/pkg/redis"
	"context"
	log "log/slog"
	"strconv"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
)

// Bus 投递总线，以 Redis 发布订阅为骨架
// 每个进程只开一个 PSubscribe 订阅 im:*，收到消息后按频道分发给本进程的连接
// 会话成员关系（join/leave）只存在内存里，不落 Redis
type Bus struct {
	registry *Registry
	typing   *typingTracker

	mu    sync.RWMutex
	rooms map[string]map[string]*Client
}

func NewBus(registry *Registry, typingTimeout int) *Bus {
	b := &Bus{
		registry: registry,
		rooms:    make(map[string]map[string]*Client),
	}
	b.typing = newTypingTracker(typingTimeout, b.publishTypingStop)
	return b
}

// Connect 登记连接并广播上线事件，随后给新连接下发在线用户快照
func (b *Bus) Connect(ctx context.Context, c *Client) {
	first, err := b.registry.Connect(ctx, c)
	if err != nil {
		log.ErrorContext(ctx, "presence connect", "user_id", c.UserID, "err", err)
	}
	if first {
		b.PublishBroadcast(ctx, dto.NewPresenceChanged(c.UserID, true))
	}
	c.Send(dto.NewOnlineUsers(b.registry.Snapshot()))
}

// Disconnect 注销连接，清理其会话订阅和输入状态，必要时广播下线事件
func (b *Bus) Disconnect(ctx context.Context, c *Client) {
	for _, convID := range c.joinedConversations() {
		b.Leave(c, convID)
		b.typing.stop(convID, c.UserID)
	}
	last, err := b.registry.Disconnect(ctx, c)
	if err != nil {
		log.ErrorContext(ctx, "presence disconnect", "user_id", c.UserID, "err", err)
	}
	if last {
		b.PublishBroadcast(ctx, dto.NewPresenceChanged(c.UserID, false))
	}
	c.Close()
}

// Join 把连接订阅进会话频道，之后该会话的事件直接推给它
func (b *Bus) Join(c *Client, conversationID string) {
	b.mu.Lock()
	room, ok := b.rooms[conversationID]
	if !ok {
		room = make(map[string]*Client)
		b.rooms[conversationID] = room
	}
	room[c.HandleID] = c
	b.mu.Unlock()

	c.markJoined(conversationID)
}

// Leave 把连接移出会话频道，重复离开是安全的
func (b *Bus) Leave(c *Client, conversationID string) {
	b.mu.Lock()
	if room, ok := b.rooms[conversationID]; ok {
		delete(room, c.HandleID)
		if len(room) == 0 {
			delete(b.rooms, conversationID)
		}
	}
	b.mu.Unlock()

	c.markLeft(conversationID)
}

// PublishConversation 向会话频道发事件，经 Redis 扇出到所有进程
func (b *Bus) PublishConversation(ctx context.Context, conversationID string, event any) {
	b.publish(ctx, consts.IMConversationKey+conversationID, event)
}

// PublishUser 向用户个人频道发事件
func (b *Bus) PublishUser(ctx context.Context, userID uint64, event any) {
	b.publish(ctx, consts.IMUserKey+strconv.FormatUint(userID, 10), event)
}

// PublishBroadcast 向全部在线连接发事件
func (b *Bus) PublishBroadcast(ctx context.Context, event any) {
	b.publish(ctx, consts.IMBroadcastKey, event)
}

func (b *Bus) publish(ctx context.Context, channel string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.ErrorContext(ctx, "marshal bus event failed", "channel", channel, "err", err)
		return
	}
	if err := redis.Publish(ctx, channel, payload); err != nil {
		log.ErrorContext(ctx, "publish bus event failed", "channel", channel, "err", err)
	}
}

// TypingStart 广播输入开始并武装超时兜底，超时后自动广播停止
func (b *Bus) TypingStart(ctx context.Context, conversationID string, userID uint64) {
	b.typing.start(conversationID, userID)
	b.PublishConversation(ctx, conversationID, dto.NewTyping(conversationID, userID, true))
}

// TypingStop 解除兜底定时器并广播输入停止
func (b *Bus) TypingStop(ctx context.Context, conversationID string, userID uint64) {
	b.typing.stop(conversationID, userID)
	b.PublishConversation(ctx, conversationID, dto.NewTyping(conversationID, userID, false))
}

func (b *Bus) publishTypingStop(conversationID string, userID uint64) {
	b.PublishConversation(context.Background(), conversationID, dto.NewTyping(conversationID, userID, false))
}

// eventProbe 只解出分发需要的字段，载荷原样转发
type eventProbe struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
}

// Run 订阅 Redis 并分发到本进程连接，阻塞直到 ctx 取消
func (b *Bus) Run(ctx context.Context) error {
	sub := redis.PSubscribe(ctx, "im:*")
	defer func() {
		_ = sub.Close()
	}()

	log.Info("delivery bus subscribed", "pattern", "im:*")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			log.Info("delivery bus shutting down")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.dispatch(msg.Channel, []byte(msg.Payload))
		}
	}
}

func (b *Bus) dispatch(channel string, payload []byte) {
	switch {
	case strings.HasPrefix(channel, consts.IMConversationKey):
		conversationID := strings.TrimPrefix(channel, consts.IMConversationKey)
		b.dispatchConversation(conversationID, payload)

	case strings.HasPrefix(channel, consts.IMUserKey):
		raw := strings.TrimPrefix(channel, consts.IMUserKey)
		userID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			log.Warn("bad user channel", "channel", channel)
			return
		}
		b.dispatchUser(userID, payload)

	case channel == consts.IMBroadcastKey:
		b.registry.Each(func(c *Client) {
			c.SendRaw(payload)
		})
	}
}

func (b *Bus) dispatchConversation(conversationID string, payload []byte) {
	b.mu.RLock()
	room := b.rooms[conversationID]
	clients := make([]*Client, 0, len(room))
	for _, c := range room {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		c.SendRaw(payload)
	}
}

// dispatchUser 个人频道分发
// new_message_notification 只发给没有订阅该会话频道的连接，
// 已经订阅的连接会从会话频道收到完整的 new_message，避免重复提醒
func (b *Bus) dispatchUser(userID uint64, payload []byte) {
	var probe eventProbe
	if err := json.Unmarshal(payload, &probe); err != nil {
		log.Warn("bad user event payload", "user_id", userID, "err", err)
		return
	}

	for _, c := range b.registry.ClientsOf(userID) {
		if probe.Type == dto.EventNewMessageNotification && c.IsJoined(probe.ConversationID) {
			continue
		}
		c.SendRaw(payload)
	}
}
