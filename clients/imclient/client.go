package imclient

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

// Event type tags pushed by the server over the websocket.
const (
	EventNewMessage             = "new_message"
	EventNewMessageNotification = "new_message_notification"
	EventTyping                 = "typing"
	EventMessageRead            = "message_read"
	EventPresenceChanged        = "presence_changed"
	EventOnlineUsers            = "online_users"
)

// User is the server's user representation.
type User struct {
	ID       uint64     `json:"id"`
	Name     string     `json:"name"`
	Username string     `json:"username"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

type wireMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Sender         *User     `json:"sender"`
	Receiver       *User     `json:"receiver"`
	Text           string    `json:"text"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ConversationPreview is one entry of the conversation list.
type ConversationPreview struct {
	ConversationID string    `json:"conversationId"`
	Peer           *User     `json:"peer"`
	UnreadCount    int64     `json:"unreadCount"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// TypingEvent reports a counterpart starting or stopping to type.
type TypingEvent struct {
	ConversationID string `json:"conversationId"`
	UserID         uint64 `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

// PresenceEvent reports a user going online or offline.
type PresenceEvent struct {
	UserID   uint64    `json:"userId"`
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type serverEvent struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversationId"`
	UserID         uint64          `json:"userId"`
	IsTyping       bool            `json:"isTyping"`
	IsOnline       bool            `json:"isOnline"`
	LastSeen       time.Time       `json:"lastSeen"`
	UserIDs        []uint64        `json:"userIds"`
	MessageID      string          `json:"messageId"`
	ReaderID       uint64          `json:"readerId"`
	Message        json.RawMessage `json:"message"`
}

// Client talks to the Mosaic HTTP API and websocket.
//
// One Timeline per counterpart keeps the optimistic view consistent no matter
// in which order confirmations and bus echoes arrive.
type Client struct {
	baseURL string
	http    *resty.Client

	token  string
	selfID uint64

	mu        sync.Mutex
	ws        *websocket.Conn
	timelines map[uint64]*Timeline

	typing *typingNotifier
	expiry *typingExpiry

	// Optional event callbacks, invoked from the websocket read loop.
	OnMessage      func(peerID uint64, msg Message)
	OnNotification func(conversationID string, msg Message)
	OnTyping       func(ev TypingEvent)
	OnPresence     func(ev PresenceEvent)
	OnOnlineUsers  func(ids []uint64)
	OnReadReceipt  func(conversationID, messageID string, readerID uint64)
}

func New(baseURL string) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      resty.New().SetBaseURL(baseURL).SetTimeout(30 * time.Second),
		timelines: make(map[uint64]*Timeline),
		typing:    newTypingNotifier(typingIdleWindow),
		expiry:    newTypingExpiry(typingExpiryWindow),
	}
}

// SelfID returns the authenticated user's identifier, zero before login.
func (c *Client) SelfID() uint64 {
	return c.selfID
}

// Register creates an account and stores the returned session token.
func (c *Client) Register(ctx context.Context, name, username, email, password string) error {
	return c.authenticate(ctx, "/api/user/register", map[string]string{
		"name":     name,
		"username": username,
		"email":    email,
		"password": password,
	})
}

// Login authenticates and stores the returned session token.
func (c *Client) Login(ctx context.Context, username, password string) error {
	return c.authenticate(ctx, "/api/user/login", map[string]string{
		"username": username,
		"password": password,
	})
}

func (c *Client) authenticate(ctx context.Context, path string, body map[string]string) error {
	var result struct {
		Token string `json:"token"`
		User  *User  `json:"user"`
	}
	if err := c.post(ctx, path, body, &result); err != nil {
		return err
	}
	if result.Token == "" || result.User == nil {
		return fmt.Errorf("imclient: malformed auth response")
	}
	c.token = result.Token
	c.selfID = result.User.ID
	return nil
}

// SendMessage drafts an optimistic entry, issues the send request and
// reconciles the response into the timeline. On failure the draft is marked
// failed instead of lingering as pending.
func (c *Client) SendMessage(ctx context.Context, receiverID uint64, text string) (Message, error) {
	timeline := c.timelineFor(receiverID)
	localID := timeline.Draft(receiverID, text)

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(c.token).
		SetFormData(map[string]string{"text": text}).
		Post("/api/im/send/" + strconv.FormatUint(receiverID, 10))
	if err != nil {
		timeline.Fail(localID)
		return Message{}, err
	}

	wire, err := decodeEnvelope[wireMessage](resp.Body())
	if err != nil {
		timeline.Fail(localID)
		return Message{}, err
	}

	server := c.toMessage(wire)
	timeline.Confirm(localID, &server)
	return server, nil
}

// History fetches the full message log with a counterpart and seeds the
// local timeline with it.
func (c *Client) History(ctx context.Context, peerID uint64) ([]Message, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(c.token).
		Get("/api/im/messages/" + strconv.FormatUint(peerID, 10))
	if err != nil {
		return nil, err
	}

	wires, err := decodeEnvelope[[]*wireMessage](resp.Body())
	if err != nil {
		return nil, err
	}

	timeline := c.timelineFor(peerID)
	out := make([]Message, 0, len(*wires))
	for _, wire := range *wires {
		msg := c.toMessage(wire)
		timeline.Reconcile(&msg)
		out = append(out, msg)
	}
	return out, nil
}

// Conversations fetches the conversation list.
func (c *Client) Conversations(ctx context.Context) ([]*ConversationPreview, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(c.token).
		Get("/api/im/conversations")
	if err != nil {
		return nil, err
	}
	list, err := decodeEnvelope[[]*ConversationPreview](resp.Body())
	if err != nil {
		return nil, err
	}
	return *list, nil
}

// MarkRead persists the read flag for every unread message in a conversation.
func (c *Client) MarkRead(ctx context.Context, conversationID string) error {
	return c.post(ctx, "/api/im/read", map[string]string{"conversation_id": conversationID}, nil)
}

// Timeline returns the reconciled view for one counterpart.
func (c *Client) Timeline(peerID uint64) []Message {
	return c.timelineFor(peerID).Messages()
}

// Connect dials the websocket and runs the event loop until the context is
// cancelled or the connection drops.
func (c *Client) Connect(ctx context.Context) error {
	wsURL, err := url.Parse(c.baseURL)
	if err != nil {
		return err
	}
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	wsURL.Path = "/api/im"
	wsURL.RawQuery = "token=" + url.QueryEscape(c.token)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.ws = conn
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.ws = nil
		c.mu.Unlock()
		_ = conn.Close()
	}()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		var ev serverEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		c.handleEvent(&ev)
	}
}

// JoinConversation subscribes this connection to a conversation channel.
func (c *Client) JoinConversation(conversationID string) error {
	return c.writeFrame("join_conversation", conversationID, "")
}

// LeaveConversation unsubscribes from a conversation channel.
func (c *Client) LeaveConversation(conversationID string) error {
	return c.writeFrame("leave_conversation", conversationID, "")
}

// Typing reports one keystroke in a conversation. The first keystroke of a
// burst emits typing_start; when no further keystroke follows within the
// idle window a typing_stop is published automatically.
func (c *Client) Typing(conversationID string) error {
	first := c.typing.keystroke(conversationID, func() {
		_ = c.writeFrame("typing_stop", conversationID, "")
	})
	if first {
		return c.TypingStart(conversationID)
	}
	return nil
}

// TypingStart signals that the user started typing in a conversation.
func (c *Client) TypingStart(conversationID string) error {
	return c.writeFrame("typing_start", conversationID, "")
}

// TypingStop signals that the user stopped typing. It also disarms the
// keystroke watchdog so the stop is not published twice.
func (c *Client) TypingStop(conversationID string) error {
	c.typing.clear(conversationID)
	return c.writeFrame("typing_stop", conversationID, "")
}

// SendReadReceipt broadcasts an advisory read receipt for UI refresh.
// Persisting the read flag still requires MarkRead.
func (c *Client) SendReadReceipt(conversationID, messageID string) error {
	return c.writeFrame("message_read", conversationID, messageID)
}

func (c *Client) writeFrame(frameType, conversationID, messageID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == nil {
		return fmt.Errorf("imclient: websocket not connected")
	}
	return c.ws.WriteJSON(map[string]string{
		"type":           frameType,
		"conversationId": conversationID,
		"messageId":      messageID,
	})
}

func (c *Client) handleEvent(ev *serverEvent) {
	switch ev.Type {
	case EventNewMessage:
		var wire wireMessage
		if err := json.Unmarshal(ev.Message, &wire); err != nil {
			return
		}
		msg := c.toMessage(&wire)
		peerID := wire.peerOf(c.selfID)
		c.timelineFor(peerID).Reconcile(&msg)
		if c.OnMessage != nil {
			c.OnMessage(peerID, msg)
		}

	case EventNewMessageNotification:
		var wire wireMessage
		if err := json.Unmarshal(ev.Message, &wire); err != nil {
			return
		}
		if c.OnNotification != nil {
			c.OnNotification(ev.ConversationID, c.toMessage(&wire))
		}

	case EventTyping:
		typing := TypingEvent{
			ConversationID: ev.ConversationID,
			UserID:         ev.UserID,
			IsTyping:       ev.IsTyping,
		}
		// Local expiry guard: clears the indicator even if the stop frame
		// is lost.
		c.expiry.observe(typing, func(expired TypingEvent) {
			if c.OnTyping != nil {
				c.OnTyping(expired)
			}
		})
		if c.OnTyping != nil {
			c.OnTyping(typing)
		}

	case EventMessageRead:
		if c.OnReadReceipt != nil {
			c.OnReadReceipt(ev.ConversationID, ev.MessageID, ev.ReaderID)
		}

	case EventPresenceChanged:
		if c.OnPresence != nil {
			c.OnPresence(PresenceEvent{
				UserID:   ev.UserID,
				IsOnline: ev.IsOnline,
				LastSeen: ev.LastSeen,
			})
		}

	case EventOnlineUsers:
		if c.OnOnlineUsers != nil {
			c.OnOnlineUsers(ev.UserIDs)
		}
	}
}

func (c *Client) timelineFor(peerID uint64) *Timeline {
	c.mu.Lock()
	defer c.mu.Unlock()
	timeline, ok := c.timelines[peerID]
	if !ok {
		timeline = NewTimeline(c.selfID)
		c.timelines[peerID] = timeline
	}
	return timeline
}

func (c *Client) toMessage(wire *wireMessage) Message {
	msg := Message{
		ServerID:       wire.ID,
		ConversationID: wire.ConversationID,
		Text:           wire.Text,
		State:          StateConfirmed,
		CreatedAt:      wire.CreatedAt,
	}
	if wire.Sender != nil {
		msg.SenderID = wire.Sender.ID
	}
	if wire.Receiver != nil {
		msg.ReceiverID = wire.Receiver.ID
	}
	return msg
}

func (w *wireMessage) peerOf(selfID uint64) uint64 {
	if w.Sender != nil && w.Sender.ID != selfID {
		return w.Sender.ID
	}
	if w.Receiver != nil {
		return w.Receiver.ID
	}
	return 0
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(c.token).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(path)
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return fmt.Errorf("imclient: decode response: %w", err)
	}
	if env.Code != 200 {
		return fmt.Errorf("imclient: %s (code %d)", env.Message, env.Code)
	}
	if out != nil {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

func decodeEnvelope[T any](body []byte) (*T, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("imclient: decode response: %w", err)
	}
	if env.Code != 200 {
		return nil, fmt.Errorf("imclient: %s (code %d)", env.Message, env.Code)
	}
	var out T
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return nil, fmt.Errorf("imclient: decode payload: %w", err)
	}
	return &out, nil
}
