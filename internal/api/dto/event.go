package dto

import "time"

// 实时事件是封闭的标记变体集合：每种事件固定字段，
// 由 Type 字段分发，不做载荷形状探测
const (
	EventNewMessage             = "new_message"
	EventNewMessageNotification = "new_message_notification"
	EventTyping                 = "typing"
	EventMessageRead            = "message_read"
	EventPresenceChanged        = "presence_changed"
	EventOnlineUsers            = "online_users"
)

// NewMessageEvent 会话频道内的新消息推送
type NewMessageEvent struct {
	Type           string      `json:"type"`
	ConversationID string      `json:"conversationId"`
	Message        *MessageDTO `json:"message"`
}

func NewMessage(convID string, msg *MessageDTO) *NewMessageEvent {
	return &NewMessageEvent{Type: EventNewMessage, ConversationID: convID, Message: msg}
}

// NewMessageNotificationEvent 用户个人频道的新消息提醒
// 仅当接收者在线但未订阅该会话频道时投递，用于刷新会话列表预览
type NewMessageNotificationEvent struct {
	Type           string      `json:"type"`
	ConversationID string      `json:"conversationId"`
	Message        *MessageDTO `json:"message"`
}

func NewMessageNotification(convID string, msg *MessageDTO) *NewMessageNotificationEvent {
	return &NewMessageNotificationEvent{Type: EventNewMessageNotification, ConversationID: convID, Message: msg}
}

// TypingEvent 输入状态（开始/停止共用一个变体，IsTyping 区分）
// 不落库，由停止事件或超时兜底结束
type TypingEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	UserID         uint64 `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

func NewTyping(convID string, userID uint64, isTyping bool) *TypingEvent {
	return &TypingEvent{Type: EventTyping, ConversationID: convID, UserID: userID, IsTyping: isTyping}
}

// ReadReceiptEvent 已读回执广播，仅供 UI 展示，不改写存储中的 read 标志
type ReadReceiptEvent struct {
	Type           string    `json:"type"`
	ConversationID string    `json:"conversationId"`
	MessageID      string    `json:"messageId"`
	ReaderID       uint64    `json:"readerId"`
	ReadAt         time.Time `json:"readAt"`
}

func NewReadReceipt(convID, messageID string, readerID uint64) *ReadReceiptEvent {
	return &ReadReceiptEvent{
		Type:           EventMessageRead,
		ConversationID: convID,
		MessageID:      messageID,
		ReaderID:       readerID,
		ReadAt:         time.Now(),
	}
}

// PresenceChangedEvent 上下线广播（发给所有在线连接）
type PresenceChangedEvent struct {
	Type     string    `json:"type"`
	UserID   uint64    `json:"userId"`
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
}

func NewPresenceChanged(userID uint64, isOnline bool) *PresenceChangedEvent {
	return &PresenceChangedEvent{
		Type:     EventPresenceChanged,
		UserID:   userID,
		IsOnline: isOnline,
		LastSeen: time.Now(),
	}
}

// OnlineUsersEvent 连接建立后下发的在线用户快照
type OnlineUsersEvent struct {
	Type    string   `json:"type"`
	UserIDs []uint64 `json:"userIds"`
}

func NewOnlineUsers(ids []uint64) *OnlineUsersEvent {
	return &OnlineUsersEvent{Type: EventOnlineUsers, UserIDs: ids}
}

// 客户端上行帧类型
const (
	FrameJoinConversation  = "join_conversation"
	FrameLeaveConversation = "leave_conversation"
	FrameTypingStart       = "typing_start"
	FrameTypingStop        = "typing_stop"
	FrameMessageRead       = "message_read"
)

// ClientFrame Websocket 上行帧
type ClientFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId,omitempty"`
}
