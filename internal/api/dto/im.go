package dto

import "time"

// AttachmentDTO 附件响应
type AttachmentDTO struct {
	URL      string `json:"url"`
	MimeType string `json:"mimeType"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

// LinkPreviewDTO 链接预览响应
type LinkPreviewDTO struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
}

// MessageDTO 消息明细响应，发收双方已解析为可直接展示的用户信息
type MessageDTO struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversationId"`
	Sender         *UserDTO        `json:"sender"`
	Receiver       *UserDTO        `json:"receiver"`
	Text           string          `json:"text"`
	Attachment     *AttachmentDTO  `json:"attachment,omitempty"`
	Preview        *LinkPreviewDTO `json:"preview,omitempty"`
	Read           bool            `json:"read"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// ConversationPreviewDTO 会话列表项：对方用户 + 最近一条消息
type ConversationPreviewDTO struct {
	ConversationID string      `json:"conversationId"`
	Peer           *UserDTO    `json:"peer"`
	LastMessage    *MessageDTO `json:"lastMessage"`
	UnreadCount    int64       `json:"unreadCount"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// MarkAsReadReq 标记为已读请求
type MarkAsReadReq struct {
	ConversationID string `json:"conversation_id" binding:"required"`
}

// ResetResultDTO 会话重置响应
type ResetResultDTO struct {
	DeletedConversations int64 `json:"deletedConversations"`
	DeletedMessages      int64 `json:"deletedMessages"`
}
