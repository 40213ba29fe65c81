package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const messageCollection = "messages"

// Message 消息文档
// 创建后不可变，唯一例外是 read 标志
type Message struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ConversationID primitive.ObjectID `bson:"conversation_id" json:"conversationId"`
	SenderID       uint64             `bson:"sender_id" json:"senderId"`
	ReceiverID     uint64             `bson:"receiver_id" json:"receiverId"`
	Text           string             `bson:"text,omitempty" json:"text"`
	Attachment     *Attachment        `bson:"attachment,omitempty" json:"attachment,omitempty"`
	Preview        *LinkPreview       `bson:"preview,omitempty" json:"preview,omitempty"`
	Read           bool               `bson:"read" json:"read"`
	CreatedAt      time.Time          `bson:"created_at" json:"createdAt"`
}

// Attachment 附件引用，URL 由上传服务给出
type Attachment struct {
	URL      string `bson:"url" json:"url"`
	MimeType string `bson:"mime_type" json:"mimeType"`
	Width    int    `bson:"width,omitempty" json:"width,omitempty"`
	Height   int    `bson:"height,omitempty" json:"height,omitempty"`
}

// LinkPreview 消息正文中链接的 OG 预览
type LinkPreview struct {
	URL         string `bson:"url" json:"url"`
	Title       string `bson:"title,omitempty" json:"title,omitempty"`
	Description string `bson:"description,omitempty" json:"description,omitempty"`
	ImageURL    string `bson:"image_url,omitempty" json:"imageUrl,omitempty"`
}
