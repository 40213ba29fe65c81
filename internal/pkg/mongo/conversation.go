package mongo

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const conversationCollection = "conversations"

// Conversation 会话文档
// Participants 恒为两个不同的用户 ID，升序排列；PairKey 是排序后的
// "小_大" 形式，承载唯一索引，保证 (A,B) 与 (B,A) 指向同一会话
type Conversation struct {
	ID           primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	PairKey      string               `bson:"pair_key" json:"-"`
	Participants []uint64             `bson:"participants" json:"participants"`
	Messages     []primitive.ObjectID `bson:"messages" json:"-"` // 有序消息日志（只追加）
	LastMessage  *primitive.ObjectID  `bson:"last_message,omitempty" json:"lastMessageId,omitempty"`
	CreatedAt    time.Time            `bson:"created_at" json:"createdAt"`
	UpdatedAt    time.Time            `bson:"updated_at" json:"updatedAt"`
}

// CanonicalPair 将两个用户 ID 规范化为升序对
func CanonicalPair(a, b uint64) (uint64, uint64) {
	if a < b {
		return a, b
	}
	return b, a
}

// PairKey 生成方向无关的会话标识
func PairKey(a, b uint64) string {
	lo, hi := CanonicalPair(a, b)
	return fmt.Sprintf("%d_%d", lo, hi)
}

// Peer 返回会话中 userID 的对方；userID 不在会话中时返回 false
func (c *Conversation) Peer(userID uint64) (uint64, bool) {
	if len(c.Participants) != 2 {
		return 0, false
	}
	if c.Participants[0] == userID {
		return c.Participants[1], true
	}
	if c.Participants[1] == userID {
		return c.Participants[0], true
	}
	return 0, false
}
