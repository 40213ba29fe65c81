package mongo

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MessageRepo interface {
	Insert(ctx context.Context, msg *Message) error
	ListByConversation(ctx context.Context, convID primitive.ObjectID, limit int) ([]*Message, error)
	CountUnread(ctx context.Context, convID primitive.ObjectID, readerID uint64) (int64, error)
	MarkRead(ctx context.Context, convID primitive.ObjectID, readerID uint64) (int64, error)
	GetByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*Message, error)
	DeleteByConversations(ctx context.Context, convIDs []primitive.ObjectID) (int64, error)
	DeleteByUser(ctx context.Context, userID uint64) (int64, error)
}

type messageRepoImpl struct {
	col *mongo.Collection
}

func NewMessageRepo(db *mongo.Database) MessageRepo {
	return &messageRepoImpl{
		col: db.Collection(messageCollection),
	}
}

func (s *messageRepoImpl) Insert(ctx context.Context, msg *Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	res, err := s.col.InsertOne(ctx, msg)
	if err != nil {
		return errors.Wrap(err, "insert message")
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		msg.ID = oid
	}
	return nil
}

// ListByConversation 按创建时间升序返回会话历史，_id 作为同刻消息的决胜序
func (s *messageRepoImpl) ListByConversation(ctx context.Context, convID primitive.ObjectID, limit int) ([]*Message, error) {
	findOptions := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		findOptions.SetLimit(int64(limit))
	}

	cursor, err := s.col.Find(ctx, bson.M{"conversation_id": convID}, findOptions)
	if err != nil {
		return nil, errors.Wrap(err, "find messages")
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var messages []*Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, errors.Wrap(err, "decode messages")
	}
	return messages, nil
}

func (s *messageRepoImpl) CountUnread(ctx context.Context, convID primitive.ObjectID, readerID uint64) (int64, error) {
	count, err := s.col.CountDocuments(ctx, bson.M{
		"conversation_id": convID,
		"receiver_id":     readerID,
		"read":            false,
	})
	if err != nil {
		return 0, errors.Wrap(err, "count unread messages")
	}
	return count, nil
}

// MarkRead 持久化已读状态：批量翻转发给 readerID 的未读消息
// 这是独立于 message_read 广播事件的显式写路径
func (s *messageRepoImpl) MarkRead(ctx context.Context, convID primitive.ObjectID, readerID uint64) (int64, error) {
	res, err := s.col.UpdateMany(ctx,
		bson.M{
			"conversation_id": convID,
			"receiver_id":     readerID,
			"read":            false,
		},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return 0, errors.Wrap(err, "mark messages read")
	}
	return res.ModifiedCount, nil
}

func (s *messageRepoImpl) GetByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*Message, error) {
	result := make(map[primitive.ObjectID]*Message, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	cursor, err := s.col.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, errors.Wrap(err, "find messages by ids")
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var messages []*Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, errors.Wrap(err, "decode messages")
	}
	for _, m := range messages {
		result[m.ID] = m
	}
	return result, nil
}

func (s *messageRepoImpl) DeleteByConversations(ctx context.Context, convIDs []primitive.ObjectID) (int64, error) {
	if len(convIDs) == 0 {
		return 0, nil
	}
	res, err := s.col.DeleteMany(ctx, bson.M{"conversation_id": bson.M{"$in": convIDs}})
	if err != nil {
		return 0, errors.Wrap(err, "delete messages by conversations")
	}
	return res.DeletedCount, nil
}

func (s *messageRepoImpl) DeleteByUser(ctx context.Context, userID uint64) (int64, error) {
	res, err := s.col.DeleteMany(ctx, bson.M{
		"$or": bson.A{
			bson.M{"sender_id": userID},
			bson.M{"receiver_id": userID},
		},
	})
	if err != nil {
		return 0, errors.Wrap(err, "delete messages by user")
	}
	return res.DeletedCount, nil
}
