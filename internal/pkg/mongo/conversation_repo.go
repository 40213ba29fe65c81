package mongo

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ConversationRepo interface {
	Insert(ctx context.Context, conv *Conversation) error
	GetByPairKey(ctx context.Context, pairKey string) (*Conversation, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*Conversation, error)
	ListByParticipant(ctx context.Context, userID uint64) ([]*Conversation, error)
	AppendMessage(ctx context.Context, convID, msgID primitive.ObjectID, at time.Time) error
	DeleteByIDs(ctx context.Context, ids []primitive.ObjectID) (int64, error)
	ListAll(ctx context.Context) ([]*Conversation, error)
}

type conversationRepoImpl struct {
	col *mongo.Collection
}

func NewConversationRepo(db *mongo.Database) ConversationRepo {
	return &conversationRepoImpl{
		col: db.Collection(conversationCollection),
	}
}

// Insert 插入新会话；pair_key 唯一索引冲突转为 ErrDuplicatePair，
// 由上层重查并复用对方刚创建的会话
func (s *conversationRepoImpl) Insert(ctx context.Context, conv *Conversation) error {
	now := time.Now()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	if conv.Messages == nil {
		conv.Messages = []primitive.ObjectID{}
	}

	res, err := s.col.InsertOne(ctx, conv)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicatePair
		}
		return errors.Wrap(err, "insert conversation")
	}

	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		conv.ID = oid
	}
	return nil
}

// GetByPairKey 根据规范化的会话标识查询
func (s *conversationRepoImpl) GetByPairKey(ctx context.Context, pairKey string) (*Conversation, error) {
	var conv Conversation
	err := s.col.FindOne(ctx, bson.M{"pair_key": pairKey}).Decode(&conv)
	if err != nil {
		if stderrors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "find conversation by pair key")
	}
	return &conv, nil
}

func (s *conversationRepoImpl) GetByID(ctx context.Context, id primitive.ObjectID) (*Conversation, error) {
	var conv Conversation
	err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&conv)
	if err != nil {
		if stderrors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "find conversation by id")
	}
	return &conv, nil
}

// ListByParticipant 获取用户的全部会话，按最近活跃排列
// 结构非法（成员数不为 2）的记录在此处过滤，正常读路径永远看不到它们
func (s *conversationRepoImpl) ListByParticipant(ctx context.Context, userID uint64) ([]*Conversation, error) {
	filter := bson.M{
		"participants": userID,
		"$expr":        bson.M{"$eq": bson.A{bson.M{"$size": "$participants"}, 2}},
	}
	findOptions := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})

	cursor, err := s.col.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, errors.Wrap(err, "list conversations")
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var convs []*Conversation
	if err := cursor.All(ctx, &convs); err != nil {
		return nil, errors.Wrap(err, "decode conversations")
	}
	return convs, nil
}

// AppendMessage 将消息追加到会话日志并推进 last_message 指针
// 两处修改落在同一文档的一次 UpdateOne 中，读者不会看到二者分裂的状态
func (s *conversationRepoImpl) AppendMessage(ctx context.Context, convID, msgID primitive.ObjectID, at time.Time) error {
	res, err := s.col.UpdateOne(ctx,
		bson.M{"_id": convID},
		bson.M{
			"$push": bson.M{"messages": msgID},
			"$set": bson.M{
				"last_message": msgID,
				"updated_at":   at,
			},
		},
	)
	if err != nil {
		return errors.Wrap(err, "append message to conversation")
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *conversationRepoImpl) DeleteByIDs(ctx context.Context, ids []primitive.ObjectID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.col.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, errors.Wrap(err, "delete conversations")
	}
	return res.DeletedCount, nil
}

// ListAll 全量拉取（仅修复例程使用，不走正常读路径的过滤）
func (s *conversationRepoImpl) ListAll(ctx context.Context) ([]*Conversation, error) {
	cursor, err := s.col.Find(ctx, bson.M{})
	if err != nil {
		return nil, errors.Wrap(err, "list all conversations")
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var convs []*Conversation
	if err := cursor.All(ctx, &convs); err != nil {
		return nil, errors.Wrap(err, "decode conversations")
	}
	return convs, nil
}
