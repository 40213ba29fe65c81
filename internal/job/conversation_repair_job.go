package job

import (
	"Mosaic/internal/pkg/mongo"
	"Mosaic/internal/repository"
	"context"
	log "log/slog"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ConversationRepairJob 周期性修复会话集合里的坏数据：
//   - 成员数不为 2 或成员已不存在的会话
//   - 同一对用户的重复会话（保留最早创建的，连带删除其余会话的消息）
//
// 读路径会过滤这些记录，修复只是把垃圾真正清掉
type ConversationRepairJob struct {
	convRepo mongo.ConversationRepo
	msgRepo  mongo.MessageRepo
	userRepo repository.UserRepo
}

func NewConversationRepairJob(
	convRepo mongo.ConversationRepo,
	msgRepo mongo.MessageRepo,
	userRepo repository.UserRepo,
) *ConversationRepairJob {
	return &ConversationRepairJob{
		convRepo: convRepo,
		msgRepo:  msgRepo,
		userRepo: userRepo,
	}
}

func (s *ConversationRepairJob) Run() {
	ctx := context.Background()
	log.Info("start conversation repair job")

	convs, err := s.convRepo.ListAll(ctx)
	if err != nil {
		log.Error("failed to list conversations", "err", err)
		return
	}

	var toDelete []primitive.ObjectID

	// 结构非法的会话
	for _, conv := range convs {
		if len(conv.Participants) != 2 || conv.Participants[0] == conv.Participants[1] {
			log.Warn("invalid conversation structure", "conversation_id", conv.ID.Hex(),
				"participants", conv.Participants)
			toDelete = append(toDelete, conv.ID)
			continue
		}
		ok, err := s.userRepo.ExistUsers(ctx, conv.Participants)
		if err != nil {
			log.Error("failed to check participants", "conversation_id", conv.ID.Hex(), "err", err)
			continue
		}
		if !ok {
			log.Warn("conversation references missing users", "conversation_id", conv.ID.Hex(),
				"participants", conv.Participants)
			toDelete = append(toDelete, conv.ID)
		}
	}

	// 同一对用户的重复会话，保留最早创建的那条
	oldest := make(map[string]*mongo.Conversation)
	for _, conv := range convs {
		if len(conv.Participants) != 2 {
			continue
		}
		key := mongo.PairKey(conv.Participants[0], conv.Participants[1])
		kept, ok := oldest[key]
		if !ok {
			oldest[key] = conv
			continue
		}
		dup := conv
		if conv.CreatedAt.Before(kept.CreatedAt) {
			oldest[key] = conv
			dup = kept
		}
		log.Warn("duplicate conversation for pair", "pair_key", key, "conversation_id", dup.ID.Hex())
		toDelete = append(toDelete, dup.ID)
	}

	if len(toDelete) == 0 {
		log.Info("conversation repair job finished, nothing to do")
		return
	}

	deletedMsgs, err := s.msgRepo.DeleteByConversations(ctx, toDelete)
	if err != nil {
		log.Error("failed to delete orphan messages", "err", err)
		return
	}
	deletedConvs, err := s.convRepo.DeleteByIDs(ctx, toDelete)
	if err != nil {
		log.Error("failed to delete broken conversations", "err", err)
		return
	}

	log.Info("conversation repair job finished",
		"deleted_conversations", deletedConvs, "deleted_messages", deletedMsgs)
}
