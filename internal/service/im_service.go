package service

import (
	"Mosaic/internal/api/config"
	"Mosaic/internal/api/dto"
	"Mosaic/internal/model"
	"Mosaic/internal/pkg/kafka"
	"Mosaic/internal/pkg/linkpreview"
	"Mosaic/internal/pkg/mongo"
	"Mosaic/internal/pkg/util"
	"Mosaic/internal/repository"
	"context"
	"errors"
	log "log/slog"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EventPublisher 实时事件出口，由投递总线实现
// 服务层只声明需要什么，不关心扇出细节
type EventPublisher interface {
	PublishConversation(ctx context.Context, conversationID string, event any)
	PublishUser(ctx context.Context, userID uint64, event any)
}

// PreviewFetcher 链接预览抓取，失败返回 nil
type PreviewFetcher interface {
	Fetch(ctx context.Context, rawURL string) *linkpreview.Preview
}

// ActivityPublisher 消息动态异步上报
type ActivityPublisher interface {
	Publish(event kafka.ActivityEvent)
}

// SendMessageInput 发送消息入参，附件已经由上层完成上传
type SendMessageInput struct {
	SenderID   uint64
	ReceiverID uint64
	Text       string
	Attachment *mongo.Attachment
}

type IMService interface {
	SendMessage(ctx context.Context, input *SendMessageInput) (*dto.MessageDTO, error)
	GetMessages(ctx context.Context, selfID, peerID uint64) ([]*dto.MessageDTO, error)
	GetConversationList(ctx context.Context, selfID uint64) ([]*dto.ConversationPreviewDTO, error)
	MarkAsRead(ctx context.Context, selfID uint64, conversationID string) (int64, error)
	CheckParticipant(ctx context.Context, selfID uint64, conversationID string) error
	ResetConversations(ctx context.Context, selfID uint64) (*dto.ResetResultDTO, error)
}

type IMServiceImpl struct {
	convRepo mongo.ConversationRepo
	msgRepo  mongo.MessageRepo
	userRepo repository.UserRepo
	events   EventPublisher
	previews PreviewFetcher
	activity ActivityPublisher
}

func NewIMService(
	convRepo mongo.ConversationRepo,
	msgRepo mongo.MessageRepo,
	userRepo repository.UserRepo,
	events EventPublisher,
	previews PreviewFetcher,
	activity ActivityPublisher,
) IMService {
	return &IMServiceImpl{
		convRepo: convRepo,
		msgRepo:  msgRepo,
		userRepo: userRepo,
		events:   events,
		previews: previews,
		activity: activity,
	}
}

// SendMessage 校验、定位（或创建）会话、落库、广播
// 消息写入后任何一步失败都只记日志，消息本身不会丢
func (s *IMServiceImpl) SendMessage(ctx context.Context, input *SendMessageInput) (*dto.MessageDTO, error) {
	input.Text = strings.TrimSpace(input.Text)
	if input.SenderID == input.ReceiverID {
		return nil, ErrSelfConversation
	}
	if input.Text == "" && input.Attachment == nil {
		return nil, ErrEmptyMessage
	}

	receiver, err := s.userRepo.GetUserById(ctx, input.ReceiverID)
	if err != nil {
		return nil, err
	}
	if receiver == nil {
		return nil, ErrUserNotFound
	}

	conv, err := s.resolveConversation(ctx, input.SenderID, input.ReceiverID)
	if err != nil {
		return nil, err
	}

	msg := &mongo.Message{
		ConversationID: conv.ID,
		SenderID:       input.SenderID,
		ReceiverID:     input.ReceiverID,
		Text:           input.Text,
		Attachment:     input.Attachment,
		Preview:        s.fetchPreview(ctx, input.Text),
	}
	if err := s.msgRepo.Insert(ctx, msg); err != nil {
		return nil, err
	}
	if err := s.convRepo.AppendMessage(ctx, conv.ID, msg.ID, msg.CreatedAt); err != nil {
		return nil, err
	}

	sender, err := s.userRepo.GetUserById(ctx, input.SenderID)
	if err != nil {
		return nil, err
	}
	msgDTO := toMessageDTO(msg, sender, receiver)

	convID := conv.ID.Hex()
	s.events.PublishConversation(ctx, convID, dto.NewMessage(convID, msgDTO))
	s.events.PublishUser(ctx, input.ReceiverID, dto.NewMessageNotification(convID, msgDTO))

	if s.activity != nil {
		s.activity.Publish(kafka.ActivityEvent{
			MessageID:      msg.ID.Hex(),
			ConversationID: convID,
			SenderID:       msg.SenderID,
			ReceiverID:     msg.ReceiverID,
			HasAttachment:  msg.Attachment != nil,
			CreatedAt:      msg.CreatedAt.Unix(),
		})
	}

	return msgDTO, nil
}

// resolveConversation 按规范化标识定位会话，不存在则创建
// 两端并发首次互发时，唯一索引保证只有一方插入成功，失败方重查复用对方的会话
func (s *IMServiceImpl) resolveConversation(ctx context.Context, a, b uint64) (*mongo.Conversation, error) {
	pairKey := mongo.PairKey(a, b)

	conv, err := s.convRepo.GetByPairKey(ctx, pairKey)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, mongo.ErrNotFound) {
		return nil, err
	}

	lo, hi := mongo.CanonicalPair(a, b)
	conv = &mongo.Conversation{
		PairKey:      pairKey,
		Participants: []uint64{lo, hi},
	}
	err = s.convRepo.Insert(ctx, conv)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, mongo.ErrDuplicatePair) {
		return nil, err
	}

	// 输掉创建竞争，复用赢家刚插入的会话
	return s.convRepo.GetByPairKey(ctx, pairKey)
}

func (s *IMServiceImpl) fetchPreview(ctx context.Context, text string) *mongo.LinkPreview {
	if s.previews == nil {
		return nil
	}
	rawURL := util.FirstURL(text)
	if rawURL == "" {
		return nil
	}
	p := s.previews.Fetch(ctx, rawURL)
	if p == nil {
		return nil
	}
	return &mongo.LinkPreview{
		URL:         p.URL,
		Title:       p.Title,
		Description: p.Description,
		ImageURL:    p.ImageURL,
	}
}

// GetMessages 按时间升序返回与某个用户的全部历史消息
// 会话尚不存在时返回空列表而不是错误，首次打开聊天窗口就是这种情况
func (s *IMServiceImpl) GetMessages(ctx context.Context, selfID, peerID uint64) ([]*dto.MessageDTO, error) {
	if selfID == peerID {
		return nil, ErrSelfConversation
	}

	conv, err := s.convRepo.GetByPairKey(ctx, mongo.PairKey(selfID, peerID))
	if err != nil {
		if errors.Is(err, mongo.ErrNotFound) {
			return []*dto.MessageDTO{}, nil
		}
		return nil, err
	}

	messages, err := s.msgRepo.ListByConversation(ctx, conv.ID, config.Cfg.IM.HistoryPageSize)
	if err != nil {
		return nil, err
	}

	users, err := s.loadUsers(ctx, []uint64{selfID, peerID})
	if err != nil {
		return nil, err
	}

	list := make([]*dto.MessageDTO, 0, len(messages))
	for _, msg := range messages {
		list = append(list, toMessageDTO(msg, users[msg.SenderID], users[msg.ReceiverID]))
	}
	return list, nil
}

// GetConversationList 会话列表：对方信息 + 最近一条消息 + 未读数，按活跃时间降序
func (s *IMServiceImpl) GetConversationList(ctx context.Context, selfID uint64) ([]*dto.ConversationPreviewDTO, error) {
	convs, err := s.convRepo.ListByParticipant(ctx, selfID)
	if err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return []*dto.ConversationPreviewDTO{}, nil
	}

	lastIDs := make([]primitive.ObjectID, 0, len(convs))
	peerIDs := make([]uint64, 0, len(convs))
	for _, conv := range convs {
		if conv.LastMessage != nil {
			lastIDs = append(lastIDs, *conv.LastMessage)
		}
		if peer, ok := conv.Peer(selfID); ok {
			peerIDs = append(peerIDs, peer)
		}
	}

	lastMessages, err := s.msgRepo.GetByIDs(ctx, lastIDs)
	if err != nil {
		return nil, err
	}
	users, err := s.loadUsers(ctx, append(peerIDs, selfID))
	if err != nil {
		return nil, err
	}

	list := make([]*dto.ConversationPreviewDTO, 0, len(convs))
	for _, conv := range convs {
		peerID, ok := conv.Peer(selfID)
		if !ok {
			continue
		}
		peer := users[peerID]
		if peer == nil {
			// 对方账号已不存在，跳过而不是让整个列表失败
			log.WarnContext(ctx, "conversation peer missing", "conversation_id", conv.ID.Hex(), "peer_id", peerID)
			continue
		}

		preview := &dto.ConversationPreviewDTO{
			ConversationID: conv.ID.Hex(),
			Peer:           toUserDTO(peer),
			UpdatedAt:      conv.UpdatedAt,
		}
		if conv.LastMessage != nil {
			if last, ok := lastMessages[*conv.LastMessage]; ok {
				preview.LastMessage = toMessageDTO(last, users[last.SenderID], users[last.ReceiverID])
			}
		}
		unread, err := s.msgRepo.CountUnread(ctx, conv.ID, selfID)
		if err != nil {
			return nil, err
		}
		preview.UnreadCount = unread

		list = append(list, preview)
	}
	return list, nil
}

// MarkAsRead 把会话里发给自己的未读消息批量置为已读，返回翻转数量
func (s *IMServiceImpl) MarkAsRead(ctx context.Context, selfID uint64, conversationID string) (int64, error) {
	conv, err := s.getOwnConversation(ctx, selfID, conversationID)
	if err != nil {
		return 0, err
	}

	modified, err := s.msgRepo.MarkRead(ctx, conv.ID, selfID)
	if err != nil {
		return 0, err
	}
	if modified > 0 {
		s.events.PublishConversation(ctx, conversationID, dto.NewReadReceipt(conversationID, "", selfID))
	}
	return modified, nil
}

// CheckParticipant 校验用户是否是会话成员，Websocket 订阅会话频道前调用
func (s *IMServiceImpl) CheckParticipant(ctx context.Context, selfID uint64, conversationID string) error {
	_, err := s.getOwnConversation(ctx, selfID, conversationID)
	return err
}

func (s *IMServiceImpl) getOwnConversation(ctx context.Context, selfID uint64, conversationID string) (*mongo.Conversation, error) {
	convID, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return nil, ErrParamInvalid
	}

	conv, err := s.convRepo.GetByID(ctx, convID)
	if err != nil {
		if errors.Is(err, mongo.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	if _, ok := conv.Peer(selfID); !ok {
		return nil, ErrNotParticipant
	}
	return conv, nil
}

// ResetConversations 删除用户的全部会话和消息，返回清掉的数量
func (s *IMServiceImpl) ResetConversations(ctx context.Context, selfID uint64) (*dto.ResetResultDTO, error) {
	convs, err := s.convRepo.ListByParticipant(ctx, selfID)
	if err != nil {
		return nil, err
	}

	ids := make([]primitive.ObjectID, 0, len(convs))
	for _, conv := range convs {
		ids = append(ids, conv.ID)
	}

	deletedConvs, err := s.convRepo.DeleteByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	deletedMsgs, err := s.msgRepo.DeleteByUser(ctx, selfID)
	if err != nil {
		return nil, err
	}

	log.InfoContext(ctx, "conversations reset", "user_id", selfID,
		"conversations", deletedConvs, "messages", deletedMsgs)

	return &dto.ResetResultDTO{
		DeletedConversations: deletedConvs,
		DeletedMessages:      deletedMsgs,
	}, nil
}

func (s *IMServiceImpl) loadUsers(ctx context.Context, ids []uint64) (map[uint64]*model.User, error) {
	seen := make(map[uint64]struct{}, len(ids))
	unique := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	users, err := s.userRepo.GetUserByIds(ctx, unique)
	if err != nil {
		return nil, err
	}
	result := make(map[uint64]*model.User, len(users))
	for _, user := range users {
		result[user.ID] = user
	}
	return result, nil
}

func toMessageDTO(msg *mongo.Message, sender, receiver *model.User) *dto.MessageDTO {
	msgDTO := &dto.MessageDTO{
		ID:             msg.ID.Hex(),
		ConversationID: msg.ConversationID.Hex(),
		Text:           msg.Text,
		Read:           msg.Read,
		CreatedAt:      msg.CreatedAt,
	}
	if sender != nil {
		msgDTO.Sender = toUserDTO(sender)
	}
	if receiver != nil {
		msgDTO.Receiver = toUserDTO(receiver)
	}
	if msg.Attachment != nil {
		msgDTO.Attachment = &dto.AttachmentDTO{
			URL:      msg.Attachment.URL,
			MimeType: msg.Attachment.MimeType,
			Width:    msg.Attachment.Width,
			Height:   msg.Attachment.Height,
		}
	}
	if msg.Preview != nil {
		msgDTO.Preview = &dto.LinkPreviewDTO{
			URL:         msg.Preview.URL,
			Title:       msg.Preview.Title,
			Description: msg.Preview.Description,
			ImageURL:    msg.Preview.ImageURL,
		}
	}
	return msgDTO
}
