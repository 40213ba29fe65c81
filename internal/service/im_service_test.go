package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"Mosaic/internal/api/config"
	"Mosaic/internal/api/dto"
	"Mosaic/internal/model"
	"Mosaic/internal/pkg/mongo"
	"Mosaic/internal/service"
)

// Mock mocks
type MockConversationRepo struct {
	mock.Mock
}

func (m *MockConversationRepo) Insert(ctx context.Context, conv *mongo.Conversation) error {
	args := m.Called(ctx, conv)
	return args.Error(0)
}

func (m *MockConversationRepo) GetByPairKey(ctx context.Context, pairKey string) (*mongo.Conversation, error) {
	args := m.Called(ctx, pairKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mongo.Conversation), args.Error(1)
}

func (m *MockConversationRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*mongo.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mongo.Conversation), args.Error(1)
}

func (m *MockConversationRepo) ListByParticipant(ctx context.Context, userID uint64) ([]*mongo.Conversation, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*mongo.Conversation), args.Error(1)
}

func (m *MockConversationRepo) AppendMessage(ctx context.Context, convID, msgID primitive.ObjectID, at time.Time) error {
	args := m.Called(ctx, convID, msgID, at)
	return args.Error(0)
}

func (m *MockConversationRepo) DeleteByIDs(ctx context.Context, ids []primitive.ObjectID) (int64, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockConversationRepo) ListAll(ctx context.Context) ([]*mongo.Conversation, error) {
	return nil, nil
}

type MockMessageRepo struct {
	mock.Mock
}

func (m *MockMessageRepo) Insert(ctx context.Context, msg *mongo.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockMessageRepo) ListByConversation(ctx context.Context, convID primitive.ObjectID, limit int) ([]*mongo.Message, error) {
	args := m.Called(ctx, convID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*mongo.Message), args.Error(1)
}

func (m *MockMessageRepo) CountUnread(ctx context.Context, convID primitive.ObjectID, readerID uint64) (int64, error) {
	args := m.Called(ctx, convID, readerID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockMessageRepo) MarkRead(ctx context.Context, convID primitive.ObjectID, readerID uint64) (int64, error) {
	args := m.Called(ctx, convID, readerID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockMessageRepo) GetByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*mongo.Message, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[primitive.ObjectID]*mongo.Message), args.Error(1)
}

func (m *MockMessageRepo) DeleteByConversations(ctx context.Context, convIDs []primitive.ObjectID) (int64, error) {
	args := m.Called(ctx, convIDs)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockMessageRepo) DeleteByUser(ctx context.Context, userID uint64) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

type MockUserRepo struct {
	mock.Mock
}

func (m *MockUserRepo) GetUserById(ctx context.Context, id uint64) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepo) GetUserByIds(ctx context.Context, ids []uint64) ([]*model.User, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.User), args.Error(1)
}

func (m *MockUserRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepo) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepo) ListUsers(ctx context.Context, excludeID uint64) ([]*model.User, error) {
	args := m.Called(ctx, excludeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.User), args.Error(1)
}

func (m *MockUserRepo) ExistUsers(ctx context.Context, ids []uint64) (bool, error) {
	return true, nil
}

func (m *MockUserRepo) CreateUser(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepo) UpdatePresence(ctx context.Context, id uint64, online bool, lastSeen time.Time) error {
	return nil
}

func (m *MockUserRepo) BatchSetOffline(ctx context.Context, ids []uint64) error {
	return nil
}

// RecordingPublisher 记录发布的事件，代替真正的总线
type RecordingPublisher struct {
	ConversationEvents map[string][]any
	UserEvents         map[uint64][]any
}

func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{
		ConversationEvents: make(map[string][]any),
		UserEvents:         make(map[uint64][]any),
	}
}

func (p *RecordingPublisher) PublishConversation(ctx context.Context, conversationID string, event any) {
	p.ConversationEvents[conversationID] = append(p.ConversationEvents[conversationID], event)
}

func (p *RecordingPublisher) PublishUser(ctx context.Context, userID uint64, event any) {
	p.UserEvents[userID] = append(p.UserEvents[userID], event)
}

func newTestService() (service.IMService, *MockConversationRepo, *MockMessageRepo, *MockUserRepo, *RecordingPublisher) {
	config.Cfg = &config.Config{}
	convRepo := new(MockConversationRepo)
	msgRepo := new(MockMessageRepo)
	userRepo := new(MockUserRepo)
	events := NewRecordingPublisher()
	svc := service.NewIMService(convRepo, msgRepo, userRepo, events, nil, nil)
	return svc, convRepo, msgRepo, userRepo, events
}

func testUser(id uint64) *model.User {
	return &model.User{ID: id, Username: "user", Name: "User"}
}

func TestSendMessageValidation(t *testing.T) {
	svc, _, _, userRepo, _ := newTestService()
	ctx := context.Background()

	t.Run("不能给自己发消息", func(t *testing.T) {
		_, err := svc.SendMessage(ctx, &service.SendMessageInput{SenderID: 1, ReceiverID: 1, Text: "hi"})
		assert.ErrorIs(t, err, service.ErrSelfConversation)
	})

	t.Run("空消息被拒绝", func(t *testing.T) {
		_, err := svc.SendMessage(ctx, &service.SendMessageInput{SenderID: 1, ReceiverID: 2, Text: "   "})
		assert.ErrorIs(t, err, service.ErrEmptyMessage)
	})

	t.Run("接收者不存在", func(t *testing.T) {
		userRepo.On("GetUserById", mock.Anything, uint64(99)).Return(nil, nil)
		_, err := svc.SendMessage(ctx, &service.SendMessageInput{SenderID: 1, ReceiverID: 99, Text: "hi"})
		assert.ErrorIs(t, err, service.ErrUserNotFound)
	})
}

func TestSendMessageCreatesConversation(t *testing.T) {
	svc, convRepo, msgRepo, userRepo, events := newTestService()
	ctx := context.Background()
	convID := primitive.NewObjectID()

	userRepo.On("GetUserById", mock.Anything, uint64(2)).Return(testUser(2), nil)
	userRepo.On("GetUserById", mock.Anything, uint64(1)).Return(testUser(1), nil)

	convRepo.On("GetByPairKey", mock.Anything, "1_2").Return(nil, mongo.ErrNotFound).Once()
	convRepo.On("Insert", mock.Anything, mock.MatchedBy(func(conv *mongo.Conversation) bool {
		return conv.PairKey == "1_2" && len(conv.Participants) == 2 &&
			conv.Participants[0] == 1 && conv.Participants[1] == 2
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*mongo.Conversation).ID = convID
	}).Return(nil).Once()

	msgID := primitive.NewObjectID()
	msgRepo.On("Insert", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		msg := args.Get(1).(*mongo.Message)
		msg.ID = msgID
		msg.CreatedAt = time.Now()
	}).Return(nil).Once()
	convRepo.On("AppendMessage", mock.Anything, convID, msgID, mock.Anything).Return(nil).Once()

	msg, err := svc.SendMessage(ctx, &service.SendMessageInput{SenderID: 2, ReceiverID: 1, Text: "hello"})
	assert.NoError(t, err)
	assert.Equal(t, msgID.Hex(), msg.ID)
	assert.Equal(t, convID.Hex(), msg.ConversationID)

	// 会话频道收到完整消息，接收者个人频道收到提醒
	assert.Len(t, events.ConversationEvents[convID.Hex()], 1)
	newMsg, ok := events.ConversationEvents[convID.Hex()][0].(*dto.NewMessageEvent)
	assert.True(t, ok)
	assert.Equal(t, "hello", newMsg.Message.Text)
	assert.Len(t, events.UserEvents[1], 1)

	convRepo.AssertExpectations(t)
	msgRepo.AssertExpectations(t)
}

func TestSendMessageLosesCreationRace(t *testing.T) {
	svc, convRepo, msgRepo, userRepo, _ := newTestService()
	ctx := context.Background()

	winner := &mongo.Conversation{
		ID:           primitive.NewObjectID(),
		PairKey:      "1_2",
		Participants: []uint64{1, 2},
	}

	userRepo.On("GetUserById", mock.Anything, mock.Anything).Return(testUser(2), nil)

	// 对方先插入成功：本端插入撞唯一索引后必须复用已有会话
	convRepo.On("GetByPairKey", mock.Anything, "1_2").Return(nil, mongo.ErrNotFound).Once()
	convRepo.On("Insert", mock.Anything, mock.Anything).Return(mongo.ErrDuplicatePair).Once()
	convRepo.On("GetByPairKey", mock.Anything, "1_2").Return(winner, nil).Once()

	msgID := primitive.NewObjectID()
	msgRepo.On("Insert", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		args.Get(1).(*mongo.Message).ID = msgID
	}).Return(nil).Once()
	convRepo.On("AppendMessage", mock.Anything, winner.ID, msgID, mock.Anything).Return(nil).Once()

	msg, err := svc.SendMessage(ctx, &service.SendMessageInput{SenderID: 1, ReceiverID: 2, Text: "race"})
	assert.NoError(t, err)
	assert.Equal(t, winner.ID.Hex(), msg.ConversationID)
	convRepo.AssertExpectations(t)
}

func TestGetMessagesWithoutConversation(t *testing.T) {
	svc, convRepo, _, _, _ := newTestService()

	convRepo.On("GetByPairKey", mock.Anything, "1_2").Return(nil, mongo.ErrNotFound)

	messages, err := svc.GetMessages(context.Background(), 1, 2)
	assert.NoError(t, err)
	assert.NotNil(t, messages)
	assert.Empty(t, messages)
}

func TestMarkAsRead(t *testing.T) {
	svc, convRepo, msgRepo, _, events := newTestService()
	ctx := context.Background()

	conv := &mongo.Conversation{
		ID:           primitive.NewObjectID(),
		Participants: []uint64{1, 2},
	}

	t.Run("非会话成员被拒绝", func(t *testing.T) {
		convRepo.On("GetByID", mock.Anything, conv.ID).Return(conv, nil)
		_, err := svc.MarkAsRead(ctx, 99, conv.ID.Hex())
		assert.ErrorIs(t, err, service.ErrNotParticipant)
	})

	t.Run("非法会话 ID", func(t *testing.T) {
		_, err := svc.MarkAsRead(ctx, 1, "not-an-object-id")
		assert.ErrorIs(t, err, service.ErrParamInvalid)
	})

	t.Run("批量翻转并广播回执", func(t *testing.T) {
		msgRepo.On("MarkRead", mock.Anything, conv.ID, uint64(1)).Return(int64(3), nil).Once()

		modified, err := svc.MarkAsRead(ctx, 1, conv.ID.Hex())
		assert.NoError(t, err)
		assert.Equal(t, int64(3), modified)

		receipts := events.ConversationEvents[conv.ID.Hex()]
		assert.Len(t, receipts, 1)
		receipt, ok := receipts[0].(*dto.ReadReceiptEvent)
		assert.True(t, ok)
		assert.Equal(t, uint64(1), receipt.ReaderID)
	})
}

func TestResetConversations(t *testing.T) {
	svc, convRepo, msgRepo, _, _ := newTestService()

	convs := []*mongo.Conversation{
		{ID: primitive.NewObjectID(), Participants: []uint64{1, 2}},
		{ID: primitive.NewObjectID(), Participants: []uint64{1, 3}},
	}
	convRepo.On("ListByParticipant", mock.Anything, uint64(1)).Return(convs, nil)
	convRepo.On("DeleteByIDs", mock.Anything, mock.Anything).Return(int64(2), nil)
	msgRepo.On("DeleteByUser", mock.Anything, uint64(1)).Return(int64(7), nil)

	result, err := svc.ResetConversations(context.Background(), 1)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), result.DeletedConversations)
	assert.Equal(t, int64(7), result.DeletedMessages)
}
