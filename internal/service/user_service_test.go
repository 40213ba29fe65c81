package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"Mosaic/internal/api/dto"
	"Mosaic/internal/model"
	"Mosaic/internal/pkg/security"
	"Mosaic/internal/service"
)

func TestRegister(t *testing.T) {
	ctx := context.Background()

	regDTO := &dto.RegisterDTO{
		Name:     "Alice",
		Username: "alice",
		Email:    "alice@example.com",
		Password: "secret123",
	}

	t.Run("注册成功并返回 Token", func(t *testing.T) {
		userRepo := new(MockUserRepo)
		svc := service.NewUserService(userRepo)

		userRepo.On("GetUserByEmail", mock.Anything, "alice@example.com").Return(nil, nil)
		userRepo.On("GetUserByUsername", mock.Anything, "alice").Return(nil, nil)
		userRepo.On("CreateUser", mock.Anything, mock.MatchedBy(func(u *model.User) bool {
			// 密码必须落库为散列
			return u.Username == "alice" && u.Password != "secret123" &&
				security.CheckPasswordHash("secret123", u.Password) == nil
		})).Run(func(args mock.Arguments) {
			args.Get(1).(*model.User).ID = 42
		}).Return(nil)

		result, err := svc.Register(ctx, regDTO)
		assert.NoError(t, err)
		assert.NotEmpty(t, result.Token)
		assert.Equal(t, uint64(42), result.User.ID)
		userRepo.AssertExpectations(t)
	})

	t.Run("邮箱已被占用", func(t *testing.T) {
		userRepo := new(MockUserRepo)
		svc := service.NewUserService(userRepo)

		userRepo.On("GetUserByEmail", mock.Anything, "alice@example.com").Return(testUser(1), nil)

		_, err := svc.Register(ctx, regDTO)
		assert.ErrorIs(t, err, service.ErrUserExist)
	})

	t.Run("用户名已被占用", func(t *testing.T) {
		userRepo := new(MockUserRepo)
		svc := service.NewUserService(userRepo)

		userRepo.On("GetUserByEmail", mock.Anything, "alice@example.com").Return(nil, nil)
		userRepo.On("GetUserByUsername", mock.Anything, "alice").Return(testUser(1), nil)

		_, err := svc.Register(ctx, regDTO)
		assert.ErrorIs(t, err, service.ErrUserUsernameExist)
	})
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	hash, err := security.HashPassword("secret123")
	assert.NoError(t, err)
	stored := &model.User{ID: 7, Username: "alice", Password: hash}

	t.Run("登录成功", func(t *testing.T) {
		userRepo := new(MockUserRepo)
		svc := service.NewUserService(userRepo)

		userRepo.On("GetUserByUsername", mock.Anything, "alice").Return(stored, nil)

		result, err := svc.Login(ctx, &dto.CredentialDTO{Username: "alice", Password: "secret123"})
		assert.NoError(t, err)
		assert.NotEmpty(t, result.Token)

		claims, err := security.ValidateToken(result.Token)
		assert.NoError(t, err)
		assert.Equal(t, uint64(7), claims.UserID)
	})

	t.Run("密码错误", func(t *testing.T) {
		userRepo := new(MockUserRepo)
		svc := service.NewUserService(userRepo)

		userRepo.On("GetUserByUsername", mock.Anything, "alice").Return(stored, nil)

		_, err := svc.Login(ctx, &dto.CredentialDTO{Username: "alice", Password: "wrong"})
		assert.ErrorIs(t, err, service.ErrPasswordIncorrect)
	})

	t.Run("用户不存在", func(t *testing.T) {
		userRepo := new(MockUserRepo)
		svc := service.NewUserService(userRepo)

		userRepo.On("GetUserByUsername", mock.Anything, "ghost").Return(nil, nil)

		_, err := svc.Login(ctx, &dto.CredentialDTO{Username: "ghost", Password: "secret123"})
		assert.ErrorIs(t, err, service.ErrUserNotFound)
	})
}
