package service

import (
	"errors"
)

const (
	BadRequest          = 400
	Unauthorized        = 401
	NotFound            = 404
	InternalServerError = 500
)

var (
	ErrParamInvalid         = errors.New("参数错误")
	ErrUserNotFound         = errors.New("用户不存在")
	ErrUserExist            = errors.New("用户已存在")
	ErrUserUsernameExist    = errors.New("用户名已存在")
	ErrPasswordIncorrect    = errors.New("密码错误")
	ErrSelfConversation     = errors.New("不能和自己发起会话")
	ErrEmptyMessage         = errors.New("消息内容和附件不能都为空")
	ErrConversationNotFound = errors.New("会话不存在")
	ErrNotParticipant       = errors.New("不是该会话的成员")
	ErrFileNotSupported     = errors.New("不支持的文件类型")
	ErrFileTooLarge         = errors.New("文件超过大小限制")
	UnauthorizedError       = errors.New("权限不足")
	UnExpectedError         = errors.New("系统异常，请稍后重试")
)

var ErrorMap = map[error]int{
	ErrParamInvalid:         BadRequest,
	ErrUserNotFound:         NotFound,
	ErrUserExist:            BadRequest,
	ErrUserUsernameExist:    BadRequest,
	ErrPasswordIncorrect:    Unauthorized,
	ErrSelfConversation:     BadRequest,
	ErrEmptyMessage:         BadRequest,
	ErrConversationNotFound: NotFound,
	ErrNotParticipant:       Unauthorized,
	ErrFileNotSupported:     BadRequest,
	ErrFileTooLarge:         BadRequest,
	UnauthorizedError:       Unauthorized,
	UnExpectedError:         InternalServerError,
}
