package mongo

import "errors"

var (
	// ErrNotFound 查询无结果
	ErrNotFound = errors.New("document not found")
	// ErrDuplicatePair 会话唯一索引冲突：同一用户对的会话已存在
	ErrDuplicatePair = errors.New("conversation already exists for pair")
)
