// Package checkpoint 持久化会话状态快照，支撑多轮会话的断点续传。
// 快照以 (会话 ID, 用户 ID) 为键，每次顶层请求结束后原子覆盖。
package checkpoint

import (
	"context"

	apperrors "GuardianEye/internal/errors"
	"GuardianEye/internal/state"
)

// Store 是会话快照存储的统一抽象。
// Load 在快照不存在时返回 NOT_FOUND 错误码。
type Store interface {
	Load(ctx context.Context, sessionID, userID string) (*state.Conversation, error)
	Save(ctx context.Context, conv *state.Conversation) error
	Delete(ctx context.Context, sessionID, userID string) error
}

// ErrNotFound 供调用方判断快照缺失。
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "会话快照不存在")

// IsNotFound 判断错误是否为快照缺失。
func IsNotFound(err error) bool {
	return apperrors.CodeOf(err) == apperrors.CodeNotFound
}
