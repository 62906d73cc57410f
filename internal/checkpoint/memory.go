package checkpoint

import (
	"context"
	"sync"

	apperrors "GuardianEye/internal/errors"
	"GuardianEye/internal/state"
)

// MemoryStore 是进程内快照存储，进程退出即丢失，用于开发与测试。
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]*state.Conversation
}

// NewMemoryStore 创建内存快照存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]*state.Conversation)}
}

func snapshotKey(sessionID, userID string) string {
	return userID + "/" + sessionID
}

// Load 返回快照的深拷贝，调用方的修改不会影响存储内容。
func (s *MemoryStore) Load(ctx context.Context, sessionID, userID string) (*state.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.snapshots[snapshotKey(sessionID, userID)]
	if !ok {
		return nil, ErrNotFound
	}
	return conv.Clone(), nil
}

// Save 覆盖写入快照。
func (s *MemoryStore) Save(ctx context.Context, conv *state.Conversation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if conv == nil || conv.SessionID == "" {
		return apperrors.New(apperrors.CodeInvalidArgument, "快照缺少会话 ID")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshotKey(conv.SessionID, conv.UserID)] = conv.Clone()
	return nil
}

// Delete 移除快照，不存在时视为成功。
func (s *MemoryStore) Delete(ctx context.Context, sessionID, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, snapshotKey(sessionID, userID))
	return nil
}
