package retrieval

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore 是进程内的文档存储，适用于开发环境与测试。
// 写入（播种）应在启动阶段完成，之后以并发读为主。
type MemoryStore struct {
	mu   sync.RWMutex
	docs []Document
}

// NewMemoryStore 创建内存文档存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Search 返回与查询最相关的 k 篇文档。
func (s *MemoryStore) Search(ctx context.Context, query string, k int) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	snapshot := append([]Document(nil), s.docs...)
	s.mu.RUnlock()
	return rank(query, snapshot, k), nil
}

// AddDocuments 写入文档并返回生成的 ID。
func (s *MemoryStore) AddDocuments(ctx context.Context, docs []Document) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(docs))
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range docs {
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}
		s.docs = append(s.docs, doc)
		ids = append(ids, doc.ID)
	}
	return ids, nil
}

// Len 返回当前文档数量。
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
