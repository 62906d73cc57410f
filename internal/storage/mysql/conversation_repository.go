package mysql

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ConversationRecord 表示一次编排请求的落库结构。
type ConversationRecord struct {
	SessionID     string
	UserID        string
	Query         string
	Result        string
	Team          string
	Agent         string
	ExecutionPath []string
	ExecutionMs   int64
	Error         string
	CreatedAt     int64
}

// ConversationRepository 抽象会话审计数据的持久化接口。
type ConversationRepository interface {
	Save(ctx context.Context, record ConversationRecord) error
	ListLatest(ctx context.Context, limit int) ([]ConversationRecord, error)
	ListBySession(ctx context.Context, sessionID string, limit int) ([]ConversationRecord, error)
}

// MemoryConversationRepository 使用本地 JSON 文件模拟 MySQL 的效果，方便迭代开发。
type MemoryConversationRepository struct {
	mu       sync.RWMutex
	dataFile string
	records  []ConversationRecord
}

// NewMemoryConversationRepository 创建一个内存会话仓库。
func NewMemoryConversationRepository(dataDir string) (*MemoryConversationRepository, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	path := filepath.Join(dataDir, "conversations.log")
	repo := &MemoryConversationRepository{dataFile: path}
	if err := repo.loadFromDisk(); err != nil {
		return nil, err
	}
	return repo, nil
}

// Save 以追加写的方式记录会话结果。
func (m *MemoryConversationRepository) Save(_ context.Context, record ConversationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, err := os.OpenFile(m.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("打开会话日志失败: %w", err)
	}
	defer file.Close()

	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("序列化会话记录失败: %w", err)
	}

	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("写入会话日志失败: %w", err)
	}

	m.records = append([]ConversationRecord{record}, m.records...)
	if len(m.records) > 512 {
		m.records = m.records[:512]
	}
	return nil
}

// ListLatest 返回最近的会话记录，按时间倒序排列。
func (m *MemoryConversationRepository) ListLatest(_ context.Context, limit int) ([]ConversationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.records) {
		limit = len(m.records)
	}

	results := make([]ConversationRecord, limit)
	copy(results, m.records[:limit])
	return results, nil
}

// ListBySession 返回指定会话的最近记录。
func (m *MemoryConversationRepository) ListBySession(_ context.Context, sessionID string, limit int) ([]ConversationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	var results []ConversationRecord
	for _, record := range m.records {
		if record.SessionID == sessionID {
			results = append(results, record)
			if len(results) >= limit {
				break
			}
		}
	}
	return results, nil
}

func (m *MemoryConversationRepository) loadFromDisk() error {
	file, err := os.OpenFile(m.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("读取会话日志失败: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var restored []ConversationRecord
	for scanner.Scan() {
		var record ConversationRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue
		}
		restored = append([]ConversationRecord{record}, restored...)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("解析会话日志失败: %w", err)
	}

	if len(restored) > 512 {
		restored = restored[:512]
	}
	if len(restored) > 0 {
		m.records = restored
	}
	return nil
}

// SQLConversationRepository 使用真实的 MySQL 数据库存储会话审计信息。
type SQLConversationRepository struct {
	db *sql.DB
}

// NewSQLConversationRepository 创建连接池并应用数据库迁移。
func NewSQLConversationRepository(ctx context.Context, cfg Config) (*SQLConversationRepository, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLConversationRepository{db: db}, nil
}

// Save 将会话记录写入 MySQL。
func (s *SQLConversationRepository) Save(ctx context.Context, record ConversationRecord) error {
	const stmt = `INSERT INTO conversations
        (session_id, user_id, query, result, team, agent, execution_path, execution_ms, error, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, stmt,
		record.SessionID,
		record.UserID,
		record.Query,
		record.Result,
		record.Team,
		record.Agent,
		strings.Join(record.ExecutionPath, ","),
		record.ExecutionMs,
		record.Error,
		record.CreatedAt,
	); err != nil {
		return fmt.Errorf("写入 MySQL 失败: %w", err)
	}
	return nil
}

// ListLatest 查询最近的若干条会话记录。
func (s *SQLConversationRepository) ListLatest(ctx context.Context, limit int) ([]ConversationRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.query(ctx, `SELECT session_id, user_id, query, result, team, agent, execution_path, execution_ms, error, created_at
        FROM conversations ORDER BY id DESC LIMIT ?`, limit)
}

// ListBySession 查询指定会话的最近记录。
func (s *SQLConversationRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]ConversationRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.query(ctx, `SELECT session_id, user_id, query, result, team, agent, execution_path, execution_ms, error, created_at
        FROM conversations WHERE session_id = ? ORDER BY id DESC LIMIT ?`, sessionID, limit)
}

func (s *SQLConversationRepository) query(ctx context.Context, stmt string, args ...any) ([]ConversationRecord, error) {
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("查询会话记录失败: %w", err)
	}
	defer rows.Close()

	var records []ConversationRecord
	for rows.Next() {
		var record ConversationRecord
		var path string
		if err := rows.Scan(&record.SessionID, &record.UserID, &record.Query, &record.Result,
			&record.Team, &record.Agent, &path, &record.ExecutionMs, &record.Error, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("解析会话记录失败: %w", err)
		}
		if path != "" {
			record.ExecutionPath = strings.Split(path, ",")
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历会话记录失败: %w", err)
	}
	return records, nil
}

// Close 关闭底层数据库连接。
func (s *SQLConversationRepository) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
