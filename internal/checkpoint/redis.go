package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "GuardianEye/internal/errors"
	"GuardianEye/internal/state"
)

const defaultCheckpointPrefix = "guardianeye:checkpoint:"

// RedisConfig 描述 Redis 快照存储的连接参数。
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	// TTL 控制快照过期时间，零值表示永不过期。
	TTL time.Duration
	// KeyPrefix 允许多个部署共用同一个 Redis 实例。
	KeyPrefix string
}

// RedisStore 把会话快照保存在 Redis 中，进程重启后会话可续传。
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore 创建 Redis 快照存储实例。
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Address == "" {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInitializationFailure, err, "连接 Redis 失败")
	}
	prefix := defaultCheckpointPrefix
	if cfg.KeyPrefix != "" {
		prefix = cfg.KeyPrefix + ":"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: cfg.TTL}, nil
}

func (s *RedisStore) key(sessionID, userID string) string {
	return fmt.Sprintf("%s%s:%s", s.prefix, userID, sessionID)
}

// Load 读取并反序列化快照。
func (s *RedisStore) Load(ctx context.Context, sessionID, userID string) (*state.Conversation, error) {
	raw, err := s.client.Get(ctx, s.key(sessionID, userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeCheckpointFailure, err, "读取会话快照失败")
	}
	var conv state.Conversation
	if err := json.Unmarshal(raw, &conv); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeCheckpointFailure, err, "解析会话快照失败")
	}
	return &conv, nil
}

// Save 序列化并覆盖写入快照。单键 SET 本身即原子操作。
func (s *RedisStore) Save(ctx context.Context, conv *state.Conversation) error {
	if conv == nil || conv.SessionID == "" {
		return apperrors.New(apperrors.CodeInvalidArgument, "快照缺少会话 ID")
	}
	raw, err := json.Marshal(conv)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeCheckpointFailure, err, "序列化会话快照失败")
	}
	if err := s.client.Set(ctx, s.key(conv.SessionID, conv.UserID), raw, s.ttl).Err(); err != nil {
		return apperrors.Wrap(apperrors.CodeCheckpointFailure, err, "写入会话快照失败")
	}
	return nil
}

// Delete 移除快照，不存在时视为成功。
func (s *RedisStore) Delete(ctx context.Context, sessionID, userID string) error {
	if err := s.client.Del(ctx, s.key(sessionID, userID)).Err(); err != nil {
		return apperrors.Wrap(apperrors.CodeCheckpointFailure, err, "删除会话快照失败")
	}
	return nil
}

// Close 释放 Redis 连接。
func (s *RedisStore) Close() error {
	return s.client.Close()
}
