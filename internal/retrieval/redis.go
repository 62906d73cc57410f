package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultDocPrefix = "guardianeye:knowledge:doc:"
	defaultIndexKey  = "guardianeye:knowledge:index"
)

// RedisConfig 描述 Redis 文档存储的连接参数。
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	// KeyPrefix 允许多个部署共用同一个 Redis 实例。
	KeyPrefix string
}

// RedisStore 把知识文档保存在 Redis 中，进程重启后语料不丢失。
type RedisStore struct {
	client    *redis.Client
	docPrefix string
	indexKey  string
}

// NewRedisStore 创建 Redis 文档存储实例。
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}

	docPrefix := defaultDocPrefix
	indexKey := defaultIndexKey
	if cfg.KeyPrefix != "" {
		docPrefix = cfg.KeyPrefix + ":doc:"
		indexKey = cfg.KeyPrefix + ":index"
	}
	return &RedisStore{client: client, docPrefix: docPrefix, indexKey: indexKey}, nil
}

// Search 加载语料并按词面重合度返回前 k 篇。
func (s *RedisStore) Search(ctx context.Context, query string, k int) ([]Document, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("读取知识索引失败: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, s.docPrefix+id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("读取知识文档失败: %w", err)
	}

	docs := make([]Document, 0, len(values))
	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var doc Document
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			continue
		}
		docs = append(docs, doc)
	}
	return rank(query, docs, k), nil
}

// AddDocuments 写入文档。播种应在启动阶段串行完成。
func (s *RedisStore) AddDocuments(ctx context.Context, docs []Document) ([]string, error) {
	ids := make([]string, 0, len(docs))
	pipe := s.client.TxPipeline()
	for _, doc := range docs {
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}
		encoded, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("序列化知识文档失败: %w", err)
		}
		pipe.Set(ctx, s.docPrefix+doc.ID, encoded, 0)
		pipe.SAdd(ctx, s.indexKey, doc.ID)
		ids = append(ids, doc.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("写入知识文档失败: %w", err)
	}
	return ids, nil
}

// Close 释放 Redis 连接。
func (s *RedisStore) Close() error {
	return s.client.Close()
}
