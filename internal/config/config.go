package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Config 描述了 GuardianEye 在启动阶段需要加载的核心配置。
type Config struct {
	Server     ServerConfig     `json:"server"`
	LLM        LLMConfig        `json:"llm"`
	Routing    RoutingConfig    `json:"routing"`
	Checkpoint CheckpointConfig `json:"checkpoint"`
	Retrieval  RetrievalConfig  `json:"retrieval"`
	Storage    StorageConfig    `json:"storage"`
	Jobs       JobsConfig       `json:"jobs"`
	Auth       AuthConfig       `json:"auth"`
	Logging    LoggingConfig    `json:"logging"`
	Metrics    MetricsConfig    `json:"metrics"`
	Alerting   AlertingConfig   `json:"alerting"`
	Runtime    RuntimeConfig    `json:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address"`
}

// LLMConfig 用于配置大模型推理的调用方式。
type LLMConfig struct {
	Provider       string  `json:"provider"`
	Model          string  `json:"model"`
	Temperature    float64 `json:"temperature"`
	APIKey         string  `json:"api_key"`
	BaseURL        string  `json:"base_url"`
	TimeoutSeconds int     `json:"timeout_seconds"`
}

// RoutingConfig 控制两级路由的决策方式。
type RoutingConfig struct {
	// Strategy 取值 keyword 或 model。
	Strategy string `json:"strategy"`
	// TablesPath 指向可选的路由表 YAML 文件，缺省使用内置路由表。
	TablesPath string `json:"tables_path"`
	// DecisionTimeoutSeconds 是单次路由决策的超时时间。
	DecisionTimeoutSeconds int `json:"decision_timeout_seconds"`
	// AgentTimeoutSeconds 是单次专家调用的超时时间。
	AgentTimeoutSeconds int `json:"agent_timeout_seconds"`
}

// CheckpointConfig 控制会话快照的存储后端。
type CheckpointConfig struct {
	Backend    string `json:"backend"`
	Address    string `json:"address"`
	Password   string `json:"password"`
	DB         int    `json:"db"`
	TTLSeconds int    `json:"ttl_seconds"`
	KeyPrefix  string `json:"key_prefix"`
}

// RetrievalConfig 控制知识库检索的存储后端。
type RetrievalConfig struct {
	Backend   string `json:"backend"`
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	KeyPrefix string `json:"key_prefix"`
	// SeedPath 指向启动时注入的知识文档 JSON 文件。
	SeedPath string `json:"seed_path"`
}

// StorageConfig 统一描述审计与任务存储后端的连接信息。
type StorageConfig struct {
	Audit AuditStoreConfig `json:"audit"`
}

// AuditStoreConfig 目前提供内存实现，可切换到真正的 MySQL。
type AuditStoreConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// JobsConfig 控制异步分析任务子系统。
type JobsConfig struct {
	Enabled    bool   `json:"enabled"`
	Store      string `json:"store"`
	DSN        string `json:"dsn"`
	Queue      string `json:"queue"`
	QueueURL   string `json:"queue_url"`
	QueueName  string `json:"queue_name"`
	Workers    int    `json:"workers"`
	MaxRetries int    `json:"max_retries"`
}

// AuthConfig 控制 API 的身份认证。
type AuthConfig struct {
	Mode string     `json:"mode"`
	JWT  JWTConfig  `json:"jwt"`
	Seed []AuthSeed `json:"seed"`
}

// JWTConfig 包含本地 JWT 签发参数。
type JWTConfig struct {
	Secret     string   `json:"secret"`
	Issuer     string   `json:"issuer"`
	Audience   []string `json:"audience"`
	AccessTTL  int64    `json:"access_ttl_seconds"`
	RefreshTTL int64    `json:"refresh_ttl_seconds"`
}

// AuthSeed 定义启动时写入的初始账号。
type AuthSeed struct {
	Username    string   `json:"username"`
	Password    string   `json:"password"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	Disabled    bool     `json:"disabled"`
}

// LoggingConfig 控制结构化日志输出。
type LoggingConfig struct {
	Level       string   `json:"level"`
	Format      string   `json:"format"`
	OutputPaths []string `json:"output_paths"`
	AuditPath   string   `json:"audit_path"`
}

// MetricsConfig 控制独立的指标服务。
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address"`
}

// AlertingConfig 控制告警渠道。
type AlertingConfig struct {
	SlackChannel string   `json:"slack_channel"`
	EmailTo      []string `json:"email_to"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = 60
	}

	if c.Routing.Strategy == "" {
		c.Routing.Strategy = "keyword"
	}
	if c.Routing.TablesPath != "" && !filepath.IsAbs(c.Routing.TablesPath) {
		c.Routing.TablesPath = filepath.Join(baseDir, c.Routing.TablesPath)
	}

	if c.Checkpoint.Backend == "" {
		c.Checkpoint.Backend = "memory"
	}
	if c.Retrieval.Backend == "" {
		c.Retrieval.Backend = "memory"
	}
	if c.Retrieval.SeedPath != "" && !filepath.IsAbs(c.Retrieval.SeedPath) {
		c.Retrieval.SeedPath = filepath.Join(baseDir, c.Retrieval.SeedPath)
	}

	if c.Storage.Audit.Driver == "" {
		c.Storage.Audit.Driver = "memory"
	}

	if c.Jobs.Store == "" {
		c.Jobs.Store = "memory"
	}
	if c.Jobs.Queue == "" {
		c.Jobs.Queue = "memory"
	}
	if c.Jobs.Workers <= 0 {
		c.Jobs.Workers = 4
	}
	if c.Jobs.MaxRetries <= 0 {
		c.Jobs.MaxRetries = 3
	}

	if c.Auth.Mode == "" {
		c.Auth.Mode = "disabled"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}
}
