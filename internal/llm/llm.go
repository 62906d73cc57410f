package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Role 表示对话消息的角色。
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message 是发送给大模型的一条角色标注消息。
type Message struct {
	Role    Role
	Content string
}

// Client 定义了调用大模型的统一接口。实现应当是无状态的，
// 可以在多个会话之间安全共享。
type Client interface {
	// Invoke 发起一次对话补全调用，返回模型的文本输出。
	Invoke(ctx context.Context, messages []Message) (string, error)
	// Model 返回服务本次调用的模型名称，用于结果元数据。
	Model() string
}

// Provider 枚举受支持的大模型提供方。
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderOllama    Provider = "ollama"
	// ProviderLMStudio 使用 OpenAI 兼容接口的本地推理服务。
	ProviderLMStudio Provider = "lmstudio"
)

// Config 描述构造大模型客户端所需的信息。
type Config struct {
	Provider    string
	Model       string
	Temperature float64
	APIKey      string
	BaseURL     string
	Timeout     time.Duration
}

// Factory 根据配置创建大模型客户端。进程内共享同一工厂实例。
type Factory func(cfg Config) (Client, error)

// System 构造一条 system 消息。
func System(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// User 构造一条 user 消息。
func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// ParseProvider 将字符串解析为受支持的提供方。
func ParseProvider(raw string) (Provider, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(raw))) {
	case ProviderOpenAI:
		return ProviderOpenAI, nil
	case ProviderAnthropic:
		return ProviderAnthropic, nil
	case ProviderOllama:
		return ProviderOllama, nil
	case ProviderLMStudio:
		return ProviderLMStudio, nil
	default:
		return "", fmt.Errorf("未知的大模型提供方: %s", raw)
	}
}
