// Package factory 将配置映射为具体的大模型客户端。
// 工厂是进程级单例，无内部状态，可跨会话共享。
package factory

import (
	"fmt"

	"GuardianEye/internal/llm"
	"GuardianEye/internal/llm/anthropic"
	"GuardianEye/internal/llm/ollama"
	"GuardianEye/internal/llm/openai"
)

const lmStudioBaseURL = "http://localhost:1234/v1"

// New 根据配置创建大模型客户端。配置缺失（例如缺少 API Key）
// 在这里直接失败，不做静默降级。
func New(cfg llm.Config) (llm.Client, error) {
	provider, err := llm.ParseProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}

	switch provider {
	case llm.ProviderOpenAI:
		return openai.NewClient(openai.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
	case llm.ProviderAnthropic:
		return anthropic.NewClient(anthropic.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
	case llm.ProviderOllama:
		return ollama.NewClient(ollama.Config{
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
	case llm.ProviderLMStudio:
		// LM Studio 暴露 OpenAI 兼容接口，且不校验 API Key。
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = lmStudioBaseURL
		}
		return openai.NewClient(openai.Config{
			APIKey:      "lm-studio",
			BaseURL:     baseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
	}
	return nil, fmt.Errorf("未知的大模型提供方: %s", cfg.Provider)
}
