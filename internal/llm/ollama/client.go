package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"GuardianEye/internal/llm"
)

const (
	defaultBaseURL   = "http://localhost:11434"
	defaultModelName = "llama3.1:8b"
	defaultTimeout   = 120 * time.Second
)

// Config 描述访问本地 Ollama 服务所需的信息。Ollama 不校验凭证。
type Config struct {
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Client 通过 Ollama 的原生 chat 接口调用本地模型。
type Client struct {
	baseURL     string
	model       string
	temperature float64
	httpClient  *http.Client
}

// NewClient 创建 Ollama 客户端。
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModelName
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL:     baseURL,
		model:       model,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{Timeout: timeout},
	}, nil
}

// Model 返回配置的模型名称。
func (c *Client) Model() string {
	return c.model
}

// Invoke 调用 /api/chat 并返回完整的助手消息。
func (c *Client) Invoke(ctx context.Context, messages []llm.Message) (string, error) {
	type message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	wire := make([]message, 0, len(messages))
	for _, msg := range messages {
		wire = append(wire, message{Role: string(msg.Role), Content: msg.Content})
	}

	body := map[string]any{
		"model":    c.model,
		"messages": wire,
		// stream=false 让服务端一次性返回完整消息。
		"stream": false,
		"options": map[string]any{
			"temperature": c.temperature,
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("序列化 Ollama 请求失败: %w", err)
	}

	endpoint := c.baseURL + "/api/chat"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("构建 Ollama 请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("请求 Ollama 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("Ollama 返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("解析 Ollama 响应失败: %w", err)
	}

	content := strings.TrimSpace(decoded.Message.Content)
	if content == "" {
		return "", errors.New("Ollama 响应内容为空")
	}
	return content, nil
}
