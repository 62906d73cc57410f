package anthropic

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
	defaultBaseURL   = "https://api.anthropic.com"
	defaultModelName = "claude-3-5-sonnet-20241022"
	defaultTimeout   = 60 * time.Second
	apiVersion       = "2023-06-01"
	maxOutputTokens  = 2048
)

// Config 描述了调用 Anthropic Messages API 所需的信息。
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Client 通过 HTTP 调用 Anthropic 提供的大模型能力。
type Client struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	httpClient  *http.Client
}

// NewClient 根据配置创建 Anthropic 客户端。缺少 API Key 构造即失败。
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("未提供 Anthropic API Key")
	}

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
		apiKey:      apiKey,
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

// Invoke 调用 Messages API。system 消息单独放入 system 字段。
func (c *Client) Invoke(ctx context.Context, messages []llm.Message) (string, error) {
	type message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	var system strings.Builder
	wire := make([]message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			if system.Len() > 0 {
				system.WriteString("\n\n")
			}
			system.WriteString(msg.Content)
			continue
		}
		wire = append(wire, message{Role: string(msg.Role), Content: msg.Content})
	}
	if len(wire) == 0 {
		return "", errors.New("Anthropic 请求缺少用户消息")
	}

	body := map[string]any{
		"model":       c.model,
		"max_tokens":  maxOutputTokens,
		"temperature": c.temperature,
		"messages":    wire,
	}
	if system.Len() > 0 {
		body["system"] = system.String()
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("序列化 Anthropic 请求失败: %w", err)
	}

	endpoint := c.baseURL + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("构建 Anthropic 请求失败: %w", err)
	}
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("请求 Anthropic 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("Anthropic 返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("解析 Anthropic 响应失败: %w", err)
	}

	var text strings.Builder
	for _, block := range decoded.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	content := strings.TrimSpace(text.String())
	if content == "" {
		return "", errors.New("Anthropic 响应内容为空")
	}
	return content, nil
}
