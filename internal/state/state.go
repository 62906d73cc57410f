package state

import (
	"strings"
	"time"
)

// Role 表示会话消息的角色。
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message 是会话历史中的一条角色标注文本。
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation 是贯穿一次编排的共享可变状态。
// 一次顶层请求创建一个实例，由工作流驱动器独占持有，
// 各节点顺序读写，遍历结束后丢弃或由检查点存储持久化。
type Conversation struct {
	// Messages 只增不减，最后一条即"当前请求"。
	Messages []Message `json:"messages"`

	// UserID 与 SessionID 在入口处设置一次，之后不再变更。
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`

	// 路由字段由各路由节点覆盖写入，空串表示"无后续路由"。
	CurrentTeam  string `json:"current_team,omitempty"`
	CurrentAgent string `json:"current_agent,omitempty"`
	NextAction   string `json:"next_action,omitempty"`

	// IntermediateResults 既是节点间的暂存区，
	// 也是专家读取覆盖值的输入上下文。
	IntermediateResults map[string]any `json:"intermediate_results,omitempty"`

	// FinalResult 保存最后一个专家的文本回答。
	FinalResult string `json:"final_result,omitempty"`

	// ExecutionPath 按节点访问顺序记录每一次路由与执行，是审计依据。
	ExecutionPath []string `json:"execution_path"`

	// 成本与延迟记账。
	TotalTokens int       `json:"total_tokens"`
	StartTime   time.Time `json:"start_time"`

	// Errors 累积节点级失败信息，只增不减。
	Errors []string `json:"errors,omitempty"`
}

// New 创建一条新会话，入口字段设置一次。
func New(userID, sessionID string) *Conversation {
	return &Conversation{
		Messages:            make([]Message, 0, 4),
		UserID:              userID,
		SessionID:           sessionID,
		IntermediateResults: make(map[string]any),
		ExecutionPath:       make([]string, 0, 4),
	}
}

// AppendMessage 在历史末尾追加一条消息。
func (c *Conversation) AppendMessage(role Role, content string) {
	c.Messages = append(c.Messages, Message{Role: role, Content: content})
}

// LastMessage 返回最后一条消息。历史为空时第二个返回值为 false。
func (c *Conversation) LastMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// AppendPath 追加一条执行路径记录。
func (c *Conversation) AppendPath(entry string) {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return
	}
	c.ExecutionPath = append(c.ExecutionPath, entry)
}

// AppendError 追加一条失败记录。
func (c *Conversation) AppendError(message string) {
	message = strings.TrimSpace(message)
	if message == "" {
		return
	}
	c.Errors = append(c.Errors, message)
}

// SetIntermediate 写入一个暂存值。
func (c *Conversation) SetIntermediate(key string, value any) {
	if c.IntermediateResults == nil {
		c.IntermediateResults = make(map[string]any)
	}
	c.IntermediateResults[key] = value
}

// Intermediate 读取一个暂存值。
func (c *Conversation) Intermediate(key string) (any, bool) {
	if c.IntermediateResults == nil {
		return nil, false
	}
	value, ok := c.IntermediateResults[key]
	return value, ok
}

// Clone 返回会话的深拷贝，供检查点存储在不干扰遍历的情况下持久化。
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Messages = append([]Message(nil), c.Messages...)
	clone.ExecutionPath = append([]string(nil), c.ExecutionPath...)
	clone.Errors = append([]string(nil), c.Errors...)
	if c.IntermediateResults != nil {
		clone.IntermediateResults = make(map[string]any, len(c.IntermediateResults))
		for key, value := range c.IntermediateResults {
			clone.IntermediateResults[key] = value
		}
	}
	return &clone
}
