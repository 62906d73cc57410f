// Package orchestrator 是编排层的顶层驱动器。
// 它包裹一次完整的状态机遍历：恢复会话快照、执行路由与专家、
// 持久化新快照、落审计库，并保证调用方永远拿到结构化响应而非裸错误。
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"GuardianEye/internal/checkpoint"
	apperrors "GuardianEye/internal/errors"
	"GuardianEye/internal/graph"
	"GuardianEye/internal/observability/alerting"
	"GuardianEye/internal/state"
	"GuardianEye/internal/storage/mysql"
	"GuardianEye/pkg/logger"
)

// Request 是一次编排请求的入参。
type Request struct {
	Query     string         `json:"query"`
	Context   map[string]any `json:"context,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
}

// Response 是一次编排请求的出参。
// Error 字段是成功与否的唯一可靠信号，Result 在失败时携带错误前缀文本。
type Response struct {
	Result        string         `json:"result"`
	ExecutionPath []string       `json:"execution_path"`
	SessionID     string         `json:"session_id"`
	ExecutionTime float64        `json:"execution_time"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// Orchestrator 装配状态机、快照存储、审计仓库与告警分发器。
type Orchestrator struct {
	workflow    *graph.Workflow
	checkpoints checkpoint.Store
	audit       mysql.ConversationRepository
	alerts      alerting.Dispatcher
	log         *slog.Logger
}

// Option 定义 Orchestrator 的可选依赖。
type Option func(*Orchestrator)

// WithCheckpoints 启用会话快照的恢复与持久化。
func WithCheckpoints(store checkpoint.Store) Option {
	return func(o *Orchestrator) {
		o.checkpoints = store
	}
}

// WithAudit 启用会话审计落库。
func WithAudit(repo mysql.ConversationRepository) Option {
	return func(o *Orchestrator) {
		o.audit = repo
	}
}

// WithAlerts 启用错误告警分发。
func WithAlerts(dispatcher alerting.Dispatcher) Option {
	return func(o *Orchestrator) {
		o.alerts = dispatcher
	}
}

// New 构造编排器。快照、审计与告警均为可选依赖，缺省时静默关闭。
func New(workflow *graph.Workflow, opts ...Option) (*Orchestrator, error) {
	if workflow == nil {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "缺少状态机")
	}
	o := &Orchestrator{
		workflow: workflow,
		log:      logger.Named("orchestrator"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o, nil
}

// Execute 处理一次完整的编排请求。
// 任何内部错误都会被捕获并转换为结构化失败响应，永远不向上抛。
func (o *Orchestrator) Execute(ctx context.Context, req Request) *Response {
	started := time.Now()
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	conv := o.resume(ctx, sessionID, req.UserID)
	o.prepare(conv, req)

	if err := o.workflow.Run(ctx, conv); err != nil {
		return o.fail(ctx, sessionID, req, err, started)
	}

	o.persist(ctx, conv, req, started)
	return &Response{
		Result:        conv.FinalResult,
		ExecutionPath: append([]string(nil), conv.ExecutionPath...),
		SessionID:     sessionID,
		ExecutionTime: time.Since(started).Seconds(),
		Metadata: map[string]any{
			"user_id": conv.UserID,
			"team":    conv.CurrentTeam,
			"agent":   conv.CurrentAgent,
			"tokens":  conv.TotalTokens,
		},
	}
}

// ExecuteAgent 绕过路由直接调度指定专家，供专家直达端点与任务处理器使用。
func (o *Orchestrator) ExecuteAgent(ctx context.Context, name string, req Request) *Response {
	started := time.Now()
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	conv := o.resume(ctx, sessionID, req.UserID)
	o.prepare(conv, req)

	if err := o.workflow.RunSpecialist(ctx, name, conv); err != nil {
		return o.fail(ctx, sessionID, req, err, started)
	}

	o.persist(ctx, conv, req, started)
	return &Response{
		Result:        conv.FinalResult,
		ExecutionPath: append([]string(nil), conv.ExecutionPath...),
		SessionID:     sessionID,
		ExecutionTime: time.Since(started).Seconds(),
		Metadata: map[string]any{
			"user_id": conv.UserID,
			"team":    conv.CurrentTeam,
			"agent":   conv.CurrentAgent,
			"tokens":  conv.TotalTokens,
		},
	}
}

// resume 从快照恢复会话，缺失或读取失败时开始新会话。
func (o *Orchestrator) resume(ctx context.Context, sessionID, userID string) *state.Conversation {
	if o.checkpoints == nil {
		return state.New(userID, sessionID)
	}
	conv, err := o.checkpoints.Load(ctx, sessionID, userID)
	if err != nil {
		if !checkpoint.IsNotFound(err) {
			o.log.Warn("读取会话快照失败，以新会话继续",
				"session_id", sessionID, "error", err)
		}
		return state.New(userID, sessionID)
	}
	return conv
}

// prepare 在遍历前重置瞬态路由字段，合并请求上下文并追加用户消息。
func (o *Orchestrator) prepare(conv *state.Conversation, req Request) {
	conv.CurrentTeam = ""
	conv.CurrentAgent = ""
	conv.NextAction = ""
	for key, value := range req.Context {
		conv.SetIntermediate(key, value)
	}
	if req.Query != "" {
		conv.AppendMessage(state.RoleUser, req.Query)
	}
}

// persist 在遍历成功后保存快照并落审计库，两者失败都只记日志。
func (o *Orchestrator) persist(ctx context.Context, conv *state.Conversation, req Request, started time.Time) {
	if o.checkpoints != nil {
		if err := o.checkpoints.Save(ctx, conv); err != nil {
			o.log.Warn("保存会话快照失败",
				"session_id", conv.SessionID, "error", err)
		}
	}
	if o.audit != nil {
		record := mysql.ConversationRecord{
			SessionID:     conv.SessionID,
			UserID:        conv.UserID,
			Query:         req.Query,
			Result:        conv.FinalResult,
			Team:          conv.CurrentTeam,
			Agent:         conv.CurrentAgent,
			ExecutionPath: append([]string(nil), conv.ExecutionPath...),
			ExecutionMs:   time.Since(started).Milliseconds(),
			CreatedAt:     time.Now().Unix(),
		}
		if err := o.audit.Save(ctx, record); err != nil {
			o.log.Warn("写入会话审计失败",
				"session_id", conv.SessionID, "error", err)
		}
	}
}

// fail 把任何内部错误转换为结构化失败响应，并按错误属性触发告警。
func (o *Orchestrator) fail(ctx context.Context, sessionID string, req Request, err error, started time.Time) *Response {
	o.log.Error("编排请求失败",
		"session_id", sessionID, "error", err)

	if o.alerts != nil && apperrors.ShouldAlert(err) {
		event := alerting.Event{
			Code:       apperrors.CodeOf(err),
			Message:    err.Error(),
			Severity:   apperrors.SeverityOf(err),
			SessionID:  sessionID,
			Agent:      "",
			OccurredAt: time.Now(),
		}
		if alertErr := o.alerts.Notify(ctx, event); alertErr != nil {
			o.log.Warn("告警发送失败", "error", alertErr)
		}
	}

	if o.audit != nil {
		record := mysql.ConversationRecord{
			SessionID:   sessionID,
			UserID:      req.UserID,
			Query:       req.Query,
			Error:       err.Error(),
			ExecutionMs: time.Since(started).Milliseconds(),
			CreatedAt:   time.Now().Unix(),
		}
		if auditErr := o.audit.Save(ctx, record); auditErr != nil {
			o.log.Warn("写入会话审计失败",
				"session_id", sessionID, "error", auditErr)
		}
	}

	return &Response{
		Result:        fmt.Sprintf("Error processing request: %s", err.Error()),
		ExecutionPath: []string{},
		SessionID:     sessionID,
		ExecutionTime: time.Since(started).Seconds(),
		Error:         err.Error(),
	}
}
