// Package graph 实现两级路由状态机的遍历：
// 主管节点选团队，团队节点选专家，专家执行后立即终止。
// 一次请求最多调度一个专家，没有团队内多跳。
package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"GuardianEye/internal/agent"
	apperrors "GuardianEye/internal/errors"
	"GuardianEye/internal/observability/metrics"
	"GuardianEye/internal/state"
	"GuardianEye/internal/supervisor"
	"GuardianEye/pkg/logger"
)

// ForceRouteKey 是中间结果中用于短路路由的键。
// 专家直达端点通过它跳过两级路由，直接调度指定专家。
const ForceRouteKey = "force_route"

// defaultAgentTimeout 约束单次专家模型调用的时长。
const defaultAgentTimeout = 120 * time.Second

// Workflow 将路由器与专家集合装配成可执行的状态机。
// 实例无内部可变状态，可供并发请求复用。
type Workflow struct {
	router       *supervisor.Router
	specialists  map[string]*agent.Specialist
	agentTimeout time.Duration
}

// Option 定义 Workflow 的可选配置。
type Option func(*Workflow)

// WithAgentTimeout 覆盖专家模型调用的超时时间。
func WithAgentTimeout(d time.Duration) Option {
	return func(w *Workflow) {
		if d > 0 {
			w.agentTimeout = d
		}
	}
}

// New 构造状态机。专家集合必须覆盖全部注册名单，装配期缺一即失败，
// 避免运行期路由到不存在的节点。
func New(router *supervisor.Router, specialists map[string]*agent.Specialist, opts ...Option) (*Workflow, error) {
	if router == nil {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "缺少路由器")
	}
	for _, team := range agent.Teams() {
		for _, name := range agent.TeamAgents(team) {
			if specialists[name] == nil {
				return nil, apperrors.New(apperrors.CodeInitializationFailure,
					fmt.Sprintf("专家未装配: %s", name))
			}
		}
	}
	w := &Workflow{
		router:       router,
		specialists:  specialists,
		agentTimeout: defaultAgentTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w, nil
}

// Run 执行一次完整遍历：主路由 → 团队路由 → 专家。
// 会话状态原地更新；路由与执行的每一步都会追加到 ExecutionPath。
// 专家的模型错误原样上抛，由上层驱动器统一包装。
func (w *Workflow) Run(ctx context.Context, conv *state.Conversation) error {
	if conv.StartTime.IsZero() {
		conv.StartTime = time.Now()
	}

	// 短路路由：中间结果指定专家时跳过两级决策。
	if forced, ok := forcedSpecialist(conv); ok {
		team, _ := agent.TeamOf(forced)
		conv.AppendPath("main_supervisor -> " + team)
		conv.CurrentTeam = team
		conv.AppendMessage(state.RoleAssistant, "Routing to "+team)
		conv.AppendPath(team)
		return w.runSpecialist(ctx, forced, conv)
	}

	team, err := w.router.RouteMain(ctx, conv)
	if err != nil {
		conv.AppendError(err.Error())
		return err
	}
	conv.AppendPath("main_supervisor -> " + team)
	if team == agent.Finish {
		conv.CurrentTeam = ""
		return nil
	}
	conv.CurrentTeam = team

	// 团队路由必须先于路由提示消息，保证两级决策都基于用户原文。
	name, err := w.router.RouteTeam(ctx, team, conv)
	if err != nil {
		conv.AppendError(err.Error())
		return err
	}
	conv.AppendMessage(state.RoleAssistant, "Routing to "+team)
	conv.AppendPath(team)
	if name == agent.Finish {
		conv.CurrentAgent = ""
		return nil
	}
	return w.runSpecialist(ctx, name, conv)
}

// RunTeam 从团队层进入状态机，跳过主路由。
// 供需要固定团队的调用方使用，路径同样保持每节点一条记录。
func (w *Workflow) RunTeam(ctx context.Context, team string, conv *state.Conversation) error {
	if !agent.IsTeam(team) {
		return apperrors.New(apperrors.CodeInvalidArgument, fmt.Sprintf("未知团队: %s", team))
	}
	if conv.StartTime.IsZero() {
		conv.StartTime = time.Now()
	}
	conv.CurrentTeam = team

	name, err := w.router.RouteTeam(ctx, team, conv)
	if err != nil {
		conv.AppendError(err.Error())
		return err
	}
	conv.AppendPath(team)
	if name == agent.Finish {
		conv.CurrentAgent = ""
		return nil
	}
	return w.runSpecialist(ctx, name, conv)
}

// RunSpecialist 直接调度指定专家，跳过全部路由决策。
func (w *Workflow) RunSpecialist(ctx context.Context, name string, conv *state.Conversation) error {
	if !agent.IsSpecialist(name) {
		return apperrors.New(apperrors.CodeInvalidArgument, fmt.Sprintf("未注册的专家: %s", name))
	}
	if conv.StartTime.IsZero() {
		conv.StartTime = time.Now()
	}
	if team, ok := agent.TeamOf(name); ok {
		conv.CurrentTeam = team
	}
	return w.runSpecialist(ctx, name, conv)
}

// runSpecialist 执行专家节点：取用户查询与中间结果作为输入，
// 恰好一次模型调用，结果写回会话状态，然后终止。
func (w *Workflow) runSpecialist(ctx context.Context, name string, conv *state.Conversation) error {
	spec, ok := w.specialists[name]
	if !ok {
		return apperrors.New(apperrors.CodeWorkflowFailure, fmt.Sprintf("专家未装配: %s", name))
	}
	conv.CurrentAgent = name

	query := ""
	if last, ok := lastUserMessage(conv); ok {
		query = last.Content
	}
	in := agent.Input{
		Query:     query,
		Context:   conv.IntermediateResults,
		SessionID: conv.SessionID,
	}

	callCtx, cancel := context.WithTimeout(ctx, w.agentTimeout)
	defer cancel()
	started := time.Now()
	out, err := spec.Process(callCtx, in)
	metrics.ObserveAgentRun(name, conv.CurrentTeam, err == nil, time.Since(started))
	if err != nil {
		conv.AppendError(err.Error())
		if errors.Is(err, context.DeadlineExceeded) {
			return apperrors.Wrap(apperrors.CodeTimeout, err, fmt.Sprintf("专家 %s 执行超时", name))
		}
		return err
	}

	conv.AppendMessage(state.RoleAssistant, out.Result)
	conv.FinalResult = out.Result
	conv.SetIntermediate(name, out.Result)
	conv.AppendPath(name)
	conv.NextAction = ""

	logger.Named("graph").Info("专家执行完成",
		"agent", name,
		"team", conv.CurrentTeam,
		"session_id", conv.SessionID,
	)
	return nil
}

// forcedSpecialist 读取并消费短路路由键，无效值被忽略。
func forcedSpecialist(conv *state.Conversation) (string, bool) {
	raw, ok := conv.Intermediate(ForceRouteKey)
	if !ok {
		return "", false
	}
	delete(conv.IntermediateResults, ForceRouteKey)
	name, ok := raw.(string)
	if !ok || !agent.IsSpecialist(name) {
		return "", false
	}
	return name, true
}

// lastUserMessage 返回最近一条用户消息。
func lastUserMessage(conv *state.Conversation) (state.Message, bool) {
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		if conv.Messages[i].Role == state.RoleUser {
			return conv.Messages[i], true
		}
	}
	return state.Message{}, false
}
