// Package supervisor 实现两级路由中的决策逻辑：
// 主路由把请求分派给团队，团队路由把请求分派给专家。
// 两种策略可互换：关键词策略零模型调用，模型策略恰好一次模型调用。
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"GuardianEye/internal/agent"
	apperrors "GuardianEye/internal/errors"
	"GuardianEye/internal/llm"
	"GuardianEye/internal/state"
)

// defaultDecisionTimeout 约束单次路由决策的模型调用时长。
const defaultDecisionTimeout = 30 * time.Second

// Router 在主层与团队层执行路由决策。
// 同一个 Router 实例供所有请求并发使用，决策过程无内部状态。
type Router struct {
	strategy Strategy
	model    llm.Client
	tables   RoutingTables
	timeout  time.Duration
}

// RouterOption 定义 Router 的可选配置。
type RouterOption func(*Router)

// WithDecisionTimeout 覆盖模型路由决策的超时时间。
func WithDecisionTimeout(d time.Duration) RouterOption {
	return func(r *Router) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewRouter 构造路由器。模型策略必须提供大模型客户端。
func NewRouter(strategy Strategy, tables RoutingTables, model llm.Client, opts ...RouterOption) (*Router, error) {
	if strategy == StrategyModel && model == nil {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "模型路由策略需要大模型客户端")
	}
	if err := tables.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidArgument, err, "路由表校验失败")
	}
	r := &Router{
		strategy: strategy,
		model:    model,
		tables:   tables,
		timeout:  defaultDecisionTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// Strategy 返回当前生效的路由策略。
func (r *Router) Strategy() Strategy {
	return r.strategy
}

// RouteMain 决定由哪个团队处理请求。
// 消息为空直接返回 FINISH，不发起任何模型调用。
// 关键词未命中兜底到治理团队；模型响应无效兜底到安全运营团队。
func (r *Router) RouteMain(ctx context.Context, conv *state.Conversation) (string, error) {
	last, ok := conv.LastMessage()
	if !ok {
		return agent.Finish, nil
	}

	if r.strategy == StrategyKeyword {
		if target, matched := r.tables.Main.match(last.Content); matched {
			return target, nil
		}
		return r.tables.Main.Default, nil
	}

	decision, err := r.decide(ctx, mainSupervisorPrompt, "User request: "+last.Content)
	if err != nil {
		return "", err
	}
	if decision == "finish" {
		return agent.Finish, nil
	}
	if agent.IsTeam(decision) {
		return decision, nil
	}
	// 无效响应静默纠正，不向调用方暴露模型原文。
	return r.tables.Main.modelFallback(), nil
}

// RouteTeam 决定团队内由哪个专家处理请求。
// 消息为空直接返回 FINISH；关键词未命中兜底到团队默认专家。
func (r *Router) RouteTeam(ctx context.Context, team string, conv *state.Conversation) (string, error) {
	table, ok := r.tables.Teams[team]
	if !ok {
		return "", apperrors.New(apperrors.CodeInvalidArgument, fmt.Sprintf("未知团队: %s", team))
	}
	last, hasMessage := conv.LastMessage()
	if !hasMessage {
		return agent.Finish, nil
	}

	if r.strategy == StrategyKeyword {
		if target, matched := table.match(last.Content); matched {
			return target, nil
		}
		return table.Default, nil
	}

	prompt, ok := teamPrompts[team]
	if !ok {
		return "", apperrors.New(apperrors.CodeInvalidArgument, fmt.Sprintf("团队缺少路由指令: %s", team))
	}
	decision, err := r.decide(ctx, prompt, "Request: "+last.Content)
	if err != nil {
		return "", err
	}
	if decision == "finish" {
		return agent.Finish, nil
	}
	if memberOf(team, decision) {
		return decision, nil
	}
	return table.modelFallback(), nil
}

// decide 发起一次模型路由调用，返回小写修剪后的决策文本。
// 调用受超时约束，超时返回可重试的 TIMEOUT 错误。
func (r *Router) decide(ctx context.Context, system, request string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	response, err := r.model.Invoke(callCtx, []llm.Message{
		llm.System(system),
		llm.User(request),
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", apperrors.Wrap(apperrors.CodeTimeout, err, "路由决策超时")
		}
		return "", apperrors.Wrap(apperrors.CodeLLMFailure, err, "路由决策失败")
	}
	return strings.ToLower(strings.TrimSpace(response)), nil
}
