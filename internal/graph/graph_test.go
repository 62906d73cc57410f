package graph

import (
	"context"
	"errors"
	"strings"
	"testing"

	"GuardianEye/internal/agent"
	"GuardianEye/internal/llm"
	"GuardianEye/internal/state"
	"GuardianEye/internal/supervisor"
)

type stubModel struct {
	response string
	err      error
	calls    int
}

func (m *stubModel) Invoke(context.Context, []llm.Message) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func (m *stubModel) Model() string {
	return "stub-model"
}

func newWorkflow(t *testing.T, model llm.Client) *Workflow {
	t.Helper()
	router, err := supervisor.NewRouter(supervisor.StrategyKeyword, supervisor.DefaultRoutingTables(), nil)
	if err != nil {
		t.Fatalf("构造路由器失败: %v", err)
	}
	specialists := make(map[string]*agent.Specialist)
	for _, team := range agent.Teams() {
		for _, name := range agent.TeamAgents(team) {
			spec, err := agent.New(name, model)
			if err != nil {
				t.Fatalf("构造专家 %s 失败: %v", name, err)
			}
			specialists[name] = spec
		}
	}
	w, err := New(router, specialists)
	if err != nil {
		t.Fatalf("构造状态机失败: %v", err)
	}
	return w
}

func conversationWith(text string) *state.Conversation {
	conv := state.New("user-1", "session-1")
	conv.AppendMessage(state.RoleUser, text)
	return conv
}

func TestRunSecurityOpsPath(t *testing.T) {
	model := &stubModel{response: "Incident analyzed."}
	w := newWorkflow(t, model)

	conv := conversationWith("Multiple failed login attempts from IP 203.0.113.5")
	if err := w.Run(context.Background(), conv); err != nil {
		t.Fatalf("Run 失败: %v", err)
	}

	want := []string{
		"main_supervisor -> security_ops_team",
		"security_ops_team",
		"incident_triage",
	}
	if len(conv.ExecutionPath) != len(want) {
		t.Fatalf("执行路径长度不符: %v", conv.ExecutionPath)
	}
	for i, entry := range want {
		if conv.ExecutionPath[i] != entry {
			t.Fatalf("执行路径第 %d 项不符: %q, 期望 %q", i, conv.ExecutionPath[i], entry)
		}
	}
	if conv.FinalResult != "Incident analyzed." {
		t.Fatalf("最终结果不符: %q", conv.FinalResult)
	}
	if conv.CurrentAgent != agent.NameIncidentTriage {
		t.Fatalf("当前专家不符: %q", conv.CurrentAgent)
	}
	if model.calls != 1 {
		t.Fatalf("关键词策略下应只有专家调用一次模型, 实际 %d", model.calls)
	}
}

func TestRunThreatIntelPath(t *testing.T) {
	w := newWorkflow(t, &stubModel{response: "Hypotheses generated."})

	conv := conversationWith("generate threat hunting hypotheses for data exfiltration")
	if err := w.Run(context.Background(), conv); err != nil {
		t.Fatalf("Run 失败: %v", err)
	}

	path := strings.Join(conv.ExecutionPath, ",")
	teamIdx := strings.Index(path, agent.TeamThreatIntel)
	agentIdx := strings.Index(path, agent.NameThreatHunting)
	if teamIdx < 0 || agentIdx < 0 || teamIdx > agentIdx {
		t.Fatalf("执行路径应依次包含团队与专家: %v", conv.ExecutionPath)
	}
}

func TestRunEmptyConversationTerminates(t *testing.T) {
	model := &stubModel{response: "unused"}
	w := newWorkflow(t, model)

	conv := state.New("user-1", "session-1")
	conv.FinalResult = "prior result"
	if err := w.Run(context.Background(), conv); err != nil {
		t.Fatalf("Run 失败: %v", err)
	}

	if conv.CurrentTeam != "" {
		t.Fatalf("空会话应终止且无当前团队: %q", conv.CurrentTeam)
	}
	if model.calls != 0 {
		t.Fatalf("空会话不应调用任何模型, 实际 %d", model.calls)
	}
	if conv.FinalResult != "prior result" {
		t.Fatalf("最终结果不应被修改: %q", conv.FinalResult)
	}
	if len(conv.ExecutionPath) != 1 || conv.ExecutionPath[0] != "main_supervisor -> FINISH" {
		t.Fatalf("执行路径不符: %v", conv.ExecutionPath)
	}
}

func TestRunSpecialistErrorPropagates(t *testing.T) {
	wantErr := errors.New("provider down")
	w := newWorkflow(t, &stubModel{err: wantErr})

	conv := conversationWith("triage this alert")
	err := w.Run(context.Background(), conv)
	if !errors.Is(err, wantErr) {
		t.Fatalf("专家错误应原样上抛: %v", err)
	}
	if len(conv.Errors) == 0 {
		t.Fatal("会话错误日志应有记录")
	}
}

func TestRunForceRouteSkipsRouters(t *testing.T) {
	model := &stubModel{response: "Compliance report."}
	w := newWorkflow(t, model)

	// 查询文本本会路由到安全运营团队，短路键应覆盖该决策。
	conv := conversationWith("triage this alert")
	conv.SetIntermediate(ForceRouteKey, agent.NameComplianceAuditor)
	if err := w.Run(context.Background(), conv); err != nil {
		t.Fatalf("Run 失败: %v", err)
	}

	if conv.CurrentAgent != agent.NameComplianceAuditor {
		t.Fatalf("短路路由未生效: %q", conv.CurrentAgent)
	}
	if conv.CurrentTeam != agent.TeamGovernance {
		t.Fatalf("团队应随专家确定: %q", conv.CurrentTeam)
	}
	if len(conv.ExecutionPath) != 3 {
		t.Fatalf("短路路由也应保持三段路径: %v", conv.ExecutionPath)
	}
	if _, ok := conv.Intermediate(ForceRouteKey); ok {
		t.Fatal("短路键应在消费后移除")
	}
}

func TestRunForceRouteIgnoresInvalidValue(t *testing.T) {
	w := newWorkflow(t, &stubModel{response: "ok"})

	conv := conversationWith("triage this alert")
	conv.SetIntermediate(ForceRouteKey, "no_such_agent")
	if err := w.Run(context.Background(), conv); err != nil {
		t.Fatalf("Run 失败: %v", err)
	}
	if conv.CurrentAgent != agent.NameIncidentTriage {
		t.Fatalf("无效短路键应回退到正常路由: %q", conv.CurrentAgent)
	}
}

func TestRunSpecialistStandalone(t *testing.T) {
	w := newWorkflow(t, &stubModel{response: "Knowledge answer."})

	conv := conversationWith("what is zero trust")
	if err := w.RunSpecialist(context.Background(), agent.NameSecurityKnowledge, conv); err != nil {
		t.Fatalf("RunSpecialist 失败: %v", err)
	}
	if conv.FinalResult != "Knowledge answer." {
		t.Fatalf("最终结果不符: %q", conv.FinalResult)
	}
	if conv.CurrentTeam != agent.TeamGovernance {
		t.Fatalf("团队应随专家确定: %q", conv.CurrentTeam)
	}
	if len(conv.ExecutionPath) != 1 || conv.ExecutionPath[0] != agent.NameSecurityKnowledge {
		t.Fatalf("独立调度应只追加专家名: %v", conv.ExecutionPath)
	}

	if err := w.RunSpecialist(context.Background(), "no_such_agent", conv); err == nil {
		t.Fatal("未注册专家应返回错误")
	}
}

func TestRunIdempotentWithDeterministicBackend(t *testing.T) {
	w := newWorkflow(t, &stubModel{response: "deterministic"})

	first := conversationWith("prioritize CVE-2024-1234")
	second := conversationWith("prioritize CVE-2024-1234")
	if err := w.Run(context.Background(), first); err != nil {
		t.Fatalf("Run 失败: %v", err)
	}
	if err := w.Run(context.Background(), second); err != nil {
		t.Fatalf("Run 失败: %v", err)
	}

	if first.FinalResult != second.FinalResult {
		t.Fatalf("确定性后端下结果应一致: %q vs %q", first.FinalResult, second.FinalResult)
	}
	if strings.Join(first.ExecutionPath, ",") != strings.Join(second.ExecutionPath, ",") {
		t.Fatalf("确定性后端下路径应一致: %v vs %v", first.ExecutionPath, second.ExecutionPath)
	}
}
