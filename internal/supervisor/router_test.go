package supervisor

import (
	"context"
	"errors"
	"testing"

	"GuardianEye/internal/agent"
	apperrors "GuardianEye/internal/errors"
	"GuardianEye/internal/llm"
	"GuardianEye/internal/state"
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

func conversationWith(text string) *state.Conversation {
	conv := state.New("user-1", "session-1")
	conv.AppendMessage(state.RoleUser, text)
	return conv
}

func TestKeywordRouteMain(t *testing.T) {
	router, err := NewRouter(StrategyKeyword, DefaultRoutingTables(), nil)
	if err != nil {
		t.Fatalf("构造路由器失败: %v", err)
	}

	cases := []struct {
		text string
		want string
	}{
		{"Multiple failed LOGIN attempts from unknown IP", agent.TeamSecurityOps},
		{"hunt for lateral movement indicators", agent.TeamThreatIntel},
		{"are we GDPR compliant", agent.TeamGovernance},
		{"hello there", agent.TeamGovernance},
	}
	for _, tc := range cases {
		got, err := router.RouteMain(context.Background(), conversationWith(tc.text))
		if err != nil {
			t.Fatalf("RouteMain(%q) 失败: %v", tc.text, err)
		}
		if got != tc.want {
			t.Fatalf("RouteMain(%q) = %q, 期望 %q", tc.text, got, tc.want)
		}
	}
}

func TestKeywordRouteMainPriorityOrder(t *testing.T) {
	router, err := NewRouter(StrategyKeyword, DefaultRoutingTables(), nil)
	if err != nil {
		t.Fatalf("构造路由器失败: %v", err)
	}
	// 同时包含安全运营与威胁情报关键词时，先声明的规则生效。
	got, err := router.RouteMain(context.Background(), conversationWith("triage this threat alert"))
	if err != nil {
		t.Fatalf("RouteMain 失败: %v", err)
	}
	if got != agent.TeamSecurityOps {
		t.Fatalf("优先级顺序未生效: %q", got)
	}
}

func TestKeywordRouteTeamDefaults(t *testing.T) {
	router, err := NewRouter(StrategyKeyword, DefaultRoutingTables(), nil)
	if err != nil {
		t.Fatalf("构造路由器失败: %v", err)
	}

	cases := []struct {
		team string
		text string
		want string
	}{
		{agent.TeamSecurityOps, "multiple failed login attempts", agent.NameIncidentTriage},
		{agent.TeamSecurityOps, "unusual outbound traffic baseline deviation", agent.NameAnomalyInvestigation},
		{agent.TeamSecurityOps, "prioritize CVE-2024-1234", agent.NameVulnerabilityPrioritization},
		{agent.TeamThreatIntel, "run osint reconnaissance on the domain", agent.NameReconOrchestrator},
		{agent.TeamThreatIntel, "anything else", agent.NameThreatHunting},
		{agent.TeamGovernance, "quarterly audit findings", agent.NameComplianceAuditor},
		{agent.TeamGovernance, "what is zero trust", agent.NameSecurityKnowledge},
	}
	for _, tc := range cases {
		got, err := router.RouteTeam(context.Background(), tc.team, conversationWith(tc.text))
		if err != nil {
			t.Fatalf("RouteTeam(%s, %q) 失败: %v", tc.team, tc.text, err)
		}
		if got != tc.want {
			t.Fatalf("RouteTeam(%s, %q) = %q, 期望 %q", tc.team, tc.text, got, tc.want)
		}
	}
}

func TestEmptyConversationFinishesWithoutModelCall(t *testing.T) {
	model := &stubModel{response: agent.TeamSecurityOps}
	router, err := NewRouter(StrategyModel, DefaultRoutingTables(), model)
	if err != nil {
		t.Fatalf("构造路由器失败: %v", err)
	}

	conv := state.New("user-1", "session-1")
	got, err := router.RouteMain(context.Background(), conv)
	if err != nil {
		t.Fatalf("RouteMain 失败: %v", err)
	}
	if got != agent.Finish {
		t.Fatalf("空会话应返回 FINISH, 实际 %q", got)
	}
	if model.calls != 0 {
		t.Fatalf("空会话不应发起模型调用, 实际 %d 次", model.calls)
	}

	got, err = router.RouteTeam(context.Background(), agent.TeamGovernance, conv)
	if err != nil {
		t.Fatalf("RouteTeam 失败: %v", err)
	}
	if got != agent.Finish || model.calls != 0 {
		t.Fatalf("空会话团队路由应返回 FINISH 且不调用模型: %q, %d", got, model.calls)
	}
}

func TestModelRouteMainValidatesAllowList(t *testing.T) {
	cases := []struct {
		response string
		want     string
	}{
		{"threat_intel_team", agent.TeamThreatIntel},
		{"  Governance_Team \n", agent.TeamGovernance},
		{"FINISH", agent.Finish},
		{"the marketing department", agent.TeamSecurityOps},
	}
	for _, tc := range cases {
		model := &stubModel{response: tc.response}
		router, err := NewRouter(StrategyModel, DefaultRoutingTables(), model)
		if err != nil {
			t.Fatalf("构造路由器失败: %v", err)
		}
		got, err := router.RouteMain(context.Background(), conversationWith("route this"))
		if err != nil {
			t.Fatalf("RouteMain 失败: %v", err)
		}
		if got != tc.want {
			t.Fatalf("模型响应 %q 路由到 %q, 期望 %q", tc.response, got, tc.want)
		}
		if model.calls != 1 {
			t.Fatalf("期望恰好一次模型调用, 实际 %d", model.calls)
		}
	}
}

func TestModelRouteTeamFallsBackToTeamDefault(t *testing.T) {
	model := &stubModel{response: "incident_triage"}
	router, err := NewRouter(StrategyModel, DefaultRoutingTables(), model)
	if err != nil {
		t.Fatalf("构造路由器失败: %v", err)
	}

	// incident_triage 不属于威胁情报团队，应被纠正为团队默认专家。
	got, err := router.RouteTeam(context.Background(), agent.TeamThreatIntel, conversationWith("investigate this"))
	if err != nil {
		t.Fatalf("RouteTeam 失败: %v", err)
	}
	if got != agent.NameThreatHunting {
		t.Fatalf("无效响应应兜底到团队默认专家, 实际 %q", got)
	}
}

func TestModelRouteWrapsBackendError(t *testing.T) {
	model := &stubModel{err: errors.New("connection refused")}
	router, err := NewRouter(StrategyModel, DefaultRoutingTables(), model)
	if err != nil {
		t.Fatalf("构造路由器失败: %v", err)
	}

	_, err = router.RouteMain(context.Background(), conversationWith("route this"))
	if err == nil {
		t.Fatal("期望模型失败时返回错误")
	}
	if apperrors.CodeOf(err) != apperrors.CodeLLMFailure {
		t.Fatalf("错误码不符: %s", apperrors.CodeOf(err))
	}
}

func TestNewRouterRequiresModelForModelStrategy(t *testing.T) {
	if _, err := NewRouter(StrategyModel, DefaultRoutingTables(), nil); err == nil {
		t.Fatal("模型策略缺少客户端时应返回错误")
	}
}

func TestRoutingTablesValidateRejectsUnknownTargets(t *testing.T) {
	tables := DefaultRoutingTables()
	tables.Main.Default = "no_such_team"
	if err := tables.Validate(); err == nil {
		t.Fatal("无效兜底目标应被拒绝")
	}

	tables = DefaultRoutingTables()
	team := tables.Teams[agent.TeamGovernance]
	team.Rules = append(team.Rules, Rule{Target: agent.NameIncidentTriage, Keywords: []string{"x"}})
	tables.Teams[agent.TeamGovernance] = team
	if err := tables.Validate(); err == nil {
		t.Fatal("跨团队目标应被拒绝")
	}
}

func TestParseStrategy(t *testing.T) {
	if s, err := ParseStrategy(""); err != nil || s != StrategyKeyword {
		t.Fatalf("空策略应回退到关键词: %v %v", s, err)
	}
	if s, err := ParseStrategy("Model"); err != nil || s != StrategyModel {
		t.Fatalf("解析 Model 失败: %v %v", s, err)
	}
	if _, err := ParseStrategy("oracle"); err == nil {
		t.Fatal("未知策略应返回错误")
	}
}
