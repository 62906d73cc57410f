package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"GuardianEye/internal/agent"
	"GuardianEye/internal/checkpoint"
	"GuardianEye/internal/graph"
	"GuardianEye/internal/llm"
	"GuardianEye/internal/storage/mysql"
	"GuardianEye/internal/supervisor"
)

type stubModel struct {
	response string
	err      error
}

func (m *stubModel) Invoke(context.Context, []llm.Message) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func (m *stubModel) Model() string {
	return "stub-model"
}

func newOrchestrator(t *testing.T, model llm.Client, opts ...Option) *Orchestrator {
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
				t.Fatalf("构造专家失败: %v", err)
			}
			specialists[name] = spec
		}
	}
	workflow, err := graph.New(router, specialists)
	if err != nil {
		t.Fatalf("构造状态机失败: %v", err)
	}
	o, err := New(workflow, opts...)
	if err != nil {
		t.Fatalf("构造编排器失败: %v", err)
	}
	return o
}

func TestExecuteSuccess(t *testing.T) {
	o := newOrchestrator(t, &stubModel{response: "Incident analyzed."})

	resp := o.Execute(context.Background(), Request{
		Query:  "Multiple failed login attempts from IP 203.0.113.5",
		UserID: "analyst-1",
	})

	if resp.Error != "" {
		t.Fatalf("期望成功响应: %q", resp.Error)
	}
	if resp.Result != "Incident analyzed." {
		t.Fatalf("结果不符: %q", resp.Result)
	}
	if resp.SessionID == "" {
		t.Fatal("应自动生成会话 ID")
	}
	if len(resp.ExecutionPath) != 3 || resp.ExecutionPath[2] != agent.NameIncidentTriage {
		t.Fatalf("执行路径不符: %v", resp.ExecutionPath)
	}
	if resp.Metadata["agent"] != agent.NameIncidentTriage {
		t.Fatalf("metadata.agent 不符: %v", resp.Metadata["agent"])
	}
	if resp.ExecutionTime < 0 {
		t.Fatalf("执行时长异常: %f", resp.ExecutionTime)
	}
}

func TestExecuteFailureReturnsStructuredResponse(t *testing.T) {
	o := newOrchestrator(t, &stubModel{err: errors.New("provider down")})

	resp := o.Execute(context.Background(), Request{Query: "triage this alert"})

	if resp.Error == "" {
		t.Fatal("失败时 Error 字段应非空")
	}
	if !strings.HasPrefix(resp.Result, "Error processing request:") {
		t.Fatalf("失败结果应带错误前缀: %q", resp.Result)
	}
	if len(resp.ExecutionPath) != 0 {
		t.Fatalf("失败响应的执行路径应为空: %v", resp.ExecutionPath)
	}
	if resp.SessionID == "" {
		t.Fatal("失败响应也应携带会话 ID")
	}
}

func TestExecuteResumesFromCheckpoint(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	o := newOrchestrator(t, &stubModel{response: "answer"}, WithCheckpoints(store))

	first := o.Execute(context.Background(), Request{
		Query:     "what is zero trust architecture",
		SessionID: "session-7",
		UserID:    "analyst-1",
	})
	if first.Error != "" {
		t.Fatalf("首次请求失败: %q", first.Error)
	}

	conv, err := store.Load(context.Background(), "session-7", "analyst-1")
	if err != nil {
		t.Fatalf("快照未保存: %v", err)
	}
	firstLen := len(conv.Messages)
	if firstLen == 0 {
		t.Fatal("快照中应有消息历史")
	}

	second := o.Execute(context.Background(), Request{
		Query:     "and how does it differ from perimeter security",
		SessionID: "session-7",
		UserID:    "analyst-1",
	})
	if second.Error != "" {
		t.Fatalf("二次请求失败: %q", second.Error)
	}

	conv, err = store.Load(context.Background(), "session-7", "analyst-1")
	if err != nil {
		t.Fatalf("快照读取失败: %v", err)
	}
	if len(conv.Messages) <= firstLen {
		t.Fatalf("续传会话的消息应在原历史上累积: %d -> %d", firstLen, len(conv.Messages))
	}
}

func TestExecuteWritesAuditRecord(t *testing.T) {
	repo, err := mysql.NewMemoryConversationRepository(t.TempDir())
	if err != nil {
		t.Fatalf("构造审计仓库失败: %v", err)
	}
	o := newOrchestrator(t, &stubModel{response: "report"}, WithAudit(repo))

	resp := o.Execute(context.Background(), Request{
		Query:  "quarterly compliance audit findings",
		UserID: "auditor-1",
	})
	if resp.Error != "" {
		t.Fatalf("请求失败: %q", resp.Error)
	}

	records, err := repo.ListLatest(context.Background(), 10)
	if err != nil {
		t.Fatalf("读取审计记录失败: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("审计记录数不符: %d", len(records))
	}
	if records[0].Agent != agent.NameComplianceAuditor {
		t.Fatalf("审计记录专家不符: %q", records[0].Agent)
	}
	if records[0].SessionID != resp.SessionID {
		t.Fatalf("审计记录会话不符: %q", records[0].SessionID)
	}
}

func TestExecuteAgentStandalone(t *testing.T) {
	o := newOrchestrator(t, &stubModel{response: "hunting hypotheses"})

	resp := o.ExecuteAgent(context.Background(), agent.NameThreatHunting, Request{
		Query: "review recent DNS logs",
	})
	if resp.Error != "" {
		t.Fatalf("请求失败: %q", resp.Error)
	}
	if resp.Metadata["agent"] != agent.NameThreatHunting {
		t.Fatalf("metadata.agent 不符: %v", resp.Metadata["agent"])
	}
	if len(resp.ExecutionPath) != 1 || resp.ExecutionPath[0] != agent.NameThreatHunting {
		t.Fatalf("独立调度路径不符: %v", resp.ExecutionPath)
	}

	bad := o.ExecuteAgent(context.Background(), "no_such_agent", Request{Query: "x"})
	if bad.Error == "" {
		t.Fatal("未注册专家应返回结构化失败")
	}
}
