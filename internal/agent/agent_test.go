package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"GuardianEye/internal/llm"
	"GuardianEye/internal/retrieval"
)

type stubModel struct {
	response string
	err      error
	calls    int
	lastMsgs []llm.Message
}

func (m *stubModel) Invoke(_ context.Context, msgs []llm.Message) (string, error) {
	m.calls++
	m.lastMsgs = msgs
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func (m *stubModel) Model() string {
	return "stub-model"
}

type failingRetriever struct{}

func (failingRetriever) Search(context.Context, string, int) ([]retrieval.Document, error) {
	return nil, errors.New("retrieval backend down")
}

func (failingRetriever) AddDocuments(context.Context, []retrieval.Document) ([]string, error) {
	return nil, errors.New("retrieval backend down")
}

func TestNewRejectsUnknownName(t *testing.T) {
	if _, err := New("no_such_agent", &stubModel{}); err == nil {
		t.Fatal("期望未注册名称返回错误")
	}
}

func TestNewRejectsNilModel(t *testing.T) {
	if _, err := New(NameIncidentTriage, nil); err == nil {
		t.Fatal("期望缺少模型客户端时返回错误")
	}
}

func TestProcessSingleModelCall(t *testing.T) {
	model := &stubModel{response: "analysis complete"}
	spec, err := New(NameThreatHunting, model)
	if err != nil {
		t.Fatalf("构造专家失败: %v", err)
	}

	out, err := spec.Process(context.Background(), Input{Query: "hunt for lateral movement"})
	if err != nil {
		t.Fatalf("Process 失败: %v", err)
	}
	if model.calls != 1 {
		t.Fatalf("期望恰好一次模型调用, 实际 %d", model.calls)
	}
	if out.Result != "analysis complete" {
		t.Fatalf("结果不符: %q", out.Result)
	}
	if out.Metadata["agent"] != NameThreatHunting {
		t.Fatalf("metadata.agent 不符: %v", out.Metadata["agent"])
	}
	if out.Metadata["model"] != "stub-model" {
		t.Fatalf("metadata.model 不符: %v", out.Metadata["model"])
	}
}

func TestProcessPropagatesModelError(t *testing.T) {
	wantErr := errors.New("provider unavailable")
	spec, err := New(NameAnomalyInvestigation, &stubModel{err: wantErr})
	if err != nil {
		t.Fatalf("构造专家失败: %v", err)
	}
	if _, err := spec.Process(context.Background(), Input{Query: "spike in logins"}); !errors.Is(err, wantErr) {
		t.Fatalf("期望模型错误原样上抛, 实际 %v", err)
	}
}

func TestProcessContextDefaults(t *testing.T) {
	model := &stubModel{response: "ok"}
	spec, err := New(NameIncidentTriage, model)
	if err != nil {
		t.Fatalf("构造专家失败: %v", err)
	}
	if _, err := spec.Process(context.Background(), Input{Query: "suspicious alert"}); err != nil {
		t.Fatalf("Process 失败: %v", err)
	}

	user := model.lastMsgs[len(model.lastMsgs)-1].Content
	if !strings.Contains(user, "Alert details: suspicious alert") {
		t.Fatalf("告警详情未回退到查询文本: %q", user)
	}
	if !strings.Contains(user, "Severity: medium") {
		t.Fatalf("严重级别未使用默认值: %q", user)
	}
}

func TestProcessContextOverrides(t *testing.T) {
	model := &stubModel{response: "ok"}
	spec, err := New(NameComplianceAuditor, model)
	if err != nil {
		t.Fatalf("构造专家失败: %v", err)
	}
	in := Input{
		Query: "review audit findings",
		Context: map[string]any{
			"framework": "GDPR",
			"scope":     "EU operations",
		},
	}
	out, err := spec.Process(context.Background(), in)
	if err != nil {
		t.Fatalf("Process 失败: %v", err)
	}

	user := model.lastMsgs[len(model.lastMsgs)-1].Content
	if !strings.Contains(user, "Framework: GDPR") {
		t.Fatalf("框架覆盖值未生效: %q", user)
	}
	if out.Metadata["framework"] != "GDPR" || out.Metadata["scope"] != "EU operations" {
		t.Fatalf("合规元数据不符: %v", out.Metadata)
	}
}

func TestIncidentTriagePostProcessing(t *testing.T) {
	response := strings.Join([]string{
		"This is a CRITICAL incident requiring immediate action.",
		"- Isolate the affected host",
		"- Reset compromised credentials",
		"- Preserve forensic evidence",
		"- Notify the incident commander",
		"- Review firewall rules",
		"- This sixth action should be dropped",
	}, "\n")
	spec, err := New(NameIncidentTriage, &stubModel{response: response})
	if err != nil {
		t.Fatalf("构造专家失败: %v", err)
	}

	out, err := spec.Process(context.Background(), Input{Query: "ransomware alert"})
	if err != nil {
		t.Fatalf("Process 失败: %v", err)
	}
	if out.Metadata["priority"] != "high" {
		t.Fatalf("包含 critical 时优先级应为 high, 实际 %v", out.Metadata["priority"])
	}
	actions, ok := out.Metadata["suggested_actions"].([]string)
	if !ok {
		t.Fatalf("suggested_actions 类型不符: %T", out.Metadata["suggested_actions"])
	}
	if len(actions) != 5 {
		t.Fatalf("建议动作应截断到 5 条, 实际 %d", len(actions))
	}
	if actions[0] != "Isolate the affected host" {
		t.Fatalf("首条建议动作不符: %q", actions[0])
	}
}

func TestIncidentTriageActionFallback(t *testing.T) {
	spec, err := New(NameIncidentTriage, &stubModel{response: "No list items in this response."})
	if err != nil {
		t.Fatalf("构造专家失败: %v", err)
	}
	out, err := spec.Process(context.Background(), Input{Query: "alert"})
	if err != nil {
		t.Fatalf("Process 失败: %v", err)
	}
	actions, ok := out.Metadata["suggested_actions"].([]string)
	if !ok || len(actions) != 2 {
		t.Fatalf("期望两条兜底建议, 实际 %v", out.Metadata["suggested_actions"])
	}
	if out.Metadata["priority"] != "medium" {
		t.Fatalf("默认优先级应为 medium, 实际 %v", out.Metadata["priority"])
	}
}

func TestSummarizeTruncatesLongResponse(t *testing.T) {
	long := strings.Repeat("a", 300)
	got := summarize(long)
	if len([]rune(got)) != 203 {
		t.Fatalf("摘要长度不符: %d", len([]rune(got)))
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("摘要应以省略号结尾: %q", got)
	}
}

func TestSecurityKnowledgeUsesRetrievedPassages(t *testing.T) {
	store := retrieval.NewMemoryStore()
	docs := []retrieval.Document{
		{Content: "Zero Trust means never trust, always verify."},
		{Content: "Defense in Depth layers multiple security controls."},
	}
	if _, err := store.AddDocuments(context.Background(), docs); err != nil {
		t.Fatalf("写入语料失败: %v", err)
	}

	model := &stubModel{response: "answer"}
	spec, err := New(NameSecurityKnowledge, model, WithRetriever(store))
	if err != nil {
		t.Fatalf("构造专家失败: %v", err)
	}
	out, err := spec.Process(context.Background(), Input{Query: "what is zero trust"})
	if err != nil {
		t.Fatalf("Process 失败: %v", err)
	}

	user := model.lastMsgs[len(model.lastMsgs)-1].Content
	if !strings.Contains(user, "never trust, always verify") {
		t.Fatalf("检索段落未进入模板: %q", user)
	}
	if out.Metadata["retrieval_augmented"] != true {
		t.Fatalf("retrieval_augmented 应为 true, 实际 %v", out.Metadata["retrieval_augmented"])
	}
}

func TestSecurityKnowledgeDegradesOnRetrievalFailure(t *testing.T) {
	model := &stubModel{response: "answer"}
	spec, err := New(NameSecurityKnowledge, model, WithRetriever(failingRetriever{}))
	if err != nil {
		t.Fatalf("构造专家失败: %v", err)
	}
	out, err := spec.Process(context.Background(), Input{Query: "what is zero trust"})
	if err != nil {
		t.Fatalf("检索失败不应阻断回答: %v", err)
	}

	user := model.lastMsgs[len(model.lastMsgs)-1].Content
	if !strings.Contains(user, "General security inquiry") {
		t.Fatalf("检索失败时应回退到默认上下文: %q", user)
	}
	if out.Metadata["retrieval_augmented"] != false {
		t.Fatalf("retrieval_augmented 应为 false, 实际 %v", out.Metadata["retrieval_augmented"])
	}
}
