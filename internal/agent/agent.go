package agent

import (
	"context"
	"fmt"
	"strings"

	"GuardianEye/internal/llm"
	"GuardianEye/internal/retrieval"
)

// retrievalTopK 是安全知识专家每次检索的文档数量。
const retrievalTopK = 3

// Input 是专家的标准输入，与共享会话状态解耦，
// 因此专家也可以脱离路由图被直接调用。
type Input struct {
	Query     string         `json:"query"`
	Context   map[string]any `json:"context,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
}

// Output 是专家的标准输出。
type Output struct {
	Result     string         `json:"result"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	NextAgent  string         `json:"next_agent,omitempty"`
	Confidence float64        `json:"confidence,omitempty"`
}

// profile 描述一个专家变体：读取哪些上下文键、默认值是什么、
// 使用哪段固定指令。变体之间只有这三处不同。
type profile struct {
	system string
	user   func(in Input, retrieved string) string
	post   func(in Input, response string, out *Output)
}

// Specialist 将一段角色指令绑定到一次大模型调用。
// 每次调用无内部状态，可以安全复用。
type Specialist struct {
	name      string
	model     llm.Client
	retriever retrieval.Retriever
	profile   profile
}

// Option 定义可选的专家配置。
type Option func(*Specialist)

// WithRetriever 为专家附加文档检索能力。目前只有安全知识专家使用。
func WithRetriever(r retrieval.Retriever) Option {
	return func(s *Specialist) {
		s.retriever = r
	}
}

// New 按名称构造专家。未注册的名称返回错误。
func New(name string, model llm.Client, opts ...Option) (*Specialist, error) {
	p, ok := profiles[name]
	if !ok {
		return nil, fmt.Errorf("未注册的专家: %s", name)
	}
	if model == nil {
		return nil, fmt.Errorf("专家 %s 未配置大模型客户端", name)
	}
	s := &Specialist{name: name, model: model, profile: p}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Name 返回专家名称。
func (s *Specialist) Name() string {
	return s.name
}

// Process 执行一次专家调用：填充模板，调用一次大模型，返回结构化结果。
// 大模型错误原样上抛，由顶层驱动器统一包装；专家不重试也不吞错。
func (s *Specialist) Process(ctx context.Context, in Input) (*Output, error) {
	retrieved := ""
	if s.name == NameSecurityKnowledge && s.retriever != nil {
		// 检索失败不阻断回答，退回未增强的模板。
		if docs, err := s.retriever.Search(ctx, in.Query, retrievalTopK); err == nil && len(docs) > 0 {
			passages := make([]string, 0, len(docs))
			for _, doc := range docs {
				passages = append(passages, doc.Content)
			}
			retrieved = strings.Join(passages, "\n\n")
		}
	}

	messages := []llm.Message{
		llm.System(s.profile.system),
		llm.User(s.profile.user(in, retrieved)),
	}
	response, err := s.model.Invoke(ctx, messages)
	if err != nil {
		return nil, err
	}

	out := &Output{
		Result: response,
		Metadata: map[string]any{
			"agent": s.name,
			"model": s.model.Model(),
		},
	}
	if s.name == NameSecurityKnowledge {
		out.Metadata["retrieval_augmented"] = retrieved != ""
	}
	if s.profile.post != nil {
		s.profile.post(in, response, out)
	}
	return out, nil
}

// contextValue 读取上下文覆盖值，缺失或非字符串时返回默认值。
func contextValue(in Input, key, fallback string) string {
	if raw, ok := in.Context[key]; ok {
		if value, ok := raw.(string); ok && strings.TrimSpace(value) != "" {
			return value
		}
	}
	return fallback
}

// hasContext 判断上下文中是否显式提供了某个键。
func hasContext(in Input, key string) bool {
	_, ok := in.Context[key]
	return ok
}

var profiles = map[string]profile{
	NameIncidentTriage: {
		system: incidentTriagePrompt,
		user: func(in Input, _ string) string {
			alert := contextValue(in, "alert_details", in.Query)
			severity := contextValue(in, "severity", "medium")
			return fmt.Sprintf("Alert details: %s\nSeverity: %s", alert, severity)
		},
		post: func(in Input, response string, out *Output) {
			out.Metadata["severity"] = contextValue(in, "severity", "medium")
			out.Metadata["summary"] = summarize(response)
			out.Metadata["suggested_actions"] = suggestedActions(response)
			priority := "medium"
			if strings.Contains(strings.ToLower(response), "critical") {
				priority = "high"
			}
			out.Metadata["priority"] = priority
		},
	},
	NameAnomalyInvestigation: {
		system: anomalyInvestigationPrompt,
		user: func(in Input, _ string) string {
			data := contextValue(in, "anomaly_data", in.Query)
			baseline := contextValue(in, "baseline", "Normal behavior not specified")
			return fmt.Sprintf("Anomaly data: %s\nBaseline: %s", data, baseline)
		},
		post: func(in Input, _ string, out *Output) {
			out.Metadata["has_baseline"] = hasContext(in, "baseline")
		},
	},
	NameVulnerabilityPrioritization: {
		system: vulnerabilityPrioritizationPrompt,
		user: func(in Input, _ string) string {
			vulns := contextValue(in, "vulnerabilities", in.Query)
			asset := contextValue(in, "asset_context", "No asset context provided")
			return fmt.Sprintf("Vulnerabilities: %s\nAsset context: %s", vulns, asset)
		},
		post: func(in Input, _ string, out *Output) {
			out.Metadata["has_asset_context"] = hasContext(in, "asset_context")
		},
	},
	NameThreatHunting: {
		system: threatHuntingPrompt,
		user: func(in Input, _ string) string {
			hunting := contextValue(in, "hunting_context", in.Query)
			known := contextValue(in, "known_threats", "No specific threats identified")
			return fmt.Sprintf("Context: %s\nKnown threats: %s", hunting, known)
		},
		post: func(in Input, _ string, out *Output) {
			out.Metadata["has_known_threats"] = hasContext(in, "known_threats")
		},
	},
	NameReconOrchestrator: {
		system: reconOrchestratorPrompt,
		user: func(in Input, _ string) string {
			target := contextValue(in, "target", "")
			objectives := contextValue(in, "objectives", in.Query)
			return fmt.Sprintf("Target: %s\nObjectives: %s", target, objectives)
		},
		post: func(in Input, _ string, out *Output) {
			out.Metadata["target"] = contextValue(in, "target", "")
		},
	},
	NameComplianceAuditor: {
		system: complianceAuditorPrompt,
		user: func(in Input, _ string) string {
			findings := contextValue(in, "findings", in.Query)
			framework := contextValue(in, "framework", "NIST CSF")
			scope := contextValue(in, "scope", "Organization-wide")
			return fmt.Sprintf("Findings: %s\nFramework: %s\nScope: %s", findings, framework, scope)
		},
		post: func(in Input, _ string, out *Output) {
			out.Metadata["framework"] = contextValue(in, "framework", "NIST CSF")
			out.Metadata["scope"] = contextValue(in, "scope", "Organization-wide")
		},
	},
	NameSecurityKnowledge: {
		system: securityKnowledgePrompt,
		user: func(in Input, retrieved string) string {
			knowledgeContext := contextValue(in, "knowledge_context", "General security inquiry")
			if retrieved != "" {
				knowledgeContext = retrieved
			}
			return fmt.Sprintf("Question: %s\nContext: %s\n\nPlease provide a comprehensive answer based on security best practices.", in.Query, knowledgeContext)
		},
	},
}

// summarize 截取响应开头作为摘要。
func summarize(response string) string {
	runes := []rune(strings.TrimSpace(response))
	if len(runes) <= 200 {
		return string(runes)
	}
	return string(runes[:200]) + "..."
}

// suggestedActions 从响应中提取前五条列表项作为建议动作。
func suggestedActions(response string) []string {
	actions := make([]string, 0, 5)
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "-") || strings.HasPrefix(line, "•") {
			action := strings.TrimSpace(strings.TrimLeft(line, "-• "))
			if action != "" {
				actions = append(actions, action)
			}
		}
		if len(actions) >= 5 {
			break
		}
	}
	if len(actions) == 0 {
		return []string{"Review alert details", "Investigate further"}
	}
	return actions
}
