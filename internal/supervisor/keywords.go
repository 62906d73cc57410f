package supervisor

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"GuardianEye/internal/agent"
)

// Strategy 标识路由决策方式。
type Strategy string

const (
	// StrategyKeyword 按关键词表做确定性路由，零模型调用。
	StrategyKeyword Strategy = "keyword"
	// StrategyModel 由大模型做一次路由决策。
	StrategyModel Strategy = "model"
)

// ParseStrategy 解析策略名，空值回退到关键词策略。
func ParseStrategy(raw string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(raw))) {
	case StrategyKeyword, "":
		return StrategyKeyword, nil
	case StrategyModel:
		return StrategyModel, nil
	default:
		return "", fmt.Errorf("未知的路由策略: %s", raw)
	}
}

// Rule 是一条关键词路由规则。规则按声明顺序匹配，先命中先生效。
type Rule struct {
	Target   string   `yaml:"target"`
	Keywords []string `yaml:"keywords"`
}

// Table 是一个路由节点的完整关键词表。
// Default 是关键词全部未命中时的兜底目标，永远不是 FINISH。
// ModelDefault 是模型策略下响应不在白名单时的兜底目标，
// 留空时复用 Default。
type Table struct {
	Rules        []Rule `yaml:"rules"`
	Default      string `yaml:"default"`
	ModelDefault string `yaml:"model_default"`
}

// RoutingTables 汇总主路由与各团队路由的关键词表，
// 结构与 configs/routing.yaml 对应。
type RoutingTables struct {
	Main  Table            `yaml:"main"`
	Teams map[string]Table `yaml:"teams"`
}

// DefaultRoutingTables 返回内置关键词表。
// 主路由未命中兜底到治理团队，模型响应无效时兜底到安全运营团队，
// 两者的不对称是有意保留的历史行为。
func DefaultRoutingTables() RoutingTables {
	return RoutingTables{
		Main: Table{
			Rules: []Rule{
				{
					Target:   agent.TeamSecurityOps,
					Keywords: []string{"incident", "triage", "alert", "anomaly", "vulnerability", "cve", "breach", "login"},
				},
				{
					Target:   agent.TeamThreatIntel,
					Keywords: []string{"threat", "hunt", "hunting", "ioc", "recon", "reconnaissance", "intelligence", "exfiltration"},
				},
				{
					Target:   agent.TeamGovernance,
					Keywords: []string{"compliance", "audit", "policy", "framework", "nist", "gdpr", "best practice", "knowledge", "architecture"},
				},
			},
			Default:      agent.TeamGovernance,
			ModelDefault: agent.TeamSecurityOps,
		},
		Teams: map[string]Table{
			agent.TeamSecurityOps: {
				Rules: []Rule{
					{
						Target:   agent.NameAnomalyInvestigation,
						Keywords: []string{"anomaly", "anomalous", "unusual", "baseline", "behavior"},
					},
					{
						Target:   agent.NameVulnerabilityPrioritization,
						Keywords: []string{"vulnerability", "cve", "cvss", "patch"},
					},
					{
						Target:   agent.NameIncidentTriage,
						Keywords: []string{"incident", "triage", "alert", "breach"},
					},
				},
				Default: agent.NameIncidentTriage,
			},
			agent.TeamThreatIntel: {
				Rules: []Rule{
					{
						Target:   agent.NameReconOrchestrator,
						Keywords: []string{"recon", "reconnaissance", "osint", "intelligence gathering"},
					},
					{
						Target:   agent.NameThreatHunting,
						Keywords: []string{"hunt", "hunting", "ioc", "hypothesis"},
					},
				},
				Default: agent.NameThreatHunting,
			},
			agent.TeamGovernance: {
				Rules: []Rule{
					{
						Target:   agent.NameComplianceAuditor,
						Keywords: []string{"compliance", "audit", "regulation", "gdpr", "violation"},
					},
					{
						Target:   agent.NameSecurityKnowledge,
						Keywords: []string{"knowledge", "best practice", "architecture", "framework", "nist"},
					},
				},
				Default: agent.NameSecurityKnowledge,
			},
		},
	}
}

// LoadRoutingTables 从 YAML 文件加载关键词表。路径为空时返回内置表。
func LoadRoutingTables(path string) (RoutingTables, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultRoutingTables(), nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return RoutingTables{}, fmt.Errorf("读取路由配置失败: %w", err)
	}

	var tables RoutingTables
	if err := yaml.Unmarshal(content, &tables); err != nil {
		return RoutingTables{}, fmt.Errorf("解析路由配置失败: %w", err)
	}
	if err := tables.Validate(); err != nil {
		return RoutingTables{}, err
	}
	return tables, nil
}

// Validate 校验所有目标都指向已注册的团队或专家，且兜底目标不缺失。
func (t RoutingTables) Validate() error {
	if !agent.IsTeam(t.Main.Default) {
		return fmt.Errorf("主路由兜底目标无效: %s", t.Main.Default)
	}
	if t.Main.ModelDefault != "" && !agent.IsTeam(t.Main.ModelDefault) {
		return fmt.Errorf("主路由模型兜底目标无效: %s", t.Main.ModelDefault)
	}
	for _, rule := range t.Main.Rules {
		if !agent.IsTeam(rule.Target) {
			return fmt.Errorf("主路由规则目标无效: %s", rule.Target)
		}
	}

	for team, table := range t.Teams {
		if !agent.IsTeam(team) {
			return fmt.Errorf("未知团队: %s", team)
		}
		if !memberOf(team, table.Default) {
			return fmt.Errorf("团队 %s 的兜底目标无效: %s", team, table.Default)
		}
		if table.ModelDefault != "" && !memberOf(team, table.ModelDefault) {
			return fmt.Errorf("团队 %s 的模型兜底目标无效: %s", team, table.ModelDefault)
		}
		for _, rule := range table.Rules {
			if !memberOf(team, rule.Target) {
				return fmt.Errorf("团队 %s 的规则目标无效: %s", team, rule.Target)
			}
		}
	}
	return nil
}

// match 按声明顺序匹配关键词，返回第一条命中的目标。
func (t Table) match(text string) (string, bool) {
	lowered := strings.ToLower(text)
	for _, rule := range t.Rules {
		for _, keyword := range rule.Keywords {
			if keyword != "" && strings.Contains(lowered, strings.ToLower(keyword)) {
				return rule.Target, true
			}
		}
	}
	return "", false
}

// modelFallback 返回模型策略下的兜底目标。
func (t Table) modelFallback() string {
	if t.ModelDefault != "" {
		return t.ModelDefault
	}
	return t.Default
}

func memberOf(team, name string) bool {
	for _, member := range agent.TeamAgents(team) {
		if member == name {
			return true
		}
	}
	return false
}
