package agent

// 专家与团队的名称在整个系统内作为路由键使用。
const (
	NameIncidentTriage              = "incident_triage"
	NameAnomalyInvestigation        = "anomaly_investigation"
	NameVulnerabilityPrioritization = "vulnerability_prioritization"
	NameThreatHunting               = "threat_hunting"
	NameReconOrchestrator           = "recon_orchestrator"
	NameComplianceAuditor           = "compliance_auditor"
	NameSecurityKnowledge           = "security_knowledge"
)

const (
	TeamSecurityOps = "security_ops_team"
	TeamThreatIntel = "threat_intel_team"
	TeamGovernance  = "governance_team"
)

// Finish 是路由器的终止信号，表示无需继续分派。
const Finish = "FINISH"

// 团队到专家的映射在进程启动时构建，运行期只读。
var teamAgents = map[string][]string{
	TeamSecurityOps: {
		NameIncidentTriage,
		NameAnomalyInvestigation,
		NameVulnerabilityPrioritization,
	},
	TeamThreatIntel: {
		NameThreatHunting,
		NameReconOrchestrator,
	},
	TeamGovernance: {
		NameComplianceAuditor,
		NameSecurityKnowledge,
	},
}

var agentTeam = func() map[string]string {
	index := make(map[string]string)
	for team, agents := range teamAgents {
		for _, name := range agents {
			index[name] = team
		}
	}
	return index
}()

// Teams 返回全部团队名称。
func Teams() []string {
	return []string{TeamSecurityOps, TeamThreatIntel, TeamGovernance}
}

// TeamAgents 返回指定团队的专家名单副本。未知团队返回 nil。
func TeamAgents(team string) []string {
	agents, ok := teamAgents[team]
	if !ok {
		return nil
	}
	return append([]string(nil), agents...)
}

// TeamOf 返回专家所属的团队。
func TeamOf(name string) (string, bool) {
	team, ok := agentTeam[name]
	return team, ok
}

// IsSpecialist 判断名称是否为已注册的专家。
func IsSpecialist(name string) bool {
	_, ok := agentTeam[name]
	return ok
}

// IsTeam 判断名称是否为已注册的团队。
func IsTeam(name string) bool {
	_, ok := teamAgents[name]
	return ok
}
