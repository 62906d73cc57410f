package retrieval

import "context"

// seedCorpus 是安全知识专家的基础语料。
var seedCorpus = []Document{
	{
		Content: "NIST Cybersecurity Framework consists of five core functions: Identify, Protect, Detect, Respond, and Recover. It provides a policy framework of computer security guidance for how organizations can assess and improve their ability to prevent, detect, and respond to cyber attacks.",
		Metadata: map[string]string{"source": "NIST CSF", "category": "framework"},
	},
	{
		Content: "The OWASP Top 10 is a standard awareness document for web application security. It represents a broad consensus about the most critical security risks to web applications. Current top risks include Injection, Broken Authentication, Sensitive Data Exposure, XML External Entities (XXE), Broken Access Control, Security Misconfiguration, Cross-Site Scripting (XSS), Insecure Deserialization, Using Components with Known Vulnerabilities, and Insufficient Logging & Monitoring.",
		Metadata: map[string]string{"source": "OWASP", "category": "vulnerabilities"},
	},
	{
		Content: "Incident Response Process typically follows these phases: 1) Preparation - establishing incident response capabilities, 2) Detection & Analysis - identifying and analyzing security incidents, 3) Containment, Eradication & Recovery - stopping the incident and restoring systems, 4) Post-Incident Activity - lessons learned and improvements.",
		Metadata: map[string]string{"source": "NIST SP 800-61", "category": "incident_response"},
	},
	{
		Content: "Zero Trust Architecture is based on the principle of 'never trust, always verify'. It assumes no implicit trust is granted to assets or user accounts based solely on their physical or network location. Key principles include: verify explicitly, use least privilege access, and assume breach.",
		Metadata: map[string]string{"source": "NIST SP 800-207", "category": "architecture"},
	},
	{
		Content: "MITRE ATT&CK is a globally-accessible knowledge base of adversary tactics and techniques based on real-world observations. It provides a common taxonomy of adversary behavior organized into tactics (what adversaries are trying to achieve) and techniques (how they achieve it).",
		Metadata: map[string]string{"source": "MITRE", "category": "threat_intelligence"},
	},
	{
		Content: "Security Information and Event Management (SIEM) systems provide real-time analysis of security alerts generated by applications and network hardware. Key capabilities include: log aggregation, correlation, alerting, dashboards, compliance reporting, and forensic analysis.",
		Metadata: map[string]string{"source": "Security Best Practices", "category": "tools"},
	},
	{
		Content: "Vulnerability Management Lifecycle: 1) Discovery - identify assets and vulnerabilities, 2) Prioritization - assess risk and business impact, 3) Remediation - apply patches or mitigations, 4) Verification - confirm fixes are effective. CVSS scoring helps prioritize based on severity.",
		Metadata: map[string]string{"source": "Security Operations", "category": "vulnerability_management"},
	},
	{
		Content: "Defense in Depth strategy employs multiple layers of security controls. If one layer fails, others continue to provide protection. Layers include: perimeter security, network security, host security, application security, and data security.",
		Metadata: map[string]string{"source": "Security Architecture", "category": "defense_strategy"},
	},
}

// SeedDocuments 将基础语料写入文档存储，返回写入数量。
// 播种只应在启动阶段执行一次。
func SeedDocuments(ctx context.Context, store Retriever) (int, error) {
	ids, err := store.AddDocuments(ctx, seedCorpus)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}
