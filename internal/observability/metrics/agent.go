package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type agentKey struct {
	agent string
	team  string
}

type agentCollector struct {
	mu       sync.Mutex
	runs     map[agentKey]uint64
	failures map[agentKey]uint64
	latency  map[agentKey]*histogram
}

var agentMetrics = &agentCollector{
	runs:     make(map[agentKey]uint64),
	failures: make(map[agentKey]uint64),
	latency:  make(map[agentKey]*histogram),
}

// ObserveAgentRun 记录一次专家执行的结果与耗时。
func ObserveAgentRun(agent, team string, success bool, duration time.Duration) {
	agentMetrics.observe(agent, team, success, duration)
}

func (c *agentCollector) observe(agent, team string, success bool, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := agentKey{agent: agent, team: team}
	c.runs[key]++
	if !success {
		c.failures[key]++
	}
	hist := c.latency[key]
	if hist == nil {
		hist = newHistogram()
		c.latency[key] = hist
	}
	hist.observe(duration.Seconds())
}

func (c *agentCollector) render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]agentKey, 0, len(c.runs))
	for key := range c.runs {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].team == keys[j].team {
			return keys[i].agent < keys[j].agent
		}
		return keys[i].team < keys[j].team
	})

	var builder strings.Builder
	builder.Grow(512)

	builder.WriteString("# HELP guardianeye_agent_runs_total Total number of specialist agent executions.\n")
	builder.WriteString("# TYPE guardianeye_agent_runs_total counter\n")
	for _, key := range keys {
		builder.WriteString(fmt.Sprintf("guardianeye_agent_runs_total{agent=\"%s\",team=\"%s\"} %d\n",
			escape(key.agent), escape(key.team), c.runs[key]))
	}

	builder.WriteString("# HELP guardianeye_agent_failures_total Total number of failed specialist agent executions.\n")
	builder.WriteString("# TYPE guardianeye_agent_failures_total counter\n")
	for _, key := range keys {
		if c.failures[key] == 0 {
			continue
		}
		builder.WriteString(fmt.Sprintf("guardianeye_agent_failures_total{agent=\"%s\",team=\"%s\"} %d\n",
			escape(key.agent), escape(key.team), c.failures[key]))
	}

	builder.WriteString("# HELP guardianeye_agent_duration_seconds Specialist agent execution duration in seconds.\n")
	builder.WriteString("# TYPE guardianeye_agent_duration_seconds histogram\n")
	for _, key := range keys {
		hist := c.latency[key]
		if hist == nil {
			continue
		}
		for idx, bound := range hist.buckets {
			builder.WriteString(fmt.Sprintf("guardianeye_agent_duration_seconds_bucket{agent=\"%s\",team=\"%s\",le=\"%s\"} %d\n",
				escape(key.agent), escape(key.team), formatFloat(bound), hist.counts[idx]))
		}
		builder.WriteString(fmt.Sprintf("guardianeye_agent_duration_seconds_bucket{agent=\"%s\",team=\"%s\",le=\"+Inf\"} %d\n",
			escape(key.agent), escape(key.team), hist.count))
		builder.WriteString(fmt.Sprintf("guardianeye_agent_duration_seconds_sum{agent=\"%s\",team=\"%s\"} %s\n",
			escape(key.agent), escape(key.team), formatFloat(hist.sum)))
		builder.WriteString(fmt.Sprintf("guardianeye_agent_duration_seconds_count{agent=\"%s\",team=\"%s\"} %d\n",
			escape(key.agent), escape(key.team), hist.count))
	}

	return builder.String()
}
