package types

// ResourceUsage holds consumption ratios relative to the agent's allocated
// budget: 1.0 means exactly at budget, 2.0 means double.
type ResourceUsage struct {
	CPU     float64 `json:"cpu"`
	Memory  float64 `json:"memory"`
	Network float64 `json:"network"`
}

// Max returns the larger of the CPU and memory ratios, the figure the
// resource-abuse trigger evaluates.
func (r ResourceUsage) Max() float64 {
	if r.CPU > r.Memory {
		return r.CPU
	}
	return r.Memory
}

// AgentMetrics is the per-agent performance snapshot delivered by the
// monitoring collaborator on every evaluation cycle. Field names follow the
// platform's wire contract, so JSON tags are camelCase rather than the usual
// snake_case.
//
// TaskCount gates trigger evaluation: below a trigger's minimum-sample floor
// the evaluator declines to fire that trigger regardless of the rates.
type AgentMetrics struct {
	ErrorRate                float64       `json:"errorRate"`
	TimeoutRate              float64       `json:"timeoutRate"`
	SuccessRate              float64       `json:"successRate"`
	QualityScore             float64       `json:"qualityScore"`
	BaselineQuality          float64       `json:"baselineQuality"`
	CurrentQuality           float64       `json:"currentQuality"`
	CollaborationFailureRate float64       `json:"collaborationFailureRate"`
	ResourceUsage            ResourceUsage `json:"resourceUsage"`
	TaskCount                int           `json:"taskCount"`
	AvgResponseTime          float64       `json:"avgResponseTime"`
}

// QualityDrop returns the fractional drop from baseline quality, zero when no
// baseline is known or quality has not dropped.
func (m AgentMetrics) QualityDrop() float64 {
	if m.BaselineQuality <= 0 {
		return 0
	}
	drop := (m.BaselineQuality - m.CurrentQuality) / m.BaselineQuality
	if drop < 0 {
		return 0
	}
	return drop
}

// SystemStatus is the fleet-wide circumstance reading used to separate an
// agent's own failures from environmental ones.
type SystemStatus struct {
	Load               float64 `json:"load"`
	QueueBacklog       int     `json:"queueBacklog"`
	AvgLatencyMs       float64 `json:"avgLatencyMs"`
	HighLatency        bool    `json:"highLatency"`
	BrokerIssues       bool    `json:"brokerIssues"`
	NetworkIssues      bool    `json:"networkIssues"`
	DependencyFailures bool    `json:"dependencyFailures"`
}

// AgentState carries the per-agent circumstance flags the evaluator folds
// into its context snapshot.
type AgentState struct {
	Type                  AgentType   `json:"type"`
	Status                AgentStatus `json:"status"`
	RecentlyRestarted     bool        `json:"recentlyRestarted"`
	UnderResourcePressure bool        `json:"underResourcePressure"`
	HistoricalSuccessRate float64     `json:"historicalSuccessRate"`
}
