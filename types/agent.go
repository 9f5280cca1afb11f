package types

// AgentType categorizes agents by their role in the fleet. Penalty records
// are grouped by type for disparate-impact analysis, so every governed agent
// must carry one.
type AgentType string

const (
	AgentTypeOrchestrator AgentType = "orchestrator"
	AgentTypeWorker       AgentType = "worker"
	AgentTypeBrainstormer AgentType = "brainstormer"
	AgentTypeSpecialist   AgentType = "specialist"
	AgentTypeReviewer     AgentType = "reviewer"
	AgentTypeMonitor      AgentType = "monitor"
	AgentTypeCustom       AgentType = "custom"
)

// AgentStatus is the lifecycle state reported by the fleet platform.
type AgentStatus string

const (
	AgentStatusInitializing AgentStatus = "initializing"
	AgentStatusReady        AgentStatus = "ready"
	AgentStatusBusy         AgentStatus = "busy"
	AgentStatusIdle         AgentStatus = "idle"
	AgentStatusPaused       AgentStatus = "paused"
	AgentStatusDegraded     AgentStatus = "degraded"
	AgentStatusOffline      AgentStatus = "offline"
	AgentStatusError        AgentStatus = "error"
)

// TaskPriority orders work in the shared queue. Penalty restrictions shift an
// agent's effective priority by a negative delta.
type TaskPriority int

const (
	PriorityLow      TaskPriority = 0
	PriorityNormal   TaskPriority = 1
	PriorityHigh     TaskPriority = 2
	PriorityCritical TaskPriority = 3
)

// String returns the wire name of the priority.
func (p TaskPriority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Apply shifts the priority by delta, clamped to the valid range.
func (p TaskPriority) Apply(delta int) TaskPriority {
	shifted := TaskPriority(int(p) + delta)
	if shifted < PriorityLow {
		return PriorityLow
	}
	if shifted > PriorityCritical {
		return PriorityCritical
	}
	return shifted
}
