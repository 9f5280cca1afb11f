// Package fixtures provides prebuilt metric readings for governance tests.
package fixtures

import "github.com/BaSui01/agentgov/types"

// HealthyMetrics returns readings no trigger fires on.
func HealthyMetrics() types.AgentMetrics {
	return types.AgentMetrics{
		ErrorRate:       0.02,
		TimeoutRate:     0.03,
		SuccessRate:     0.95,
		QualityScore:    0.90,
		BaselineQuality: 0.90,
		CurrentQuality:  0.90,
		ResourceUsage:   types.ResourceUsage{CPU: 0.4, Memory: 0.3},
		TaskCount:       50,
		AvgResponseTime: 120,
	}
}

// DegradedMetrics returns readings that trip the lowest error-rate band.
func DegradedMetrics() types.AgentMetrics {
	m := HealthyMetrics()
	m.ErrorRate = 0.18
	m.SuccessRate = 0.80
	return m
}

// FailingMetrics returns readings severe enough for a mid-level penalty.
func FailingMetrics() types.AgentMetrics {
	m := HealthyMetrics()
	m.ErrorRate = 0.42
	m.SuccessRate = 0.55
	return m
}

// SparseMetrics returns degraded readings under the minimum-sample floor,
// so no trigger may fire.
func SparseMetrics() types.AgentMetrics {
	m := FailingMetrics()
	m.TaskCount = 3
	return m
}

// CalmSystem returns a fleet status with no environmental pressure.
func CalmSystem() types.SystemStatus {
	return types.SystemStatus{
		Load:         0.3,
		QueueBacklog: 2,
		AvgLatencyMs: 80,
	}
}

// DegradedSystem returns a fleet status with high load and latency, the
// circumstances that suppress timeout triggers.
func DegradedSystem() types.SystemStatus {
	return types.SystemStatus{
		Load:         0.95,
		QueueBacklog: 400,
		AvgLatencyMs: 2500,
		HighLatency:  true,
	}
}

// WorkerState returns a ready worker with a solid history.
func WorkerState() types.AgentState {
	return types.AgentState{
		Type:                  types.AgentTypeWorker,
		Status:                types.AgentStatusReady,
		HistoricalSuccessRate: 0.92,
	}
}
