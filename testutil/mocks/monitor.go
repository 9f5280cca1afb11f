// Package mocks provides scripted collaborator doubles for governance
// tests: a monitoring source serving canned readings and a training-task
// executor with scripted outcomes.
package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/BaSui01/agentgov/types"
)

// Monitor is a scripted penalty.MonitorSource. Readings are set per agent;
// ListAgents returns every agent with metrics, sorted for determinism. An
// injected error fails every fetch until cleared.
type Monitor struct {
	mu      sync.Mutex
	metrics map[string]types.AgentMetrics
	states  map[string]types.AgentState
	sys     types.SystemStatus
	err     error
}

// NewMonitor creates an empty scripted monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		metrics: make(map[string]types.AgentMetrics),
		states:  make(map[string]types.AgentState),
	}
}

// SetMetrics scripts the agent's next metric readings.
func (m *Monitor) SetMetrics(agentID string, metrics types.AgentMetrics) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics[agentID] = metrics
}

// SetState scripts the agent's circumstance flags.
func (m *Monitor) SetState(agentID string, state types.AgentState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[agentID] = state
}

// SetSystemStatus scripts the fleet-wide reading.
func (m *Monitor) SetSystemStatus(sys types.SystemStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sys = sys
}

// Fail makes every subsequent fetch return err; Fail(nil) clears it.
func (m *Monitor) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// ListAgents implements penalty.MonitorSource.
func (m *Monitor) ListAgents(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	ids := make([]string, 0, len(m.metrics))
	for id := range m.metrics {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// AgentMetrics implements penalty.MonitorSource. Unknown agents get zero
// metrics, which no trigger fires on.
func (m *Monitor) AgentMetrics(_ context.Context, agentID string) (types.AgentMetrics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return types.AgentMetrics{}, m.err
	}
	return m.metrics[agentID], nil
}

// SystemStatus implements penalty.MonitorSource.
func (m *Monitor) SystemStatus(context.Context) (types.SystemStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return types.SystemStatus{}, m.err
	}
	return m.sys, nil
}

// AgentState implements penalty.MonitorSource.
func (m *Monitor) AgentState(_ context.Context, agentID string) (types.AgentState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return types.AgentState{}, m.err
	}
	return m.states[agentID], nil
}
