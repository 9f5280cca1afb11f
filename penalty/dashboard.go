package penalty

import (
	"time"

	"github.com/BaSui01/agentgov/evaluator"
	"github.com/BaSui01/agentgov/throttle"
	"github.com/BaSui01/agentgov/types"
)

// statusHistoryLimit caps the per-agent history slices returned by
// PenaltyStatus. Full history lives in the archive.
const statusHistoryLimit = 5

// Status is the per-agent governance picture: current state, the active
// penalty if any, and recent history, most recent first.
type Status struct {
	AgentID       string          `json:"agentId"`
	State         State           `json:"state"`
	Active        *Penalty        `json:"active,omitempty"`
	PendingAppeal *Appeal         `json:"pendingAppeal,omitempty"`
	Probation     *Probation      `json:"probation,omitempty"`
	Compensation  *Compensation   `json:"compensation,omitempty"`
	SessionID     string          `json:"sessionId,omitempty"`
	Throttle      throttle.Status `json:"throttle"`
	History       []*Penalty      `json:"history,omitempty"`
	Appeals       []*Appeal       `json:"appeals,omitempty"`
}

// Dashboard is the fleet-wide governance snapshot.
type Dashboard struct {
	GeneratedAt     time.Time                `json:"generatedAt"`
	Agents          int                      `json:"agents"`
	ActivePenalties int                      `json:"activePenalties"`
	ByLevel         map[int]int              `json:"byLevel"`
	ByState         map[State]int            `json:"byState"`
	Retraining      int                      `json:"retraining"`
	Probation       int                      `json:"probation"`
	PendingAppeals  int                      `json:"pendingAppeals"`
	Stats           evaluator.FairnessStats  `json:"stats"`
	Fairness        evaluator.FairnessReport `json:"fairness"`
	Bias            evaluator.BiasReport     `json:"bias"`
}

// PenaltyStatus reports the agent's current governance state. Everything
// returned is a copy; callers cannot mutate manager state through it.
func (m *Manager) PenaltyStatus(agentID string) (*Status, error) {
	rec, ok := m.reg.get(agentID)
	if !ok {
		return nil, types.Errorf(types.ErrAgentUnknown, "agent %s is not enrolled", agentID)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	st := &Status{
		AgentID:   agentID,
		State:     rec.state,
		SessionID: rec.sessionID,
		Throttle:  rec.throttle.Status(),
	}
	if rec.active != nil {
		st.Active = rec.active.clone()
	}
	if rec.appeal != nil {
		st.PendingAppeal = rec.appeal.clone()
	}
	if rec.probation != nil {
		p := *rec.probation
		st.Probation = &p
	}
	if rec.compensation != nil {
		c := *rec.compensation
		st.Compensation = &c
	}
	for i := len(rec.history) - 1; i >= 0 && len(st.History) < statusHistoryLimit; i-- {
		st.History = append(st.History, rec.history[i].clone())
	}
	for i := len(rec.appeals) - 1; i >= 0 && len(st.Appeals) < statusHistoryLimit; i-- {
		st.Appeals = append(st.Appeals, rec.appeals[i].clone())
	}
	return st, nil
}

// Dashboard aggregates the fleet: penalty counts by level and state,
// pending appeals, and the fairness picture. Records are locked one at a
// time, so the snapshot is per-agent consistent rather than fleet-atomic.
func (m *Manager) Dashboard() Dashboard {
	d := Dashboard{
		GeneratedAt: m.now(),
		ByLevel:     make(map[int]int),
		ByState:     make(map[State]int),
	}

	var samples []evaluator.PenaltySample
	for _, rec := range m.reg.all() {
		rec.mu.Lock()
		d.Agents++
		d.ByState[rec.state]++
		if rec.state == StateRetraining {
			d.Retraining++
		}
		if rec.probation != nil {
			d.Probation++
		}
		if rec.appeal != nil {
			d.PendingAppeals++
		}
		if rec.active != nil {
			d.ActivePenalties++
			d.ByLevel[rec.active.Level]++
			samples = append(samples, evaluator.PenaltySample{
				Category:     rec.active.Category,
				MarkedUnfair: rec.active.MarkedUnfair,
			})
		}
		for _, p := range rec.history {
			samples = append(samples, evaluator.PenaltySample{
				Category:     p.Category,
				MarkedUnfair: p.MarkedUnfair,
			})
		}
		rec.mu.Unlock()
	}

	m.mu.Lock()
	d.Stats = m.fairness
	m.mu.Unlock()
	d.Fairness = m.eval.FairnessMetrics(d.Stats)
	d.Bias = m.eval.DetectBias(samples)
	return d
}
