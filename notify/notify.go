// Package notify delivers governance notices directly to the affected
// agents. Notices are advisory: an agent without an open channel simply
// misses them and learns its standing on the next status query, so delivery
// never blocks or fails the governance flow.
package notify

import (
	"context"
	"time"
)

// Kind classifies a notice.
type Kind string

const (
	KindPenaltyApplied       Kind = "penalty_applied"
	KindPenaltyReversed      Kind = "penalty_reversed"
	KindStageStarted         Kind = "stage_started"
	KindStageCompleted       Kind = "stage_completed"
	KindRetrainingCompleted  Kind = "retraining_completed"
	KindRetrainingFailed     Kind = "retraining_failed"
	KindSupervisorCorrection Kind = "supervisor_correction"
)

// Notice is one message to one agent.
type Notice struct {
	AgentID string         `json:"agentId"`
	Kind    Kind           `json:"kind"`
	Detail  map[string]any `json:"detail,omitempty"`
	SentAt  time.Time      `json:"sentAt"`
}

// Notifier pushes notices to agents. Implementations treat an unreachable
// agent as a no-op, not an error.
type Notifier interface {
	Notify(ctx context.Context, notice Notice)
}

// NopNotifier discards every notice.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(context.Context, Notice) {}
