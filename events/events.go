// Package events carries governance events from the core to the external
// message bus. Components publish typed events through a Dispatcher; the
// Dispatcher forwards them to an Exchange collaborator, keeping transport
// concerns out of the governance logic.
package events

import (
	"context"
	"fmt"
	"time"
)

// Event is one governance occurrence bound for the bus. Implementations are
// plain structs with JSON tags; the dispatcher marshals the whole event as
// the payload.
type Event interface {
	// Topic returns the routing key the event is published under.
	Topic() string
	// OccurredAt returns when the event happened.
	OccurredAt() time.Time
}

// Exchange is the external bus collaborator. It is shared publish-only
// across all evaluation tasks; delivery guarantees are the transport's
// business, not the governance loop's.
type Exchange interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

// Topic builders. Routing keys follow the platform grammar
// <domain>.<action>[.<qualifier>].<agentID> so consumers can pattern-match
// on any prefix.

// TopicPenaltyApplied returns penalty.applied.level{N}.{agentID}.
func TopicPenaltyApplied(level int, agentID string) string {
	return fmt.Sprintf("penalty.applied.level%d.%s", level, agentID)
}

// TopicPenaltyRemoved returns penalty.removed.{agentID}.
func TopicPenaltyRemoved(agentID string) string {
	return "penalty.removed." + agentID
}

// TopicAppealFiled returns penalty.appeal.filed.{agentID}.
func TopicAppealFiled(agentID string) string {
	return "penalty.appeal.filed." + agentID
}

// TopicPenaltyReversed returns penalty.reversed.{agentID}.
func TopicPenaltyReversed(agentID string) string {
	return "penalty.reversed." + agentID
}

// TopicRetrainingStarted returns retraining.started.{agentID}.
func TopicRetrainingStarted(agentID string) string {
	return "retraining.started." + agentID
}

// TopicRetrainingCompleted returns retraining.completed.{agentID}.
func TopicRetrainingCompleted(agentID string) string {
	return "retraining.completed." + agentID
}

// TopicRetrainingFailed returns retraining.failed.{agentID}.
func TopicRetrainingFailed(agentID string) string {
	return "retraining.failed." + agentID
}
