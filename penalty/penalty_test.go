package penalty

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentgov/evaluator"
	"github.com/BaSui01/agentgov/types"
)

func TestRestrictionsForLevel(t *testing.T) {
	tests := []struct {
		name  string
		level int
		want  Restrictions
	}{
		{
			name:  "level 1 warning only",
			level: 1,
			want:  Restrictions{ComputeMultiplier: 1.0, CanLeadCollaboration: true},
		},
		{
			name:  "level 2 slows refill and drops priority",
			level: 2,
			want:  Restrictions{ComputeMultiplier: 0.9, PriorityDelta: -1, CanLeadCollaboration: true},
		},
		{
			name:  "level 3 loses collaboration lead",
			level: 3,
			want:  Restrictions{ComputeMultiplier: 0.8, PriorityDelta: -1},
		},
		{
			name:  "level 4 restricted to safe task types",
			level: 4,
			want: Restrictions{
				ComputeMultiplier:   0.7,
				PriorityDelta:       -2,
				AllowedTaskTypes:    []string{"routine", "low_risk"},
				RequiresSupervision: true,
			},
		},
		{
			name:  "level 5 training tasks only",
			level: 5,
			want: Restrictions{
				ComputeMultiplier:   0.5,
				PriorityDelta:       -2,
				AllowedTaskTypes:    []string{"training"},
				RequiresSupervision: true,
			},
		},
		{
			name:  "level 6 fully suspended",
			level: 6,
			want: Restrictions{
				ComputeMultiplier:   0.0,
				PriorityDelta:       -3,
				AllowedTaskTypes:    []string{},
				RequiresSupervision: true,
			},
		},
		{
			name:  "below range clamps to 1",
			level: 0,
			want:  Restrictions{ComputeMultiplier: 1.0, CanLeadCollaboration: true},
		},
		{
			name:  "above range clamps to 6",
			level: 9,
			want: Restrictions{
				ComputeMultiplier:   0.0,
				PriorityDelta:       -3,
				AllowedTaskTypes:    []string{},
				RequiresSupervision: true,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RestrictionsForLevel(tt.level))
		})
	}
}

// Level 6 must return an empty, non-nil slice: nil means unrestricted, empty
// means no tasks at all.
func TestRestrictionsForLevelSuspensionIsEmptyNotNil(t *testing.T) {
	r := RestrictionsForLevel(6)
	require.NotNil(t, r.AllowedTaskTypes)
	assert.Empty(t, r.AllowedTaskTypes)

	r = RestrictionsForLevel(3)
	assert.Nil(t, r.AllowedTaskTypes)
}

func TestRestrictionsForLevelReturnsCopies(t *testing.T) {
	r := RestrictionsForLevel(4)
	r.AllowedTaskTypes[0] = "mutated"

	fresh := RestrictionsForLevel(4)
	assert.Equal(t, []string{"routine", "low_risk"}, fresh.AllowedTaskTypes)
}

func TestPlanTargetMet(t *testing.T) {
	m := types.AgentMetrics{
		ErrorRate:      0.05,
		TimeoutRate:    0.12,
		CurrentQuality: 0.85,
		ResourceUsage:  types.ResourceUsage{CPU: 0.9, Memory: 1.1},
	}

	tests := []struct {
		name   string
		target PlanTarget
		want   bool
	}{
		{"at_most met exactly on the boundary", PlanTarget{Metric: "error_rate", Target: 0.05, Direction: "at_most"}, true},
		{"at_most violated", PlanTarget{Metric: "timeout_rate", Target: 0.10, Direction: "at_most"}, false},
		{"at_least met on the boundary", PlanTarget{Metric: "quality_score", Target: 0.85, Direction: "at_least"}, true},
		{"at_least violated", PlanTarget{Metric: "quality_score", Target: 0.90, Direction: "at_least"}, false},
		{"resource usage takes the max ratio", PlanTarget{Metric: "resource_usage", Target: 1.0, Direction: "at_most"}, false},
		{"unknown metric never met", PlanTarget{Metric: "latency", Target: 1.0, Direction: "at_most"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.target.Met(m))
		})
	}
}

func TestBuildImprovementPlan(t *testing.T) {
	cfg := DefaultConfig()
	applied := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	expires := applied.Add(12 * time.Hour)

	triggers := []evaluator.Trigger{
		{Kind: evaluator.TriggerErrorRate, Value: 0.42, Severity: 3},
		{Kind: evaluator.TriggerQualityDrop, Value: 0.25, Severity: 2},
		// duplicate kind must not produce a second target
		{Kind: evaluator.TriggerErrorRate, Value: 0.30, Severity: 3},
	}

	plan := buildImprovementPlan(triggers, applied, &expires, 3, cfg)

	require.Len(t, plan.Targets, 2)
	assert.Equal(t, "error_rate", plan.Targets[0].Metric)
	assert.Equal(t, "quality_score", plan.Targets[1].Metric)
	assert.Equal(t, cfg.RequiredImprovement, plan.RequiredImprovement)
	assert.False(t, plan.RetrainingRequired)

	// four checkpoints split the penalty duration evenly
	require.Len(t, plan.Checkpoints, 4)
	assert.Equal(t, applied.Add(3*time.Hour), plan.Checkpoints[0])
	assert.Equal(t, applied.Add(6*time.Hour), plan.Checkpoints[1])
	assert.Equal(t, applied.Add(9*time.Hour), plan.Checkpoints[2])
	assert.Equal(t, expires, plan.Checkpoints[3])
}

func TestBuildImprovementPlanWithoutExpiryUsesPlanWindow(t *testing.T) {
	cfg := DefaultConfig()
	applied := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	triggers := []evaluator.Trigger{
		{Kind: evaluator.TriggerResourceAbuse, Value: 3.5, Severity: 5},
	}
	plan := buildImprovementPlan(triggers, applied, nil, 5, cfg)

	assert.True(t, plan.RetrainingRequired)
	require.Len(t, plan.Checkpoints, 4)
	assert.Equal(t, applied.Add(6*time.Hour), plan.Checkpoints[0])
	assert.Equal(t, applied.Add(24*time.Hour), plan.Checkpoints[3])
}

func TestOutcomeForReason(t *testing.T) {
	assert.Equal(t, OutcomeExpired, outcomeForReason(ReasonExpired))
	assert.Equal(t, OutcomeReversed, outcomeForReason(ReasonAppealApproved))
	assert.Equal(t, OutcomeRecovered, outcomeForReason(ReasonPerformanceImproved))
	assert.Equal(t, OutcomeRecovered, outcomeForReason("manual_review"))
}

func TestPenaltyExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	expiry := now.Add(time.Hour)

	open := &Penalty{}
	assert.False(t, open.Expired(now.Add(1000*time.Hour)), "duration-less penalties never expire")

	p := &Penalty{ExpiresAt: &expiry}
	assert.False(t, p.Expired(now))
	assert.False(t, p.Expired(expiry), "not expired at the exact boundary")
	assert.True(t, p.Expired(expiry.Add(time.Nanosecond)))
}

func TestPenaltyCloneIsDeep(t *testing.T) {
	expiry := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)
	p := &Penalty{
		ID:          "p-1",
		TriggeredBy: []evaluator.TriggerKind{evaluator.TriggerErrorRate},
		ExpiresAt:   &expiry,
		Restrictions: Restrictions{
			AllowedTaskTypes: []string{"routine"},
		},
		ImprovementPlan: ImprovementPlan{
			Targets:     []PlanTarget{{Metric: "error_rate", Target: 0.05, Direction: "at_most"}},
			Checkpoints: []time.Time{expiry},
		},
	}

	cp := p.clone()
	cp.TriggeredBy[0] = evaluator.TriggerQualityDrop
	cp.Restrictions.AllowedTaskTypes[0] = "mutated"
	cp.ImprovementPlan.Targets[0].Target = 0.99
	*cp.ExpiresAt = expiry.Add(time.Hour)

	assert.Equal(t, evaluator.TriggerErrorRate, p.TriggeredBy[0])
	assert.Equal(t, "routine", p.Restrictions.AllowedTaskTypes[0])
	assert.Equal(t, 0.05, p.ImprovementPlan.Targets[0].Target)
	assert.Equal(t, expiry, *p.ExpiresAt)
}
