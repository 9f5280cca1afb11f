// Package penalty owns the governance state machine: trigger-driven penalty
// application, appeals and reversals, recovery checks, expiry sweeps,
// gradual privilege restoration, and the probation periods that follow
// retraining. It coordinates the evaluator, throttle, retraining, events,
// and notify packages around one mutable record per agent.
package penalty

import (
	"time"

	"github.com/BaSui01/agentgov/evaluator"
	"github.com/BaSui01/agentgov/types"
)

// State is the per-agent governance state.
type State string

const (
	// StateClear means no active penalty.
	StateClear State = "clear"
	// StatePenalized means a penalty is active.
	StatePenalized State = "penalized"
	// StateRetraining means a level >= 5 penalty put the agent into a
	// retraining session that is still running.
	StateRetraining State = "retraining"
	// StateProbation means the agent graduated retraining and is under
	// probation monitoring.
	StateProbation State = "probation"
)

// Outcome classifies how a lifted penalty ended.
type Outcome string

const (
	OutcomeRecovered Outcome = "recovered"
	OutcomeExpired   Outcome = "expired"
	OutcomeReversed  Outcome = "reversed"
)

// Lift reasons recorded on the penalty and attached to removal events.
const (
	ReasonPerformanceImproved = "performance_improved"
	ReasonExpired             = "expired"
	ReasonAppealApproved      = "appeal_approved"
	ReasonRetrainingCompleted = "retraining_completed"
)

func outcomeForReason(reason string) Outcome {
	switch reason {
	case ReasonExpired:
		return OutcomeExpired
	case ReasonAppealApproved:
		return OutcomeReversed
	default:
		return OutcomeRecovered
	}
}

// AppealStatus tracks an appeal through review.
type AppealStatus string

const (
	AppealPending  AppealStatus = "pending"
	AppealApproved AppealStatus = "approved"
	AppealDenied   AppealStatus = "denied"
)

// retrainingLevel is the penalty level at which a retraining session starts.
const retrainingLevel = 5

// Restrictions are the privileges removed by a penalty. A nil
// AllowedTaskTypes means unrestricted; an empty slice means no tasks at all.
type Restrictions struct {
	ComputeMultiplier    float64  `json:"computeMultiplier"`
	PriorityDelta        int      `json:"priorityDelta"`
	AllowedTaskTypes     []string `json:"allowedTaskTypes,omitempty"`
	CanLeadCollaboration bool     `json:"canLeadCollaboration"`
	RequiresSupervision  bool     `json:"requiresSupervision"`
}

// levelRestrictions fixes the privilege set per penalty level. The compute
// multipliers mirror the throttle's refill table.
var levelRestrictions = [7]Restrictions{
	{ComputeMultiplier: 1.0, CanLeadCollaboration: true},
	{ComputeMultiplier: 1.0, PriorityDelta: 0, CanLeadCollaboration: true},
	{ComputeMultiplier: 0.9, PriorityDelta: -1, CanLeadCollaboration: true},
	{ComputeMultiplier: 0.8, PriorityDelta: -1},
	{ComputeMultiplier: 0.7, PriorityDelta: -2, AllowedTaskTypes: []string{"routine", "low_risk"}, RequiresSupervision: true},
	{ComputeMultiplier: 0.5, PriorityDelta: -2, AllowedTaskTypes: []string{"training"}, RequiresSupervision: true},
	{ComputeMultiplier: 0.0, PriorityDelta: -3, AllowedTaskTypes: []string{}, RequiresSupervision: true},
}

// RestrictionsForLevel returns the restrictions for a penalty level, clamped
// to [1,6].
func RestrictionsForLevel(level int) Restrictions {
	if level < 1 {
		level = 1
	}
	if level > 6 {
		level = 6
	}
	r := levelRestrictions[level]
	if r.AllowedTaskTypes != nil {
		r.AllowedTaskTypes = append([]string(nil), r.AllowedTaskTypes...)
	}
	return r
}

// PlanTarget is one metric the agent must bring back in bounds. Direction
// "at_most" applies to rate-style metrics, "at_least" to quality-style ones.
type PlanTarget struct {
	Metric    string  `json:"metric"`
	Target    float64 `json:"target"`
	Direction string  `json:"direction"`
}

// Met reports whether the metrics snapshot satisfies the target.
func (t PlanTarget) Met(m types.AgentMetrics) bool {
	value, ok := metricValue(m, t.Metric)
	if !ok {
		return false
	}
	if t.Direction == "at_least" {
		return value >= t.Target
	}
	return value <= t.Target
}

func metricValue(m types.AgentMetrics, name string) (float64, bool) {
	switch name {
	case "error_rate":
		return m.ErrorRate, true
	case "timeout_rate":
		return m.TimeoutRate, true
	case "quality_score":
		return m.CurrentQuality, true
	case "collaboration_failure_rate":
		return m.CollaborationFailureRate, true
	case "resource_usage":
		return m.ResourceUsage.Max(), true
	default:
		return 0, false
	}
}

// planTargets maps each trigger kind to the recovery target it imposes.
var planTargets = map[evaluator.TriggerKind]PlanTarget{
	evaluator.TriggerErrorRate:            {Metric: "error_rate", Target: 0.05, Direction: "at_most"},
	evaluator.TriggerTimeoutFrequency:     {Metric: "timeout_rate", Target: 0.10, Direction: "at_most"},
	evaluator.TriggerQualityDrop:          {Metric: "quality_score", Target: 0.85, Direction: "at_least"},
	evaluator.TriggerCollaborationFailure: {Metric: "collaboration_failure_rate", Target: 0.15, Direction: "at_most"},
	evaluator.TriggerResourceAbuse:        {Metric: "resource_usage", Target: 1.0, Direction: "at_most"},
}

// ImprovementPlan is what the agent must achieve to recover early: one
// target per firing trigger and four evenly spaced checkpoints.
type ImprovementPlan struct {
	Targets             []PlanTarget `json:"targets"`
	RequiredImprovement float64      `json:"requiredImprovement"`
	Checkpoints         []time.Time  `json:"checkpoints"`
	RetrainingRequired  bool         `json:"retrainingRequired"`
}

// buildImprovementPlan derives the plan from the firing triggers. The
// checkpoints divide the penalty duration (or the fallback window for
// duration-less penalties) into four equal parts.
func buildImprovementPlan(triggers []evaluator.Trigger, appliedAt time.Time, expiresAt *time.Time, level int, cfg Config) ImprovementPlan {
	plan := ImprovementPlan{
		RequiredImprovement: cfg.RequiredImprovement,
		RetrainingRequired:  level >= retrainingLevel,
	}

	seen := make(map[evaluator.TriggerKind]bool, len(triggers))
	for _, t := range triggers {
		if seen[t.Kind] {
			continue
		}
		seen[t.Kind] = true
		if target, ok := planTargets[t.Kind]; ok {
			plan.Targets = append(plan.Targets, target)
		}
	}

	window := cfg.PlanWindow
	if expiresAt != nil {
		window = expiresAt.Sub(appliedAt)
	}
	plan.Checkpoints = make([]time.Time, 4)
	for i := range plan.Checkpoints {
		plan.Checkpoints[i] = appliedAt.Add(window * time.Duration(i+1) / 4)
	}
	return plan
}

// Penalty is one governance penalty. At most one non-lifted instance exists
// per agent at a time.
type Penalty struct {
	ID              string                  `json:"id"`
	AgentID         string                  `json:"agentId"`
	Level           int                     `json:"level"`
	Reason          string                  `json:"reason"`
	TriggeredBy     []evaluator.TriggerKind `json:"triggeredBy"`
	Category        types.AgentType         `json:"category,omitempty"`
	AppliedAt       time.Time               `json:"appliedAt"`
	ExpiresAt       *time.Time              `json:"expiresAt,omitempty"`
	Restrictions    Restrictions            `json:"restrictions"`
	ImprovementPlan ImprovementPlan         `json:"improvementPlan"`
	Appealable      bool                    `json:"appealable"`
	AppealDeadline  time.Time               `json:"appealDeadline"`
	AppealStatus    AppealStatus            `json:"appealStatus,omitempty"`
	MetricsAtStart  types.AgentMetrics      `json:"metricsAtStart"`
	Context         evaluator.Context       `json:"context"`
	MarkedUnfair    bool                    `json:"markedUnfair,omitempty"`
	LiftedAt        *time.Time              `json:"liftedAt,omitempty"`
	LiftReason      string                  `json:"liftReason,omitempty"`
	Outcome         Outcome                 `json:"outcome,omitempty"`
}

// Expired reports whether the penalty's natural duration has passed.
// Duration-less penalties never expire.
func (p *Penalty) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && now.After(*p.ExpiresAt)
}

func (p *Penalty) clone() *Penalty {
	cp := *p
	cp.TriggeredBy = append([]evaluator.TriggerKind(nil), p.TriggeredBy...)
	if p.Restrictions.AllowedTaskTypes != nil {
		cp.Restrictions.AllowedTaskTypes = append([]string(nil), p.Restrictions.AllowedTaskTypes...)
	}
	cp.ImprovementPlan.Targets = append([]PlanTarget(nil), p.ImprovementPlan.Targets...)
	cp.ImprovementPlan.Checkpoints = append([]time.Time(nil), p.ImprovementPlan.Checkpoints...)
	if p.ExpiresAt != nil {
		t := *p.ExpiresAt
		cp.ExpiresAt = &t
	}
	if p.LiftedAt != nil {
		t := *p.LiftedAt
		cp.LiftedAt = &t
	}
	return &cp
}

// AppealReview is the one-time review of an appeal.
type AppealReview struct {
	Reviewer   string       `json:"reviewer"`
	Status     AppealStatus `json:"status"`
	ReviewedAt time.Time    `json:"reviewedAt"`
	Decision   string       `json:"decision"`
	Reasoning  string       `json:"reasoning"`
}

// Appeal contests one penalty. Appeals are never deleted; they form the
// permanent audit trail.
type Appeal struct {
	ID          string        `json:"id"`
	PenaltyID   string        `json:"penaltyId"`
	AgentID     string        `json:"agentId"`
	SubmittedAt time.Time     `json:"submittedAt"`
	Grounds     string        `json:"grounds"`
	Auto        bool          `json:"auto,omitempty"`
	Review      *AppealReview `json:"review,omitempty"`
}

func (a *Appeal) clone() *Appeal {
	cp := *a
	if a.Review != nil {
		r := *a.Review
		cp.Review = &r
	}
	return &cp
}

// Monitoring shapes how a probation period is watched.
type Monitoring struct {
	CheckFrequency time.Duration `json:"checkFrequency"`
	RealTime       bool          `json:"realTime"`
	AutoEscalate   bool          `json:"autoEscalate"`
}

// ProbationRequirements are the floors an agent must hold during probation.
type ProbationRequirements struct {
	MinSuccessRate   float64 `json:"minSuccessRate"`
	MaxErrorRate     float64 `json:"maxErrorRate"`
	QualityThreshold float64 `json:"qualityThreshold"`
}

// Probation is the monitored period following retraining graduation. At
// most one exists per agent.
type Probation struct {
	AgentID      string                `json:"agentId"`
	StartDate    time.Time             `json:"startDate"`
	EndDate      time.Time             `json:"endDate"`
	Monitoring   Monitoring            `json:"monitoring"`
	Requirements ProbationRequirements `json:"requirements"`
}

// Compensation is the time-boxed priority boost granted when a penalty is
// reversed on appeal.
type Compensation struct {
	AgentID       string    `json:"agentId"`
	PriorityBoost int       `json:"priorityBoost"`
	GrantedAt     time.Time `json:"grantedAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
	AppealID      string    `json:"appealId"`
}
