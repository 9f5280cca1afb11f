// Package evaluator turns raw agent metrics into governance decisions:
// context analysis, trigger detection, severity scoring, and penalty-level
// determination, plus the anomaly, bias, and fairness checks that keep the
// governance loop honest.
package evaluator

import (
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentgov/types"
)

// TriggerKind identifies one of the five performance triggers.
type TriggerKind string

const (
	TriggerErrorRate            TriggerKind = "error_rate"
	TriggerTimeoutFrequency     TriggerKind = "timeout_frequency"
	TriggerQualityDrop          TriggerKind = "quality_drop"
	TriggerCollaborationFailure TriggerKind = "collaboration_failure"
	TriggerResourceAbuse        TriggerKind = "resource_abuse"
)

// Trigger is one firing performance trigger with its measured value,
// threshold, and severity tier.
type Trigger struct {
	Kind      TriggerKind `json:"kind"`
	Value     float64     `json:"value"`
	Threshold float64     `json:"threshold"`
	Severity  int         `json:"severity"`
}

// Context is the circumstance snapshot taken alongside every evaluation. It
// adjusts severity downward for conditions outside the agent's control and is
// archived with the penalty so a decision can later be defended or appealed.
type Context struct {
	TaskDifficulty        float64   `json:"taskDifficulty"`
	SystemLoad            float64   `json:"systemLoad"`
	QueueBacklog          int       `json:"queueBacklog"`
	AvgLatencyMs          float64   `json:"avgLatencyMs"`
	HighSystemLatency     bool      `json:"highSystemLatency"`
	RecentlyRestarted     bool      `json:"recentlyRestarted"`
	UnderResourcePressure bool      `json:"underResourcePressure"`
	HistoricalSuccessRate float64   `json:"historicalSuccessRate"`
	BrokerIssues          bool      `json:"brokerIssues"`
	NetworkIssues         bool      `json:"networkIssues"`
	DependencyFailures    bool      `json:"dependencyFailures"`
	QualityDrop           float64   `json:"qualityDrop"`
	ObservedAt            time.Time `json:"observedAt"`
}

// Config tunes the evaluator. Severity bands are fixed policy (see
// severityBands); everything that reads like an operational threshold is
// configurable here.
type Config struct {
	// Minimum sample floors. Below the floor a trigger never fires,
	// regardless of the measured value.
	MinSamplesErrorRate     int `json:"min_samples_error_rate" yaml:"min_samples_error_rate"`
	MinSamplesTimeout       int `json:"min_samples_timeout" yaml:"min_samples_timeout"`
	MinSamplesQuality       int `json:"min_samples_quality" yaml:"min_samples_quality"`
	MinSamplesCollaboration int `json:"min_samples_collaboration" yaml:"min_samples_collaboration"`
	MinSamplesResource      int `json:"min_samples_resource" yaml:"min_samples_resource"`

	// Trigger thresholds. A trigger fires only for values strictly above.
	ErrorRateThreshold     float64 `json:"error_rate_threshold" yaml:"error_rate_threshold"`
	TimeoutThreshold       float64 `json:"timeout_threshold" yaml:"timeout_threshold"`
	QualityDropThreshold   float64 `json:"quality_drop_threshold" yaml:"quality_drop_threshold"`
	CollaborationThreshold float64 `json:"collaboration_threshold" yaml:"collaboration_threshold"`
	ResourceAbuseThreshold float64 `json:"resource_abuse_threshold" yaml:"resource_abuse_threshold"`

	// Fairness offsets in level determination.
	OffsetSystemLoad  float64 `json:"offset_system_load" yaml:"offset_system_load"`
	OffsetSuccessRate float64 `json:"offset_success_rate" yaml:"offset_success_rate"`

	// Anomaly detection.
	AnomalyWeightDisproportionate float64 `json:"anomaly_weight_disproportionate" yaml:"anomaly_weight_disproportionate"`
	AnomalyWeightEnvironmental    float64 `json:"anomaly_weight_environmental" yaml:"anomaly_weight_environmental"`
	AnomalyWeightSystemStress     float64 `json:"anomaly_weight_system_stress" yaml:"anomaly_weight_system_stress"`
	AnomalyWeightSuddenDrop       float64 `json:"anomaly_weight_sudden_drop" yaml:"anomaly_weight_sudden_drop"`
	AnomalyAppealThreshold        float64 `json:"anomaly_appeal_threshold" yaml:"anomaly_appeal_threshold"`
	SuddenDropThreshold           float64 `json:"sudden_drop_threshold" yaml:"sudden_drop_threshold"`

	// Bias and fairness reporting.
	BiasRatioFloor      float64 `json:"bias_ratio_floor" yaml:"bias_ratio_floor"`
	BiasFeedbackEnabled bool    `json:"bias_feedback_enabled" yaml:"bias_feedback_enabled"`
	FalsePositiveLimit  float64 `json:"false_positive_limit" yaml:"false_positive_limit"`
	AppealSuccessLimit  float64 `json:"appeal_success_limit" yaml:"appeal_success_limit"`

	// Context analysis scaling.
	HighLatencyMs     float64 `json:"high_latency_ms" yaml:"high_latency_ms"`
	DifficultyScaleMs float64 `json:"difficulty_scale_ms" yaml:"difficulty_scale_ms"`
}

// DefaultConfig returns the governance policy defaults.
func DefaultConfig() Config {
	return Config{
		MinSamplesErrorRate:     10,
		MinSamplesTimeout:       10,
		MinSamplesQuality:       5,
		MinSamplesCollaboration: 5,
		MinSamplesResource:      3,

		ErrorRateThreshold:     0.10,
		TimeoutThreshold:       0.20,
		QualityDropThreshold:   0.15,
		CollaborationThreshold: 0.30,
		ResourceAbuseThreshold: 1.50,

		OffsetSystemLoad:  0.8,
		OffsetSuccessRate: 0.90,

		AnomalyWeightDisproportionate: 0.30,
		AnomalyWeightEnvironmental:    0.25,
		AnomalyWeightSystemStress:     0.20,
		AnomalyWeightSuddenDrop:       0.25,
		AnomalyAppealThreshold:        0.7,
		SuddenDropThreshold:           0.30,

		BiasRatioFloor:      0.8,
		BiasFeedbackEnabled: false,
		FalsePositiveLimit:  0.10,
		AppealSuccessLimit:  0.40,

		HighLatencyMs:     2000,
		DifficultyScaleMs: 5000,
	}
}

// band maps a measured value to a severity tier: the first band whose bound
// covers the value wins. Each table ends with an +Inf catch-all.
type band struct {
	upTo     float64
	severity int
}

var severityBands = map[TriggerKind][]band{
	TriggerErrorRate: {
		{0.15, 1}, {0.25, 2}, {0.45, 3}, {math.Inf(1), 4},
	},
	TriggerTimeoutFrequency: {
		{0.30, 1}, {0.45, 2}, {0.60, 3}, {math.Inf(1), 4},
	},
	TriggerQualityDrop: {
		{0.20, 1}, {0.30, 2}, {0.45, 3}, {math.Inf(1), 4},
	},
	TriggerCollaborationFailure: {
		{0.40, 1}, {0.55, 2}, {0.70, 3}, {math.Inf(1), 4},
	},
	TriggerResourceAbuse: {
		{1.70, 2}, {2.00, 3}, {3.00, 4}, {math.Inf(1), 5},
	},
}

func severityFor(kind TriggerKind, value float64) int {
	for _, b := range severityBands[kind] {
		if value <= b.upTo {
			return b.severity
		}
	}
	return 0
}

// Evaluator is a stateless function of metrics and context. It holds only
// configuration; all mutable governance state lives in the penalty system.
type Evaluator struct {
	cfg    Config
	logger *zap.Logger
}

// New creates an Evaluator.
func New(cfg Config, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "evaluator")),
	}
}

// Config returns the evaluator's configuration.
func (e *Evaluator) Config() Config {
	return e.cfg
}

// AnalyzeContext folds the monitoring collaborator's readings into the
// snapshot used for severity adjustment and later defense of the decision.
func (e *Evaluator) AnalyzeContext(m types.AgentMetrics, sys types.SystemStatus, state types.AgentState) Context {
	difficulty := 0.0
	if e.cfg.DifficultyScaleMs > 0 {
		difficulty = math.Min(1.0, m.AvgResponseTime/e.cfg.DifficultyScaleMs)
	}
	return Context{
		TaskDifficulty:        difficulty,
		SystemLoad:            sys.Load,
		QueueBacklog:          sys.QueueBacklog,
		AvgLatencyMs:          sys.AvgLatencyMs,
		HighSystemLatency:     sys.HighLatency || sys.AvgLatencyMs > e.cfg.HighLatencyMs,
		RecentlyRestarted:     state.RecentlyRestarted,
		UnderResourcePressure: state.UnderResourcePressure,
		HistoricalSuccessRate: state.HistoricalSuccessRate,
		BrokerIssues:          sys.BrokerIssues,
		NetworkIssues:         sys.NetworkIssues,
		DependencyFailures:    sys.DependencyFailures,
		QualityDrop:           m.QualityDrop(),
		ObservedAt:            time.Now().UTC(),
	}
}

// EvaluateTriggers checks the five performance triggers. Each has a hard
// minimum-sample floor: below it the trigger is skipped no matter how bad the
// value looks, because the statistic is not yet trustworthy.
func (e *Evaluator) EvaluateTriggers(m types.AgentMetrics, ctx Context) []Trigger {
	var triggers []Trigger

	if m.TaskCount >= e.cfg.MinSamplesErrorRate && m.ErrorRate > e.cfg.ErrorRateThreshold {
		triggers = append(triggers, Trigger{
			Kind:      TriggerErrorRate,
			Value:     m.ErrorRate,
			Threshold: e.cfg.ErrorRateThreshold,
			Severity:  severityFor(TriggerErrorRate, m.ErrorRate),
		})
	}

	// a fleet-wide latency spike is not the agent's fault
	if m.TaskCount >= e.cfg.MinSamplesTimeout && m.TimeoutRate > e.cfg.TimeoutThreshold && !ctx.HighSystemLatency {
		triggers = append(triggers, Trigger{
			Kind:      TriggerTimeoutFrequency,
			Value:     m.TimeoutRate,
			Threshold: e.cfg.TimeoutThreshold,
			Severity:  severityFor(TriggerTimeoutFrequency, m.TimeoutRate),
		})
	}

	if drop := m.QualityDrop(); m.TaskCount >= e.cfg.MinSamplesQuality && drop > e.cfg.QualityDropThreshold {
		triggers = append(triggers, Trigger{
			Kind:      TriggerQualityDrop,
			Value:     drop,
			Threshold: e.cfg.QualityDropThreshold,
			Severity:  severityFor(TriggerQualityDrop, drop),
		})
	}

	if m.TaskCount >= e.cfg.MinSamplesCollaboration && m.CollaborationFailureRate > e.cfg.CollaborationThreshold {
		triggers = append(triggers, Trigger{
			Kind:      TriggerCollaborationFailure,
			Value:     m.CollaborationFailureRate,
			Threshold: e.cfg.CollaborationThreshold,
			Severity:  severityFor(TriggerCollaborationFailure, m.CollaborationFailureRate),
		})
	}

	if usage := m.ResourceUsage.Max(); m.TaskCount >= e.cfg.MinSamplesResource && usage > e.cfg.ResourceAbuseThreshold {
		triggers = append(triggers, Trigger{
			Kind:      TriggerResourceAbuse,
			Value:     usage,
			Threshold: e.cfg.ResourceAbuseThreshold,
			Severity:  severityFor(TriggerResourceAbuse, usage),
		})
	}

	if len(triggers) > 0 {
		e.logger.Debug("triggers fired", zap.Int("count", len(triggers)))
	}
	return triggers
}

// DeterminePenaltyLevel averages the firing triggers' severities, subtracts
// one fairness offset for each mitigating circumstance, and clamps to [1,6].
// Returns 0 when no triggers fired.
func (e *Evaluator) DeterminePenaltyLevel(triggers []Trigger, ctx Context) int {
	if len(triggers) == 0 {
		return 0
	}

	sum := 0
	for _, t := range triggers {
		sum += t.Severity
	}
	level := int(math.Round(float64(sum) / float64(len(triggers))))

	for _, mitigating := range []bool{
		ctx.SystemLoad > e.cfg.OffsetSystemLoad,
		ctx.HistoricalSuccessRate > e.cfg.OffsetSuccessRate,
		ctx.NetworkIssues,
	} {
		if mitigating && level > 1 {
			level--
		}
	}

	if level < 1 {
		level = 1
	}
	if level > 6 {
		level = 6
	}
	return level
}

// BiasAdjustedLevel grants one extra fairness offset when bias feedback is
// enabled and the agent belongs to the most-penalized category of a biased
// distribution. With feedback disabled (the default) the level passes
// through untouched and bias remains a dashboard-only signal.
func (e *Evaluator) BiasAdjustedLevel(level int, category types.AgentType, bias BiasReport) int {
	if !e.cfg.BiasFeedbackEnabled || !bias.HasBias {
		return level
	}
	if bias.MostPenalized != category {
		return level
	}
	if level > 1 {
		level--
	}
	return level
}

// Describe renders the firing triggers as the human-readable penalty reason.
func Describe(triggers []Trigger) string {
	if len(triggers) == 0 {
		return ""
	}
	parts := make([]string, 0, len(triggers))
	for _, t := range triggers {
		switch t.Kind {
		case TriggerResourceAbuse:
			parts = append(parts, fmt.Sprintf("%s %.0f%% of budget (limit %.0f%%)",
				t.Kind, t.Value*100, t.Threshold*100))
		default:
			parts = append(parts, fmt.Sprintf("%s %.1f%% exceeds %.0f%%",
				t.Kind, t.Value*100, t.Threshold*100))
		}
	}
	return strings.Join(parts, "; ")
}

// skillGaps maps trigger kinds to the deficiency tags a retraining curriculum
// addresses.
var skillGaps = map[TriggerKind]string{
	TriggerErrorRate:            "error_handling",
	TriggerTimeoutFrequency:     "latency_management",
	TriggerQualityDrop:          "output_quality",
	TriggerCollaborationFailure: "collaboration",
	TriggerResourceAbuse:        "resource_management",
}

// SkillGaps derives the deficiency tags for a retraining session from the
// triggers that caused it.
func SkillGaps(triggers []Trigger) []string {
	seen := make(map[string]bool, len(triggers))
	var gaps []string
	for _, t := range triggers {
		if tag, ok := skillGaps[t.Kind]; ok && !seen[tag] {
			seen[tag] = true
			gaps = append(gaps, tag)
		}
	}
	return gaps
}

// Kinds extracts the distinct trigger kinds, preserving order.
func Kinds(triggers []Trigger) []TriggerKind {
	seen := make(map[TriggerKind]bool, len(triggers))
	var kinds []TriggerKind
	for _, t := range triggers {
		if !seen[t.Kind] {
			seen[t.Kind] = true
			kinds = append(kinds, t.Kind)
		}
	}
	return kinds
}

// MaxSeverity returns the highest severity among the triggers, 0 for none.
func MaxSeverity(triggers []Trigger) int {
	max := 0
	for _, t := range triggers {
		if t.Severity > max {
			max = t.Severity
		}
	}
	return max
}
