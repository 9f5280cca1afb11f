package penalty

import (
	"time"

	"github.com/BaSui01/agentgov/throttle"
)

// EscalationMode selects what happens when a new trigger fires for an agent
// whose retraining session is still running.
type EscalationMode string

const (
	// EscalationObserve records the trigger and surfaces it, without a new
	// penalty or any effect on the running session.
	EscalationObserve EscalationMode = "observe"
	// EscalationFailSession terminates the running session as failed.
	EscalationFailSession EscalationMode = "fail_session"
)

// ProbationConfig shapes the probation period started when an agent
// graduates from retraining.
type ProbationConfig struct {
	// Duration is the probation length.
	Duration time.Duration `json:"duration" yaml:"duration"`
	// CheckFrequency is how often the probation monitor re-checks.
	CheckFrequency time.Duration `json:"check_frequency" yaml:"check_frequency"`
	// RealTime enables continuous monitoring instead of sampled checks.
	RealTime bool `json:"real_time" yaml:"real_time"`
	// AutoEscalate re-runs governance when requirements are violated.
	AutoEscalate bool `json:"auto_escalate" yaml:"auto_escalate"`
	// MinSuccessRate is the success-rate floor during probation.
	MinSuccessRate float64 `json:"min_success_rate" yaml:"min_success_rate"`
	// MaxErrorRate is the error-rate ceiling during probation.
	MaxErrorRate float64 `json:"max_error_rate" yaml:"max_error_rate"`
	// QualityThreshold is the quality-score floor during probation.
	QualityThreshold float64 `json:"quality_threshold" yaml:"quality_threshold"`
}

// Config tunes the penalty system. Zero values are replaced with the
// defaults in NewManager.
type Config struct {
	// AppealWindow is how long after application a penalty can be appealed.
	AppealWindow time.Duration `json:"appeal_window" yaml:"appeal_window"`
	// LevelDurations maps penalty level (the index) to its natural duration.
	// Zero means the penalty holds until lifted; levels 5 and 6 end through
	// retraining graduation, not expiry.
	LevelDurations [7]time.Duration `json:"level_durations" yaml:"level_durations"`
	// PlanWindow spans the improvement-plan checkpoints for duration-less
	// penalties.
	PlanWindow time.Duration `json:"plan_window" yaml:"plan_window"`
	// RequiredImprovement is the improvement fraction written into every
	// plan.
	RequiredImprovement float64 `json:"required_improvement" yaml:"required_improvement"`
	// RestoreSteps is the number of discrete multiplier steps on the way
	// back to 1.0 after a lift.
	RestoreSteps int `json:"restore_steps" yaml:"restore_steps"`
	// RestoreInterval is the delay between restoration steps.
	RestoreInterval time.Duration `json:"restore_interval" yaml:"restore_interval"`
	// SweepInterval is how often the expiry sweep runs.
	SweepInterval time.Duration `json:"sweep_interval" yaml:"sweep_interval"`
	// SweepConcurrency bounds parallel work in sweeps and fleet evaluation.
	SweepConcurrency int `json:"sweep_concurrency" yaml:"sweep_concurrency"`
	// EscalationMode is the policy for triggers during active retraining.
	EscalationMode EscalationMode `json:"escalation_mode" yaml:"escalation_mode"`
	// CompensationBoost is the priority boost granted on reversal.
	CompensationBoost int `json:"compensation_boost" yaml:"compensation_boost"`
	// CompensationWindow is how long reversal compensation lasts.
	CompensationWindow time.Duration `json:"compensation_window" yaml:"compensation_window"`
	// HistoryLimit caps the in-memory penalty history per agent; the
	// archiver keeps the full trail.
	HistoryLimit int `json:"history_limit" yaml:"history_limit"`
	// Probation shapes post-graduation probation periods.
	Probation ProbationConfig `json:"probation" yaml:"probation"`
	// Throttle configures the token bucket created per enrolled agent.
	Throttle throttle.Config `json:"throttle" yaml:"throttle"`
	// Clock overrides the time source; nil means time.Now.
	Clock func() time.Time `json:"-" yaml:"-"`
}

// DefaultConfig returns the governance policy defaults.
func DefaultConfig() Config {
	return Config{
		AppealWindow: time.Hour,
		LevelDurations: [7]time.Duration{
			0,
			1 * time.Hour,
			4 * time.Hour,
			12 * time.Hour,
			24 * time.Hour,
			0, // level 5: until graduation
			0, // level 6: until graduation
		},
		PlanWindow:          24 * time.Hour,
		RequiredImprovement: 0.30,
		RestoreSteps:        5,
		RestoreInterval:     time.Minute,
		SweepInterval:       time.Minute,
		SweepConcurrency:    8,
		EscalationMode:      EscalationObserve,
		CompensationBoost:   1,
		CompensationWindow:  24 * time.Hour,
		HistoryLimit:        50,
		Probation: ProbationConfig{
			Duration:         7 * 24 * time.Hour,
			CheckFrequency:   time.Hour,
			RealTime:         true,
			AutoEscalate:     true,
			MinSuccessRate:   0.80,
			MaxErrorRate:     0.10,
			QualityThreshold: 0.75,
		},
		Throttle: throttle.DefaultConfig(),
	}
}
