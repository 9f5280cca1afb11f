// Package retraining runs the four-stage remedial curriculum for agents
// under a level 5 or 6 penalty: Diagnosis, Skill Review, Supervised
// Practice, Graduated Tasks. Stages execute strictly in order, each stage
// may be retried once, and a second failure ends the whole session.
package retraining

import (
	"time"
)

// SessionStatus is the lifecycle state of a retraining session.
type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionFailed     SessionStatus = "failed"
)

// StageStatus is the lifecycle state of one stage attempt.
type StageStatus string

const (
	StageInProgress StageStatus = "in_progress"
	StageCompleted  StageStatus = "completed"
	StageFailed     StageStatus = "failed"
)

// Stage IDs of the curriculum.
const (
	StageDiagnosis          = 1
	StageSkillReview        = 2
	StageSupervisedPractice = 3
	StageGraduatedTasks     = 4
)

// maxStageAttempts bounds retries: one retry per stage, then the session fails.
const maxStageAttempts = 2

// StageRequirements lists what a stage must meet to pass. Zero values
// disable the corresponding check.
type StageRequirements struct {
	MinTasks         int           `json:"minTasks,omitempty"`
	MinSuccessRate   float64       `json:"minSuccessRate,omitempty"`
	MaxErrorRate     float64       `json:"maxErrorRate,omitempty"`
	MinTimeSpent     time.Duration `json:"minTimeSpent,omitempty"`
	MinTestScore     float64       `json:"minTestScore,omitempty"`
	CheckConsistency bool          `json:"checkConsistency,omitempty"`
}

// StageProgress accumulates what happened during one stage attempt.
// Outcomes records the counted success of each task in order; the stage 4
// consistency check compares its halves.
type StageProgress struct {
	TasksCompleted int      `json:"tasksCompleted"`
	Successes      int      `json:"successes"`
	Failures       int      `json:"failures"`
	KnowledgeScore float64  `json:"knowledgeScore,omitempty"`
	Outcomes       []bool   `json:"outcomes,omitempty"`
	Feedback       []string `json:"feedback,omitempty"`
}

// SuccessRate is the fraction of counted successes, 0 with no tasks.
func (p StageProgress) SuccessRate() float64 {
	if p.TasksCompleted == 0 {
		return 0
	}
	return float64(p.Successes) / float64(p.TasksCompleted)
}

// ErrorRate is the fraction of outright failures, 0 with no tasks.
func (p StageProgress) ErrorRate() float64 {
	if p.TasksCompleted == 0 {
		return 0
	}
	return float64(p.Failures) / float64(p.TasksCompleted)
}

// StageResults is the computed outcome of one stage evaluation.
type StageResults struct {
	Passed      bool          `json:"passed"`
	SuccessRate float64       `json:"successRate"`
	ErrorRate   float64       `json:"errorRate"`
	TimeSpent   time.Duration `json:"timeSpent"`
	// Unmet lists the requirements that failed, empty on pass.
	Unmet []string `json:"unmet,omitempty"`
}

// Stage is one attempt at one curriculum stage.
type Stage struct {
	ID           int               `json:"id"`
	Name         string            `json:"name"`
	Attempt      int               `json:"attempt"`
	Status       StageStatus       `json:"status"`
	StartedAt    time.Time         `json:"startedAt"`
	CompletedAt  *time.Time        `json:"completedAt,omitempty"`
	Requirements StageRequirements `json:"requirements"`
	Progress     StageProgress     `json:"progress"`
	Results      *StageResults     `json:"results,omitempty"`
}

// TaskRecord is one training-task outcome in the session's history.
type TaskRecord struct {
	TaskID            string    `json:"taskId"`
	StageID           int       `json:"stageId"`
	Attempt           int       `json:"attempt"`
	Success           bool      `json:"success"`
	PassedSupervision bool      `json:"passedSupervision"`
	Interventions     int       `json:"interventions"`
	Quality           float64   `json:"quality,omitempty"`
	CompletedAt       time.Time `json:"completedAt"`
}

// Counted reports whether the task counts as a success toward stage
// requirements: it must both succeed and pass supervision.
func (r TaskRecord) Counted() bool {
	return r.Success && r.PassedSupervision
}

// Session is one agent's run through the curriculum. Stages is an
// append-only log of stage attempts: a retry appends a fresh Stage with the
// same ID and Attempt 2.
type Session struct {
	ID                 string        `json:"id"`
	AgentID            string        `json:"agentId"`
	TriggeredBy        []string      `json:"triggeredBy"`
	Deficiencies       []string      `json:"deficiencies"`
	Status             SessionStatus `json:"status"`
	StartedAt          time.Time     `json:"startedAt"`
	CompletedAt        *time.Time    `json:"completedAt,omitempty"`
	Stages             []*Stage      `json:"stages"`
	PerformanceHistory []TaskRecord  `json:"performanceHistory"`
	FinalSuccessRate   float64       `json:"finalSuccessRate,omitempty"`
	FailureReason      string        `json:"failureReason,omitempty"`
}

// currentStage returns the latest stage attempt, nil before the first start.
func (s *Session) currentStage() *Stage {
	if len(s.Stages) == 0 {
		return nil
	}
	return s.Stages[len(s.Stages)-1]
}

// snapshot returns a deep copy safe to hand out or marshal after the lock
// is released.
func (s *Session) snapshot() *Session {
	cp := *s
	cp.TriggeredBy = append([]string(nil), s.TriggeredBy...)
	cp.Deficiencies = append([]string(nil), s.Deficiencies...)
	cp.PerformanceHistory = append([]TaskRecord(nil), s.PerformanceHistory...)
	cp.Stages = make([]*Stage, len(s.Stages))
	for i, st := range s.Stages {
		stCp := *st
		stCp.Progress.Outcomes = append([]bool(nil), st.Progress.Outcomes...)
		stCp.Progress.Feedback = append([]string(nil), st.Progress.Feedback...)
		if st.Results != nil {
			resCp := *st.Results
			resCp.Unmet = append([]string(nil), st.Results.Unmet...)
			stCp.Results = &resCp
		}
		if st.CompletedAt != nil {
			done := *st.CompletedAt
			stCp.CompletedAt = &done
		}
		cp.Stages[i] = &stCp
	}
	if s.CompletedAt != nil {
		done := *s.CompletedAt
		cp.CompletedAt = &done
	}
	return &cp
}

// StageConfig describes one curriculum stage.
type StageConfig struct {
	Name         string            `json:"name" yaml:"name"`
	Duration     time.Duration     `json:"duration" yaml:"duration"`
	Requirements StageRequirements `json:"requirements" yaml:"requirements"`
}

// Config configures the retraining manager.
type Config struct {
	// Stages holds the four curriculum stages in order.
	Stages [4]StageConfig `json:"stages" yaml:"stages"`
	// ConsistencyTolerance is the maximum allowed gap between the success
	// rates of the two halves of a consistency-checked stage.
	ConsistencyTolerance float64 `json:"consistency_tolerance" yaml:"consistency_tolerance"`
	// Clock overrides time.Now, for tests.
	Clock func() time.Time `json:"-" yaml:"-"`
}

// DefaultConfig returns the standard curriculum.
func DefaultConfig() Config {
	return Config{
		Stages: [4]StageConfig{
			{
				Name:     "Diagnosis",
				Duration: 5 * time.Minute,
				Requirements: StageRequirements{
					MinTimeSpent: 3 * time.Minute,
				},
			},
			{
				Name:     "Skill Review",
				Duration: 10 * time.Minute,
				Requirements: StageRequirements{
					MinTimeSpent: 7 * time.Minute,
					MinTestScore: 0.80,
				},
			},
			{
				Name:     "Supervised Practice",
				Duration: 30 * time.Minute,
				Requirements: StageRequirements{
					MinTasks:       10,
					MinSuccessRate: 0.85,
					MaxErrorRate:   0.15,
				},
			},
			{
				Name:     "Graduated Tasks",
				Duration: 60 * time.Minute,
				Requirements: StageRequirements{
					MinTasks:         10,
					MinSuccessRate:   0.85,
					CheckConsistency: true,
				},
			},
		},
		ConsistencyTolerance: 0.20,
	}
}
