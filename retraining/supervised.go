package retraining

import "context"

// TrainingTask is one task assigned during supervised or graduated stages.
// Kind is normally drawn from the session's deficiencies so practice targets
// the diagnosed gaps; Difficulty ramps up across the graduated-tasks stage.
type TrainingTask struct {
	ID         string  `json:"id"`
	Kind       string  `json:"kind"`
	Difficulty float64 `json:"difficulty"`
}

// TaskOutcome is what the executor reports back for one task.
type TaskOutcome struct {
	Success bool    `json:"success"`
	Quality float64 `json:"quality"`
}

// TaskExecutor runs one training task for an agent. Implementations bridge
// to the platform's real task runner; random-outcome executors are test
// doubles only, never production behavior.
type TaskExecutor interface {
	ExecuteTask(ctx context.Context, agentID string, task TrainingTask) (TaskOutcome, error)
}

// Checkpoint marks where in a supervised task the supervisor looks in.
type Checkpoint string

const (
	CheckpointStart  Checkpoint = "start"
	CheckpointMiddle Checkpoint = "middle"
	CheckpointEnd    Checkpoint = "end"
)

// checkpoints in execution order.
var checkpoints = [3]Checkpoint{CheckpointStart, CheckpointMiddle, CheckpointEnd}

// Supervision is one checkpoint's verdict.
type Supervision struct {
	Intervened bool   `json:"intervened"`
	Note       string `json:"note,omitempty"`
}

// SupervisorFunc reviews a supervised task at one checkpoint. A nil
// SupervisorFunc supervises nothing and never intervenes.
type SupervisorFunc func(ctx context.Context, agentID string, task TrainingTask, cp Checkpoint) Supervision
