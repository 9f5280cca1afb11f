package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/agentgov/retraining"
)

// Executor is a scripted retraining.TaskExecutor. Outcomes are consumed in
// order; when the script runs out, the default outcome is returned. An
// injected error fails every execution until cleared.
type Executor struct {
	mu       sync.Mutex
	script   []retraining.TaskOutcome
	fallback retraining.TaskOutcome
	err      error
	executed []retraining.TrainingTask
}

// NewExecutor creates an executor whose default outcome is a success with
// the given quality.
func NewExecutor(defaultQuality float64) *Executor {
	return &Executor{
		fallback: retraining.TaskOutcome{Success: true, Quality: defaultQuality},
	}
}

// Queue appends scripted outcomes consumed before the default.
func (e *Executor) Queue(outcomes ...retraining.TaskOutcome) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.script = append(e.script, outcomes...)
}

// Fail makes every subsequent execution return err; Fail(nil) clears it.
func (e *Executor) Fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

// Executed returns a copy of every task run so far.
func (e *Executor) Executed() []retraining.TrainingTask {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]retraining.TrainingTask, len(e.executed))
	copy(out, e.executed)
	return out
}

// ExecuteTask implements retraining.TaskExecutor.
func (e *Executor) ExecuteTask(_ context.Context, _ string, task retraining.TrainingTask) (retraining.TaskOutcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return retraining.TaskOutcome{}, e.err
	}
	e.executed = append(e.executed, task)
	if len(e.script) > 0 {
		out := e.script[0]
		e.script = e.script[1:]
		return out, nil
	}
	return e.fallback, nil
}
