// Package scheduler provides cancellable one-shot and periodic timers for
// governance follow-ups: penalty expiry sweeps, gradual restoration steps,
// retraining stage deadlines.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is a scheduled callback. The context ends when the task is cancelled
// or the scheduler stops; tasks should return promptly once it is done.
type Task func(ctx context.Context)

// Handle controls one scheduled task.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	fired bool
}

// Cancel stops the task if it has not started yet. A task already running
// sees its context end instead. Cancel does not wait; use Done for that.
func (h *Handle) Cancel() {
	h.cancel()
}

// Done is closed once the task has finished or been cancelled for good.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Fired reports whether the task body ran at least once.
func (h *Handle) Fired() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fired
}

func (h *Handle) markFired() {
	h.mu.Lock()
	h.fired = true
	h.mu.Unlock()
}

// Scheduler owns the timer goroutines so that a single Stop tears all
// pending work down.
type Scheduler struct {
	logger *zap.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a scheduler.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		logger: logger.With(zap.String("component", "scheduler")),
		ctx:    ctx,
		cancel: cancel,
	}
}

// After runs task once after delay. A non-positive delay fires immediately.
func (s *Scheduler) After(delay time.Duration, task Task) *Handle {
	hctx, hcancel := context.WithCancel(s.ctx)
	h := &Handle{cancel: hcancel, done: make(chan struct{})}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(h.done)

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
			h.markFired()
			task(hctx)
		case <-hctx.Done():
		}
	}()
	return h
}

// Every runs task at the given interval until cancelled. The first run
// happens one interval after the call; runs do not overlap.
func (s *Scheduler) Every(interval time.Duration, task Task) *Handle {
	hctx, hcancel := context.WithCancel(s.ctx)
	h := &Handle{cancel: hcancel, done: make(chan struct{})}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(h.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				h.markFired()
				task(hctx)
			case <-hctx.Done():
				return
			}
		}
	}()
	return h
}

// Stop cancels everything scheduled and waits for running tasks to return.
// Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
		s.logger.Debug("scheduler stopped")
	})
}
