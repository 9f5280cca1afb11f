package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestScheduler_AfterFires(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	var calls atomic.Int32
	h := s.After(10*time.Millisecond, func(ctx context.Context) {
		calls.Add(1)
	})

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for task")
	}

	assert.True(t, h.Fired())
	assert.Equal(t, int32(1), calls.Load())
}

func TestScheduler_AfterImmediateOnNonPositiveDelay(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	h := s.After(0, func(ctx context.Context) {})

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for task")
	}
	assert.True(t, h.Fired())
}

func TestScheduler_CancelBeforeFire(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	var calls atomic.Int32
	h := s.After(time.Hour, func(ctx context.Context) {
		calls.Add(1)
	})
	h.Cancel()

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cancellation")
	}

	assert.False(t, h.Fired())
	assert.Equal(t, int32(0), calls.Load())
}

func TestScheduler_EveryRepeats(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	var calls atomic.Int32
	h := s.Every(10*time.Millisecond, func(ctx context.Context) {
		calls.Add(1)
	})

	require.Eventually(t, func() bool {
		return calls.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)

	h.Cancel()
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cancellation")
	}

	// No further runs after cancel.
	settled := calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, calls.Load())
}

func TestScheduler_StopCancelsPending(t *testing.T) {
	s := New(zap.NewNop())

	var calls atomic.Int32
	h := s.After(time.Hour, func(ctx context.Context) {
		calls.Add(1)
	})

	s.Stop()

	select {
	case <-h.Done():
	default:
		t.Fatal("handle not done after Stop")
	}
	assert.Equal(t, int32(0), calls.Load())

	// Stop is idempotent.
	s.Stop()
}

func TestScheduler_RunningTaskSeesCancellation(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	started := make(chan struct{})
	ended := make(chan struct{})
	h := s.After(0, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(ended)
	})

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("task never started")
	}

	h.Cancel()

	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not observe cancellation")
	}
	assert.True(t, h.Fired())
}
