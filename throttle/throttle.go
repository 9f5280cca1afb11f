// Package throttle implements the per-agent token bucket that gates how much
// compute and task throughput a governed agent may consume.
package throttle

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config configures a token bucket.
type Config struct {
	// Capacity is the maximum token balance.
	Capacity float64 `json:"capacity" yaml:"capacity"`
	// RefillRate is the unpenalized refill speed in tokens per second.
	RefillRate float64 `json:"refill_rate" yaml:"refill_rate"`
	// Clock overrides the time source; nil means time.Now.
	Clock func() time.Time `json:"-" yaml:"-"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Capacity:   100,
		RefillRate: 5,
	}
}

// levelMultipliers maps penalty level (index) to refill multiplier. Index 0
// is the unpenalized state. Level 6 never refills: the agent is fully
// starved, not merely slowed.
var levelMultipliers = [7]float64{1.0, 1.0, 0.9, 0.8, 0.7, 0.5, 0.0}

// MultiplierForLevel returns the refill multiplier for a penalty level.
// Levels outside [1,6] are clamped.
func MultiplierForLevel(level int) float64 {
	if level < 1 {
		return 1.0
	}
	if level > 6 {
		return 0.0
	}
	return levelMultipliers[level]
}

// Status is a point-in-time view of a bucket, as exposed on the query
// surface.
type Status struct {
	AgentID     string  `json:"agentId"`
	Available   float64 `json:"available"`
	Capacity    float64 `json:"capacity"`
	Multiplier  float64 `json:"multiplier"`
	Utilization float64 `json:"utilization"`
}

// Throttle is a token bucket with a penalty-aware refill rate. One instance
// exists per governed agent for the agent's whole lifetime; penalties only
// change the multiplier, never replace the bucket.
type Throttle struct {
	agentID string
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time

	mu         sync.Mutex
	tokens     float64
	multiplier float64
	lastRefill time.Time
}

// New creates a full bucket for the given agent.
func New(agentID string, cfg Config, logger *zap.Logger) *Throttle {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultConfig().Capacity
	}
	if cfg.RefillRate <= 0 {
		cfg.RefillRate = DefaultConfig().RefillRate
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Throttle{
		agentID:    agentID,
		cfg:        cfg,
		logger:     logger.With(zap.String("component", "throttle"), zap.String("agent_id", agentID)),
		now:        now,
		tokens:     cfg.Capacity,
		multiplier: 1.0,
		lastRefill: now(),
	}
}

// AgentID returns the owning agent's ID.
func (t *Throttle) AgentID() string {
	return t.agentID
}

// Consume refills the bucket, then grants the request iff the balance covers
// it, decrementing atomically. Denial is an ordinary negative result, not an
// error: the caller should back off and retry later, never spin.
func (t *Throttle) Consume(tokensRequired float64) bool {
	if tokensRequired <= 0 {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.refillLocked()
	if t.tokens < tokensRequired {
		t.logger.Debug("consumption denied",
			zap.Float64("required", tokensRequired),
			zap.Float64("available", t.tokens))
		return false
	}
	t.tokens -= tokensRequired
	return true
}

// ApplyPenalty switches the refill multiplier to the one fixed for the given
// level. Elapsed time is settled at the old rate first so the penalty only
// affects refill from this moment on.
func (t *Throttle) ApplyPenalty(level int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.refillLocked()
	t.multiplier = MultiplierForLevel(level)
	t.logger.Info("penalty multiplier applied",
		zap.Int("level", level),
		zap.Float64("multiplier", t.multiplier))
}

// SetMultiplier assigns an intermediate multiplier directly. Gradual
// restoration steps use this to climb back toward 1.0.
func (t *Throttle) SetMultiplier(m float64) {
	if m < 0 {
		m = 0
	}
	if m > 1 {
		m = 1
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.refillLocked()
	t.multiplier = m
}

// Reset refills the bucket to capacity and clears the multiplier. Full
// restoration only; partial recovery goes through SetMultiplier.
func (t *Throttle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tokens = t.cfg.Capacity
	t.multiplier = 1.0
	t.lastRefill = t.now()
	t.logger.Info("throttle reset")
}

// Multiplier returns the current refill multiplier.
func (t *Throttle) Multiplier() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.multiplier
}

// Status refills, then reports the current balance and utilization.
func (t *Throttle) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.refillLocked()
	return Status{
		AgentID:     t.agentID,
		Available:   t.tokens,
		Capacity:    t.cfg.Capacity,
		Multiplier:  t.multiplier,
		Utilization: (t.cfg.Capacity - t.tokens) / t.cfg.Capacity * 100,
	}
}

// refillLocked settles elapsed time into the balance. It must run before
// every read or write of tokens so elapsed time is never double-counted or
// skipped. Callers hold t.mu.
func (t *Throttle) refillLocked() {
	now := t.now()
	elapsed := now.Sub(t.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	t.tokens += elapsed * t.cfg.RefillRate * t.multiplier
	if t.tokens > t.cfg.Capacity {
		t.tokens = t.cfg.Capacity
	}
	t.lastRefill = now
}
