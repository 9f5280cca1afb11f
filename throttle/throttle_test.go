package throttle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock makes elapsed time explicit in tests.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestThrottle(t *testing.T, cfg Config) (*Throttle, *fakeClock) {
	t.Helper()
	clk := &fakeClock{t: time.Unix(1700000000, 0)}
	cfg.Clock = clk.Now
	return New("agent-1", cfg, nil), clk
}

func TestConsume_GrantAndDeny(t *testing.T) {
	tb, _ := newTestThrottle(t, Config{Capacity: 10, RefillRate: 1})

	assert.True(t, tb.Consume(4))
	assert.True(t, tb.Consume(6))
	// bucket empty, no time has passed
	assert.False(t, tb.Consume(1))

	st := tb.Status()
	assert.Equal(t, 0.0, st.Available)
	assert.Equal(t, 100.0, st.Utilization)
}

func TestConsume_DenialHasNoSideEffects(t *testing.T) {
	tb, _ := newTestThrottle(t, Config{Capacity: 10, RefillRate: 1})

	require.True(t, tb.Consume(7))
	before := tb.Status().Available
	assert.False(t, tb.Consume(5))
	assert.Equal(t, before, tb.Status().Available)
}

func TestRefill_RespectsRateAndCapacity(t *testing.T) {
	tb, clk := newTestThrottle(t, Config{Capacity: 10, RefillRate: 2})

	require.True(t, tb.Consume(10))
	clk.Advance(3 * time.Second)
	// 3s x 2 tokens/s = 6 tokens back
	assert.True(t, tb.Consume(6))
	assert.False(t, tb.Consume(1))

	// a long idle period must not overflow capacity
	clk.Advance(time.Hour)
	st := tb.Status()
	assert.Equal(t, 10.0, st.Available)
}

func TestApplyPenalty_SlowsRefill(t *testing.T) {
	tests := []struct {
		name     string
		level    int
		expected float64
	}{
		{"level 1 full speed", 1, 1.0},
		{"level 2", 2, 0.9},
		{"level 3", 3, 0.8},
		{"level 4", 4, 0.7},
		{"level 5 half speed", 5, 0.5},
		{"level 6 starved", 6, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb, clk := newTestThrottle(t, Config{Capacity: 100, RefillRate: 10})
			require.True(t, tb.Consume(100))

			tb.ApplyPenalty(tt.level)
			assert.Equal(t, tt.expected, tb.Multiplier())

			clk.Advance(4 * time.Second)
			st := tb.Status()
			assert.InDelta(t, 4*10*tt.expected, st.Available, 1e-9)
		})
	}
}

func TestApplyPenalty_SettlesElapsedAtOldRate(t *testing.T) {
	tb, clk := newTestThrottle(t, Config{Capacity: 100, RefillRate: 10})
	require.True(t, tb.Consume(100))

	// 2s at full speed before the penalty lands
	clk.Advance(2 * time.Second)
	tb.ApplyPenalty(6)

	// nothing more accrues under multiplier 0, but the pre-penalty 20
	// tokens are kept
	clk.Advance(time.Hour)
	assert.InDelta(t, 20.0, tb.Status().Available, 1e-9)
}

func TestLevelSixNeverRefills(t *testing.T) {
	tb, clk := newTestThrottle(t, Config{Capacity: 50, RefillRate: 100})
	require.True(t, tb.Consume(50))
	tb.ApplyPenalty(6)

	clk.Advance(24 * time.Hour)
	assert.False(t, tb.Consume(0.001))
}

func TestReset_RestoresFullBucket(t *testing.T) {
	tb, clk := newTestThrottle(t, Config{Capacity: 30, RefillRate: 1})
	require.True(t, tb.Consume(30))
	tb.ApplyPenalty(5)
	clk.Advance(time.Second)

	tb.Reset()

	st := tb.Status()
	assert.Equal(t, 30.0, st.Available)
	assert.Equal(t, 1.0, st.Multiplier)
	assert.Equal(t, 0.0, st.Utilization)
}

func TestSetMultiplier_Clamps(t *testing.T) {
	tb, _ := newTestThrottle(t, Config{Capacity: 10, RefillRate: 1})

	tb.SetMultiplier(1.5)
	assert.Equal(t, 1.0, tb.Multiplier())
	tb.SetMultiplier(-0.2)
	assert.Equal(t, 0.0, tb.Multiplier())
	tb.SetMultiplier(0.6)
	assert.Equal(t, 0.6, tb.Multiplier())
}

func TestMultiplierForLevel(t *testing.T) {
	assert.Equal(t, 1.0, MultiplierForLevel(0))
	assert.Equal(t, 1.0, MultiplierForLevel(1))
	assert.Equal(t, 0.8, MultiplierForLevel(3))
	assert.Equal(t, 0.0, MultiplierForLevel(6))
	assert.Equal(t, 0.0, MultiplierForLevel(9))
}

func TestConsume_ZeroOrNegativeAlwaysGranted(t *testing.T) {
	tb, _ := newTestThrottle(t, Config{Capacity: 1, RefillRate: 1})
	require.True(t, tb.Consume(1))

	assert.True(t, tb.Consume(0))
	assert.True(t, tb.Consume(-3))
	// the no-op grants must not have created tokens
	assert.False(t, tb.Consume(0.5))
}
