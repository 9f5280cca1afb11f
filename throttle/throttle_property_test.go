package throttle

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"pgregory.net/rapid"
)

func TestProperty_TokenBoundsUnderRefill(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		capacity := rapid.Float64Range(1, 1000).Draw(rt, "capacity")
		rate := rapid.Float64Range(0.1, 100).Draw(rt, "rate")
		level := rapid.IntRange(0, 6).Draw(rt, "level")

		clk := &fakeClock{t: time.Unix(1700000000, 0)}
		tb := New("agent-p", Config{Capacity: capacity, RefillRate: rate, Clock: clk.Now}, nil)
		tb.ApplyPenalty(level)

		// drain an arbitrary amount first
		drain := rapid.Float64Range(0, capacity).Draw(rt, "drain")
		tb.Consume(drain)

		prev := tb.Status().Available
		steps := rapid.IntRange(1, 20).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			clk.Advance(time.Duration(rapid.Int64Range(0, 3_600_000).Draw(rt, "elapsedMs")) * time.Millisecond)
			st := tb.Status()
			if st.Available < 0 || st.Available > capacity+1e-9 {
				rt.Fatalf("tokens out of bounds: %v not in [0, %v]", st.Available, capacity)
			}
			// refill alone never decreases the balance
			if st.Available < prev-1e-9 {
				rt.Fatalf("refill decreased balance: %v -> %v", prev, st.Available)
			}
			prev = st.Available
		}
	})
}

func TestProperty_ConsumeNeverOvergrants(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		capacity := rapid.Float64Range(1, 100).Draw(rt, "capacity")
		clk := &fakeClock{t: time.Unix(1700000000, 0)}
		tb := New("agent-p", Config{Capacity: capacity, RefillRate: 1, Clock: clk.Now}, nil)

		granted := 0.0
		for i := 0; i < rapid.IntRange(1, 30).Draw(rt, "ops"); i++ {
			n := rapid.Float64Range(0.1, capacity).Draw(rt, "n")
			if tb.Consume(n) {
				granted += n
			}
		}
		// with no time advanced, total grants cannot exceed the initial fill
		if granted > capacity+1e-9 {
			rt.Fatalf("granted %v from a bucket of %v with no refill", granted, capacity)
		}
	})
}

func TestProperty_MultiplierTableMonotone(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("higher level never refills faster", prop.ForAll(
		func(a, b int) bool {
			if a > b {
				a, b = b, a
			}
			return MultiplierForLevel(a) >= MultiplierForLevel(b)
		},
		gen.IntRange(1, 6),
		gen.IntRange(1, 6),
	))

	properties.Property("only level 6 starves completely", prop.ForAll(
		func(level int) bool {
			m := MultiplierForLevel(level)
			if level >= 6 {
				return m == 0
			}
			return m > 0
		},
		gen.IntRange(1, 6),
	))

	properties.TestingRun(t)
}
