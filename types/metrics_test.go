package types

import "testing"

func TestQualityDrop(t *testing.T) {
	t.Parallel()

	m := AgentMetrics{BaselineQuality: 0.8, CurrentQuality: 0.6}
	if got := m.QualityDrop(); got < 0.2499 || got > 0.2501 {
		t.Fatalf("expected drop 0.25, got %v", got)
	}

	// no baseline, no drop
	m = AgentMetrics{BaselineQuality: 0, CurrentQuality: 0.6}
	if got := m.QualityDrop(); got != 0 {
		t.Fatalf("expected 0 without baseline, got %v", got)
	}

	// improvement clamps to zero
	m = AgentMetrics{BaselineQuality: 0.5, CurrentQuality: 0.9}
	if got := m.QualityDrop(); got != 0 {
		t.Fatalf("expected 0 on improvement, got %v", got)
	}
}

func TestResourceUsageMax(t *testing.T) {
	t.Parallel()

	u := ResourceUsage{CPU: 1.2, Memory: 2.4, Network: 9.9}
	if got := u.Max(); got != 2.4 {
		t.Fatalf("network must not count, got %v", got)
	}
}

func TestPriorityApply(t *testing.T) {
	t.Parallel()

	if got := PriorityHigh.Apply(-1); got != PriorityNormal {
		t.Fatalf("expected normal, got %v", got)
	}
	if got := PriorityLow.Apply(-3); got != PriorityLow {
		t.Fatalf("expected clamp at low, got %v", got)
	}
	if got := PriorityCritical.Apply(2); got != PriorityCritical {
		t.Fatalf("expected clamp at critical, got %v", got)
	}
}
