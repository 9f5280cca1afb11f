package agentgov

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentgov/config"
	"github.com/BaSui01/agentgov/penalty"
	"github.com/BaSui01/agentgov/testutil"
	"github.com/BaSui01/agentgov/testutil/fixtures"
	"github.com/BaSui01/agentgov/testutil/mocks"
)

func TestNewGovernsWithDefaults(t *testing.T) {
	monitor := mocks.NewMonitor()
	monitor.SetMetrics("agent-a", fixtures.FailingMetrics())
	monitor.SetState("agent-a", fixtures.WorkerState())
	monitor.SetSystemStatus(fixtures.CalmSystem())

	gov := New(monitor)
	t.Cleanup(func() { require.NoError(t, gov.Close()) })

	gov.Enroll("agent-a")

	ev, err := gov.Evaluate(testutil.TestContext(t), "agent-a")
	require.NoError(t, err)
	assert.Equal(t, penalty.ActionPenaltyApplied, ev.Action)
	assert.Equal(t, 3, ev.Level)

	st, err := gov.PenaltyStatus("agent-a")
	require.NoError(t, err)
	assert.Equal(t, penalty.StatePenalized, st.State)
}

func TestNewHealthyAgentStaysClear(t *testing.T) {
	monitor := mocks.NewMonitor()
	monitor.SetMetrics("agent-a", fixtures.HealthyMetrics())
	monitor.SetState("agent-a", fixtures.WorkerState())
	monitor.SetSystemStatus(fixtures.CalmSystem())

	gov := New(monitor)
	t.Cleanup(func() { require.NoError(t, gov.Close()) })

	gov.Enroll("agent-a")

	ev, err := gov.Evaluate(testutil.TestContext(t), "agent-a")
	require.NoError(t, err)
	assert.Equal(t, penalty.ActionNone, ev.Action)

	// Full rate for an unpenalized agent.
	assert.True(t, gov.Admit("agent-a", 1))
}

func TestNewWithCustomConfig(t *testing.T) {
	cfg := config.DefaultGovernanceConfig()
	cfg.Penalty.AppealWindow = config.DefaultGovernanceConfig().Penalty.AppealWindow * 2

	gov := New(mocks.NewMonitor(), WithConfig(cfg))
	t.Cleanup(func() { require.NoError(t, gov.Close()) })

	assert.Equal(t, 0, gov.Dashboard().Agents)
}

func TestCloseIsIdempotentOnManagerStop(t *testing.T) {
	gov := New(mocks.NewMonitor())
	require.NoError(t, gov.Close())
	// a second manager Stop must not panic
	gov.Manager.Stop()
}
