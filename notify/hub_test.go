package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ---- helpers ----

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(DefaultHubConfig(), zap.NewNop())
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	t.Cleanup(func() { _ = hub.Close() })
	return hub, srv
}

// wsURL converts an http:// test server URL to ws:// for the given agent.
func wsURL(srv *httptest.Server, agentID string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/?agentId=" + agentID
}

func dialAgent(t *testing.T, srv *httptest.Server, agentID string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv, agentID), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func readNotice(t *testing.T, conn *websocket.Conn) Notice {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var n Notice
	require.NoError(t, json.Unmarshal(data, &n))
	return n
}

// ---- tests ----

func TestDefaultHubConfig(t *testing.T) {
	cfg := DefaultHubConfig()
	assert.Equal(t, 5*time.Second, cfg.WriteTimeout)
}

func TestNewHub_AppliesDefaults(t *testing.T) {
	hub := NewHub(HubConfig{}, nil)
	assert.Equal(t, 5*time.Second, hub.cfg.WriteTimeout)
	assert.NotNil(t, hub.logger)
	assert.Equal(t, 0, hub.ConnectionCount())
}

func TestHub_NotifyDeliversToConnectedAgent(t *testing.T) {
	hub, srv := newTestHub(t)
	conn := dialAgent(t, srv, "agent-1")

	require.Eventually(t, func() bool {
		return hub.Connected("agent-1")
	}, 2*time.Second, 10*time.Millisecond)

	hub.Notify(context.Background(), Notice{
		AgentID: "agent-1",
		Kind:    KindPenaltyApplied,
		Detail:  map[string]any{"level": 3},
	})

	got := readNotice(t, conn)
	assert.Equal(t, "agent-1", got.AgentID)
	assert.Equal(t, KindPenaltyApplied, got.Kind)
	assert.EqualValues(t, 3, got.Detail["level"])
	assert.False(t, got.SentAt.IsZero())
}

func TestHub_NotifyUnconnectedAgentIsNoOp(t *testing.T) {
	hub, _ := newTestHub(t)

	// Must neither block nor panic.
	hub.Notify(context.Background(), Notice{
		AgentID: "ghost",
		Kind:    KindStageStarted,
	})

	assert.False(t, hub.Connected("ghost"))
	assert.Equal(t, 0, hub.ConnectionCount())
}

func TestHub_RejectsMissingAgentID(t *testing.T) {
	_, srv := newTestHub(t)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHub_NewConnectionSupersedesOld(t *testing.T) {
	hub, srv := newTestHub(t)

	first := dialAgent(t, srv, "agent-1")
	require.Eventually(t, func() bool {
		return hub.Connected("agent-1")
	}, 2*time.Second, 10*time.Millisecond)

	second := dialAgent(t, srv, "agent-1")

	// The superseded connection is closed by the hub.
	readCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := first.Read(readCtx)
	require.Error(t, err)

	assert.Equal(t, 1, hub.ConnectionCount())

	hub.Notify(context.Background(), Notice{
		AgentID: "agent-1",
		Kind:    KindStageCompleted,
	})

	got := readNotice(t, second)
	assert.Equal(t, KindStageCompleted, got.Kind)
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	hub, srv := newTestHub(t)
	conn := dialAgent(t, srv, "agent-1")

	require.Eventually(t, func() bool {
		return hub.Connected("agent-1")
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))

	require.Eventually(t, func() bool {
		return !hub.Connected("agent-1")
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, hub.ConnectionCount())
}

func TestHub_CloseDetachesAll(t *testing.T) {
	hub, srv := newTestHub(t)

	connA := dialAgent(t, srv, "agent-a")
	dialAgent(t, srv, "agent-b")

	require.Eventually(t, func() bool {
		return hub.ConnectionCount() == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Close())
	assert.Equal(t, 0, hub.ConnectionCount())

	// Detached peers see the close.
	readCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := connA.Read(readCtx)
	assert.Error(t, err)

	// Close is idempotent.
	assert.NoError(t, hub.Close())
}

func TestNopNotifier(t *testing.T) {
	var n Notifier = NopNotifier{}
	n.Notify(context.Background(), Notice{AgentID: "agent-1", Kind: KindRetrainingFailed})
}
