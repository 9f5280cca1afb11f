package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// HubConfig configures the notification hub.
type HubConfig struct {
	// WriteTimeout bounds each push to a connected agent.
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
}

// DefaultHubConfig returns sensible defaults.
func DefaultHubConfig() HubConfig {
	return HubConfig{WriteTimeout: 5 * time.Second}
}

// Hub is a WebSocket-backed Notifier. Agents attach over HTTP and keep at
// most one connection each; a newer attach supersedes the older one. Pushes
// to agents without a connection are dropped silently.
type Hub struct {
	cfg    HubConfig
	logger *zap.Logger

	mu     sync.RWMutex
	conns  map[string]*agentConn
	closed bool
}

// agentConn serializes writes; the websocket does not allow concurrent writers.
type agentConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *agentConn) write(ctx context.Context, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Write(ctx, websocket.MessageText, payload)
}

func (c *agentConn) close(code websocket.StatusCode, reason string) {
	_ = c.conn.Close(code, reason)
}

// NewHub creates a notification hub.
func NewHub(cfg HubConfig, logger *zap.Logger) *Hub {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultHubConfig().WriteTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "notify_hub")),
		conns:  make(map[string]*agentConn),
	}
}

// ServeHTTP upgrades the request and registers the agent's channel. The
// agent ID comes from the {agentId} path value (Go 1.22+ route patterns),
// with the agentId query parameter as fallback.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	agentID := agentIDFrom(r)
	if agentID == "" {
		http.Error(w, "missing agent id", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed",
			zap.String("agent_id", agentID),
			zap.Error(err))
		return
	}

	ac := &agentConn{conn: conn}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		ac.close(websocket.StatusGoingAway, "hub is shut down")
		return
	}
	if prev, ok := h.conns[agentID]; ok {
		prev.close(websocket.StatusNormalClosure, "superseded by new connection")
	}
	h.conns[agentID] = ac
	h.mu.Unlock()

	h.logger.Info("agent channel connected", zap.String("agent_id", agentID))

	// Block until the peer goes away; inbound data is ignored.
	for {
		if _, _, err := conn.Read(r.Context()); err != nil {
			break
		}
	}

	h.detach(agentID, ac)
	h.logger.Info("agent channel disconnected", zap.String("agent_id", agentID))
}

// Notify implements Notifier. A failed write drops the connection: the agent
// reattaches and resynchronizes through the status endpoint.
func (h *Hub) Notify(ctx context.Context, notice Notice) {
	h.mu.RLock()
	ac, ok := h.conns[notice.AgentID]
	h.mu.RUnlock()
	if !ok {
		h.logger.Debug("agent not connected, dropping notice",
			zap.String("agent_id", notice.AgentID),
			zap.String("kind", string(notice.Kind)))
		return
	}

	if notice.SentAt.IsZero() {
		notice.SentAt = time.Now()
	}
	payload, err := json.Marshal(notice)
	if err != nil {
		h.logger.Error("notice marshal failed",
			zap.String("agent_id", notice.AgentID),
			zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.WriteTimeout)
	defer cancel()

	if err := ac.write(ctx, payload); err != nil {
		h.logger.Warn("notice push failed, dropping connection",
			zap.String("agent_id", notice.AgentID),
			zap.String("kind", string(notice.Kind)),
			zap.Error(err))
		h.detach(notice.AgentID, ac)
	}
}

// Connected reports whether the agent currently has an open channel.
func (h *Hub) Connected(agentID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[agentID]
	return ok
}

// ConnectionCount returns the number of attached agents.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close detaches every agent and rejects later attaches.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	for id, ac := range h.conns {
		ac.close(websocket.StatusGoingAway, "shutting down")
		delete(h.conns, id)
	}
	return nil
}

// detach removes ac if it is still the registered connection for agentID, so
// a superseded connection never evicts its replacement.
func (h *Hub) detach(agentID string, ac *agentConn) {
	h.mu.Lock()
	if cur, ok := h.conns[agentID]; ok && cur == ac {
		delete(h.conns, agentID)
	}
	h.mu.Unlock()
	ac.close(websocket.StatusNormalClosure, "detached")
}

func agentIDFrom(r *http.Request) string {
	if id := r.PathValue("agentId"); id != "" {
		return id
	}
	return r.URL.Query().Get("agentId")
}
