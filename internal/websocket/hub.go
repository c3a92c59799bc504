package websocket

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"stream-gateway/internal/auth"

	"github.com/benbjohnson/clock"
	gorilla "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

// CredentialValidator checks a bearer token. Implementations must not do I/O.
type CredentialValidator interface {
	Validate(token string) auth.Result
}

// StreamAuthorizer resolves which topics a subject may read. Calls may be
// slow and must fail closed.
type StreamAuthorizer interface {
	AvailableTopics(ctx context.Context, subjectID string) []string
}

// ErrHubClosed is returned by Accept once Run has shut the hub down.
var ErrHubClosed = errors.New("hub closed")

// Settings are the hub's timing and sizing parameters.
type Settings struct {
	SweepInterval  time.Duration
	PingInterval   time.Duration
	Timeout        time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	SendBuffer     int
	AuthzTimeout   time.Duration

	// HeartbeatInterval spaces the heartbeat lifecycle events emitted for
	// authenticated connections. Zero disables them.
	HeartbeatInterval time.Duration
}

// DefaultSettings sweeps every 10s, pings after 30s idle and evicts after 60s.
func DefaultSettings() Settings {
	return Settings{
		SweepInterval:  10 * time.Second,
		PingInterval:   30 * time.Second,
		Timeout:        60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 64 * 1024,
		SendBuffer:     256,
		AuthzTimeout:   5 * time.Second,

		HeartbeatInterval: 60 * time.Second,
	}
}

type Option func(*Hub)

func WithClock(clk clock.Clock) Option {
	return func(h *Hub) { h.clock = clk }
}

func WithMetrics(m *Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

func WithHooks(hooks ...LifecycleHook) Option {
	return func(h *Hub) { h.hooks = append(h.hooks, hooks...) }
}

// Hub accepts sockets, drives the per-connection protocol and fans out events.
type Hub struct {
	registry   *Registry
	validator  CredentialValidator
	authorizer StreamAuthorizer
	settings   Settings
	clock      clock.Clock
	metrics    *Metrics
	hooks      []LifecycleHook
	hookQueue  chan LifecycleEvent

	mu      sync.Mutex
	stopped bool
}

func NewHub(settings Settings, validator CredentialValidator, authorizer StreamAuthorizer, opts ...Option) *Hub {
	h := &Hub{
		registry:   NewRegistry(),
		validator:  validator,
		authorizer: authorizer,
		settings:   settings,
		hookQueue:  make(chan LifecycleEvent, hookQueueSize),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.clock == nil {
		h.clock = clock.New()
	}
	if h.metrics == nil {
		h.metrics = NewMetrics(prometheus.NewRegistry())
	}
	return h
}

// Run drives the liveness monitor and lifecycle hooks until ctx is done, then
// closes every remaining connection.
func (h *Hub) Run(ctx context.Context) error {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.runHooks(stop)
	}()

	NewMonitor(h).Run(ctx)

	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()

	slog.Info("WebSocket hub shutting down", "connections", h.registry.Len())
	h.registry.ForEach(func(c *Connection) {
		h.disconnect(c, CloseGoingAway, "server shutting down", EvictionShutdown)
	})
	close(stop)
	<-done
	return nil
}

// Accept registers socket as a new connection, sends the auth_required
// challenge and starts its pumps. It returns the connection id. After Run has
// returned, the socket is closed with 1001 and ErrHubClosed is returned.
func (h *Hub) Accept(socket Socket) (string, error) {
	now := h.clock.Now()

	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		socket.SetWriteDeadline(time.Now().Add(h.settings.WriteWait))
		socket.WriteMessage(gorilla.CloseMessage, gorilla.FormatCloseMessage(CloseGoingAway, "server shutting down"))
		socket.Close()
		return "", ErrHubClosed
	}
	c := newConnection(h, socket, now)
	h.register(c)
	h.mu.Unlock()

	if err := c.sendMessage(NewAuthRequiredMessage(c.id, now)); err != nil {
		slog.Warn("Failed to queue auth challenge", "connectionID", c.id, "error", err)
	}

	go c.writePump()
	go c.readPump()

	slog.Info("New WebSocket connection established", "connectionID", c.id)
	return c.id, nil
}

func (h *Hub) register(c *Connection) {
	h.registry.Add(c)
	h.metrics.Connections.Inc()
	h.emit(LifecycleEvent{ConnectionID: c.id, Action: ActionOpened, Timestamp: h.clock.Now()})
}

// disconnect removes c from the registry and closes its socket with code.
// Every close path goes through here; only the first call for a connection
// has any effect.
func (h *Hub) disconnect(c *Connection, code int, reason string, eviction string) {
	if !c.shutdown(code, reason) {
		return
	}
	h.registry.Remove(c.id)

	h.metrics.Connections.Dec()
	wasAuthenticated := c.IsAuthenticated()
	if wasAuthenticated {
		h.metrics.AuthenticatedConnections.Dec()
	}
	if eviction != "" {
		h.metrics.Evictions.WithLabelValues(eviction).Inc()
	}

	slog.Info("Connection closed", "connectionID", c.id, "userID", c.SubjectID(), "code", code, "reason", reason)
	h.emit(LifecycleEvent{
		ConnectionID: c.id,
		UserID:       c.SubjectID(),
		Action:       ActionClosed,
		Reason:       reason,
		Timestamp:    h.clock.Now(),
	})
}

// isLive is the guard for async continuations: the connection must still be
// the registered instance and not closing.
func (h *Hub) isLive(c *Connection) bool {
	return !c.isClosed() && h.registry.Contains(c)
}

// handleMessage dispatches one inbound frame. Frames from one connection are
// handled in arrival order by that connection's read pump.
func (h *Hub) handleMessage(c *Connection, data []byte) {
	msg, err := decodeClientMessage(data)
	if err != nil {
		slog.Debug("Rejected malformed message", "connectionID", c.id, "error", err)
		c.sendMessage(NewErrorMessage(err.Error()))
		return
	}

	if !msg.Type.IsClientType() {
		c.sendMessage(NewErrorMessage("Unknown message type: " + msg.Type.String()))
		return
	}

	switch msg.Type {
	case MessageTypeAuthenticate:
		h.authenticate(c, msg.Token)
	case MessageTypeSubscribe:
		h.subscribe(c, msg.Streams)
	case MessageTypePing:
		c.sendMessage(NewPongMessage(h.clock.Now()))
	case MessageTypePong:
		// liveness already refreshed by the read pump
	}
}

// Stats returns a copy of the current registry contents.
func (h *Hub) Stats() ConnectionStats {
	stats := ConnectionStats{
		Streams:     make(map[string]int),
		Connections: make([]ConnectionSnapshot, 0),
	}
	h.registry.ForEach(func(c *Connection) {
		c.mu.RLock()
		snap := ConnectionSnapshot{
			ConnectionID:  c.id,
			UserID:        c.subjectID,
			Authenticated: c.authenticated,
			ConnectedAt:   c.connectedAt,
			LastSeen:      c.lastLiveness,
		}
		if c.authenticated {
			snap.ExpiresAt = c.authExpiry
		}
		c.mu.RUnlock()
		snap.Streams = c.Topics()

		stats.TotalConnections++
		if snap.Authenticated {
			stats.AuthenticatedConnections++
		}
		for _, t := range snap.Streams {
			stats.Streams[t]++
		}
		stats.Connections = append(stats.Connections, snap)
	})
	return stats
}

type ConnectionSnapshot struct {
	ConnectionID  string    `json:"connectionId"`
	UserID        string    `json:"userId,omitempty"`
	Authenticated bool      `json:"authenticated"`
	Streams       []string  `json:"streams"`
	ConnectedAt   time.Time `json:"connectedAt"`
	LastSeen      time.Time `json:"lastSeen"`
	ExpiresAt     time.Time `json:"expiresAt,omitempty"`
}

type ConnectionStats struct {
	TotalConnections         int                  `json:"totalConnections"`
	AuthenticatedConnections int                  `json:"authenticatedConnections"`
	Streams                  map[string]int       `json:"streams"`
	Connections              []ConnectionSnapshot `json:"connections"`
}
