package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"stream-gateway/internal/auth"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const e2eSecret = "e2e-test-secret"

type e2eGateway struct {
	hub    *Hub
	server *httptest.Server
	cancel context.CancelFunc
	done   chan struct{}
}

func startGateway(t *testing.T, settings Settings, grants map[string][]string, opts ...Option) *e2eGateway {
	t.Helper()
	opts = append([]Option{WithMetrics(NewMetrics(prometheus.NewRegistry()))}, opts...)
	hub := NewHub(settings, auth.NewTokenValidator(e2eSecret, nil), newStubAuthorizer(grants), opts...)
	upgrader := NewUpgrader(nil)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Accept(conn)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()

	g := &e2eGateway{hub: hub, server: server, cancel: cancel, done: done}
	t.Cleanup(g.stop)
	return g
}

func (g *e2eGateway) stop() {
	g.cancel()
	<-g.done
	g.server.Close()
}

type testClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func (g *e2eGateway) dial(t *testing.T) *testClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(g.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &testClient{t: t, conn: conn}
}

func (c *testClient) send(msg any) {
	require.NoError(c.t, c.conn.WriteJSON(msg))
}

func (c *testClient) read() map[string]any {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]any
	require.NoError(c.t, c.conn.ReadJSON(&msg))
	return msg
}

// readUntil skips liveness pings until a message of type arrives.
func (c *testClient) readUntil(msgType string) map[string]any {
	c.t.Helper()
	for {
		msg := c.read()
		if msg["type"] == msgType {
			return msg
		}
		require.Equal(c.t, "ping", msg["type"], "unexpected message %v", msg)
	}
}

// expectNothing asserts no data frame arrives within d.
func (c *testClient) expectNothing(d time.Duration) {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(d)))
	_, data, err := c.conn.ReadMessage()
	require.Error(c.t, err, "unexpected frame %s", data)
}

func token(t *testing.T, subject string, ttl time.Duration) string {
	t.Helper()
	tok, err := auth.NewToken(e2eSecret, subject, ttl, time.Now())
	require.NoError(t, err)
	return tok
}

func (c *testClient) login(tok string) map[string]any {
	c.t.Helper()
	c.readUntil("auth_required")
	c.send(map[string]any{"type": "authenticate", "token": tok})
	return c.readUntil("auth_success")
}

func TestEndToEndAuthenticateSubscribeBroadcast(t *testing.T) {
	g := startGateway(t, DefaultSettings(), map[string][]string{
		"10": {"production_events"},
		"20": {"equipment_status"},
	})

	// scenario 1
	operator := g.dial(t)
	challenge := operator.read()
	assert.Equal(t, "auth_required", challenge["type"])
	assert.NotEmpty(t, challenge["connectionId"])

	operator.send(map[string]any{"type": "authenticate", "token": token(t, "10", time.Hour)})
	success := operator.read()
	assert.Equal(t, "auth_success", success["type"])
	assert.Equal(t, challenge["connectionId"], success["connectionId"])
	assert.Equal(t, "10", success["userId"])
	assert.Equal(t, []string{"production_events"}, toStrings(success["availableStreams"]))

	// scenario 2
	operator.send(map[string]any{"type": "subscribe", "streams": []string{"production_events", "equipment_status"}})
	confirmed := operator.read()
	assert.Equal(t, "subscription_confirmed", confirmed["type"])
	assert.Equal(t, []string{"production_events"}, toStrings(confirmed["streams"]))
	assert.Equal(t, []string{"equipment_status"}, toStrings(confirmed["denied"]))

	// scenario 3
	anonymous := g.dial(t)
	anonymous.readUntil("auth_required")

	mechanic := g.dial(t)
	mechanic.login(token(t, "20", time.Hour))
	mechanic.send(map[string]any{"type": "subscribe", "streams": []string{"equipment_status"}})
	mechanic.readUntil("subscription_confirmed")

	result, err := g.hub.Broadcast([]byte(`{"kind":"job_completed","topic":"production_events","payload":{"jobId":"J-7"}}`))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deliveries)

	event := operator.read()
	assert.Equal(t, "event", event["type"])
	assert.Equal(t, "job_completed", event["kind"])
	assert.Equal(t, "production_events", event["topic"])
	assert.Equal(t, map[string]any{"jobId": "J-7"}, event["payload"])

	anonymous.expectNothing(100 * time.Millisecond)
	mechanic.expectNothing(100 * time.Millisecond)
}

func TestEndToEndLivenessTimeout(t *testing.T) {
	settings := DefaultSettings()
	settings.SweepInterval = 20 * time.Millisecond
	settings.PingInterval = 60 * time.Millisecond
	settings.Timeout = 150 * time.Millisecond

	g := startGateway(t, settings, map[string][]string{"10": {"production_events"}})

	silent := g.dial(t)
	silent.login(token(t, "10", time.Hour))
	silent.send(map[string]any{"type": "subscribe", "streams": []string{"production_events"}})
	silent.readUntil("subscription_confirmed")

	// scenario 4: stop responding and wait for the close frame
	var closeErr *websocket.CloseError
	require.NoError(t, silent.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, _, err := silent.conn.ReadMessage()
		if err != nil {
			require.ErrorAs(t, err, &closeErr)
			break
		}
	}
	assert.Equal(t, CloseLivenessTimeout, closeErr.Code)

	assert.Eventually(t, func() bool { return g.hub.registry.Len() == 0 }, time.Second, 10*time.Millisecond)
	result, err := g.hub.Broadcast([]byte(`{"kind":"k","topic":"production_events","payload":{}}`))
	require.NoError(t, err)
	assert.Zero(t, result.Deliveries)
}

func TestEndToEndCredentialExpiry(t *testing.T) {
	settings := DefaultSettings()
	settings.SweepInterval = 20 * time.Millisecond
	settings.PingInterval = 60 * time.Millisecond
	settings.Timeout = 5 * time.Second

	g := startGateway(t, settings, map[string][]string{"10": {"production_events"}})

	client := g.dial(t)
	// exp has second granularity; a one second token expires within two
	client.login(token(t, "10", time.Second))

	var closeErr *websocket.CloseError
	sawExpired := false
	require.NoError(t, client.conn.SetReadDeadline(time.Now().Add(4*time.Second)))
	for {
		var msg map[string]any
		err := client.conn.ReadJSON(&msg)
		if err != nil {
			require.ErrorAs(t, err, &closeErr)
			break
		}
		if msg["type"] == "auth_expired" {
			sawExpired = true
		}
		// keep the transport alive so only the credential can end the session
		client.send(map[string]any{"type": "pong"})
	}

	assert.True(t, sawExpired, "auth_expired must precede the close frame")
	assert.Equal(t, CloseCredentialFailed, closeErr.Code)
}

type recordingHook struct {
	mu     sync.Mutex
	events []LifecycleEvent
}

func (r *recordingHook) HandleLifecycle(_ context.Context, event LifecycleEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingHook) actions() []LifecycleAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]LifecycleAction, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Action)
	}
	return out
}

func TestShutdownClosesConnectionsAndFlushesHooks(t *testing.T) {
	hook := &recordingHook{}
	g := startGateway(t, DefaultSettings(), map[string][]string{"10": {"production_events"}}, WithHooks(hook))

	client := g.dial(t)
	client.login(token(t, "10", time.Hour))

	g.stop()

	var closeErr *websocket.CloseError
	require.NoError(t, client.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := client.conn.ReadMessage()
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, CloseGoingAway, closeErr.Code)

	assert.Equal(t, []LifecycleAction{ActionOpened, ActionAuthenticated, ActionClosed}, hook.actions())
}

func TestAcceptAfterShutdownIsRejected(t *testing.T) {
	h, _ := newTestHub(t, stubValidator{}, newStubAuthorizer(nil), WithHooks(&recordingHook{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, h.Run(ctx))

	socket := newFakeSocket()
	id, err := h.Accept(socket)
	require.ErrorIs(t, err, ErrHubClosed)
	assert.Empty(t, id)
	assert.True(t, socket.isClosed())
	assert.Equal(t, CloseGoingAway, socket.code())
	assert.Zero(t, h.registry.Len())
	assert.Empty(t, socket.messages(), "no auth challenge after shutdown")
}
