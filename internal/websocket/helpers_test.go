package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"stream-gateway/internal/auth"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

var errSocketClosed = errors.New("socket closed")

// fakeSocket is an in-memory Socket. Frames pushed with deliver are returned
// by ReadMessage; written frames are recorded.
type fakeSocket struct {
	mu        sync.Mutex
	inbound   chan []byte
	written   [][]byte
	pings     int
	closeCode int
	closed    bool
	done      chan struct{}
	writeErr  error
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{inbound: make(chan []byte, 16), done: make(chan struct{})}
}

func (s *fakeSocket) deliver(data string) {
	s.inbound <- []byte(data)
}

func (s *fakeSocket) ReadMessage() (int, []byte, error) {
	select {
	case data := <-s.inbound:
		return 1, data, nil
	case <-s.done:
		return 0, nil, errSocketClosed
	}
}

func (s *fakeSocket) WriteMessage(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSocketClosed
	}
	if s.writeErr != nil {
		return s.writeErr
	}
	if messageType == 9 { // ping frame
		s.pings++
		return nil
	}
	if messageType == 8 { // close frame
		if len(data) >= 2 {
			s.closeCode = int(data[0])<<8 | int(data[1])
		}
		return nil
	}
	s.written = append(s.written, data)
	return nil
}

func (s *fakeSocket) SetReadLimit(int64) {}
func (s *fakeSocket) SetWriteDeadline(time.Time) error { return nil }
func (s *fakeSocket) SetPongHandler(func(string) error) {}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

func (s *fakeSocket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSocket) controlPings() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pings
}

func (s *fakeSocket) code() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCode
}

func (s *fakeSocket) messages() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, 0, len(s.written))
	for _, data := range s.written {
		var m map[string]any
		if json.Unmarshal(data, &m) == nil {
			out = append(out, m)
		}
	}
	return out
}

// stubValidator maps tokens to results; unknown tokens are invalid.
type stubValidator map[string]auth.Result

func (v stubValidator) Validate(token string) auth.Result {
	return v[token]
}

// stubAuthorizer grants topics per subject. When gate is set, lookups block
// until it is closed.
type stubAuthorizer struct {
	mu     sync.Mutex
	grants map[string][]string
	gate   chan struct{}
	calls  int
}

func newStubAuthorizer(grants map[string][]string) *stubAuthorizer {
	return &stubAuthorizer{grants: grants}
}

func (a *stubAuthorizer) setGrants(subject string, topics ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.grants[subject] = topics
}

func (a *stubAuthorizer) wait(ctx context.Context) {
	a.mu.Lock()
	gate := a.gate
	a.calls++
	a.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}
}

func (a *stubAuthorizer) AvailableTopics(ctx context.Context, subjectID string) []string {
	a.wait(ctx)
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.grants[subjectID]...)
}

func (a *stubAuthorizer) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

var testEpoch = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

func testSettings() Settings {
	s := DefaultSettings()
	s.SendBuffer = 32
	return s
}

func newTestHub(t *testing.T, validator CredentialValidator, authorizer StreamAuthorizer, opts ...Option) (*Hub, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(testEpoch)
	opts = append([]Option{WithClock(mock), WithMetrics(NewMetrics(prometheus.NewRegistry()))}, opts...)
	return NewHub(testSettings(), validator, authorizer, opts...), mock
}

// addConnection registers a connection without starting its pumps, so frames
// stay in c.send for inspection.
func addConnection(h *Hub) *Connection {
	c := newConnection(h, newFakeSocket(), h.clock.Now())
	h.register(c)
	return c
}

// drain pops every queued frame from c.send.
func drain(t *testing.T, c *Connection) []map[string]any {
	t.Helper()
	var out []map[string]any
	for {
		select {
		case data := <-c.send:
			var m map[string]any
			require.NoError(t, json.Unmarshal(data, &m))
			out = append(out, m)
		default:
			return out
		}
	}
}

func lastMessage(t *testing.T, c *Connection) map[string]any {
	t.Helper()
	msgs := drain(t, c)
	require.NotEmpty(t, msgs, "expected a queued message")
	return msgs[len(msgs)-1]
}

// authenticated registers a connection and authenticates it as subject.
func authenticated(t *testing.T, h *Hub, subject string, topics ...string) *Connection {
	t.Helper()
	c := addConnection(h)
	require.True(t, c.markAuthenticated(subject, h.clock.Now().Add(time.Hour)))
	h.metrics.AuthenticatedConnections.Inc()
	if len(topics) > 0 {
		require.True(t, c.replaceTopics(topics))
	}
	return c
}

func toStrings(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, _ := item.(string)
		out = append(out, s)
	}
	return out
}
