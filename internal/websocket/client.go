package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
)

// Socket is the duplex transport owned by a Connection. *gorilla.Conn
// satisfies it.
type Socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

type closeFrame struct {
	code   int
	reason string
}

// Connection is the gateway's state for one open socket.
type Connection struct {
	id     string
	hub    *Hub
	socket Socket
	send   chan []byte

	// closeReq hands the final close frame to the write pump, which flushes
	// queued messages before writing it.
	closeReq chan closeFrame

	mu            sync.RWMutex
	authenticated bool
	subjectID     string
	topics        map[string]struct{}
	lastLiveness  time.Time
	authExpiry    time.Time
	connectedAt   time.Time
	lastHeartbeat time.Time
	closing       bool

	// ctx is cancelled when the connection closes; in-flight authorization
	// lookups observe it.
	ctx    context.Context
	cancel context.CancelFunc
	closed int32
}

func newConnection(hub *Hub, socket Socket, now time.Time) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		id:           uuid.New().String(),
		hub:          hub,
		socket:       socket,
		send:         make(chan []byte, hub.settings.SendBuffer),
		closeReq:     make(chan closeFrame, 1),
		topics:       make(map[string]struct{}),
		lastLiveness: now,
		connectedAt:  now,
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (c *Connection) ID() string {
	return c.id
}

func (c *Connection) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

func (c *Connection) SubjectID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subjectID
}

// Topics returns the granted topics, sorted.
func (c *Connection) Topics() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	topics := make([]string, 0, len(c.topics))
	for t := range c.topics {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

func (c *Connection) LastLiveness() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastLiveness
}

func (c *Connection) AuthExpiry() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authExpiry
}

func (c *Connection) touch(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if now.After(c.lastLiveness) {
		c.lastLiveness = now
	}
}

// markAuthenticated moves the connection to the authenticated state unless it
// has started closing. It reports whether the change was applied.
func (c *Connection) markAuthenticated(subjectID string, expiry time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing || c.authenticated {
		return false
	}
	c.authenticated = true
	c.subjectID = subjectID
	c.authExpiry = expiry
	c.lastHeartbeat = c.lastLiveness
	return true
}

// heartbeatDue reports whether an authenticated connection has gone interval
// without a heartbeat, and if so records now as the latest one.
func (c *Connection) heartbeatDue(now time.Time, interval time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.authenticated || c.closing || now.Sub(c.lastHeartbeat) < interval {
		return false
	}
	c.lastHeartbeat = now
	return true
}

// replaceTopics swaps the whole subscription set unless the connection is
// closing.
func (c *Connection) replaceTopics(topics []string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing || !c.authenticated {
		return false
	}
	next := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		next[t] = struct{}{}
	}
	c.topics = next
	return true
}

// wants is the delivery predicate: authenticated, subscribed to something,
// and subscribed to topic.
func (c *Connection) wants(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.authenticated || len(c.topics) == 0 {
		return false
	}
	_, ok := c.topics[topic]
	return ok
}

func (c *Connection) isClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

// enqueue queues an encoded frame for the write pump without blocking.
func (c *Connection) enqueue(data []byte) error {
	if c.isClosed() {
		return ErrConnectionClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// sendMessage encodes msg and queues it. A full buffer disconnects the client.
func (c *Connection) sendMessage(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal message", "connectionID", c.id, "error", err)
		return err
	}
	err = c.enqueue(data)
	if errors.Is(err, ErrSendBufferFull) {
		slog.Warn("Send buffer full, closing connection", "connectionID", c.id)
		c.hub.disconnect(c, CloseSlowConsumer, "send buffer full", EvictionSlowConsumer)
	}
	return err
}

// shutdown marks the connection closed and asks the write pump to send the
// close frame. Safe to call more than once; only the first call has effect.
func (c *Connection) shutdown(code int, reason string) bool {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return false
	}
	c.closing = true
	c.mu.Unlock()

	atomic.StoreInt32(&c.closed, 1)
	c.cancel()
	c.closeReq <- closeFrame{code: code, reason: reason}
	return true
}

func (c *Connection) readPump() {
	defer c.hub.disconnect(c, CloseNormal, "connection closed", "")

	c.socket.SetReadLimit(c.hub.settings.MaxMessageSize)
	c.socket.SetPongHandler(func(string) error {
		c.touch(c.hub.clock.Now())
		return nil
	})

	for {
		_, data, err := c.socket.ReadMessage()
		if err != nil {
			if gorilla.IsUnexpectedCloseError(err, gorilla.CloseGoingAway, gorilla.CloseNormalClosure, gorilla.CloseNoStatusReceived) {
				slog.Debug("WebSocket read error", "connectionID", c.id, "error", err)
			}
			return
		}
		c.touch(c.hub.clock.Now())
		c.hub.handleMessage(c, data)
	}
}

func (c *Connection) writePump() {
	defer c.socket.Close()

	for {
		select {
		case data := <-c.send:
			if err := c.write(gorilla.TextMessage, data); err != nil {
				slog.Debug("Error writing message", "connectionID", c.id, "error", err)
				c.hub.disconnect(c, CloseNormal, "write failed", EvictionTransport)
				return
			}
		case frame := <-c.closeReq:
			c.flush()
			msg := gorilla.FormatCloseMessage(frame.code, frame.reason)
			if err := c.write(gorilla.CloseMessage, msg); err != nil {
				slog.Debug("Error writing close frame", "connectionID", c.id, "error", err)
			}
			return
		}
	}
}

// flush writes whatever is already queued, stopping at the first error.
func (c *Connection) flush() {
	for {
		select {
		case data := <-c.send:
			if err := c.write(gorilla.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Connection) write(messageType int, data []byte) error {
	if err := c.socket.SetWriteDeadline(time.Now().Add(c.hub.settings.WriteWait)); err != nil {
		return err
	}
	return c.socket.WriteMessage(messageType, data)
}
