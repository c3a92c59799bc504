package websocket

import (
	"context"
	"log/slog"
	"time"
)

type LifecycleAction string

const (
	ActionOpened        LifecycleAction = "opened"
	ActionAuthenticated LifecycleAction = "authenticated"
	ActionClosed        LifecycleAction = "closed"
	// ActionHeartbeat is emitted periodically while an authenticated
	// connection stays open.
	ActionHeartbeat     LifecycleAction = "heartbeat"
)

// LifecycleEvent describes a connection state change. Only ids cross the
// gateway boundary, never the connection itself.
type LifecycleEvent struct {
	ConnectionID string          `json:"connectionId"`
	UserID       string          `json:"userId,omitempty"`
	Action       LifecycleAction `json:"action"`
	Reason       string          `json:"reason,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// LifecycleHook observes connection lifecycle changes, e.g. presence tracking
// or audit logging.
type LifecycleHook interface {
	HandleLifecycle(ctx context.Context, event LifecycleEvent) error
}

const (
	hookQueueSize = 1024
	hookTimeout   = 5 * time.Second
)

// emit queues event for the hook worker. It never blocks; a full queue drops
// the event.
func (h *Hub) emit(event LifecycleEvent) {
	if len(h.hooks) == 0 {
		return
	}
	select {
	case h.hookQueue <- event:
	default:
		h.metrics.Dropped.WithLabelValues(DropHookQueueFull).Inc()
		slog.Warn("Lifecycle hook queue full, dropping event", "connectionID", event.ConnectionID, "action", event.Action)
	}
}

// runHooks delivers queued lifecycle events until stop is closed, then drains
// what is left.
func (h *Hub) runHooks(stop <-chan struct{}) {
	for {
		select {
		case event := <-h.hookQueue:
			h.dispatch(event)
		case <-stop:
			for {
				select {
				case event := <-h.hookQueue:
					h.dispatch(event)
				default:
					return
				}
			}
		}
	}
}

func (h *Hub) dispatch(event LifecycleEvent) {
	for _, hook := range h.hooks {
		ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
		if err := hook.HandleLifecycle(ctx, event); err != nil {
			slog.Warn("Lifecycle hook failed", "connectionID", event.ConnectionID, "action", event.Action, "error", err)
		}
		cancel()
	}
}
