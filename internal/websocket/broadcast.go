package websocket

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"
)

// BroadcastResult summarizes one fan-out pass.
type BroadcastResult struct {
	EventID    string    `json:"eventId"`
	Topic      string    `json:"topic"`
	Timestamp  time.Time `json:"timestamp"`
	Deliveries int       `json:"deliveries"`
	Failures   int       `json:"failures"`
}

// Broadcast parses raw as an event envelope and fans it out. Invalid events
// are logged and dropped; the returned error is informational only.
func (h *Hub) Broadcast(raw []byte) (BroadcastResult, error) {
	ev, err := ParseEvent(raw)
	if err != nil {
		h.metrics.Dropped.WithLabelValues(DropInvalidEvent).Inc()
		slog.Warn("Dropping invalid event", "error", err)
		return BroadcastResult{}, err
	}
	return h.publish(ev), nil
}

// Publish validates ev and fans it out to every authenticated connection
// subscribed to its topic.
func (h *Hub) Publish(ev Event) (BroadcastResult, error) {
	if err := ev.Validate(); err != nil {
		h.metrics.Dropped.WithLabelValues(DropInvalidEvent).Inc()
		slog.Warn("Dropping invalid event", "error", err)
		return BroadcastResult{}, err
	}
	return h.publish(ev), nil
}

func (h *Hub) publish(ev Event) BroadcastResult {
	ev = ev.normalize(h.clock.Now())
	result := BroadcastResult{EventID: ev.EventID, Topic: ev.Topic, Timestamp: ev.Timestamp}

	data, err := json.Marshal(newEventMessage(ev))
	if err != nil {
		h.metrics.Dropped.WithLabelValues(DropInvalidEvent).Inc()
		slog.Error("Failed to marshal event", "eventID", ev.EventID, "error", err)
		return result
	}

	h.registry.ForEach(func(c *Connection) {
		if !c.wants(ev.Topic) {
			return
		}
		if err := c.enqueue(data); err != nil {
			result.Failures++
			if errors.Is(err, ErrSendBufferFull) {
				h.metrics.Dropped.WithLabelValues(DropSlowConsumer).Inc()
				slog.Warn("Send buffer full, closing connection", "connectionID", c.id, "topic", ev.Topic)
				h.disconnect(c, CloseSlowConsumer, "send buffer full", EvictionSlowConsumer)
			}
			return
		}
		result.Deliveries++
	})

	if result.Deliveries > 0 {
		h.metrics.Deliveries.WithLabelValues(ev.Topic).Add(float64(result.Deliveries))
	}
	slog.Info("Event broadcast", "eventID", ev.EventID, "kind", ev.Kind, "topic", ev.Topic, "deliveries", result.Deliveries, "failures", result.Failures)
	return result
}
