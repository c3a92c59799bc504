package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Eviction reasons recorded when the gateway closes a connection itself.
const (
	EvictionLivenessTimeout   = "liveness_timeout"
	EvictionCredentialExpired = "credential_expired"
	EvictionSlowConsumer      = "slow_consumer"
	EvictionTransport         = "transport_error"
	EvictionShutdown          = "shutdown"
)

// SweepResult counts what one sweep did.
type SweepResult struct {
	TimedOut   int
	Expired    int
	Pinged     int
	Heartbeats int
}

// Monitor periodically prunes dead and credential-expired connections and
// pings idle ones.
type Monitor struct {
	hub *Hub
}

func NewMonitor(hub *Hub) *Monitor {
	return &Monitor{hub: hub}
}

// Run sweeps every SweepInterval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := m.hub.clock.Ticker(m.hub.settings.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result := m.Sweep()
			if result.TimedOut+result.Expired > 0 {
				slog.Info("Liveness sweep evicted connections", "timedOut", result.TimedOut, "expired", result.Expired, "pinged", result.Pinged)
			}
		}
	}
}

// Sweep checks every connection once: liveness timeout first, then
// credential expiry, then idle ping. Expiry is enforced even on connections
// that are actively answering pings. Surviving authenticated connections get
// a heartbeat lifecycle event every HeartbeatInterval.
func (m *Monitor) Sweep() SweepResult {
	h := m.hub
	now := h.clock.Now()
	var result SweepResult

	h.registry.ForEach(func(c *Connection) {
		idle := now.Sub(c.LastLiveness())

		if idle > h.settings.Timeout {
			slog.Info("Connection timed out", "connectionID", c.id, "idle", idle)
			h.disconnect(c, CloseLivenessTimeout, "liveness timeout", EvictionLivenessTimeout)
			result.TimedOut++
			return
		}

		if c.IsAuthenticated() && now.After(c.AuthExpiry()) {
			slog.Info("Credential expired", "connectionID", c.id, "userID", c.SubjectID())
			if data, err := json.Marshal(NewAuthExpiredMessage("Authentication token has expired")); err == nil {
				c.enqueue(data)
			}
			h.disconnect(c, CloseCredentialFailed, "credential expired", EvictionCredentialExpired)
			result.Expired++
			return
		}

		if idle > h.settings.PingInterval && !c.isClosed() {
			c.sendMessage(NewPingMessage(now, !c.IsAuthenticated()))
			result.Pinged++
		}

		if interval := h.settings.HeartbeatInterval; interval > 0 && c.heartbeatDue(now, interval) {
			h.emit(LifecycleEvent{
				ConnectionID: c.id,
				UserID:       c.SubjectID(),
				Action:       ActionHeartbeat,
				Timestamp:    now,
			})
			result.Heartbeats++
		}
	})
	return result
}
