// Package ingest feeds application events from message brokers into the
// gateway broadcaster.
package ingest

import "stream-gateway/internal/websocket"

// Broadcaster accepts raw event envelopes. *websocket.Hub satisfies it.
type Broadcaster interface {
	Broadcast(raw []byte) (websocket.BroadcastResult, error)
}
