package websocket

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the gateway's prometheus collectors.
type Metrics struct {
	Connections              prometheus.Gauge
	AuthenticatedConnections prometheus.Gauge
	AuthAttempts             *prometheus.CounterVec
	Deliveries               *prometheus.CounterVec
	Dropped                  *prometheus.CounterVec
	Evictions                *prometheus.CounterVec
	SubscriptionDenials      prometheus.Counter
}

// Auth attempt results.
const (
	AuthResultSuccess = "success"
	AuthResultInvalid = "invalid"
	AuthResultExpired = "expired"
)

// Drop reasons.
const (
	DropInvalidEvent  = "invalid_event"
	DropSlowConsumer  = "slow_consumer"
	DropHookQueueFull = "hook_queue_full"
)

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_connections",
			Help: "Number of open WebSocket connections",
		}),
		AuthenticatedConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_authenticated_connections",
			Help: "Number of open connections that completed authentication",
		}),
		AuthAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_auth_attempts_total",
			Help: "Authentication attempts by result",
		}, []string{"result"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_event_deliveries_total",
			Help: "Events queued to subscribed connections by topic",
		}, []string{"topic"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_events_dropped_total",
			Help: "Events or records dropped by reason",
		}, []string{"reason"}),
		Evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_evictions_total",
			Help: "Connections closed by the gateway by reason",
		}, []string{"reason"}),
		SubscriptionDenials: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_subscription_denials_total",
			Help: "Requested topics denied by the authorizer",
		}),
	}

	reg.MustRegister(
		m.Connections,
		m.AuthenticatedConnections,
		m.AuthAttempts,
		m.Deliveries,
		m.Dropped,
		m.Evictions,
		m.SubscriptionDenials,
	)
	return m
}
