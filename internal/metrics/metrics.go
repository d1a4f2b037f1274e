// Package metrics declares the Prometheus metrics for the SFU core.
//
// Naming convention: namespace_subsystem_name, namespace is always "sfu".
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// --- Worker Pool (§4.1) ---

	WorkerRouters = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sfu", Subsystem: "worker", Name: "routers",
		Help: "Current number of routers placed on each worker.",
	}, []string{"worker_pid"})

	WorkerTransports = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sfu", Subsystem: "worker", Name: "transports",
		Help: "Current number of transports open on each worker.",
	}, []string{"worker_pid"})

	WorkerConsumers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sfu", Subsystem: "worker", Name: "consumers",
		Help: "Current number of consumers open on each worker.",
	}, []string{"worker_pid"})

	WorkerProducers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sfu", Subsystem: "worker", Name: "producers",
		Help: "Current number of producers open on each worker.",
	}, []string{"worker_pid"})

	WorkersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sfu", Subsystem: "worker", Name: "pool_size",
		Help: "Current number of workers in the pool.",
	})

	WorkerRestartsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sfu", Subsystem: "worker", Name: "restarts_total",
		Help: "Total number of worker restarts performed after a crash.",
	})

	// --- Router Registry (§4.2) ---

	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sfu", Subsystem: "router", Name: "rooms_active",
		Help: "Current number of rooms with a live router.",
	})

	RoomProducersActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sfu", Subsystem: "router", Name: "producers_active",
		Help: "Current number of registered producers per room.",
	}, []string{"room_id"})

	// --- Peer Registry / Signaling Dispatcher (§4.3) ---

	PeersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sfu", Subsystem: "peer", Name: "peers_active",
		Help: "Current number of connected peers.",
	})

	RoomParticipants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sfu", Subsystem: "room", Name: "participants",
		Help: "Current number of participants in each room.",
	}, []string{"room_id"})

	MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sfu", Subsystem: "signaling", Name: "messages_total",
		Help: "Total inbound signaling messages handled, by type and outcome.",
	}, []string{"type", "outcome"})

	HandlerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sfu", Subsystem: "signaling", Name: "handler_duration_seconds",
		Help:    "Time spent executing a signaling message handler.",
		Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"type"})

	// --- Connections / ambient ---

	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sfu", Subsystem: "transport", Name: "connections_active",
		Help: "Current number of active WebSocket connections.",
	})

	// --- Optional cross-instance bus (§2 DOMAIN STACK) ---

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sfu", Subsystem: "circuit_breaker", Name: "state",
		Help: "Circuit breaker state per service: 0 closed, 1 open, 2 half-open.",
	}, []string{"service"})

	CircuitBreakerRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sfu", Subsystem: "circuit_breaker", Name: "rejections_total",
		Help: "Total calls rejected because the circuit breaker was open.",
	}, []string{"service"})

	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sfu", Subsystem: "ratelimit", Name: "exceeded_total",
		Help: "Total connection attempts rejected by the rate limiter.",
	}, []string{"scope"})
)

func IncConnection() { ConnectionsActive.Inc() }
func DecConnection() { ConnectionsActive.Dec() }
