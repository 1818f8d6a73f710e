package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrors counts Redis errors by operation type.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "limelight_redis_errors_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// WebSocketConnectionsTotal is the gauge of total WebSocket connections.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "limelight_websocket_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "limelight_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})

	// RoomTransitions counts lifecycle transitions by target state.
	RoomTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "limelight_room_transitions_total",
		Help: "Total room lifecycle transitions by target state",
	}, []string{"to"})

	// EventsBroadcast counts fan-out events by type.
	EventsBroadcast = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "limelight_events_broadcast_total",
		Help: "Total events broadcast to room subscribers by event type",
	}, []string{"event_type"})

	// PlaybackAutoEnds counts rooms ended by the playback controller after an
	// exhausted reconnect budget.
	PlaybackAutoEnds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "limelight_playback_auto_ends_total",
		Help: "Total rooms auto-ended after the playback retry budget was exhausted",
	})
)
