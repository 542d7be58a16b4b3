// Package metrics holds the process-wide prometheus collectors exposed
// on /metrics (grounded on internal/orchestrator/metrics.go's
// package-level promauto vars).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PacketsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meuchapeu_rtp_packets_sent_total",
		Help: "Total RTP packets transmitted, including silence-flush frames",
	})

	GatewayReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meuchapeu_gateway_reconnects_total",
		Help: "Gateway reconnect attempts by connection kind",
	}, []string{"kind"})

	DaveTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meuchapeu_dave_transitions_total",
		Help: "DAVE transitions executed, by type",
	}, []string{"type"})

	DaveInvalidCommits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meuchapeu_dave_invalid_commits_total",
		Help: "DAVE commits rejected by the MLS library, triggering recovery",
	})

	HeartbeatRoundTrip = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meuchapeu_heartbeat_round_trip_ms",
		Help:    "Heartbeat send-to-ack latency by connection kind",
		Buckets: prometheus.ExponentialBuckets(5, 1.6, 10),
	}, []string{"kind"})

	VoiceSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "meuchapeu_voice_sessions_active",
		Help: "Number of currently open voice sessions",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "meuchapeu_media_queue_depth",
		Help: "Items left in a guild queue when its player last dequeued; with several guilds, the most recent guild's count, not a total",
	})
)
