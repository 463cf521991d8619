package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus instruments for one Core instance.
type Metrics struct {
	FramesDropped *prometheus.CounterVec
	PingsSent     prometheus.Counter
	PingsReceived prometheus.Counter
	PongsSent     prometheus.Counter
	PongsReceived prometheus.Counter
	AddrUpdates   *prometheus.CounterVec
	AddrDecays    *prometheus.CounterVec
	KeyRotations  prometheus.Counter
	LatencyUsec   *prometheus.HistogramVec
	RingDepth     prometheus.Gauge
}

// NewMetrics registers Core instruments with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FramesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "peercore_frames_dropped_total",
			Help: "Total number of ingress frames dropped, by reason",
		}, []string{"reason"}),
		PingsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "peercore_pings_sent_total",
			Help: "Total number of outbound PING frames sent",
		}),
		PingsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "peercore_pings_received_total",
			Help: "Total number of PING frames accepted from peers",
		}),
		PongsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "peercore_pongs_sent_total",
			Help: "Total number of PONG/PONG2 frames sent",
		}),
		PongsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "peercore_pongs_received_total",
			Help: "Total number of PONG/PONG2 frames accepted from peers",
		}),
		AddrUpdates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "peercore_address_updates_total",
			Help: "Total number of peer address table updates, by family",
		}, []string{"family"}),
		AddrDecays: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "peercore_address_decays_total",
			Help: "Total number of peer address decay events, by family",
		}, []string{"family"}),
		KeyRotations: factory.NewCounter(prometheus.CounterOpts{
			Name: "peercore_key_rotations_total",
			Help: "Total number of time-bound seed rotations",
		}),
		LatencyUsec: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "peercore_ping_latency_usec",
			Help:    "Measured per-family round-trip latency in microseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 16),
		}, []string{"family"}),
		RingDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "peercore_ingress_ring_depth",
			Help: "Current number of queued ingress envelopes",
		}),
	}
}
