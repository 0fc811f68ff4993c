package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "orchestrator_sessions_active",
		Help: "Currently active sessions",
	})

	SessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orchestrator_sessions_total",
		Help: "Total sessions started",
	})

	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "orchestrator_ws_connections_active",
		Help: "Open websocket connections",
	})

	FragmentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orchestrator_transcript_fragments_total",
		Help: "Transcript fragments accepted",
	})

	OverlaysTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orchestrator_overlays_total",
		Help: "Overlay summaries emitted",
	})

	ThrottleSkips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orchestrator_throttle_skips_total",
		Help: "Fragments that did not trigger a summarization pass",
	})

	SummaryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orchestrator_summary_duration_seconds",
		Help:    "Summarization gateway latency",
		Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.0, 2.0, 5.0},
	}, []string{"kind"})

	OverlayLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "orchestrator_overlay_latency_seconds",
		Help:    "Latency from fragment arrival to overlay emission",
		Buckets: []float64{0.1, 0.2, 0.5, 0.8, 1.0, 1.5, 2.0, 3.0, 5.0},
	})

	GatewayFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrator_gateway_fallbacks_total",
		Help: "Summarization calls answered by the heuristic fallback",
	}, []string{"kind"})

	VisionFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orchestrator_vision_frames_total",
		Help: "Vision frames received for active sessions",
	})

	VisionDegraded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orchestrator_vision_degraded_total",
		Help: "Vision updates emitted from a degraded fallback snapshot",
	})

	EmitterDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orchestrator_emitter_dropped_total",
		Help: "Outbound events dropped on full subscriber buffers",
	})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrator_errors_total",
		Help: "Error events by code",
	}, []string{"code"})
)
