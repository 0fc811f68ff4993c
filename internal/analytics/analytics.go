// Package analytics computes per-session aggregates and ships them to an
// optional external collector.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/jaekop/ContextLens/internal/event"
)

// Aggregate is the metrics record computed once when a session finishes.
type Aggregate struct {
	SessionID       string         `json:"session_id"`
	UserID          string         `json:"user_id,omitempty"`
	DurationSeconds float64        `json:"duration_seconds"`
	OverlayCount    int            `json:"overlay_count"`
	AvgConfidence   float64        `json:"avg_confidence"`
	IntentCounts    map[string]int `json:"intent_counts"`
	P95LatencyMs    float64        `json:"p95_latency_ms"`
	GeneratedAt     time.Time      `json:"generated_at"`
}

// Input carries everything Compute needs from a finished session.
type Input struct {
	SessionID   string
	UserID      string
	StartedAt   time.Time
	EndedAt     time.Time
	SpanSeen    bool
	MinT0Ms     float64
	MaxT1Ms     float64
	Overlays    []event.Overlay
	LatenciesMs []float64
}

// Compute builds the aggregate for one session. Duration prefers the span
// covered by fragment timestamps; wall-clock time is the fallback when no
// fragment carried a positive span.
func Compute(in Input) Aggregate {
	agg := Aggregate{
		SessionID:       in.SessionID,
		UserID:          in.UserID,
		DurationSeconds: durationSeconds(in),
		OverlayCount:    len(in.Overlays),
		IntentCounts:    map[string]int{},
		GeneratedAt:     in.EndedAt,
	}

	var confSum float64
	for _, o := range in.Overlays {
		confSum += o.Confidence
		for _, tag := range o.IntentTags {
			agg.IntentCounts[tag]++
		}
	}
	if len(in.Overlays) > 0 {
		agg.AvgConfidence = confSum / float64(len(in.Overlays))
	}

	agg.P95LatencyMs = percentile(append([]float64(nil), in.LatenciesMs...), 95)
	return agg
}

func durationSeconds(in Input) float64 {
	if in.SpanSeen {
		if span := in.MaxT1Ms - in.MinT0Ms; span > 0 {
			return span / 1000
		}
	}
	return in.EndedAt.Sub(in.StartedAt).Seconds()
}

// percentile returns the pct-th percentile of data, sorting in place.
func percentile(data []float64, pct float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sort.Float64s(data)
	idx := int(math.Ceil(pct/100*float64(len(data)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(data) {
		idx = len(data) - 1
	}
	return data[idx]
}
