package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaekop/ContextLens/internal/event"
)

func TestComputePrefersFragmentSpan(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	agg := Compute(Input{
		SessionID: "s1",
		StartedAt: start,
		EndedAt:   start.Add(5 * time.Minute),
		SpanSeen:  true,
		MinT0Ms:   1000,
		MaxT1Ms:   61000,
	})

	assert.InDelta(t, 60.0, agg.DurationSeconds, 1e-9)
}

func TestComputeFallsBackToWallClock(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(42 * time.Second)

	noSpan := Compute(Input{StartedAt: start, EndedAt: end})
	assert.InDelta(t, 42.0, noSpan.DurationSeconds, 1e-9)

	zeroSpan := Compute(Input{StartedAt: start, EndedAt: end, SpanSeen: true, MinT0Ms: 5000, MaxT1Ms: 5000})
	assert.InDelta(t, 42.0, zeroSpan.DurationSeconds, 1e-9)
}

func TestComputeAggregatesOverlays(t *testing.T) {
	agg := Compute(Input{
		SessionID: "s1",
		UserID:    "u1",
		Overlays: []event.Overlay{
			{Confidence: 0.8, IntentTags: []string{"question", "decision"}},
			{Confidence: 0.4, IntentTags: []string{"question"}},
		},
	})

	assert.Equal(t, 2, agg.OverlayCount)
	assert.InDelta(t, 0.6, agg.AvgConfidence, 1e-9)
	assert.Equal(t, map[string]int{"question": 2, "decision": 1}, agg.IntentCounts)
	assert.Equal(t, "u1", agg.UserID)
}

func TestComputeEmptySession(t *testing.T) {
	agg := Compute(Input{SessionID: "s1"})

	assert.Zero(t, agg.OverlayCount)
	assert.Zero(t, agg.AvgConfidence)
	assert.NotNil(t, agg.IntentCounts)
	assert.Zero(t, agg.P95LatencyMs)
}

func TestComputeDoesNotReorderLatencies(t *testing.T) {
	latencies := []float64{30, 10, 20}

	agg := Compute(Input{LatenciesMs: latencies})

	assert.InDelta(t, 30.0, agg.P95LatencyMs, 1e-9)
	assert.Equal(t, []float64{30, 10, 20}, latencies)
}

func TestPercentile(t *testing.T) {
	data := []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}

	assert.InDelta(t, 100.0, percentile(data, 95), 1e-9)
	assert.InDelta(t, 50.0, percentile(data, 50), 1e-9)
	assert.InDelta(t, 5.0, percentile([]float64{5}, 95), 1e-9)
	assert.Zero(t, percentile(nil, 95))
}

func TestHTTPSinkPublishes(t *testing.T) {
	var got Aggregate
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	agg := Compute(Input{SessionID: "s1", LatenciesMs: []float64{12}})
	err := NewHTTPSink(srv.URL).Publish(context.Background(), agg)

	require.NoError(t, err)
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, "s1", got.SessionID)
	assert.InDelta(t, 12.0, got.P95LatencyMs, 1e-9)
}

func TestHTTPSinkReportsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewHTTPSink(srv.URL).Publish(context.Background(), Aggregate{SessionID: "s1"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestHTTPSinkReportsConnectionErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	err := NewHTTPSink(srv.URL).Publish(context.Background(), Aggregate{SessionID: "s1"})

	require.Error(t, err)
}
