package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckReportsPerTarget(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	down := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	down.Close()

	c := NewChecker([]Target{
		{Name: "stt", URL: healthy.URL},
		{Name: "ollama", URL: failing.URL},
		{Name: "sink", URL: down.URL},
		{Name: "vision"},
	})

	reports := c.Check(context.Background())
	require.Len(t, reports, 4)

	assert.Equal(t, "stt", reports[0].Name)
	assert.Equal(t, StatusHealthy, reports[0].Status)
	assert.Greater(t, reports[0].LatencyMs, 0.0)

	assert.Equal(t, StatusDegraded, reports[1].Status)
	assert.Equal(t, StatusUnreachable, reports[2].Status)
	assert.Equal(t, StatusUnconfigured, reports[3].Status)
}

func TestCheckWithNoTargets(t *testing.T) {
	reports := NewChecker(nil).Check(context.Background())
	assert.Empty(t, reports)
}
