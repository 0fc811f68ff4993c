// Package health probes the collaborator services a running instance depends
// on, for the status endpoint.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// Status is the probed readiness of one collaborator.
type Status string

const (
	StatusHealthy      Status = "healthy"
	StatusDegraded     Status = "degraded"
	StatusUnreachable  Status = "unreachable"
	StatusUnconfigured Status = "unconfigured"
)

// Target is one collaborator to probe, such as the transcription endpoint or
// a model backend. An empty URL marks the collaborator as not configured.
type Target struct {
	Name string
	URL  string
}

// Report is the probe result for one target.
type Report struct {
	Name      string  `json:"name"`
	Status    Status  `json:"status"`
	LatencyMs float64 `json:"latency_ms,omitempty"`
}

// Checker probes a fixed set of targets.
type Checker struct {
	client  *http.Client
	targets []Target
}

// NewChecker creates a checker over the given targets.
func NewChecker(targets []Target) *Checker {
	return &Checker{
		client:  &http.Client{Timeout: 5 * time.Second},
		targets: targets,
	}
}

// Check probes every target concurrently and returns reports in target order.
func (c *Checker) Check(ctx context.Context) []Report {
	reports := make([]Report, len(c.targets))
	var wg sync.WaitGroup
	for i, target := range c.targets {
		wg.Add(1)
		go func(i int, target Target) {
			defer wg.Done()
			reports[i] = c.probe(ctx, target)
		}(i, target)
	}
	wg.Wait()
	return reports
}

func (c *Checker) probe(ctx context.Context, target Target) Report {
	report := Report{Name: target.Name, Status: StatusUnconfigured}
	if target.URL == "" {
		return report
	}

	req, err := http.NewRequestWithContext(ctx, "GET", target.URL, nil)
	if err != nil {
		report.Status = StatusUnreachable
		return report
	}
	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		report.Status = StatusUnreachable
		return report
	}
	resp.Body.Close()

	report.LatencyMs = float64(time.Since(started).Microseconds()) / 1000
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		report.Status = StatusHealthy
	} else {
		report.Status = StatusDegraded
	}
	return report
}
