// Package summarize turns transcript windows and video frames into structured
// overlays, debriefs, and scene snapshots, dispatching across pluggable model
// backends with a deterministic offline fallback.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jaekop/ContextLens/internal/event"
	"github.com/jaekop/ContextLens/internal/metrics"
	"github.com/jaekop/ContextLens/internal/prompts"
)

// Completer produces a single bounded completion for a system+user prompt pair.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// VisionCompleter describes a single image alongside a text prompt.
type VisionCompleter interface {
	CompleteVision(ctx context.Context, system, user string, image []byte, mimeType string) (string, error)
}

// ErrRateLimited marks backend errors caused by provider quota exhaustion.
// Callers use IsRateLimited to decide whether to back off.
var ErrRateLimited = errors.New("rate limited")

// ErrNoVisionBackend is returned by VisionSummary when no vision-capable
// backend was configured.
var ErrNoVisionBackend = errors.New("no vision backend configured")

// IsRateLimited reports whether err was caused by provider rate limiting.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// Config wires a Gateway.
type Config struct {
	Backends map[string]Completer
	Engine   string          // preferred engine for text summaries
	Fallback string          // engine used when the preferred one is unregistered
	Vision   VisionCompleter // nil disables scene description
}

// Gateway is the single entry point for all summarization. The text methods
// never fail: any backend error or unusable response degrades to the offline
// heuristic so callers can rely on always receiving a well-formed result.
type Gateway struct {
	router *Router[Completer]
	engine string
	vision VisionCompleter
}

// NewGateway creates a gateway over the configured backends.
func NewGateway(cfg Config) *Gateway {
	fallback := cfg.Fallback
	if fallback == "" {
		fallback = cfg.Engine
	}
	return &Gateway{
		router: NewRouter(cfg.Backends, fallback),
		engine: cfg.Engine,
		vision: cfg.Vision,
	}
}

// Engines returns the names of all registered text backends.
func (g *Gateway) Engines() []string {
	return g.router.Engines()
}

// HasVision reports whether a vision backend is configured.
func (g *Gateway) HasVision() bool {
	return g.vision != nil
}

// RollingSummary produces a live overlay for the trailing transcript window.
func (g *Gateway) RollingSummary(ctx context.Context, window, language string) event.Overlay {
	if raw, err := g.complete(ctx, "rolling", prompts.RollingSystem, prompts.ForWindow(window, language)); err == nil {
		if overlay, ok := decodeOverlay(raw); ok {
			return overlay
		}
		slog.Warn("discarding unusable overlay response", "engine", g.engine)
	}
	metrics.GatewayFallbacks.WithLabelValues("rolling").Inc()
	return heuristicOverlay(window)
}

// Debrief produces a wrap-up for the full transcript buffer.
func (g *Gateway) Debrief(ctx context.Context, buffer, language string) event.Debrief {
	if raw, err := g.complete(ctx, "debrief", prompts.DebriefSystem, prompts.ForWindow(buffer, language)); err == nil {
		if debrief, ok := decodeDebrief(raw); ok {
			return debrief
		}
		slog.Warn("discarding unusable debrief response", "engine", g.engine)
	}
	metrics.GatewayFallbacks.WithLabelValues("debrief").Inc()
	return heuristicDebrief(buffer)
}

// VisionSummary describes a single video frame. Unlike the text methods it may
// fail: callers degrade to FallbackSnapshot on error and back off when
// IsRateLimited reports true.
func (g *Gateway) VisionSummary(ctx context.Context, image []byte, mimeType, language string) (event.VisionSnapshot, error) {
	if g.vision == nil {
		return event.VisionSnapshot{}, ErrNoVisionBackend
	}
	start := time.Now()
	raw, err := g.vision.CompleteVision(ctx, prompts.VisionSystem, prompts.ForWindow("Describe the attached frame.", language), image, mimeType)
	metrics.SummaryDuration.WithLabelValues("vision").Observe(time.Since(start).Seconds())
	if err != nil {
		return event.VisionSnapshot{}, fmt.Errorf("vision summary: %w", err)
	}
	snap, ok := decodeVision(raw)
	if !ok {
		return event.VisionSnapshot{}, errors.New("vision summary: unusable response")
	}
	return snap, nil
}

func (g *Gateway) complete(ctx context.Context, kind, system, user string) (string, error) {
	backend, err := g.router.Route(g.engine)
	if err != nil {
		slog.Warn("no summary backend available", "kind", kind, "engine", g.engine)
		return "", err
	}
	start := time.Now()
	raw, err := backend.Complete(ctx, system, user)
	metrics.SummaryDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		slog.Warn("summary backend failed", "kind", kind, "engine", g.engine, "error", err)
		return "", err
	}
	return raw, nil
}
