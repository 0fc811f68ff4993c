// Package processor drives the session lifecycle: transcript accumulation,
// throttled summarization, vision cadence, and exactly-once finalization.
package processor

import (
	"context"
	"log/slog"
	"time"

	"github.com/jaekop/ContextLens/internal/analytics"
	"github.com/jaekop/ContextLens/internal/event"
	"github.com/jaekop/ContextLens/internal/metrics"
	"github.com/jaekop/ContextLens/internal/prompts"
	"github.com/jaekop/ContextLens/internal/session"
	"github.com/jaekop/ContextLens/internal/store"
	"github.com/jaekop/ContextLens/internal/summarize"
)

// Default thresholds. Both overlay floors must be undercut for an update to
// be skipped; crossing either one fires.
const (
	DefaultMinInterval    = 1500 * time.Millisecond
	DefaultMinCharsDelta  = 500
	DefaultVisionInterval = 10 * time.Second
	DefaultVisionBackoff  = 30 * time.Second
	DefaultWindowChars    = 4000
	DefaultSummaryTimeout = 20 * time.Second
)

// Saver persists finished sessions.
type Saver interface {
	SaveSession(rec store.Record) error
}

// Config wires a Processor. Zero-value thresholds fall back to the defaults;
// Store and Sink may be nil to disable persistence and metrics egress.
type Config struct {
	Registry *session.Registry
	Gateway  *summarize.Gateway
	Emit     event.Callback
	Store    Saver
	Sink     analytics.Sink

	Now func() time.Time

	MinInterval    time.Duration
	MinCharsDelta  int
	VisionInterval time.Duration
	VisionBackoff  time.Duration
	WindowChars    int
	SummaryTimeout time.Duration
}

// Processor handles every inbound session event. All mutation of a session
// happens under that session's lock, held for the full handling of the event
// including any gateway calls made on its behalf.
type Processor struct {
	cfg Config
}

// New creates a Processor, filling config defaults.
func New(cfg Config) *Processor {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Emit == nil {
		cfg.Emit = func(event.Event) {}
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	if cfg.MinCharsDelta <= 0 {
		cfg.MinCharsDelta = DefaultMinCharsDelta
	}
	if cfg.VisionInterval <= 0 {
		cfg.VisionInterval = DefaultVisionInterval
	}
	if cfg.VisionBackoff <= 0 {
		cfg.VisionBackoff = DefaultVisionBackoff
	}
	if cfg.WindowChars <= 0 {
		cfg.WindowChars = DefaultWindowChars
	}
	if cfg.SummaryTimeout <= 0 {
		cfg.SummaryTimeout = DefaultSummaryTimeout
	}
	return &Processor{cfg: cfg}
}

// HandleStart registers a session, or merges metadata into an existing one.
func (p *Processor) HandleStart(in event.StartInput) (*session.Session, bool) {
	sess, created := p.cfg.Registry.Start(in, p.cfg.Now())
	if created {
		metrics.SessionsTotal.Inc()
		metrics.SessionsActive.Inc()
		slog.Info("session started",
			"session_id", sess.ID, "save_mode", sess.SaveMode, "stt_mode", sess.STTMode)
	} else {
		slog.Info("session updated", "session_id", sess.ID)
	}
	return sess, created
}

// HandleTranscript folds one fragment into its session and produces a new
// overlay unless the throttle suppresses it.
func (p *Processor) HandleTranscript(ctx context.Context, frag event.TranscriptFragment) {
	sess, ok := p.cfg.Registry.Get(frag.SessionID)
	if !ok {
		p.emitNotFound(frag.SessionID)
		return
	}
	sess.Lock()
	defer sess.Unlock()
	if sess.State != session.StateActive {
		slog.Debug("dropping fragment for finalizing session", "session_id", frag.SessionID)
		return
	}

	sess.AppendFragment(frag.Text, frag.Speaker)
	sess.RecordSpan(frag.T0Ms, frag.T1Ms)
	metrics.FragmentsTotal.Inc()

	if sess.Paused {
		return
	}
	now := p.cfg.Now()
	if !overlayDue(now, sess.LastSummaryAt, sess.LastSummaryChars, sess.BufferLen(), p.cfg.MinInterval, p.cfg.MinCharsDelta) {
		metrics.ThrottleSkips.Inc()
		return
	}
	p.summarizeLocked(ctx, sess, now)
}

// overlayDue reports whether a new overlay should be produced. An update is
// skipped only when both the elapsed time and the accumulated characters are
// under their floors.
func overlayDue(now, lastAt time.Time, lastChars, bufChars int, minInterval time.Duration, minChars int) bool {
	return now.Sub(lastAt) >= minInterval || bufChars-lastChars >= minChars
}

func (p *Processor) summarizeLocked(ctx context.Context, sess *session.Session, now time.Time) {
	window := sess.TrailingWindow(p.cfg.WindowChars)

	cctx, cancel := context.WithTimeout(ctx, p.cfg.SummaryTimeout)
	overlay := p.cfg.Gateway.RollingSummary(cctx, window, sess.Language)
	cancel()

	done := p.cfg.Now()
	overlay.Timestamp = done
	latencyMs := float64(done.Sub(now).Milliseconds())

	sess.Overlays = append(sess.Overlays, overlay)
	sess.OverlayLatenciesMs = append(sess.OverlayLatenciesMs, latencyMs)
	sess.LastSummaryAt = now
	sess.LastSummaryChars = sess.BufferLen()
	metrics.OverlaysTotal.Inc()
	metrics.OverlayLatency.Observe(latencyMs / 1000)

	p.cfg.Emit(event.NewOverlayEvent(sess.ID, overlay))

	if hasTag(overlay.IntentTags, event.IntentInstruction) {
		p.cfg.Emit(event.NewToolEvent(sess.ID, "practice_prompt", prompts.PracticeSuggestion, done))
	}
}

func hasTag(tags []string, want string) bool {
	for _, tag := range tags {
		if tag == want {
			return true
		}
	}
	return false
}

// HandleVision describes one camera frame on the vision cadence. Failures
// degrade to a stale or conservative snapshot; they never end the session.
func (p *Processor) HandleVision(ctx context.Context, frame event.VisionFrame) {
	sess, ok := p.cfg.Registry.Get(frame.SessionID)
	if !ok {
		p.emitNotFound(frame.SessionID)
		return
	}
	sess.Lock()
	defer sess.Unlock()
	if sess.State != session.StateActive {
		return
	}
	metrics.VisionFrames.Inc()

	now := p.cfg.Now()
	if sess.Paused || now.Before(sess.VisionBackoffUntil) {
		return
	}
	if !sess.LastVisionAt.IsZero() && now.Sub(sess.LastVisionAt) < p.cfg.VisionInterval {
		return
	}
	sess.LastVisionAt = now

	cctx, cancel := context.WithTimeout(ctx, p.cfg.SummaryTimeout)
	snap, err := p.cfg.Gateway.VisionSummary(cctx, frame.ImageBytes, frame.MimeType, sess.Language)
	cancel()
	if err != nil {
		metrics.VisionDegraded.Inc()
		if summarize.IsRateLimited(err) {
			sess.VisionBackoffUntil = now.Add(p.cfg.VisionBackoff)
			slog.Warn("vision backend rate limited",
				"session_id", sess.ID, "until", sess.VisionBackoffUntil)
		} else {
			slog.Warn("vision summary failed", "session_id", sess.ID, "error", err)
		}
		var last *event.VisionSnapshot
		if n := len(sess.VisionHistory); n > 0 {
			last = &sess.VisionHistory[n-1]
		}
		snap = summarize.FallbackSnapshot(last, p.cfg.Now())
	} else {
		snap.Timestamp = p.cfg.Now()
	}

	sess.VisionHistory = append(sess.VisionHistory, snap)
	p.cfg.Emit(event.NewVisionEvent(sess.ID, snap))
}

// HandlePause toggles the summarization gate. Buffering continues while
// paused; overlays and vision snapshots do not.
func (p *Processor) HandlePause(sessionID string, paused bool) {
	sess, ok := p.cfg.Registry.Get(sessionID)
	if !ok {
		p.emitNotFound(sessionID)
		return
	}
	sess.Lock()
	defer sess.Unlock()
	if sess.State != session.StateActive {
		return
	}
	sess.Paused = paused
	slog.Info("session pause toggled", "session_id", sessionID, "paused", paused)
}

// HandleEnd finalizes a session: debrief, optional persistence, metrics
// egress, then removal. The ACTIVE check under the session lock makes the
// whole sequence run at most once even under concurrent ends.
func (p *Processor) HandleEnd(ctx context.Context, sessionID string) {
	sess, ok := p.cfg.Registry.Get(sessionID)
	if !ok {
		p.emitNotFound(sessionID)
		return
	}
	sess.Lock()
	defer sess.Unlock()
	if sess.State != session.StateActive {
		p.emitNotFound(sessionID)
		return
	}
	sess.State = session.StateFinalizing
	p.finalizeLocked(ctx, sess)
}

func (p *Processor) finalizeLocked(ctx context.Context, sess *session.Session) {
	endedAt := p.cfg.Now()

	cctx, cancel := context.WithTimeout(ctx, p.cfg.SummaryTimeout)
	debrief := p.cfg.Gateway.Debrief(cctx, sess.Buffer(), sess.Language)
	cancel()
	sess.Debrief = &debrief
	p.cfg.Emit(event.NewDebriefEvent(sess.ID, debrief))

	agg := analytics.Compute(analytics.Input{
		SessionID:   sess.ID,
		UserID:      sess.UserID,
		StartedAt:   sess.CreatedAt,
		EndedAt:     endedAt,
		SpanSeen:    sess.SpanSeen,
		MinT0Ms:     sess.MinT0Ms,
		MaxT1Ms:     sess.MaxT1Ms,
		Overlays:    sess.Overlays,
		LatenciesMs: sess.OverlayLatenciesMs,
	})

	if p.cfg.Store != nil && sess.SaveMode == event.SaveModePersist {
		rec := store.Record{
			SessionID:       sess.ID,
			UserID:          sess.UserID,
			Language:        sess.Language,
			StartedAt:       sess.CreatedAt,
			EndedAt:         endedAt,
			DurationSeconds: agg.DurationSeconds,
			Transcript:      sess.Buffer(),
			Debrief:         debrief,
			Overlays:        sess.Overlays,
			Analytics:       agg,
		}
		if err := p.cfg.Store.SaveSession(rec); err != nil {
			slog.Error("session persist failed", "session_id", sess.ID, "error", err)
			metrics.Errors.WithLabelValues(event.CodePersistFailed).Inc()
			p.cfg.Emit(event.NewErrorEvent(sess.ID, event.CodePersistFailed, "could not persist the session record"))
		}
	}

	if p.cfg.Sink != nil {
		cctx, cancel := context.WithTimeout(ctx, p.cfg.SummaryTimeout)
		err := p.cfg.Sink.Publish(cctx, agg)
		cancel()
		if err != nil {
			slog.Error("metrics egress failed", "session_id", sess.ID, "error", err)
			metrics.Errors.WithLabelValues(event.CodeMetricsFailed).Inc()
			p.cfg.Emit(event.NewErrorEvent(sess.ID, event.CodeMetricsFailed, "could not publish session metrics"))
		}
	}

	p.cfg.Registry.Remove(sess.ID)
	metrics.SessionsActive.Dec()
	slog.Info("session finalized",
		"session_id", sess.ID,
		"duration_seconds", agg.DurationSeconds,
		"overlays", len(sess.Overlays))
}

// Shutdown finalizes every remaining session, used on graceful exit.
func (p *Processor) Shutdown(ctx context.Context) {
	for _, info := range p.cfg.Registry.Snapshot() {
		p.HandleEnd(ctx, info.ID)
	}
}

func (p *Processor) emitNotFound(sessionID string) {
	metrics.Errors.WithLabelValues(event.CodeSessionNotFound).Inc()
	slog.Warn("event for unknown session", "session_id", sessionID)
	p.cfg.Emit(event.NewErrorEvent(sessionID, event.CodeSessionNotFound, "unknown session"))
}
