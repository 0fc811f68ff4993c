package summarize

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaekop/ContextLens/internal/event"
	"github.com/jaekop/ContextLens/internal/prompts"
)

type stubCompleter struct {
	response   string
	err        error
	calls      int
	lastSystem string
	lastUser   string
}

func (s *stubCompleter) Complete(_ context.Context, system, user string) (string, error) {
	s.calls++
	s.lastSystem = system
	s.lastUser = user
	return s.response, s.err
}

type stubVision struct {
	response string
	err      error
}

func (s *stubVision) CompleteVision(_ context.Context, _, _ string, _ []byte, _ string) (string, error) {
	return s.response, s.err
}

func newTestGateway(c Completer, v VisionCompleter) *Gateway {
	backends := map[string]Completer{}
	if c != nil {
		backends["stub"] = c
	}
	return NewGateway(Config{Backends: backends, Engine: "stub", Vision: v})
}

func requireWellFormedOverlay(t *testing.T, o event.Overlay) {
	t.Helper()
	require.NotEmpty(t, o.TopicLine)
	require.NotEmpty(t, o.IntentTags)
	require.LessOrEqual(t, len(o.IntentTags), 3)
	for _, tag := range o.IntentTags {
		require.True(t, event.ValidIntentTag(tag), "tag %q outside vocabulary", tag)
	}
	require.GreaterOrEqual(t, o.Confidence, 0.0)
	require.LessOrEqual(t, o.Confidence, 1.0)
	require.LessOrEqual(t, len(o.UncertaintyNotes), 2)
}

func requireWellFormedDebrief(t *testing.T, d event.Debrief) {
	t.Helper()
	require.GreaterOrEqual(t, len(d.Bullets), 3)
	require.LessOrEqual(t, len(d.Bullets), 5)
	require.NotEmpty(t, d.Suggestions)
	require.LessOrEqual(t, len(d.Suggestions), 2)
	require.NotEmpty(t, d.UncertaintyNotes)
	require.LessOrEqual(t, len(d.UncertaintyNotes), 2)
}

func TestRollingSummaryUsesBackendResult(t *testing.T) {
	stub := &stubCompleter{response: `{"topic_line": "Planning the demo", "intent_tags": ["question", "decision"], "confidence": 0.8, "uncertainty_notes": ["speaker overlap"]}`}
	g := newTestGateway(stub, nil)

	overlay := g.RollingSummary(context.Background(), "[al] are we ready?", "")

	assert.Equal(t, "Planning the demo", overlay.TopicLine)
	assert.Equal(t, []string{"question", "decision"}, overlay.IntentTags)
	assert.InDelta(t, 0.8, overlay.Confidence, 1e-9)
	assert.Equal(t, []string{"speaker overlap"}, overlay.UncertaintyNotes)
	assert.Equal(t, 1, stub.calls)
}

func TestRollingSummaryPassesPromptAndLanguage(t *testing.T) {
	stub := &stubCompleter{response: `{"topic_line": "ok"}`}
	g := newTestGateway(stub, nil)

	g.RollingSummary(context.Background(), "window text", "Spanish")

	assert.Equal(t, prompts.RollingSystem, stub.lastSystem)
	assert.Contains(t, stub.lastUser, "window text")
	assert.Contains(t, stub.lastUser, "Respond in Spanish.")
}

func TestRollingSummaryNeverFails(t *testing.T) {
	cases := []struct {
		name string
		stub Completer
	}{
		{"backend error", &stubCompleter{err: errors.New("connection refused")}},
		{"garbage response", &stubCompleter{response: "no json here"}},
		{"missing topic", &stubCompleter{response: `{"intent_tags": ["question"]}`}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := newTestGateway(tc.stub, nil)
			overlay := g.RollingSummary(context.Background(), "[al] can you check the door?", "")
			requireWellFormedOverlay(t, overlay)
		})
	}
}

func TestRollingSummaryWithNoBackends(t *testing.T) {
	g := NewGateway(Config{Backends: map[string]Completer{}, Engine: "ollama"})

	overlay := g.RollingSummary(context.Background(), "", "")

	requireWellFormedOverlay(t, overlay)
	assert.Equal(t, "Quiet so far", overlay.TopicLine)
}

func TestDebriefUsesBackendResult(t *testing.T) {
	stub := &stubCompleter{response: `{"bullets": ["a", "b", "c", "d"], "suggestions": ["follow up"], "uncertainty_notes": ["names unclear"]}`}
	g := newTestGateway(stub, nil)

	debrief := g.Debrief(context.Background(), "whatever", "")

	assert.Equal(t, []string{"a", "b", "c", "d"}, debrief.Bullets)
	assert.Equal(t, []string{"follow up"}, debrief.Suggestions)
	assert.Equal(t, []string{"names unclear"}, debrief.UncertaintyNotes)
}

func TestDebriefNeverFails(t *testing.T) {
	buffer := "[al] first point\n[bo] second point"
	cases := []struct {
		name string
		stub Completer
	}{
		{"backend error", &stubCompleter{err: errors.New("timeout")}},
		{"too few bullets", &stubCompleter{response: `{"bullets": ["only one"]}`}},
		{"not json", &stubCompleter{response: "sorry, I cannot help with that"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := newTestGateway(tc.stub, nil)
			debrief := g.Debrief(context.Background(), buffer, "")
			requireWellFormedDebrief(t, debrief)
		})
	}
}

const goodVisionJSON = `{"environment": "office", "environment_confidence": 0.9,
 "people_count": 2, "proximity": "near",
 "expression": {"label": "smiling", "confidence": 0.7},
 "posture": {"label": "seated", "confidence": 0.8},
 "gaze": {"label": "toward camera", "confidence": 0.6},
 "interaction_context": {"label": "conversation", "confidence": 0.75},
 "reliability": 0.8, "limitations": ["low light"]}`

func TestVisionSummaryDecodesSnapshot(t *testing.T) {
	g := newTestGateway(nil, &stubVision{response: goodVisionJSON})

	snap, err := g.VisionSummary(context.Background(), []byte{0xff}, "image/jpeg", "")

	require.NoError(t, err)
	assert.Equal(t, "office", snap.Environment)
	assert.Equal(t, 2, snap.PeopleCount)
	assert.Equal(t, "near", snap.Proximity)
	assert.Equal(t, "smiling", snap.Expression.Label)
	assert.False(t, snap.Degraded)
}

func TestVisionSummaryWithoutBackend(t *testing.T) {
	g := newTestGateway(&stubCompleter{}, nil)

	_, err := g.VisionSummary(context.Background(), []byte{0xff}, "image/jpeg", "")

	require.ErrorIs(t, err, ErrNoVisionBackend)
	assert.False(t, g.HasVision())
}

func TestVisionSummaryPropagatesRateLimit(t *testing.T) {
	g := newTestGateway(nil, &stubVision{err: fmt.Errorf("gemini: %w", ErrRateLimited)})

	_, err := g.VisionSummary(context.Background(), []byte{0xff}, "image/jpeg", "")

	require.Error(t, err)
	assert.True(t, IsRateLimited(err))
}

func TestVisionSummaryRejectsUnusablePayload(t *testing.T) {
	g := newTestGateway(nil, &stubVision{response: "not json"})

	_, err := g.VisionSummary(context.Background(), []byte{0xff}, "image/jpeg", "")

	require.Error(t, err)
	assert.False(t, IsRateLimited(err))
}

func TestRouterFallsBack(t *testing.T) {
	primary := &stubCompleter{}
	fallback := &stubCompleter{}
	r := NewRouter(map[string]Completer{"primary": primary, "fallback": fallback}, "fallback")

	got, err := r.Route("primary")
	require.NoError(t, err)
	assert.Same(t, primary, got)

	got, err = r.Route("missing")
	require.NoError(t, err)
	assert.Same(t, fallback, got)

	assert.True(t, r.Has("primary"))
	assert.False(t, r.Has("missing"))
	assert.ElementsMatch(t, []string{"primary", "fallback"}, r.Engines())

	empty := NewRouter(map[string]Completer{}, "none")
	_, err = empty.Route("anything")
	require.Error(t, err)
}
