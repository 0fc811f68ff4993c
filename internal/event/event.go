// Package event defines the wire shapes flowing in and out of the session
// core: inbound envelopes (start, transcript, vision, end), the derived
// overlay/debrief/vision objects, and the outbound event envelope delivered
// to session subscribers.
package event

import "time"

// Persistence and transcription source modes carried on the start event.
const (
	SaveModeNone    = "none"
	SaveModePersist = "persist"

	STTModeMock     = "mock"
	STTModeExternal = "external-stream"
)

// StartInput carries the optional fields of a session start request.
// An empty SessionID asks the registry to generate one.
type StartInput struct {
	SessionID string `json:"sessionId,omitempty"`
	UserID    string `json:"userId,omitempty"`
	Language  string `json:"language,omitempty"`
	SaveMode  string `json:"saveMode,omitempty"`
	STTMode   string `json:"sttMode,omitempty"`
}

// TranscriptFragment is one piece of live transcript for a session.
// T0Ms/T1Ms are the fragment's start/end offsets in milliseconds as
// reported by the transcription source; zero when unknown.
type TranscriptFragment struct {
	SessionID string  `json:"sessionId"`
	Text      string  `json:"text"`
	T0Ms      float64 `json:"t0_ms,omitempty"`
	T1Ms      float64 `json:"t1_ms,omitempty"`
	Speaker   string  `json:"speaker,omitempty"`
}

// VisionFrame is a single captured image for a session.
type VisionFrame struct {
	SessionID  string `json:"sessionId"`
	ImageBytes []byte `json:"imageBytes"`
	MimeType   string `json:"mimeType"`
}

// Overlay is a periodically refreshed short summary of a session's recent
// content. History per session is append-only.
type Overlay struct {
	TopicLine        string    `json:"topic_line"`
	IntentTags       []string  `json:"intent_tags"`
	Confidence       float64   `json:"confidence"`
	UncertaintyNotes []string  `json:"uncertainty_notes"`
	Timestamp        time.Time `json:"timestamp"`
}

// Debrief is the one-time closing summary produced at session end.
type Debrief struct {
	Bullets          []string `json:"bullets"`
	Suggestions      []string `json:"suggestions"`
	UncertaintyNotes []string `json:"uncertainty_notes"`
}

// SocialCue is one categorical estimate with its own confidence.
type SocialCue struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// VisionSnapshot summarizes a single captured frame. Degraded marks
// snapshots produced from a fallback rather than a live vision call.
type VisionSnapshot struct {
	Environment     string    `json:"environment"`
	EnvConfidence   float64   `json:"environment_confidence"`
	PeopleCount     int       `json:"people_count"`
	Proximity       string    `json:"proximity"`
	Expression      SocialCue `json:"expression"`
	Posture         SocialCue `json:"posture"`
	Gaze            SocialCue `json:"gaze"`
	InteractionCtx  SocialCue `json:"interaction_context"`
	Reliability     float64   `json:"reliability"`
	Limitations     []string  `json:"limitations"`
	Degraded        bool      `json:"degraded,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// Intent tag vocabulary. Overlay intent tags are always drawn from this
// closed set; anything else a backend produces is discarded during decode.
const (
	IntentQuestion    = "question"
	IntentInstruction = "instruction"
	IntentRequest     = "request"
	IntentDecision    = "decision"
	IntentConcern     = "concern"
	IntentSmalltalk   = "smalltalk"
	IntentStatement   = "statement"
)

var intentVocab = map[string]bool{
	IntentQuestion:    true,
	IntentInstruction: true,
	IntentRequest:     true,
	IntentDecision:    true,
	IntentConcern:     true,
	IntentSmalltalk:   true,
	IntentStatement:   true,
}

// ValidIntentTag reports whether tag belongs to the closed vocabulary.
func ValidIntentTag(tag string) bool {
	return intentVocab[tag]
}

// Outbound event types.
const (
	TypeOverlay = "overlay"
	TypeDebrief = "debrief"
	TypeTool    = "tool"
	TypeVision  = "vision"
	TypeError   = "error"
)

// Stable machine-readable error codes carried on error events.
const (
	CodeSessionNotFound = "session_not_found"
	CodePersistFailed   = "persist_failed"
	CodeMetricsFailed   = "metrics_failed"
)

// Event is one outbound message for a session's subscribers. Overlay,
// debrief, tool and error payloads are flattened into the envelope; vision
// snapshots ride under scene_summary.
type Event struct {
	Type             string          `json:"type"`
	SessionID        string          `json:"sessionId,omitempty"`
	TopicLine        string          `json:"topic_line,omitempty"`
	IntentTags       []string        `json:"intent_tags,omitempty"`
	Confidence       float64         `json:"confidence,omitempty"`
	UncertaintyNotes []string        `json:"uncertainty_notes,omitempty"`
	Bullets          []string        `json:"bullets,omitempty"`
	Suggestions      []string        `json:"suggestions,omitempty"`
	Tool             string          `json:"tool,omitempty"`
	Suggestion       string          `json:"suggestion,omitempty"`
	Scene            *VisionSnapshot `json:"scene_summary,omitempty"`
	Code             string          `json:"code,omitempty"`
	Message          string          `json:"message,omitempty"`
	Timestamp        time.Time       `json:"timestamp,omitempty"`
}

// Callback is invoked for each event the core produces.
type Callback func(Event)

// NewOverlayEvent flattens an overlay into an outbound envelope.
func NewOverlayEvent(sessionID string, o Overlay) Event {
	return Event{
		Type:             TypeOverlay,
		SessionID:        sessionID,
		TopicLine:        o.TopicLine,
		IntentTags:       o.IntentTags,
		Confidence:       o.Confidence,
		UncertaintyNotes: o.UncertaintyNotes,
		Timestamp:        o.Timestamp,
	}
}

// NewDebriefEvent flattens a debrief into an outbound envelope.
func NewDebriefEvent(sessionID string, d Debrief) Event {
	return Event{
		Type:             TypeDebrief,
		SessionID:        sessionID,
		Bullets:          d.Bullets,
		Suggestions:      d.Suggestions,
		UncertaintyNotes: d.UncertaintyNotes,
	}
}

// NewToolEvent builds the secondary tool event emitted alongside an overlay.
func NewToolEvent(sessionID, tool, suggestion string, ts time.Time) Event {
	return Event{
		Type:       TypeTool,
		SessionID:  sessionID,
		Tool:       tool,
		Suggestion: suggestion,
		Timestamp:  ts,
	}
}

// NewVisionEvent wraps a snapshot into an outbound envelope.
func NewVisionEvent(sessionID string, snap VisionSnapshot) Event {
	s := snap
	return Event{
		Type:      TypeVision,
		SessionID: sessionID,
		Scene:     &s,
		Timestamp: snap.Timestamp,
	}
}

// NewErrorEvent builds a scoped error event with a stable code.
func NewErrorEvent(sessionID, code, message string) Event {
	return Event{
		Type:      TypeError,
		SessionID: sessionID,
		Code:      code,
		Message:   message,
	}
}
