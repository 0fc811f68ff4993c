// Package session holds per-session state and the registry that owns it.
// A Session is addressable by id from creation until explicit removal; all
// mutation of one session is serialized by its lock, while distinct sessions
// proceed concurrently.
package session

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jaekop/ContextLens/internal/event"
	"github.com/jaekop/ContextLens/internal/stt"
)

// recentLineCount bounds the display tail kept per session.
const recentLineCount = 4

// State is the session lifecycle phase.
type State string

const (
	// StateActive accepts and processes chunks.
	StateActive State = "active"
	// StateFinalizing is set while end-of-session work runs; chunks arriving
	// in this phase are dropped because the session is about to be removed.
	StateFinalizing State = "finalizing"
)

// Session is the central entity: one bounded conversational context
// accumulating transcript and vision input until explicitly ended.
//
// Callers outside this package must hold the session lock (Lock/Unlock)
// across any read-modify cycle; the registry only touches a session under
// that lock or before the session is visible to anyone else.
type Session struct {
	ID        string
	CreatedAt time.Time

	UserID   string
	Language string
	SaveMode string
	STTMode  string

	State  State
	Paused bool

	RecentLines   []string
	Overlays      []event.Overlay
	VisionHistory []event.VisionSnapshot
	Debrief       *event.Debrief

	// Throttle bookkeeping. Both only ever advance, and only immediately
	// after a successful overlay emission.
	LastSummaryAt    time.Time
	LastSummaryChars int

	LastVisionAt       time.Time
	VisionBackoffUntil time.Time

	// OverlayLatenciesMs collects fragment-arrival-to-overlay-emission
	// latency samples for the end-of-session aggregate.
	OverlayLatenciesMs []float64

	// Fragment timestamp span for the duration estimate. SpanSeen is false
	// until at least one fragment carried a usable offset.
	SpanSeen bool
	MinT0Ms  float64
	MaxT1Ms  float64

	mu  sync.Mutex
	buf strings.Builder

	sttMu sync.Mutex
	sttH  stt.Stream
}

func newSession(id string, in event.StartInput, now time.Time) *Session {
	s := &Session{
		ID:        id,
		CreatedAt: now,
		UserID:    in.UserID,
		Language:  in.Language,
		SaveMode:  in.SaveMode,
		STTMode:   in.STTMode,
		State:     StateActive,
	}
	if s.SaveMode == "" {
		s.SaveMode = event.SaveModeNone
	}
	if s.STTMode == "" {
		s.STTMode = event.STTModeMock
	}
	return s
}

// Lock serializes mutation of this session. Held for the whole handling of
// one inbound event, including any gateway calls made on its behalf.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session lock.
func (s *Session) Unlock() { s.mu.Unlock() }

// merge copies the non-empty optional fields of in onto s. Identity and
// accumulated state (buffer, tail, histories, bookkeeping) are never
// touched; an absent field never clears an existing value.
func merge(s *Session, in event.StartInput) {
	if in.UserID != "" {
		s.UserID = in.UserID
	}
	if in.Language != "" {
		s.Language = in.Language
	}
	if in.SaveMode != "" {
		s.SaveMode = in.SaveMode
	}
	if in.STTMode != "" {
		s.STTMode = in.STTMode
	}
}

// AppendFragment appends one transcript fragment to the accumulating buffer
// and pushes its single-line rendering onto the recent-lines tail. Pure
// state mutation: it never triggers summarization.
func (s *Session) AppendFragment(text, speaker string) {
	line := text
	if speaker != "" {
		line = "[" + speaker + "] " + text
	}
	s.buf.WriteString(line)
	s.buf.WriteByte('\n')

	flat := strings.TrimSpace(strings.ReplaceAll(line, "\n", " "))
	if flat == "" {
		return
	}
	s.RecentLines = append(s.RecentLines, flat)
	if len(s.RecentLines) > recentLineCount {
		s.RecentLines = s.RecentLines[len(s.RecentLines)-recentLineCount:]
	}
}

// BufferLen returns the accumulated transcript length in bytes.
func (s *Session) BufferLen() int { return s.buf.Len() }

// Buffer returns the full accumulated transcript.
func (s *Session) Buffer() string { return s.buf.String() }

// TrailingWindow returns the most recent maxChars of the buffer, dropping
// oldest text first. The cut is advanced past any split UTF-8 sequence.
func (s *Session) TrailingWindow(maxChars int) string {
	full := s.buf.String()
	if maxChars <= 0 || len(full) <= maxChars {
		return full
	}
	cut := full[len(full)-maxChars:]
	for i := 0; i < len(cut); i++ {
		if utf8.RuneStart(cut[i]) {
			return cut[i:]
		}
	}
	return cut
}

// RecordSpan folds one fragment's t0/t1 offsets into the session span.
// Fragments without offsets (both zero or negative) are ignored.
func (s *Session) RecordSpan(t0Ms, t1Ms float64) {
	if t0Ms <= 0 && t1Ms <= 0 {
		return
	}
	if !s.SpanSeen {
		s.SpanSeen = true
		s.MinT0Ms = t0Ms
		s.MaxT1Ms = t1Ms
		return
	}
	if t0Ms < s.MinT0Ms {
		s.MinT0Ms = t0Ms
	}
	if t1Ms > s.MaxT1Ms {
		s.MaxT1Ms = t1Ms
	}
}

// AttachSTT stores the streaming transcription handle. A session holds at
// most one handle for its lifetime; a second attach is refused.
func (s *Session) AttachSTT(h stt.Stream) bool {
	s.sttMu.Lock()
	defer s.sttMu.Unlock()
	if s.sttH != nil {
		return false
	}
	s.sttH = h
	return true
}

// STTStream returns the attached transcription handle, or nil.
func (s *Session) STTStream() stt.Stream {
	s.sttMu.Lock()
	defer s.sttMu.Unlock()
	return s.sttH
}

// DetachSTT removes and returns the attached handle, nil when none. The
// caller owns stopping the returned handle; detaching before stopping is what
// keeps a handle from being stopped twice.
func (s *Session) DetachSTT() stt.Stream {
	s.sttMu.Lock()
	defer s.sttMu.Unlock()
	h := s.sttH
	s.sttH = nil
	return h
}

// Info is the diagnostic snapshot of one session for status endpoints.
type Info struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id,omitempty"`
	Language    string    `json:"language,omitempty"`
	SaveMode    string    `json:"save_mode"`
	STTMode     string    `json:"stt_mode"`
	State       State     `json:"state"`
	Paused      bool      `json:"paused,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	BufferChars int       `json:"buffer_chars"`
	Overlays    int       `json:"overlays"`
	RecentLines []string  `json:"recent_lines"`
}

func (s *Session) info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := make([]string, len(s.RecentLines))
	copy(lines, s.RecentLines)
	return Info{
		ID:          s.ID,
		UserID:      s.UserID,
		Language:    s.Language,
		SaveMode:    s.SaveMode,
		STTMode:     s.STTMode,
		State:       s.State,
		Paused:      s.Paused,
		CreatedAt:   s.CreatedAt,
		BufferChars: s.buf.Len(),
		Overlays:    len(s.Overlays),
		RecentLines: lines,
	}
}
