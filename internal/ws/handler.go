// Package ws is the websocket transport: it decodes inbound session events,
// hands them to the processor, and pumps the session's outbound events back
// over the same connection.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/jaekop/ContextLens/internal/emitter"
	"github.com/jaekop/ContextLens/internal/event"
	"github.com/jaekop/ContextLens/internal/metrics"
	"github.com/jaekop/ContextLens/internal/processor"
	"github.com/jaekop/ContextLens/internal/session"
	"github.com/jaekop/ContextLens/internal/stt"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandlerConfig holds the shared collaborators for all connections.
type HandlerConfig struct {
	Processor *processor.Processor
	Registry  *session.Registry
	Hub       *emitter.Hub

	// STTURL is the external transcription provider; empty means only the
	// mock source is available.
	STTURL        string
	MaxConcurrent int
}

// Handler serves websocket session connections with admission control.
type Handler struct {
	cfg HandlerConfig
	sem chan struct{}
}

// NewHandler creates a handler with shared collaborators and a connection cap.
func NewHandler(cfg HandlerConfig) *Handler {
	maxConc := cfg.MaxConcurrent
	if maxConc <= 0 {
		maxConc = 100
	}
	return &Handler{
		cfg: cfg,
		sem: make(chan struct{}, maxConc),
	}
}

// inbound is one client text frame. Type selects which of the remaining
// fields are read.
type inbound struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`

	// start
	UserID   string `json:"userId,omitempty"`
	Language string `json:"language,omitempty"`
	SaveMode string `json:"saveMode,omitempty"`
	STTMode  string `json:"sttMode,omitempty"`

	// transcript
	Text    string  `json:"text,omitempty"`
	T0Ms    float64 `json:"t0_ms,omitempty"`
	T1Ms    float64 `json:"t1_ms,omitempty"`
	Speaker string  `json:"speaker,omitempty"`

	// vision
	ImageBytes []byte `json:"imageBytes,omitempty"`
	MimeType   string `json:"mimeType,omitempty"`

	// pause
	Paused bool `json:"paused,omitempty"`
}

// startedAck tells the client which session the connection is bound to,
// needed when the server generated the id.
type startedAck struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Created   bool   `json:"created"`
}

// ServeHTTP upgrades the connection and runs its session loop.
// Returns 503 at max concurrent connection capacity.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case h.sem <- struct{}{}:
		defer func() { <-h.sem }()
	default:
		http.Error(w, "at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	metrics.ConnectionsActive.Inc()
	defer metrics.ConnectionsActive.Dec()

	h.runConn(conn)
}

// connState is the per-connection session binding. A connection drives one
// session: the first start frame binds it, later frames may omit sessionId.
type connState struct {
	boundID     string
	stream      stt.Stream
	unsubscribe func()
}

func (h *Handler) runConn(conn *websocket.Conn) {
	ctx := context.Background()
	send := newEventSender(conn)
	c := &connState{}
	defer h.cleanup(c)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			slog.Info("connection closed", "session_id", c.boundID, "error", err)
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if c.stream == nil {
				continue
			}
			if err := c.stream.SendAudio(data); err != nil {
				slog.Warn("audio forward failed", "session_id", c.boundID, "error", err)
			}
		case websocket.TextMessage:
			var in inbound
			if err := json.Unmarshal(data, &in); err != nil {
				slog.Warn("unparseable frame", "error", err)
				continue
			}
			h.route(ctx, c, in, send)
		}
	}
}

func (h *Handler) route(ctx context.Context, c *connState, in inbound, send func(any)) {
	if in.SessionID == "" {
		in.SessionID = c.boundID
	}

	switch in.Type {
	case "start":
		h.handleStart(c, in, send)
	case "transcript":
		h.cfg.Processor.HandleTranscript(ctx, event.TranscriptFragment{
			SessionID: in.SessionID,
			Text:      in.Text,
			T0Ms:      in.T0Ms,
			T1Ms:      in.T1Ms,
			Speaker:   in.Speaker,
		})
	case "vision":
		h.cfg.Processor.HandleVision(ctx, event.VisionFrame{
			SessionID:  in.SessionID,
			ImageBytes: in.ImageBytes,
			MimeType:   in.MimeType,
		})
	case "pause":
		h.cfg.Processor.HandlePause(in.SessionID, in.Paused)
	case "end":
		h.cfg.Processor.HandleEnd(ctx, in.SessionID)
	default:
		slog.Warn("frame with unknown type", "type", in.Type)
	}
}

func (h *Handler) handleStart(c *connState, in inbound, send func(any)) {
	sess, created := h.cfg.Processor.HandleStart(event.StartInput{
		SessionID: in.SessionID,
		UserID:    in.UserID,
		Language:  in.Language,
		SaveMode:  in.SaveMode,
		STTMode:   in.STTMode,
	})

	sess.Lock()
	id, sttMode, language := sess.ID, sess.STTMode, sess.Language
	sess.Unlock()

	if c.boundID == "" {
		c.boundID = id
		ch, cancel := h.cfg.Hub.Subscribe(id)
		c.unsubscribe = cancel
		go pump(ch, send)
		c.stream = h.openSTT(sess, sttMode, language)
	} else if c.boundID != id {
		slog.Warn("start for a different session on a bound connection",
			"bound", c.boundID, "session_id", id)
	}

	send(startedAck{Type: "started", SessionID: id, Created: created})
}

// openSTT attaches a transcription source matching the session's mode.
// Returns nil when no source could be attached; binary frames are then
// dropped.
func (h *Handler) openSTT(sess *session.Session, mode, language string) stt.Stream {
	onFragment := func(f stt.Fragment) {
		h.cfg.Processor.HandleTranscript(context.Background(), event.TranscriptFragment{
			SessionID: sess.ID,
			Text:      f.Text,
			T0Ms:      f.T0Ms,
			T1Ms:      f.T1Ms,
			Speaker:   f.Speaker,
		})
	}

	var stream stt.Stream
	switch mode {
	case event.STTModeExternal:
		if h.cfg.STTURL == "" {
			slog.Warn("external transcription requested but no provider configured",
				"session_id", sess.ID)
			return nil
		}
		ext, err := stt.DialExternal(h.cfg.STTURL, language, onFragment)
		if err != nil {
			slog.Error("transcription provider dial failed",
				"session_id", sess.ID, "error", err)
			return nil
		}
		stream = ext
	default:
		stream = stt.NewMock(stt.DefaultMockConfig(), onFragment)
	}

	if !sess.AttachSTT(stream) {
		slog.Warn("transcription already attached", "session_id", sess.ID)
		stream.Stop()
		return nil
	}
	return stream
}

// cleanup tears down the connection's subscription and its transcription
// source. The session itself stays alive for reconnects; only an explicit
// end finalizes it.
func (h *Handler) cleanup(c *connState) {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	if c.stream == nil {
		return
	}
	if sess, ok := h.cfg.Registry.Get(c.boundID); ok && sess.STTStream() == c.stream {
		sess.DetachSTT()
	}
	if err := c.stream.Stop(); err != nil {
		slog.Warn("stt stop on disconnect", "session_id", c.boundID, "error", err)
	}
}

// pump forwards subscribed events until the subscription is cancelled.
func pump(ch <-chan event.Event, send func(any)) {
	for ev := range ch {
		send(ev)
	}
}

// newEventSender serializes writes to the connection, which is shared by the
// read loop's acks and the pump goroutine.
func newEventSender(conn *websocket.Conn) func(any) {
	var mu sync.Mutex
	return func(v any) {
		jsonBytes, err := json.Marshal(v)
		if err != nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if err := conn.WriteMessage(websocket.TextMessage, jsonBytes); err != nil {
			slog.Error("write event", "error", err)
		}
	}
}
