package ws

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaekop/ContextLens/internal/emitter"
	"github.com/jaekop/ContextLens/internal/event"
	"github.com/jaekop/ContextLens/internal/processor"
	"github.com/jaekop/ContextLens/internal/prompts"
	"github.com/jaekop/ContextLens/internal/session"
	"github.com/jaekop/ContextLens/internal/summarize"
)

type cannedBackend struct{}

func (cannedBackend) Complete(_ context.Context, system, _ string) (string, error) {
	if system == prompts.DebriefSystem {
		return `{"bullets": ["opened the call", "walked the agenda", "wrapped up"], "suggestions": ["share notes"], "uncertainty_notes": ["none"]}`, nil
	}
	return `{"topic_line": "Walking the agenda", "intent_tags": ["statement"], "confidence": 0.8}`, nil
}

func newTestServer(t *testing.T, maxConcurrent int) *httptest.Server {
	t.Helper()
	reg := session.NewRegistry()
	hub := emitter.NewHub()
	gw := summarize.NewGateway(summarize.Config{
		Backends: map[string]summarize.Completer{"canned": cannedBackend{}},
		Engine:   "canned",
	})
	proc := processor.New(processor.Config{
		Registry: reg,
		Gateway:  gw,
		Emit:     hub.Publish,
	})
	h := NewHandler(HandlerConfig{
		Processor:     proc,
		Registry:      reg,
		Hub:           hub,
		MaxConcurrent: maxConcurrent,
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func dialTest(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return data
}

func readEvent(t *testing.T, conn *websocket.Conn) event.Event {
	t.Helper()
	var ev event.Event
	require.NoError(t, json.Unmarshal(readFrame(t, conn), &ev))
	return ev
}

func TestSessionRoundTrip(t *testing.T) {
	srv := newTestServer(t, 0)
	conn := dialTest(t, srv)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "start", "sessionId": "s1", "language": "English",
	}))
	var ack startedAck
	require.NoError(t, json.Unmarshal(readFrame(t, conn), &ack))
	assert.Equal(t, "started", ack.Type)
	assert.Equal(t, "s1", ack.SessionID)
	assert.True(t, ack.Created)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "transcript", "sessionId": "s1", "text": "let's begin with the agenda",
	}))
	overlay := readEvent(t, conn)
	assert.Equal(t, event.TypeOverlay, overlay.Type)
	assert.Equal(t, "s1", overlay.SessionID)
	assert.Equal(t, "Walking the agenda", overlay.TopicLine)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "vision", "sessionId": "s1",
		"imageBytes": []byte{0xff, 0xd8}, "mimeType": "image/jpeg",
	}))
	vision := readEvent(t, conn)
	assert.Equal(t, event.TypeVision, vision.Type)
	require.NotNil(t, vision.Scene)
	assert.True(t, vision.Scene.Degraded, "no vision backend configured")

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "end", "sessionId": "s1"}))
	debrief := readEvent(t, conn)
	assert.Equal(t, event.TypeDebrief, debrief.Type)
	assert.Len(t, debrief.Bullets, 3)

	// The session is gone; further frames report it, and the subscription
	// opened at start still delivers the error.
	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "transcript", "sessionId": "s1", "text": "anyone there?",
	}))
	errEv := readEvent(t, conn)
	assert.Equal(t, event.TypeError, errEv.Type)
	assert.Equal(t, event.CodeSessionNotFound, errEv.Code)
}

func TestServerGeneratesSessionID(t *testing.T) {
	srv := newTestServer(t, 0)
	conn := dialTest(t, srv)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "start"}))
	var ack startedAck
	require.NoError(t, json.Unmarshal(readFrame(t, conn), &ack))
	require.NotEmpty(t, ack.SessionID)

	// sessionId omitted: the frame routes to the bound session.
	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "transcript", "text": "still with you",
	}))
	overlay := readEvent(t, conn)
	assert.Equal(t, event.TypeOverlay, overlay.Type)
	assert.Equal(t, ack.SessionID, overlay.SessionID)
}

func pcm16Chunk(samples int, amp int16) []byte {
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(amp))
	}
	return buf
}

func TestAudioDrivesMockTranscription(t *testing.T) {
	srv := newTestServer(t, 0)
	conn := dialTest(t, srv)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "start", "sessionId": "s1", "sttMode": "mock",
	}))
	readFrame(t, conn)

	// 500ms of loud PCM16 at 16kHz, then a second of silence: the energy
	// gate closes the segment and the mock emits its first scripted line,
	// which lands in the buffer and produces an overlay.
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, pcm16Chunk(8000, 16000)))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, pcm16Chunk(16000, 0)))

	overlay := readEvent(t, conn)
	assert.Equal(t, event.TypeOverlay, overlay.Type)
	assert.Equal(t, "s1", overlay.SessionID)
}

func TestAtCapacityReturns503(t *testing.T) {
	srv := newTestServer(t, 1)
	conn := dialTest(t, srv)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "start", "sessionId": "s1"}))
	readFrame(t, conn)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestUnparseableFrameIsIgnored(t *testing.T) {
	srv := newTestServer(t, 0)
	conn := dialTest(t, srv)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "start", "sessionId": "s1"}))

	var ack startedAck
	require.NoError(t, json.Unmarshal(readFrame(t, conn), &ack))
	assert.Equal(t, "s1", ack.SessionID)
}
