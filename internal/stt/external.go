package stt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// externalCloseTimeout bounds how long Stop waits for the provider read
// loop to drain after the close frame is sent.
const externalCloseTimeout = 2 * time.Second

// providerMessage is the transcript shape streamed back by the provider.
// Partial hypotheses are marked partial and skipped; everything else with
// text becomes a fragment.
type providerMessage struct {
	Type    string  `json:"type"`
	Text    string  `json:"text"`
	T0Ms    float64 `json:"t0_ms"`
	T1Ms    float64 `json:"t1_ms"`
	Speaker string  `json:"speaker"`
	Partial bool    `json:"partial"`
}

// External streams session audio to a websocket transcription provider and
// delivers the returned fragments. One External serves one session.
type External struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	stopOnce sync.Once
	stopErr  error
	done     chan struct{}
}

// DialExternal connects to the provider and starts the read loop. onFragment
// is invoked for each final transcript piece until the stream stops.
func DialExternal(url, language string, onFragment FragmentFunc) (*External, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("stt dial: %w", err)
	}

	meta, _ := json.Marshal(map[string]string{
		"codec":       "pcm",
		"sample_rate": "16000",
		"language":    language,
	})
	if err := conn.WriteMessage(websocket.TextMessage, meta); err != nil {
		conn.Close()
		return nil, fmt.Errorf("stt metadata: %w", err)
	}

	e := &External{conn: conn, done: make(chan struct{})}
	go e.readLoop(onFragment)
	return e, nil
}

func (e *External) readLoop(onFragment FragmentFunc) {
	defer close(e.done)
	for {
		msgType, data, err := e.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("stt read", "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		var m providerMessage
		if err := json.Unmarshal(data, &m); err != nil {
			continue
		}
		if m.Text == "" || m.Partial {
			continue
		}
		onFragment(Fragment{Text: m.Text, T0Ms: m.T0Ms, T1Ms: m.T1Ms, Speaker: m.Speaker})
	}
}

// SendAudio forwards one PCM16 chunk to the provider.
func (e *External) SendAudio(data []byte) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if err := e.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("stt send: %w", err)
	}
	return nil
}

// Stop closes the provider connection. A close frame goes out first so the
// provider can flush; the read loop is then given a short drain window.
func (e *External) Stop() error {
	e.stopOnce.Do(func() {
		e.writeMu.Lock()
		e.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		e.writeMu.Unlock()

		select {
		case <-e.done:
		case <-time.After(externalCloseTimeout):
		}
		e.stopErr = e.conn.Close()
	})
	return e.stopErr
}
