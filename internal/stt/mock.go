package stt

import (
	"encoding/binary"
	"math"
	"sync"
	"time"
)

// MockConfig controls the energy gate of the canned-transcript source.
type MockConfig struct {
	SpeechThresholdDB float64
	SilenceTimeout    time.Duration
	MinSpeechDuration time.Duration
	SampleRate        int
	Lines             []string
}

// DefaultMockConfig returns the stock gate tuning and demo script.
func DefaultMockConfig() MockConfig {
	return MockConfig{
		SpeechThresholdDB: -30,
		SilenceTimeout:    800 * time.Millisecond,
		MinSpeechDuration: 400 * time.Millisecond,
		SampleRate:        16000,
		Lines:             defaultLines,
	}
}

var defaultLines = []string{
	"So the first thing I wanted to cover is the timeline for the rollout.",
	"Can you walk me through how the approval step works?",
	"Please make sure the draft is shared with the whole group before Friday.",
	"I think we should go with the second option and revisit pricing later.",
	"I'm a bit worried the current plan leaves no room for testing.",
	"Anyway, how was your weekend?",
	"Let's summarize the action items before we wrap up.",
}

// Mock is a demo transcription source: it runs an energy gate over incoming
// PCM16 audio and emits the next canned line each time a speech segment
// ends. The clock is derived from the sample count, so behavior is
// deterministic for a given audio stream.
type Mock struct {
	cfg        MockConfig
	onFragment FragmentFunc

	mu           sync.Mutex
	stopped      bool
	next         int
	streamMs     float64
	inSpeech     bool
	segStartMs   float64
	lastSpeechMs float64
}

// NewMock creates a mock source delivering fragments to onFragment.
func NewMock(cfg MockConfig, onFragment FragmentFunc) *Mock {
	if len(cfg.Lines) == 0 {
		cfg.Lines = defaultLines
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	return &Mock{cfg: cfg, onFragment: onFragment}
}

// SendAudio feeds one PCM16 chunk through the energy gate. When the gate
// sees a speech segment end (silence after speech of at least the minimum
// duration), the next canned line is emitted with offsets matching the
// segment's position in the stream. The callback runs outside the gate
// lock.
func (m *Mock) SendAudio(data []byte) error {
	samples := decodePCM16(data)
	if len(samples) == 0 {
		return nil
	}

	m.mu.Lock()
	frag, ok := m.advance(samples)
	m.mu.Unlock()

	if ok {
		m.onFragment(frag)
	}
	return nil
}

// advance runs the gate state machine for one chunk. Caller holds m.mu.
func (m *Mock) advance(samples []float32) (Fragment, bool) {
	if m.stopped {
		return Fragment{}, false
	}

	chunkMs := float64(len(samples)) * 1000 / float64(m.cfg.SampleRate)
	energy := energyDB(samples)
	m.streamMs += chunkMs

	if energy >= m.cfg.SpeechThresholdDB {
		if !m.inSpeech {
			m.inSpeech = true
			m.segStartMs = m.streamMs - chunkMs
		}
		m.lastSpeechMs = m.streamMs
		return Fragment{}, false
	}

	if !m.inSpeech {
		return Fragment{}, false
	}
	if m.streamMs-m.lastSpeechMs < float64(m.cfg.SilenceTimeout.Milliseconds()) {
		return Fragment{}, false
	}

	m.inSpeech = false
	if m.lastSpeechMs-m.segStartMs < float64(m.cfg.MinSpeechDuration.Milliseconds()) {
		return Fragment{}, false
	}

	frag := Fragment{
		Text: m.cfg.Lines[m.next%len(m.cfg.Lines)],
		T0Ms: m.segStartMs,
		T1Ms: m.lastSpeechMs,
	}
	m.next++
	return frag, true
}

// Stop flushes a trailing open segment and stops emission.
func (m *Mock) Stop() error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true

	var frag *Fragment
	if m.inSpeech && m.lastSpeechMs-m.segStartMs >= float64(m.cfg.MinSpeechDuration.Milliseconds()) {
		frag = &Fragment{
			Text: m.cfg.Lines[m.next%len(m.cfg.Lines)],
			T0Ms: m.segStartMs,
			T1Ms: m.lastSpeechMs,
		}
		m.next++
	}
	m.inSpeech = false
	m.mu.Unlock()

	if frag != nil {
		m.onFragment(*frag)
	}
	return nil
}

func decodePCM16(data []byte) []float32 {
	n := len(data) / 2
	samples := make([]float32, n)
	for i := range n {
		s := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = float32(s) / math.MaxInt16
	}
	return samples
}

func energyDB(samples []float32) float64 {
	if len(samples) == 0 {
		return -100
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms < 1e-10 {
		return -100
	}
	return 20 * math.Log10(rms)
}
