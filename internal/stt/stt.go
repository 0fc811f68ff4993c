// Package stt provides streaming transcription sources. A Stream accepts
// raw PCM16 audio for one session and reports transcript fragments through
// a callback; the session core never inspects audio content itself.
package stt

// Fragment is one piece of transcript reported by a source. Offsets are
// milliseconds on the source's own clock; zero when the source has none.
type Fragment struct {
	Text    string
	T0Ms    float64
	T1Ms    float64
	Speaker string
}

// FragmentFunc receives each fragment a stream produces. Implementations
// call it from a single goroutine per stream.
type FragmentFunc func(Fragment)

// Stream is an active transcription feed for one session. SendAudio accepts
// little-endian PCM16 mono. Stop is idempotent and releases the feed.
type Stream interface {
	SendAudio(data []byte) error
	Stop() error
}
