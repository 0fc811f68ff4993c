package session

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jaekop/ContextLens/internal/event"
)

func TestAppendFragmentBuffersAndTrimsTail(t *testing.T) {
	s := newSession("s1", event.StartInput{}, time.Now())

	s.AppendFragment("one", "")
	s.AppendFragment("two", "alice")
	s.AppendFragment("three", "")
	s.AppendFragment("four", "")
	s.AppendFragment("five", "")

	require.Equal(t, "one\n[alice] two\nthree\nfour\nfive\n", s.Buffer())
	require.Equal(t, []string{"[alice] two", "three", "four", "five"}, s.RecentLines)
}

func TestRecentLinesNeverBlankNeverOverFour(t *testing.T) {
	s := newSession("s1", event.StartInput{}, time.Now())

	for i := 0; i < 20; i++ {
		s.AppendFragment("say", "")
		s.AppendFragment("", "")
		s.AppendFragment("   ", "")
		s.AppendFragment("\n\t", "")
	}

	require.Len(t, s.RecentLines, 4)
	for _, line := range s.RecentLines {
		require.NotEmpty(t, strings.TrimSpace(line))
	}
}

func TestAppendFragmentFlattensMultilineText(t *testing.T) {
	s := newSession("s1", event.StartInput{}, time.Now())

	s.AppendFragment("first\nsecond", "bob")

	require.Equal(t, []string{"[bob] first second"}, s.RecentLines)
	require.Equal(t, "[bob] first\nsecond\n", s.Buffer())
}

func TestTrailingWindowKeepsNewest(t *testing.T) {
	s := newSession("s1", event.StartInput{}, time.Now())
	s.AppendFragment("aaaa", "")
	s.AppendFragment("bbbb", "")
	s.AppendFragment("cccc", "")

	require.Equal(t, s.Buffer(), s.TrailingWindow(1000))
	require.Equal(t, "cccc\n", s.TrailingWindow(5))
	require.Equal(t, "ccc\n", s.TrailingWindow(4))
}

func TestTrailingWindowRespectsRuneBoundaries(t *testing.T) {
	s := newSession("s1", event.StartInput{}, time.Now())
	s.AppendFragment("héllo wörld", "")

	for maxChars := 1; maxChars <= s.BufferLen(); maxChars++ {
		w := s.TrailingWindow(maxChars)
		require.True(t, strings.HasSuffix(s.Buffer(), w))
		require.True(t, utf8ValidString(w), "window %q splits a rune", w)
	}
}

func utf8ValidString(s string) bool {
	for _, r := range s {
		if r == '�' {
			return false
		}
	}
	return true
}

func TestRecordSpanTracksMinMax(t *testing.T) {
	s := newSession("s1", event.StartInput{}, time.Now())

	s.RecordSpan(0, 0)
	require.False(t, s.SpanSeen)

	s.RecordSpan(100, 600)
	s.RecordSpan(700, 1500)
	s.RecordSpan(50, 80)
	s.RecordSpan(0, 0)

	require.True(t, s.SpanSeen)
	require.Equal(t, float64(50), s.MinT0Ms)
	require.Equal(t, float64(1500), s.MaxT1Ms)
}

func TestMergeFieldMatrix(t *testing.T) {
	base := event.StartInput{
		UserID:   "u1",
		Language: "en",
		SaveMode: event.SaveModePersist,
		STTMode:  event.STTModeExternal,
	}

	cases := []struct {
		name string
		in   event.StartInput
		want event.StartInput
	}{
		{"all absent keeps everything", event.StartInput{}, base},
		{"user only", event.StartInput{UserID: "u2"},
			event.StartInput{UserID: "u2", Language: "en", SaveMode: event.SaveModePersist, STTMode: event.STTModeExternal}},
		{"language only", event.StartInput{Language: "de"},
			event.StartInput{UserID: "u1", Language: "de", SaveMode: event.SaveModePersist, STTMode: event.STTModeExternal}},
		{"save mode only", event.StartInput{SaveMode: event.SaveModeNone},
			event.StartInput{UserID: "u1", Language: "en", SaveMode: event.SaveModeNone, STTMode: event.STTModeExternal}},
		{"stt mode only", event.StartInput{STTMode: event.STTModeMock},
			event.StartInput{UserID: "u1", Language: "en", SaveMode: event.SaveModePersist, STTMode: event.STTModeMock}},
		{"all present", event.StartInput{UserID: "u3", Language: "fr", SaveMode: event.SaveModeNone, STTMode: event.STTModeMock},
			event.StartInput{UserID: "u3", Language: "fr", SaveMode: event.SaveModeNone, STTMode: event.STTModeMock}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newSession("s1", base, time.Now())
			merge(s, tc.in)
			require.Equal(t, tc.want.UserID, s.UserID)
			require.Equal(t, tc.want.Language, s.Language)
			require.Equal(t, tc.want.SaveMode, s.SaveMode)
			require.Equal(t, tc.want.STTMode, s.STTMode)
		})
	}
}

func TestNewSessionDefaults(t *testing.T) {
	s := newSession("s1", event.StartInput{}, time.Now())

	require.Equal(t, event.SaveModeNone, s.SaveMode)
	require.Equal(t, event.STTModeMock, s.STTMode)
	require.Equal(t, StateActive, s.State)
	require.False(t, s.Paused)
	require.Zero(t, s.BufferLen())
}
