package summarize

import (
	"strings"
	"time"

	"github.com/jaekop/ContextLens/internal/event"
)

// Offline fallback. These functions run when every backend is unreachable or
// keeps returning garbage, so they must produce well-formed results from the
// transcript text alone.

const heuristicConfidence = 0.3

var debriefFillers = []string{
	"Transcript coverage was too sparse for a fuller summary.",
	"Audio may not have reached the recognizer for part of the session.",
	"Consider checking capture settings before the next session.",
}

func heuristicOverlay(window string) event.Overlay {
	lines := tailLines(window, 4)
	topic := "Quiet so far"
	if len(lines) > 0 {
		topic = clampRunes(oneLine(stripSpeaker(lines[len(lines)-1])), topicMaxRunes)
	}
	return event.Overlay{
		TopicLine:        topic,
		IntentTags:       guessTags(lines),
		Confidence:       heuristicConfidence,
		UncertaintyNotes: []string{"Heuristic summary; no model backend was used."},
	}
}

func heuristicDebrief(buffer string) event.Debrief {
	lines := tailLines(buffer, maxDebriefBullets)
	bullets := make([]string, 0, maxDebriefBullets)
	for _, line := range lines {
		bullets = append(bullets, clampRunes(oneLine(stripSpeaker(line)), lineMaxRunes))
	}
	for i := 0; len(bullets) < minDebriefBullets; i++ {
		bullets = append(bullets, debriefFillers[i%len(debriefFillers)])
	}
	return event.Debrief{
		Bullets:          bullets,
		Suggestions:      []string{"Review the session transcript and note anything that needs a follow-up."},
		UncertaintyNotes: []string{"Heuristic debrief; no model backend was used."},
	}
}

// FallbackSnapshot degrades a failed frame description. The last good
// snapshot is reused when one exists, otherwise a conservative unknown scene
// is reported. Either way the result is marked degraded.
func FallbackSnapshot(last *event.VisionSnapshot, now time.Time) event.VisionSnapshot {
	if last != nil {
		snap := *last
		snap.Degraded = true
		snap.Timestamp = now
		snap.Limitations = appendUnique(snap.Limitations, "stale: reusing the previous frame description")
		return snap
	}
	unknown := event.SocialCue{Label: "unknown"}
	return event.VisionSnapshot{
		Environment:    "unknown",
		Proximity:      "none",
		Expression:     unknown,
		Posture:        unknown,
		Gaze:           unknown,
		InteractionCtx: unknown,
		Limitations:    []string{"frame description unavailable"},
		Degraded:       true,
		Timestamp:      now,
	}
}

// guessTags scans the trailing lines for surface cues of each intent. At most
// maxIntentTags are returned and a bare statement is the floor.
func guessTags(lines []string) []string {
	text := strings.ToLower(strings.Join(lines, "\n"))
	var tags []string
	add := func(tag string) {
		if len(tags) < maxIntentTags {
			tags = append(tags, tag)
		}
	}
	if strings.Contains(text, "?") {
		add(event.IntentQuestion)
	}
	if containsAny(text, "please ", "make sure", "don't forget", "remember to") {
		add(event.IntentInstruction)
	}
	if containsAny(text, "can you", "could you", "would you") {
		add(event.IntentRequest)
	}
	if containsAny(text, "let's go with", "we'll ", "decided", "agreed") {
		add(event.IntentDecision)
	}
	if containsAny(text, "worried", "concern", "afraid", "not sure") {
		add(event.IntentConcern)
	}
	if containsAny(text, "how are you", "good morning", "weekend") {
		add(event.IntentSmalltalk)
	}
	if len(tags) == 0 {
		tags = append(tags, event.IntentStatement)
	}
	return tags
}

func containsAny(text string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(text, sub) {
			return true
		}
	}
	return false
}

// tailLines returns up to n trailing non-blank lines of text.
func tailLines(text string, n int) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, n)
	for i := len(raw) - 1; i >= 0 && len(lines) < n; i-- {
		if line := strings.TrimSpace(raw[i]); line != "" {
			lines = append(lines, line)
		}
	}
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return lines
}

// stripSpeaker removes the "[speaker] " prefix fragments are stored with.
func stripSpeaker(line string) string {
	if strings.HasPrefix(line, "[") {
		if end := strings.Index(line, "] "); end >= 0 {
			return line[end+2:]
		}
	}
	return line
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	out := make([]string, 0, len(list)+1)
	out = append(out, list...)
	return append(out, item)
}
