package summarize

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/jaekop/ContextLens/internal/event"
)

// Decoding is deliberately forgiving: model output arrives as free text that
// usually contains a JSON object, sometimes wrapped in prose or code fences.
// Every field is clamped into its documented range; a decode only fails when
// the payload is missing the one field the result cannot exist without.

const (
	maxIntentTags     = 3
	maxOverlayNotes   = 2
	minDebriefBullets = 3
	maxDebriefBullets = 5
	maxSuggestions    = 2
	maxDebriefNotes   = 2
	maxLimitations    = 4

	topicMaxRunes = 120
	labelMaxRunes = 40
	lineMaxRunes  = 240
)

func decodeOverlay(raw string) (event.Overlay, bool) {
	body := extractJSON(raw)
	if body == "" {
		return event.Overlay{}, false
	}
	topic := oneLine(gjson.Get(body, "topic_line").String())
	if topic == "" {
		return event.Overlay{}, false
	}
	overlay := event.Overlay{
		TopicLine:        clampRunes(topic, topicMaxRunes),
		IntentTags:       decodeTags(gjson.Get(body, "intent_tags")),
		Confidence:       clamp01(gjson.Get(body, "confidence").Float()),
		UncertaintyNotes: stringList(gjson.Get(body, "uncertainty_notes"), maxOverlayNotes),
	}
	if len(overlay.IntentTags) == 0 {
		overlay.IntentTags = []string{event.IntentStatement}
	}
	return overlay, true
}

func decodeDebrief(raw string) (event.Debrief, bool) {
	body := extractJSON(raw)
	if body == "" {
		return event.Debrief{}, false
	}
	bullets := stringList(gjson.Get(body, "bullets"), maxDebriefBullets)
	if len(bullets) < minDebriefBullets {
		return event.Debrief{}, false
	}
	debrief := event.Debrief{
		Bullets:          bullets,
		Suggestions:      stringList(gjson.Get(body, "suggestions"), maxSuggestions),
		UncertaintyNotes: stringList(gjson.Get(body, "uncertainty_notes"), maxDebriefNotes),
	}
	if len(debrief.Suggestions) == 0 {
		debrief.Suggestions = []string{"Review the transcript and note anything that needs a follow-up."}
	}
	if len(debrief.UncertaintyNotes) == 0 {
		debrief.UncertaintyNotes = []string{"The summarizer reported no specific uncertainties."}
	}
	return debrief, true
}

func decodeVision(raw string) (event.VisionSnapshot, bool) {
	body := extractJSON(raw)
	if body == "" {
		return event.VisionSnapshot{}, false
	}
	env := oneLine(gjson.Get(body, "environment").String())
	if env == "" {
		return event.VisionSnapshot{}, false
	}
	return event.VisionSnapshot{
		Environment:    clampRunes(env, labelMaxRunes),
		EnvConfidence:  clamp01(gjson.Get(body, "environment_confidence").Float()),
		PeopleCount:    clampCount(gjson.Get(body, "people_count").Int()),
		Proximity:      decodeProximity(gjson.Get(body, "proximity").String()),
		Expression:     decodeCue(gjson.Get(body, "expression")),
		Posture:        decodeCue(gjson.Get(body, "posture")),
		Gaze:           decodeCue(gjson.Get(body, "gaze")),
		InteractionCtx: decodeCue(gjson.Get(body, "interaction_context")),
		Reliability:    clamp01(gjson.Get(body, "reliability").Float()),
		Limitations:    stringList(gjson.Get(body, "limitations"), maxLimitations),
	}, true
}

// extractJSON pulls the outermost JSON object out of a model response,
// tolerating surrounding prose and markdown fences.
func extractJSON(raw string) string {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return ""
	}
	body := raw[start : end+1]
	if !gjson.Valid(body) {
		return ""
	}
	return body
}

func decodeTags(res gjson.Result) []string {
	var tags []string
	seen := make(map[string]bool)
	for _, item := range res.Array() {
		tag := strings.ToLower(strings.TrimSpace(item.String()))
		if !event.ValidIntentTag(tag) || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
		if len(tags) == maxIntentTags {
			break
		}
	}
	return tags
}

func decodeCue(res gjson.Result) event.SocialCue {
	label := oneLine(res.Get("label").String())
	if label == "" {
		label = "unknown"
	}
	return event.SocialCue{
		Label:      clampRunes(label, labelMaxRunes),
		Confidence: clamp01(res.Get("confidence").Float()),
	}
}

func decodeProximity(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "near":
		return "near"
	case "mid":
		return "mid"
	case "far":
		return "far"
	default:
		return "none"
	}
}

func stringList(res gjson.Result, max int) []string {
	var out []string
	for _, item := range res.Array() {
		s := oneLine(item.String())
		if s == "" {
			continue
		}
		out = append(out, clampRunes(s, lineMaxRunes))
		if len(out) == max {
			break
		}
	}
	return out
}

// oneLine collapses all whitespace runs, including newlines, to single spaces.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func clampRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampCount(n int64) int {
	if n < 0 {
		return 0
	}
	if n > 32 {
		return 32
	}
	return int(n)
}
