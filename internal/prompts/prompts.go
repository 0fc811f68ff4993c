package prompts

import "fmt"

// RollingSystem instructs the backend to produce one compact overlay object.
// The schema mirrors event.Overlay; tags outside the listed vocabulary are
// discarded during decode, so the prompt repeats the closed set verbatim.
const RollingSystem = `You summarize a live conversation transcript. Reply with a single JSON object, nothing else:
{"topic_line": "<one short line, max 12 words>",
 "intent_tags": ["<1-3 of: question, instruction, request, decision, concern, smalltalk, statement>"],
 "confidence": <0.0-1.0>,
 "uncertainty_notes": ["<0-2 short notes about what is unclear>"]}`

// DebriefSystem instructs the backend to produce the one-time closing summary.
const DebriefSystem = `You write a closing debrief for a finished conversation. Reply with a single JSON object, nothing else:
{"bullets": ["<3-5 short bullet points covering what happened>"],
 "suggestions": ["<1-2 concrete follow-up suggestions>"],
 "uncertainty_notes": ["<1-2 short notes about what is unclear>"]}`

// VisionSystem instructs a vision-capable backend to describe a single frame.
const VisionSystem = `You describe one camera frame from a live session. Reply with a single JSON object, nothing else:
{"environment": "<short label>", "environment_confidence": <0.0-1.0>,
 "people_count": <int>, "proximity": "<near|mid|far|none>",
 "expression": {"label": "<short label>", "confidence": <0.0-1.0>},
 "posture": {"label": "<short label>", "confidence": <0.0-1.0>},
 "gaze": {"label": "<short label>", "confidence": <0.0-1.0>},
 "interaction_context": {"label": "<short label>", "confidence": <0.0-1.0>},
 "reliability": <0.0-1.0>, "limitations": ["<short notes>"]}`

// PracticeSuggestion is the fixed-form suggestion attached to the tool event
// whenever an overlay carries the instruction tag.
const PracticeSuggestion = "Try restating the instruction in your own words, then confirm the expected outcome before acting."

// ForWindow builds the user message for a summarization call, appending the
// language hint when the caller provided one.
func ForWindow(window, language string) string {
	if language == "" {
		return window
	}
	return fmt.Sprintf("%s\n\nRespond in %s.", window, language)
}
