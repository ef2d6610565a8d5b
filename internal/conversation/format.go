package conversation

import (
	"fmt"
	"strings"
)

// Label is the name a speaker is given in prompts and reports.
func (s Speaker) Label() string {
	switch s {
	case Interviewer:
		return "Interviewer"
	case Candidate:
		return "Candidate"
	default:
		return string(s)
	}
}

// FormatTranscript renders turns as speaker-labelled paragraphs; code
// payloads follow their turn as fenced blocks.
func FormatTranscript(turns []Turn) string {
	parts := make([]string, 0, len(turns))
	for _, t := range turns {
		entry := fmt.Sprintf("%s: %s", t.Speaker.Label(), strings.TrimSpace(t.Text))
		if t.HasCode() {
			entry += "\n```\n" + strings.TrimRight(t.Code, "\n") + "\n```"
		}
		parts = append(parts, entry)
	}
	return strings.Join(parts, "\n\n")
}
