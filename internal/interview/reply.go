package interview

import (
	"encoding/json"
	"strings"

	"github.com/sjawhar/codereflex/internal/conversation"
)

type reply struct {
	Text *string         `json:"text"`
	Code json.RawMessage `json:"code"`
}

// ParseReply turns model output into an interviewer turn. Output that is not
// a {"text", "code"} object becomes a plain-text turn carrying the raw
// content and no code.
func ParseReply(content string) conversation.Turn {
	plain := conversation.Turn{Speaker: conversation.Interviewer, Text: content}

	var r reply
	if err := json.Unmarshal([]byte(StripFence(content)), &r); err != nil {
		return plain
	}
	if r.Text == nil || strings.TrimSpace(*r.Text) == "" {
		return plain
	}

	return conversation.Turn{
		Speaker: conversation.Interviewer,
		Text:    strings.TrimSpace(*r.Text),
		Code:    codeField(r.Code),
	}
}

// codeField accepts a JSON string; null, non-strings and the literal "null"
// mean no code.
func codeField(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var code string
	if err := json.Unmarshal(raw, &code); err != nil {
		return ""
	}
	if strings.TrimSpace(code) == "" || strings.EqualFold(strings.TrimSpace(code), "null") {
		return ""
	}
	return code
}

// StripFence removes a surrounding markdown code fence such as ```json ... ```.
func StripFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") || !strings.HasSuffix(trimmed, "```") || len(trimmed) < 6 {
		return trimmed
	}
	body := strings.TrimSuffix(strings.TrimPrefix(trimmed, "```"), "```")
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.Contains(body[:nl], "{") {
		body = body[nl+1:]
	}
	return strings.TrimSpace(body)
}
