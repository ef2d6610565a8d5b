package interview

import (
	"fmt"
	"strings"

	"github.com/sjawhar/codereflex/internal/conversation"
	"github.com/sjawhar/codereflex/internal/llm"
)

var personaTones = map[string]string{
	"Friendly Dev":         "Be warm and encouraging, like a supportive senior developer. Offer gentle hints when the candidate struggles but never give away answers.",
	"Strict HR":            "Be direct, formal and brief. Ask pointed questions and expect concise answers.",
	"Calm Manager":         "Be patient and observant. Ask open-ended questions about communication and leadership and leave room for reflection.",
	"Fast-Paced Tech Lead": "Be sharp and time-conscious. Push for technical depth, quick decisions and clear answers.",
}

var typeGuides = map[string]string{
	"DSA":           "Ask progressively harder algorithm problems. Put only a function signature and docstring in \"code\".",
	"HR":            "Focus on motivation, values, work ethic and culture fit, referencing the resume. Keep \"code\" null.",
	"Behavioral":    "Ask STAR-style scenario questions grounded in the resume and dig into follow-ups. Keep \"code\" null.",
	"System Design": "Ask architecture questions about trade-offs, scalability and fault tolerance. Keep \"code\" null.",
	"Full Stack":    "Cover frontend, backend, APIs and databases. Use \"code\" only for logic questions.",
	"Mixed":         "Blend technical and behavioral questions with a natural flow, building on earlier answers.",
}

const replyContract = `Reply with a single JSON object and nothing else:
{"text": "what you say to the candidate", "code": "starter code, or null"}`

// SystemPrompt builds the context document sent ahead of the conversation.
func SystemPrompt(p Profile, history []conversation.Turn) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are interviewing a candidate for the role of %s at %s. You are always the interviewer, never a solution assistant: do not provide full solutions.\n\n", orNone(p.Role), orNone(p.Company))

	b.WriteString("Interview context:\n")
	fmt.Fprintf(&b, "- Interview type: %s\n", orNone(p.InterviewType))
	fmt.Fprintf(&b, "- Difficulty: %s\n", orNone(p.Difficulty))
	fmt.Fprintf(&b, "- Duration: %d minutes\n", p.DurationMinutes)
	fmt.Fprintf(&b, "- Focus areas: %s\n", orNone(p.FocusAreas))
	fmt.Fprintf(&b, "- Job description: %s\n", orNone(p.JobDescription))
	fmt.Fprintf(&b, "- Resume: %s\n\n", orNone(p.ResumeText))

	fmt.Fprintf(&b, "Persona (%s): %s\n\n", orNone(p.Persona), personaTones[p.Persona])

	if lastIsCodeSubmission(history) {
		b.WriteString("The candidate has just submitted code. Review it for correctness, complexity and structure, then ask one advanced follow-up question about edge cases, trade-offs or scalability. Do not suggest fixes or write code; set \"code\" to null.\n\n")
	} else if guide, ok := typeGuides[p.InterviewType]; ok {
		b.WriteString(guide)
		b.WriteString(" Ask the candidate's preferred language before the first coding question.\n\n")
	}

	b.WriteString(replyContract)
	b.WriteString("\n\nConversation so far:\n")
	if len(history) == 0 {
		b.WriteString("No prior conversation yet. Open the interview.")
	} else {
		b.WriteString(conversation.FormatTranscript(history))
		b.WriteString("\n\nContinue from the last exchange.")
	}

	return b.String()
}

// openingCue stands in for the empty history on the opening request;
// anthropic and gemini reject a request without a user message.
const openingCue = "The candidate has joined. Begin the interview."

// BuildMessages returns the chat request for the next interviewer turn.
func BuildMessages(p Profile, history []conversation.Turn) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+1)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: SystemPrompt(p, history)})
	if len(history) == 0 {
		return append(msgs, llm.Message{Role: llm.RoleUser, Content: openingCue})
	}
	msgs = append(msgs, HistoryMessages(history)...)
	return msgs
}

// HistoryMessages maps turns to chat roles: interviewer turns are the
// assistant's, candidate turns the user's.
func HistoryMessages(history []conversation.Turn) []llm.Message {
	msgs := make([]llm.Message, 0, len(history))
	for _, t := range history {
		role := llm.RoleUser
		if t.Speaker == conversation.Interviewer {
			role = llm.RoleAssistant
		}
		content := t.Text
		if t.Speaker == conversation.Candidate && t.HasCode() {
			content += "\n```\n" + strings.TrimRight(t.Code, "\n") + "\n```"
		}
		msgs = append(msgs, llm.Message{Role: role, Content: content})
	}
	return msgs
}

func lastIsCodeSubmission(history []conversation.Turn) bool {
	if len(history) == 0 {
		return false
	}
	last := history[len(history)-1]
	return last.Speaker == conversation.Candidate && last.HasCode()
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "None specified"
	}
	return s
}
