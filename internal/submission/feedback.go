package submission

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sjawhar/codereflex/internal/conversation"
	"github.com/sjawhar/codereflex/internal/emotion"
	"github.com/sjawhar/codereflex/internal/interview"
	"github.com/sjawhar/codereflex/internal/llm"
)

var ErrMalformedFeedback = errors.New("malformed feedback response")

// Feedback is the model's evaluation of a finished interview.
type Feedback struct {
	InterviewFeedback string  `json:"interview_feedback"`
	EmotionalFeedback string  `json:"emotional_feedback"`
	FinalRating       float64 `json:"final_rating"`
	Recommendation    string  `json:"recommendation"`
}

// Result is everything persisted when an interview ends.
type Result struct {
	InterviewID string                     `json:"interview_id"`
	Transcript  []conversation.Turn        `json:"transcript"`
	CodeLog     []interview.CodeSubmission `json:"code_log"`
	Emotions    []emotion.Sample           `json:"emotion_summary"`
	Feedback    Feedback                   `json:"ai_feedback"`
	EndedAt     time.Time                  `json:"ended_at"`
}

const feedbackPrompt = `The interview has now concluded. You are a senior technical recruiter and soft-skill evaluator. Evaluate the candidate from the transcript and the chronological emotion log below.

Transcript:
%s

Emotion log:
%s

Return a single JSON object with exactly these keys:
- "interview_feedback": technical strengths and weaknesses, problem solving, communication, and constructive suggestions.
- "emotional_feedback": patterns in the emotion log such as confidence, stress or enthusiasm and how they evolved.
- "final_rating": a number from 0 to 10, integer or one decimal.
- "recommendation": one of "Advance to next round", "Needs improvement", "Strongly recommended".

Keep the tone professional, encouraging and realistic. Do not include code. Stay under 400 words. Return only the JSON.`

// FeedbackMessages builds the single evaluation request.
func FeedbackMessages(transcript []conversation.Turn, emotions []emotion.Sample) []llm.Message {
	text := conversation.FormatTranscript(transcript)
	if text == "" {
		text = "(no conversation)"
	}
	emo, _ := json.Marshal(emotions)
	if emotions == nil {
		emo = []byte("[]")
	}
	return []llm.Message{
		{Role: llm.RoleSystem, Content: fmt.Sprintf(feedbackPrompt, text, emo)},
		{Role: llm.RoleUser, Content: "Provide the evaluation now."},
	}
}

type rawFeedback struct {
	InterviewFeedback *string         `json:"interview_feedback"`
	EmotionalFeedback string          `json:"emotional_feedback"`
	FinalRating       json.RawMessage `json:"final_rating"`
	Recommendation    string          `json:"recommendation"`
}

// ParseFeedback decodes the evaluation. The rating may be a number or a
// numeric string and is clamped to 0..10.
func ParseFeedback(content string) (Feedback, error) {
	var raw rawFeedback
	if err := json.Unmarshal([]byte(interview.StripFence(content)), &raw); err != nil {
		return Feedback{}, fmt.Errorf("%w: %v", ErrMalformedFeedback, err)
	}
	if raw.InterviewFeedback == nil {
		return Feedback{}, fmt.Errorf("%w: missing interview_feedback", ErrMalformedFeedback)
	}
	rating, err := parseRating(raw.FinalRating)
	if err != nil {
		return Feedback{}, fmt.Errorf("%w: %v", ErrMalformedFeedback, err)
	}

	return Feedback{
		InterviewFeedback: strings.TrimSpace(*raw.InterviewFeedback),
		EmotionalFeedback: strings.TrimSpace(raw.EmotionalFeedback),
		FinalRating:       ClampRating(rating),
		Recommendation:    strings.TrimSpace(raw.Recommendation),
	}, nil
}

func parseRating(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, errors.New("missing final_rating")
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("final_rating: %w", err)
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("final_rating %q: %w", s, err)
	}
	return n, nil
}

func ClampRating(r float64) float64 {
	switch {
	case r < 0:
		return 0
	case r > 10:
		return 10
	default:
		return r
	}
}

// FormatMarkdown renders the result as a readable report.
func (r Result) FormatMarkdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Interview %s\n\n", r.InterviewID)
	if !r.EndedAt.IsZero() {
		fmt.Fprintf(&b, "Ended: %s\n\n", r.EndedAt.UTC().Format(time.RFC3339))
	}

	fmt.Fprintf(&b, "## Rating\n\n%.1f / 10", r.Feedback.FinalRating)
	if r.Feedback.Recommendation != "" {
		fmt.Fprintf(&b, " (%s)", r.Feedback.Recommendation)
	}
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "## Interview feedback\n\n%s\n\n", r.Feedback.InterviewFeedback)
	if r.Feedback.EmotionalFeedback != "" {
		fmt.Fprintf(&b, "## Emotional feedback\n\n%s\n\n", r.Feedback.EmotionalFeedback)
	}

	if len(r.CodeLog) > 0 {
		b.WriteString("## Code submissions\n\n")
		for _, c := range r.CodeLog {
			fmt.Fprintf(&b, "**[%s]** %s\n\n```\n%s\n```\n\n", c.Timestamp.UTC().Format("15:04:05"), c.Question, strings.TrimRight(c.Code, "\n"))
		}
	}

	b.WriteString("## Transcript\n\n")
	b.WriteString(conversation.FormatTranscript(r.Transcript))
	b.WriteString("\n")
	return b.String()
}
