package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sjawhar/codereflex/internal/interview"
	"github.com/sjawhar/codereflex/internal/submission"
)

const (
	StatusPending   = "pending"
	StatusActive    = "active"
	StatusCompleted = "completed"
)

var ErrNotFound = errors.New("interview not found")

// Interview is a stored profile plus whatever the interview produced.
type Interview struct {
	interview.Profile
	Status    string             `json:"status"`
	StartedAt *time.Time         `json:"started_at,omitempty"`
	EndedAt   *time.Time         `json:"ended_at,omitempty"`
	Result    *submission.Result `json:"result,omitempty"`
}

func (i Interview) Completed() bool {
	return i.Status == StatusCompleted
}

type Store interface {
	CreateInterview(ctx context.Context, p interview.Profile) error
	GetInterview(ctx context.Context, id string) (Interview, error)
	ListInterviews(ctx context.Context) ([]Interview, error)
	MarkStarted(ctx context.Context, id string, at time.Time) error
	SaveResult(ctx context.Context, result submission.Result) error
	Close() error
}

// interviewRow is the column layout shared by the SQLite table and the hosted
// interviews table.
type interviewRow struct {
	ID                     string          `json:"id"`
	JobRole                string          `json:"job_role"`
	CompanyName            string          `json:"company_name"`
	InterviewType          string          `json:"interview_type"`
	DifficultyLevel        string          `json:"difficulty_level"`
	Duration               int             `json:"duration"`
	InterviewerPersonality string          `json:"interviewer_personality"`
	CustomFocusAreas       string          `json:"custom_focus_areas"`
	JobDescription         string          `json:"job_description"`
	ResumeText             string          `json:"resume_text"`
	EnableWebcam           bool            `json:"enable_webcam"`
	Voice                  string          `json:"voice"`
	CreatedAt              time.Time       `json:"created_at"`
	StartedAt              *time.Time      `json:"started_at,omitempty"`
	EndedAt                *time.Time      `json:"ended_at,omitempty"`
	Status                 string          `json:"status"`
	Transcript             json.RawMessage `json:"transcript,omitempty"`
	CodeSnippet            json.RawMessage `json:"code_snippet,omitempty"`
	EmotionSummary         json.RawMessage `json:"emotion_summary,omitempty"`
	AIFeedback             json.RawMessage `json:"ai_feedback,omitempty"`
}

func rowFromProfile(p interview.Profile) interviewRow {
	return interviewRow{
		ID:                     p.ID,
		JobRole:                p.Role,
		CompanyName:            p.Company,
		InterviewType:          p.InterviewType,
		DifficultyLevel:        p.Difficulty,
		Duration:               p.DurationMinutes,
		InterviewerPersonality: p.Persona,
		CustomFocusAreas:       p.FocusAreas,
		JobDescription:         p.JobDescription,
		ResumeText:             p.ResumeText,
		EnableWebcam:           p.EnableWebcam,
		Voice:                  p.Voice,
		CreatedAt:              p.CreatedAt.UTC(),
		Status:                 StatusPending,
	}
}

// resultUpdate is the column set written when an interview is submitted.
type resultUpdate struct {
	Transcript     json.RawMessage `json:"transcript"`
	CodeSnippet    json.RawMessage `json:"code_snippet"`
	EmotionSummary json.RawMessage `json:"emotion_summary"`
	AIFeedback     json.RawMessage `json:"ai_feedback"`
	EndedAt        time.Time       `json:"ended_at"`
	Status         string          `json:"status"`
}

func newResultUpdate(r submission.Result) (resultUpdate, error) {
	var u resultUpdate
	var err error
	if u.Transcript, err = marshalNonNil(r.Transcript); err != nil {
		return u, fmt.Errorf("encode transcript: %w", err)
	}
	if u.CodeSnippet, err = marshalNonNil(r.CodeLog); err != nil {
		return u, fmt.Errorf("encode code log: %w", err)
	}
	if u.EmotionSummary, err = marshalNonNil(r.Emotions); err != nil {
		return u, fmt.Errorf("encode emotion summary: %w", err)
	}
	if u.AIFeedback, err = json.Marshal(r.Feedback); err != nil {
		return u, fmt.Errorf("encode feedback: %w", err)
	}
	u.EndedAt = r.EndedAt.UTC()
	u.Status = StatusCompleted
	return u, nil
}

// marshalNonNil encodes nil slices as [] so readers never see null arrays.
func marshalNonNil[T any](v []T) (json.RawMessage, error) {
	if v == nil {
		v = []T{}
	}
	return json.Marshal(v)
}

func (r interviewRow) toInterview() (Interview, error) {
	out := Interview{
		Profile: interview.Profile{
			ID:              r.ID,
			Role:            r.JobRole,
			Company:         r.CompanyName,
			InterviewType:   r.InterviewType,
			Difficulty:      r.DifficultyLevel,
			DurationMinutes: r.Duration,
			Persona:         r.InterviewerPersonality,
			FocusAreas:      r.CustomFocusAreas,
			JobDescription:  r.JobDescription,
			ResumeText:      r.ResumeText,
			EnableWebcam:    r.EnableWebcam,
			Voice:           r.Voice,
			CreatedAt:       r.CreatedAt,
		},
		Status:    r.Status,
		StartedAt: r.StartedAt,
		EndedAt:   r.EndedAt,
	}
	if len(r.AIFeedback) == 0 || string(r.AIFeedback) == "null" {
		return out, nil
	}

	result := &submission.Result{InterviewID: r.ID}
	if r.EndedAt != nil {
		result.EndedAt = *r.EndedAt
	}
	fields := []struct {
		name string
		raw  json.RawMessage
		dst  any
	}{
		{"transcript", r.Transcript, &result.Transcript},
		{"code_snippet", r.CodeSnippet, &result.CodeLog},
		{"emotion_summary", r.EmotionSummary, &result.Emotions},
		{"ai_feedback", r.AIFeedback, &result.Feedback},
	}
	for _, f := range fields {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return Interview{}, fmt.Errorf("decode %s for interview %s: %w", f.name, r.ID, err)
		}
	}
	out.Result = result
	return out, nil
}
