package session

import (
	"context"
	"io"
	"time"

	"github.com/sjawhar/codereflex/internal/conversation"
	"github.com/sjawhar/codereflex/internal/emotion"
	"github.com/sjawhar/codereflex/internal/speech"
	"github.com/sjawhar/codereflex/internal/storage"
	"github.com/sjawhar/codereflex/internal/submission"
)

// Status is the lifecycle of a live interview.
type Status string

const (
	StatusAwaitingPermissions Status = "awaiting-permissions"
	StatusActive              Status = "active"
	StatusFinalizing          Status = "finalizing"
	StatusCompleted           Status = "completed"
)

type Store interface {
	GetInterview(ctx context.Context, id string) (storage.Interview, error)
	MarkStarted(ctx context.Context, id string, startedAt time.Time) error
	SaveResult(ctx context.Context, result submission.Result) error
}

// Recorder keeps a copy of the candidate's audio for one interview.
type Recorder interface {
	StartSession(sessionID string) error
	EndSession() (string, error)
	Writer(dst io.Writer) io.Writer
}

// EventBroadcaster fans live interview events out to connected clients.
type EventBroadcaster interface {
	speech.Announcer

	BroadcastStatus(interviewID string, status Status)
	BroadcastTurn(interviewID string, index int, turn conversation.Turn)
	BroadcastComposing(interviewID string, composing bool)
	BroadcastEditorCode(interviewID, code string)
	BroadcastListening(interviewID string, listening bool)
	BroadcastInterim(interviewID, text string)
	BroadcastSpeechError(interviewID string, err error)
	BroadcastTimer(interviewID string, remaining time.Duration)
	BroadcastEmotion(interviewID string, sample emotion.Sample)
	BroadcastEmotionFeedback(interviewID, message string)
	BroadcastSubmission(interviewID, state, message string)
	BroadcastConfirmation(interviewID string, open bool)
	BroadcastRedirect(interviewID, path string)
}

// View is a point-in-time picture of a live interview.
type View struct {
	InterviewID      string              `json:"interview_id"`
	Status           Status              `json:"status"`
	Phase            string              `json:"phase"`
	Composing        bool                `json:"composing"`
	Listening        bool                `json:"listening"`
	Speaking         bool                `json:"speaking"`
	EditorCode       string              `json:"editor_code"`
	Turns            []conversation.Turn `json:"turns"`
	RemainingSeconds int                 `json:"remaining_seconds"`
	CameraEnabled    bool                `json:"camera_enabled"`
	EmotionSamples   int                 `json:"emotion_samples"`
	EmotionFeedback  string              `json:"emotion_feedback,omitempty"`
	Submission       string              `json:"submission"`
	Progress         string              `json:"progress,omitempty"`
	ConfirmationOpen bool                `json:"confirmation_open"`
	SubmissionError  string              `json:"submission_error,omitempty"`
	AudioPath        string              `json:"audio_path,omitempty"`
	StartedAt        *time.Time          `json:"started_at,omitempty"`
}
