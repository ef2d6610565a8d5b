package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sjawhar/codereflex/internal/conversation"
	"github.com/sjawhar/codereflex/internal/emotion"
	"github.com/sjawhar/codereflex/internal/interview"
	"github.com/sjawhar/codereflex/internal/llm"
)

var (
	ErrInProgress = errors.New("submission already in progress")
	ErrCompleted  = errors.New("interview already submitted")
)

type State int

const (
	StateIdle State = iota
	StateCollecting
	StateRequestingFeedback
	StatePersisting
	StateRedirecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCollecting:
		return "collecting"
	case StateRequestingFeedback:
		return "requesting-feedback"
	case StatePersisting:
		return "persisting"
	case StateRedirecting:
		return "redirecting"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Progress messages shown while each step runs.
const (
	ProgressCollecting  = "Gathering your responses..."
	ProgressRequesting  = "Asking the AI for overall feedback..."
	ProgressPersisting  = "Saving your results to the database..."
	ProgressRedirecting = "All done! Redirecting to your results..."
	ProgressFailed      = "There was an error submitting your interview. Please try again."
)

// Snapshot is the frozen interview state that gets evaluated and stored.
type Snapshot struct {
	Transcript []conversation.Turn
	CodeLog    []interview.CodeSubmission
	Emotions   []emotion.Sample
}

// Session is the live interview being submitted.
type Session interface {
	// StopInputs stops speech capture and output.
	StopInputs()
	BeginFinalizing()
	Freeze() Snapshot
	Finish()
}

type Persister interface {
	SaveResult(ctx context.Context, result Result) error
}

type Archiver interface {
	Archive(ctx context.Context, result Result) error
}

type Hooks struct {
	OnProgress     func(state State, message string)
	OnConfirmation func(open bool)
	OnRedirect     func(path string)
}

// Controller runs the finalization pipeline once per interview.
type Controller struct {
	interviewID string
	session     Session
	client      llm.Client
	store       Persister
	archiver    Archiver
	hooks       Hooks
	now         func() time.Time

	mu          sync.Mutex
	state       State
	running     bool
	completed   bool
	confirmOpen bool
	snapshot    *Snapshot
	lastErr     error
	progress    string
}

// NewController wires the pipeline. archiver may be nil.
func NewController(interviewID string, session Session, client llm.Client, store Persister, archiver Archiver, hooks Hooks) *Controller {
	return &Controller{
		interviewID: interviewID,
		session:     session,
		client:      client,
		store:       store,
		archiver:    archiver,
		hooks:       hooks,
		now:         time.Now,
	}
}

// RedirectPath is where the candidate lands after submission.
func RedirectPath(interviewID string) string {
	return "/feedback/" + interviewID
}

// RequestSubmit stops inputs and opens the confirmation step.
func (c *Controller) RequestSubmit() error {
	c.mu.Lock()
	if err := c.busyLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.confirmOpen = true
	c.mu.Unlock()

	c.session.StopInputs()
	if c.hooks.OnConfirmation != nil {
		c.hooks.OnConfirmation(true)
	}
	return nil
}

// Dismiss closes the confirmation step without submitting.
func (c *Controller) Dismiss() {
	c.mu.Lock()
	wasOpen := c.confirmOpen
	c.confirmOpen = false
	c.mu.Unlock()
	if wasOpen && c.hooks.OnConfirmation != nil {
		c.hooks.OnConfirmation(false)
	}
}

func (c *Controller) Confirm(ctx context.Context) error {
	return c.Finalize(ctx)
}

// TimeUp handles countdown expiry.
func (c *Controller) TimeUp(ctx context.Context, skipConfirmation bool) error {
	if skipConfirmation {
		return c.Finalize(ctx)
	}
	return c.RequestSubmit()
}

// Finalize freezes the interview, requests feedback, persists the result and
// redirects. A second call while running or after success is a no-op that
// returns ErrInProgress or ErrCompleted. After a failure the frozen snapshot
// is reused.
func (c *Controller) Finalize(ctx context.Context) error {
	c.mu.Lock()
	if err := c.busyLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.running = true
	c.lastErr = nil
	closeConfirm := c.confirmOpen
	c.confirmOpen = false
	c.mu.Unlock()

	if closeConfirm && c.hooks.OnConfirmation != nil {
		c.hooks.OnConfirmation(false)
	}

	err := c.run(ctx)

	c.mu.Lock()
	c.running = false
	if err != nil {
		c.lastErr = err
		c.mu.Unlock()
		c.setState(StateFailed, ProgressFailed)
		slog.Error("submission: finalization failed", "interview_id", c.interviewID, "error", err)
		return err
	}
	c.completed = true
	c.mu.Unlock()
	return nil
}

func (c *Controller) run(ctx context.Context) error {
	c.setState(StateCollecting, ProgressCollecting)
	snap := c.collect()

	c.setState(StateRequestingFeedback, ProgressRequesting)
	content, err := c.client.Complete(ctx, FeedbackMessages(snap.Transcript, snap.Emotions))
	if err != nil {
		return fmt.Errorf("request feedback: %w", err)
	}
	feedback, err := ParseFeedback(content)
	if err != nil {
		return err
	}

	result := Result{
		InterviewID: c.interviewID,
		Transcript:  snap.Transcript,
		CodeLog:     snap.CodeLog,
		Emotions:    snap.Emotions,
		Feedback:    feedback,
		EndedAt:     c.now().UTC(),
	}

	c.setState(StatePersisting, ProgressPersisting)
	if err := c.store.SaveResult(ctx, result); err != nil {
		return fmt.Errorf("save result: %w", err)
	}

	if c.archiver != nil {
		if err := c.archiver.Archive(ctx, result); err != nil {
			slog.Warn("submission: archive failed", "interview_id", c.interviewID, "error", err)
		}
	}

	c.setState(StateRedirecting, ProgressRedirecting)
	c.session.Finish()
	if c.hooks.OnRedirect != nil {
		c.hooks.OnRedirect(RedirectPath(c.interviewID))
	}
	slog.Info("submission: interview submitted", "interview_id", c.interviewID, "rating", feedback.FinalRating)
	return nil
}

// collect freezes the session on the first attempt and returns the cached
// snapshot afterwards.
func (c *Controller) collect() Snapshot {
	c.mu.Lock()
	if c.snapshot != nil {
		snap := *c.snapshot
		c.mu.Unlock()
		return snap
	}
	c.mu.Unlock()

	c.session.StopInputs()
	c.session.BeginFinalizing()
	snap := c.session.Freeze()

	c.mu.Lock()
	c.snapshot = &snap
	c.mu.Unlock()
	return snap
}

func (c *Controller) busyLocked() error {
	if c.completed {
		return ErrCompleted
	}
	if c.running {
		return ErrInProgress
	}
	return nil
}

func (c *Controller) setState(s State, progress string) {
	c.mu.Lock()
	c.state = s
	c.progress = progress
	c.mu.Unlock()
	if c.hooks.OnProgress != nil {
		c.hooks.OnProgress(s, progress)
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Progress() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress
}

// Err returns the error of the last failed attempt.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Controller) ConfirmationOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.confirmOpen
}

func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Controller) Completed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completed
}
