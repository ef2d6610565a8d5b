package speech

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/sjawhar/codereflex/internal/conversation"
)

// TurnSubmitter accepts candidate turns. It rejects them outside the
// candidate's turn.
type TurnSubmitter interface {
	SubmitCandidateTurn(text string) error
}

// CoordinatorHooks observe speech activity. Nil hooks are skipped.
type CoordinatorHooks struct {
	OnInterim   func(text string)
	OnListening func(listening bool)
	OnDiscarded func(text string, err error)
	OnError     func(err error)
}

// Coordinator speaks each new interviewer turn once and turns finished
// candidate utterances into conversation turns.
type Coordinator struct {
	log       *conversation.Log
	capture   Capture
	output    Output
	submitter TurnSubmitter
	voice     string
	hooks     CoordinatorHooks

	mu            sync.Mutex
	lastSpoken    string
	lastProcessed string

	unsubscribe func()
}

func NewCoordinator(log *conversation.Log, capture Capture, output Output, submitter TurnSubmitter, voice string, hooks CoordinatorHooks) *Coordinator {
	c := &Coordinator{
		log:       log,
		capture:   capture,
		output:    output,
		submitter: submitter,
		voice:     voice,
		hooks:     hooks,
	}
	capture.SetHandler(c.handleCapture)
	c.unsubscribe = log.Subscribe(func(int, conversation.Turn) { c.Sync() })
	return c
}

// Sync speaks the latest interviewer turn if it has not been spoken yet.
func (c *Coordinator) Sync() {
	latest, ok := c.log.Latest()
	if !ok || latest.Speaker != conversation.Interviewer {
		return
	}

	c.mu.Lock()
	if latest.Text == c.lastSpoken {
		c.mu.Unlock()
		return
	}
	c.lastSpoken = latest.Text
	c.mu.Unlock()

	c.output.Cancel()
	if err := c.output.Speak(context.Background(), Request{Text: latest.Text, Voice: c.voice}); err != nil {
		slog.Warn("speech: speak failed", "error", err)
	}
}

func (c *Coordinator) handleCapture(ev Event) {
	switch ev.Kind {
	case EventStarted:
		if c.hooks.OnListening != nil {
			c.hooks.OnListening(true)
		}
	case EventInterim:
		if c.hooks.OnInterim != nil {
			c.hooks.OnInterim(ev.Text)
		}
	case EventStopped:
		if c.hooks.OnListening != nil {
			c.hooks.OnListening(false)
		}
		c.submit(ev.Text)
	case EventError:
		slog.Warn("speech: capture error", "error", ev.Err)
		if c.hooks.OnListening != nil {
			c.hooks.OnListening(false)
		}
		if c.hooks.OnError != nil {
			c.hooks.OnError(ev.Err)
		}
	}
}

func (c *Coordinator) submit(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	// Captures flush each utterance once; repeated text is a new answer.
	if err := c.submitter.SubmitCandidateTurn(text); err != nil {
		slog.Info("speech: discarding candidate speech", "error", err)
		if c.hooks.OnDiscarded != nil {
			c.hooks.OnDiscarded(text, err)
		}
		return
	}

	c.mu.Lock()
	c.lastProcessed = text
	c.mu.Unlock()
}

// LastProcessed is the most recent utterance accepted as a candidate turn.
func (c *Coordinator) LastProcessed() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastProcessed
}

// StartListening silences the interviewer and opens the microphone.
func (c *Coordinator) StartListening(ctx context.Context) error {
	c.output.Cancel()
	return c.capture.Start(ctx)
}

// StopListening ends the utterance and submits what was heard.
func (c *Coordinator) StopListening() {
	c.capture.Stop()
}

// Interrupt stops capture and discards buffered speech.
func (c *Coordinator) Interrupt() {
	c.capture.Abort()
}

// Silence cancels the current interviewer utterance.
func (c *Coordinator) Silence() {
	c.output.Cancel()
}

func (c *Coordinator) Close() {
	c.unsubscribe()
	c.capture.Abort()
	c.output.Cancel()
}
