package speech

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type Request struct {
	Text  string
	Voice string
}

// Output speaks interviewer turns aloud.
type Output interface {
	Speak(ctx context.Context, req Request) error
	Cancel()
	Speaking() bool
}

// Announcer delivers speech commands to the candidate's browser.
type Announcer interface {
	BroadcastSpeak(interviewID, utteranceID, text, voice string)
	BroadcastSpeechCancel(interviewID string)
}

// BroadcastOutput drives the browser's speech synthesizer. At most one
// utterance is tracked; starting a new one replaces it.
type BroadcastOutput struct {
	interviewID string
	announcer   Announcer
	newID       func() string

	mu        sync.Mutex
	utterance string
}

func NewBroadcastOutput(interviewID string, announcer Announcer) *BroadcastOutput {
	return &BroadcastOutput{
		interviewID: interviewID,
		announcer:   announcer,
		newID:       uuid.NewString,
	}
}

func (o *BroadcastOutput) Speak(ctx context.Context, req Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id := o.newID()
	o.mu.Lock()
	o.utterance = id
	o.mu.Unlock()

	if o.announcer != nil {
		o.announcer.BroadcastSpeak(o.interviewID, id, req.Text, req.Voice)
	}
	return nil
}

func (o *BroadcastOutput) Cancel() {
	o.mu.Lock()
	speaking := o.utterance != ""
	o.utterance = ""
	o.mu.Unlock()

	if speaking && o.announcer != nil {
		o.announcer.BroadcastSpeechCancel(o.interviewID)
	}
}

func (o *BroadcastOutput) Speaking() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.utterance != ""
}

// MarkEnded clears the speaking flag when the client finished the current
// utterance. Stale ids are ignored.
func (o *BroadcastOutput) MarkEnded(utteranceID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if utteranceID == "" || utteranceID != o.utterance {
		return false
	}
	o.utterance = ""
	return true
}

// CurrentUtterance returns the id of the utterance being spoken, if any.
func (o *BroadcastOutput) CurrentUtterance() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.utterance
}
