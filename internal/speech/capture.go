package speech

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var (
	ErrNotListening     = errors.New("speech capture is not listening")
	ErrAlreadyListening = errors.New("speech capture is already listening")
)

type EventKind int

const (
	EventStarted EventKind = iota
	EventInterim
	EventStopped
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventInterim:
		return "interim"
	case EventStopped:
		return "stopped"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event reports a capture transition. Stopped events carry the finalized
// transcript, which is empty after Abort.
type Event struct {
	Kind EventKind
	Text string
	Err  error
}

type Handler func(Event)

// Capture turns candidate speech into text.
type Capture interface {
	Start(ctx context.Context) error
	Stop()
	Abort()
	Listening() bool
	Transcript() string
	SetHandler(h Handler)
}

// UtteranceBuffer accumulates finalized fragments until the utterance is
// taken.
type UtteranceBuffer struct {
	fragments []string
}

func NewUtteranceBuffer() *UtteranceBuffer {
	return &UtteranceBuffer{}
}

func (b *UtteranceBuffer) Add(fragment string) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return
	}
	b.fragments = append(b.fragments, fragment)
}

// String joins the buffered fragments without clearing them.
func (b *UtteranceBuffer) String() string {
	return strings.Join(b.fragments, " ")
}

// Flush returns the buffered text and resets the buffer.
func (b *UtteranceBuffer) Flush() string {
	out := b.String()
	b.fragments = nil
	return out
}

func (b *UtteranceBuffer) Len() int {
	return len(b.fragments)
}

// captureState is the bookkeeping shared by the capture implementations.
type captureState struct {
	mu        sync.Mutex
	listening bool
	buffer    *UtteranceBuffer
	handler   Handler
}

func newCaptureState() *captureState {
	return &captureState{buffer: NewUtteranceBuffer()}
}

func (s *captureState) SetHandler(h Handler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

func (s *captureState) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening
}

// Transcript returns the finalized text captured so far.
func (s *captureState) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer.String()
}

func (s *captureState) emit(ev Event) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

// begin marks the capture as listening with an empty buffer.
func (s *captureState) begin() error {
	s.mu.Lock()
	if s.listening {
		s.mu.Unlock()
		return ErrAlreadyListening
	}
	s.listening = true
	s.buffer.Flush()
	s.mu.Unlock()
	s.emit(Event{Kind: EventStarted})
	return nil
}

// end leaves the listening state; keep decides whether the buffered text is
// reported or discarded. It reports false when capture was not listening.
func (s *captureState) end(keep bool) bool {
	s.mu.Lock()
	if !s.listening {
		s.mu.Unlock()
		return false
	}
	s.listening = false
	text := s.buffer.Flush()
	s.mu.Unlock()

	if !keep {
		text = ""
	}
	s.emit(Event{Kind: EventStopped, Text: text})
	return true
}

func (s *captureState) fail(err error) {
	s.mu.Lock()
	s.listening = false
	s.buffer.Flush()
	s.mu.Unlock()
	s.emit(Event{Kind: EventError, Err: err})
}

// ClientCapture is fed by a recognizer running in the candidate's browser.
type ClientCapture struct {
	*captureState
}

func NewClientCapture() *ClientCapture {
	return &ClientCapture{captureState: newCaptureState()}
}

func (c *ClientCapture) Start(_ context.Context) error {
	return c.begin()
}

func (c *ClientCapture) Stop() {
	c.end(true)
}

func (c *ClientCapture) Abort() {
	c.end(false)
}

// Ingest accepts a recognizer fragment. Final fragments are buffered; interim
// ones are only reported.
func (c *ClientCapture) Ingest(text string, final bool) error {
	c.mu.Lock()
	if !c.listening {
		c.mu.Unlock()
		return ErrNotListening
	}
	var preview string
	if final {
		c.buffer.Add(text)
		preview = c.buffer.String()
	} else {
		preview = strings.TrimSpace(c.buffer.String() + " " + strings.TrimSpace(text))
	}
	c.mu.Unlock()

	c.emit(Event{Kind: EventInterim, Text: preview})
	return nil
}

// ReportError records a client recognizer failure and stops listening.
func (c *ClientCapture) ReportError(err error) {
	c.fail(err)
}
