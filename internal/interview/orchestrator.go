package interview

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sjawhar/codereflex/internal/conversation"
	"github.com/sjawhar/codereflex/internal/llm"
)

type State int

const (
	StateIdle State = iota
	StateAwaitingFirstAITurn
	StateAwaitingUserTurn
	StateAwaitingAITurn
	StateFinalizing
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingFirstAITurn:
		return "awaiting-first-ai-turn"
	case StateAwaitingUserTurn:
		return "awaiting-user-turn"
	case StateAwaitingAITurn:
		return "awaiting-ai-turn"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	// FallbackText is spoken when the model could not be reached.
	FallbackText = "I'm sorry, I encountered an error. Could you please repeat that?"
	// CodeAcknowledgement is the candidate turn text that carries a code
	// submission.
	CodeAcknowledgement = "I have finished writing my code. Here is my solution."
	DefaultEditorCode   = "// Your code here..."
)

// Hooks receive orchestrator status changes. Nil hooks are skipped.
type Hooks struct {
	OnComposing  func(composing bool)
	OnEditorCode func(code string)
	OnState      func(state State)
}

// Orchestrator decides when the next interviewer turn is requested and
// appends the model's replies to the conversation log.
type Orchestrator struct {
	profile Profile
	log     *conversation.Log
	client  llm.Client
	hooks   Hooks
	timeout time.Duration
	now     func() time.Time

	mu         sync.Mutex
	state      State
	composing  bool
	editorCode string
	codeLog    []CodeSubmission
	ctx        context.Context
	cancel     context.CancelFunc

	wg          sync.WaitGroup
	unsubscribe func()
}

func NewOrchestrator(profile Profile, log *conversation.Log, client llm.Client, hooks Hooks) *Orchestrator {
	o := &Orchestrator{
		profile:    profile,
		log:        log,
		client:     client,
		hooks:      hooks,
		timeout:    60 * time.Second,
		now:        time.Now,
		editorCode: DefaultEditorCode,
	}
	o.unsubscribe = log.Subscribe(o.onTurn)
	return o
}

// SetRequestTimeout bounds every model request.
func (o *Orchestrator) SetRequestTimeout(d time.Duration) {
	if d > 0 {
		o.mu.Lock()
		o.timeout = d
		o.mu.Unlock()
	}
}

// Start requests the opening interviewer turn with an empty history.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		return ErrAlreadyStarted
	}
	o.ctx, o.cancel = context.WithCancel(ctx)
	o.setStateLocked(StateAwaitingFirstAITurn)
	o.setComposingLocked(true)
	o.wg.Add(1)
	o.mu.Unlock()

	slog.Info("interview: requesting opening turn", "interview_id", o.profile.ID)
	go o.request(nil)
	return nil
}

// SubmitCandidateTurn appends spoken candidate text.
func (o *Orchestrator) SubmitCandidateTurn(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyTurn
	}
	return o.appendCandidate(conversation.Turn{Speaker: conversation.Candidate, Text: text})
}

// SubmitCode records a code submission against the latest interviewer
// question and appends the acknowledgement turn carrying the code.
func (o *Orchestrator) SubmitCode(code string) error {
	if strings.TrimSpace(code) == "" {
		return ErrEmptyTurn
	}

	question := "Unknown Question"
	if q, ok := o.log.LatestFrom(conversation.Interviewer); ok {
		question = q.Text
	}
	submittedAt := o.now().UTC()

	if err := o.appendCandidate(conversation.Turn{
		Speaker: conversation.Candidate,
		Text:    CodeAcknowledgement,
		Code:    code,
	}); err != nil {
		return err
	}

	o.mu.Lock()
	o.codeLog = append(o.codeLog, CodeSubmission{Timestamp: submittedAt, Code: code, Question: question})
	o.mu.Unlock()
	return nil
}

func (o *Orchestrator) appendCandidate(turn conversation.Turn) error {
	o.mu.Lock()
	state := o.state
	o.mu.Unlock()
	if state != StateAwaitingUserTurn {
		return fmt.Errorf("%w (state %s)", ErrNotAcceptingTurns, state)
	}
	return o.log.Append(turn)
}

func (o *Orchestrator) onTurn(_ int, turn conversation.Turn) {
	if turn.Speaker != conversation.Candidate {
		return
	}

	o.mu.Lock()
	if o.state == StateFinalizing || o.state == StateDone || o.ctx == nil {
		o.mu.Unlock()
		return
	}
	o.setStateLocked(StateAwaitingAITurn)
	o.setComposingLocked(true)
	o.wg.Add(1)
	o.mu.Unlock()

	go o.request(o.log.Turns())
}

func (o *Orchestrator) request(history []conversation.Turn) {
	defer o.wg.Done()

	o.mu.Lock()
	base := o.ctx
	timeout := o.timeout
	o.mu.Unlock()

	ctx, cancel := context.WithTimeout(base, timeout)
	defer cancel()

	var turn conversation.Turn
	content, err := o.client.Complete(ctx, BuildMessages(o.profile, history))
	if err != nil {
		slog.Warn("interview: model request failed, using fallback turn",
			"interview_id", o.profile.ID, "status", llm.StatusCode(err), "error", err)
		turn = conversation.Turn{Speaker: conversation.Interviewer, Text: FallbackText}
	} else {
		turn = ParseReply(content)
	}

	// The candidate's turn opens before the reply is appended so a listener
	// reacting to the reply can answer at once. The log's ordering guard
	// still rejects candidate turns until the reply lands.
	o.mu.Lock()
	if o.state == StateFinalizing || o.state == StateDone {
		o.setComposingLocked(false)
		o.mu.Unlock()
		slog.Info("interview: dropping reply", "interview_id", o.profile.ID, "state", o.State())
		return
	}
	prev := o.state
	o.setStateLocked(StateAwaitingUserTurn)
	o.setComposingLocked(false)
	if turn.HasCode() {
		o.editorCode = turn.Code
	}
	o.mu.Unlock()

	if err := o.log.Append(turn); err != nil {
		slog.Info("interview: dropping reply", "interview_id", o.profile.ID, "error", err)
		o.mu.Lock()
		if o.state == StateAwaitingUserTurn {
			o.setStateLocked(prev)
		}
		o.mu.Unlock()
		return
	}

	if turn.HasCode() && o.hooks.OnEditorCode != nil {
		o.hooks.OnEditorCode(turn.Code)
	}
}

// BeginFinalizing stops the conversation loop; replies still in flight are
// dropped.
func (o *Orchestrator) BeginFinalizing() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateDone {
		return
	}
	o.setStateLocked(StateFinalizing)
	if o.cancel != nil {
		o.cancel()
	}
}

// Finish moves a finalizing interview to done.
func (o *Orchestrator) Finish() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateFinalizing {
		o.setStateLocked(StateDone)
	}
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Composing reports whether a model request is outstanding.
func (o *Orchestrator) Composing() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.composing
}

func (o *Orchestrator) EditorCode() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.editorCode
}

// SetEditorCode records what the candidate typed into the editor.
func (o *Orchestrator) SetEditorCode(code string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.editorCode = code
}

func (o *Orchestrator) CodeLog() []CodeSubmission {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]CodeSubmission(nil), o.codeLog...)
}

// Wait blocks until no model request is in flight.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Close cancels outstanding requests and detaches from the log.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
	}
	o.mu.Unlock()
	o.unsubscribe()
	o.wg.Wait()
}

func (o *Orchestrator) setStateLocked(s State) {
	if o.state == s {
		return
	}
	o.state = s
	if o.hooks.OnState != nil {
		o.hooks.OnState(s)
	}
}

func (o *Orchestrator) setComposingLocked(v bool) {
	if o.composing == v {
		return
	}
	o.composing = v
	if o.hooks.OnComposing != nil {
		o.hooks.OnComposing(v)
	}
}
