package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/sjawhar/codereflex/internal/conversation"
	"github.com/sjawhar/codereflex/internal/emotion"
	"github.com/sjawhar/codereflex/internal/interview"
	"github.com/sjawhar/codereflex/internal/llm"
	"github.com/sjawhar/codereflex/internal/speech"
	"github.com/sjawhar/codereflex/internal/storage"
	"github.com/sjawhar/codereflex/internal/submission"
)

// Deps are the collaborators shared by every live interview. Detector,
// Archiver, NewCapture and NewRecorder may be nil.
type Deps struct {
	Store       Store
	LLM         llm.Client
	Hub         EventBroadcaster
	Detector    emotion.Detector
	Archiver    submission.Archiver
	NewCapture  func(interviewID string) speech.Capture
	NewRecorder func(interviewID string) Recorder
}

type Options struct {
	DefaultVoice              string
	SkipConfirmationOnTimeout bool
	EmotionInterval           time.Duration
	EmotionThreshold          float64
	RequestTimeout            time.Duration
	TickInterval              time.Duration
}

// Run is one live interview: the conversation, its speech and camera
// inputs, the countdown and the submission pipeline.
type Run struct {
	id      string
	profile interview.Profile
	store   Store
	hub     EventBroadcaster
	opts    Options
	now     func() time.Time

	log          *conversation.Log
	orchestrator *interview.Orchestrator
	capture      speech.Capture
	output       *speech.BroadcastOutput
	coordinator  *speech.Coordinator
	frames       *emotion.FrameBuffer
	emotions     *emotion.Log
	sampler      *emotion.Sampler
	countdown    *Countdown
	controller   *submission.Controller
	recorder     Recorder
	audio        io.Writer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu              sync.Mutex
	status          Status
	camera          bool
	startedAt       *time.Time
	stopSampler     context.CancelFunc
	emotionFeedback string
	recording       bool
	audioPath       string
	closed          bool

	unsubscribe func()
}

func newRun(iv storage.Interview, deps Deps, opts Options) *Run {
	profile := iv.Profile
	id := profile.ID

	r := &Run{
		id:       id,
		profile:  profile,
		store:    deps.Store,
		hub:      deps.Hub,
		opts:     opts,
		now:      time.Now,
		log:      conversation.NewLog(),
		frames:   &emotion.FrameBuffer{},
		emotions: emotion.NewLog(),
		status:   StatusAwaitingPermissions,
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())

	r.orchestrator = interview.NewOrchestrator(profile, r.log, deps.LLM, interview.Hooks{
		OnComposing:  func(composing bool) { r.hub.BroadcastComposing(id, composing) },
		OnEditorCode: func(code string) { r.hub.BroadcastEditorCode(id, code) },
		OnState: func(s interview.State) {
			slog.Debug("session: interview phase changed", "interview_id", id, "phase", s.String())
		},
	})
	if opts.RequestTimeout > 0 {
		r.orchestrator.SetRequestTimeout(opts.RequestTimeout)
	}
	r.unsubscribe = r.log.Subscribe(func(index int, turn conversation.Turn) {
		r.hub.BroadcastTurn(id, index, turn)
	})

	if deps.NewCapture != nil {
		r.capture = deps.NewCapture(id)
	}
	if r.capture == nil {
		r.capture = speech.NewClientCapture()
	}
	r.output = speech.NewBroadcastOutput(id, r.hub)

	voice := profile.Voice
	if voice == "" {
		voice = opts.DefaultVoice
	}
	r.coordinator = speech.NewCoordinator(r.log, r.capture, r.output, r.orchestrator, voice, speech.CoordinatorHooks{
		OnInterim:   func(text string) { r.hub.BroadcastInterim(id, text) },
		OnListening: func(listening bool) { r.hub.BroadcastListening(id, listening) },
		OnDiscarded: func(text string, err error) {
			slog.Info("session: discarded candidate speech", "interview_id", id, "text", text, "error", err)
		},
		OnError: func(err error) { r.hub.BroadcastSpeechError(id, err) },
	})

	if deps.Detector != nil {
		r.sampler = emotion.NewSampler(deps.Detector, r.frames, r.emotions, emotion.SamplerConfig{
			Interval:  opts.EmotionInterval,
			Threshold: opts.EmotionThreshold,
			Active:    func() bool { return r.Status() == StatusActive },
			OnSample:  func(s emotion.Sample) { r.hub.BroadcastEmotion(id, s) },
			OnFeedback: func(message string) {
				r.mu.Lock()
				r.emotionFeedback = message
				r.mu.Unlock()
				r.hub.BroadcastEmotionFeedback(id, message)
			},
		})
	}

	tick := opts.TickInterval
	if tick <= 0 {
		tick = time.Second
	}
	r.countdown = NewCountdown(profile.Duration(), tick)
	r.countdown.OnTick(func(remaining time.Duration) { r.hub.BroadcastTimer(id, remaining) })
	r.countdown.OnExpire(r.timeUp)

	r.controller = submission.NewController(id, r, deps.LLM, deps.Store, deps.Archiver, submission.Hooks{
		OnProgress:     func(s submission.State, message string) { r.hub.BroadcastSubmission(id, s.String(), message) },
		OnConfirmation: func(open bool) { r.hub.BroadcastConfirmation(id, open) },
		OnRedirect:     func(path string) { r.hub.BroadcastRedirect(id, path) },
	})

	if deps.NewRecorder != nil {
		r.recorder = deps.NewRecorder(id)
	}
	sink, streams := r.capture.(io.Writer)
	switch {
	case r.recorder != nil && streams:
		r.audio = r.recorder.Writer(sink)
	case r.recorder != nil:
		r.audio = r.recorder.Writer(io.Discard)
	case streams:
		r.audio = sink
	}

	return r
}

func (r *Run) ID() string { return r.id }

func (r *Run) Profile() interview.Profile { return r.profile }

func (r *Run) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// GrantPermissions records the candidate's device choices and starts the
// interview. The microphone is mandatory; without a camera the emotion
// sampler stays off.
func (r *Run) GrantPermissions(ctx context.Context, microphone, camera bool) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrNoActiveSession
	}
	if r.status != StatusAwaitingPermissions {
		r.mu.Unlock()
		return ErrAlreadyActive
	}
	r.mu.Unlock()

	if !microphone {
		return ErrMicrophoneRequired
	}

	startedAt := r.now().UTC()
	if err := r.store.MarkStarted(ctx, r.id, startedAt); err != nil {
		return fmt.Errorf("mark interview started: %w", err)
	}

	r.mu.Lock()
	if r.status != StatusAwaitingPermissions {
		r.mu.Unlock()
		return ErrAlreadyActive
	}
	r.status = StatusActive
	r.startedAt = &startedAt
	r.camera = camera && r.profile.EnableWebcam
	sampling := r.camera && r.sampler != nil
	var samplerCtx context.Context
	if sampling {
		samplerCtx, r.stopSampler = context.WithCancel(r.ctx)
	}
	r.mu.Unlock()

	r.hub.BroadcastStatus(r.id, StatusActive)
	slog.Info("session: interview started", "interview_id", r.id, "camera", r.camera, "duration", r.profile.Duration())

	if r.recorder != nil {
		if err := r.recorder.StartSession(r.id); err != nil {
			slog.Warn("session: audio recording unavailable", "interview_id", r.id, "error", err)
		} else {
			r.mu.Lock()
			r.recording = true
			r.mu.Unlock()
		}
	}

	if err := r.orchestrator.Start(r.ctx); err != nil {
		return fmt.Errorf("start interview: %w", err)
	}
	r.countdown.Start()

	if sampling {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.sampler.Run(samplerCtx)
		}()
	}
	return nil
}

func (r *Run) requireActive() error {
	if r.Status() != StatusActive {
		return ErrNotActive
	}
	return nil
}

// SubmitCode stops any in-progress capture and hands the editor contents to
// the interviewer.
func (r *Run) SubmitCode(code string) error {
	if err := r.requireActive(); err != nil {
		return err
	}
	r.coordinator.Interrupt()
	r.orchestrator.SetEditorCode(code)
	return r.orchestrator.SubmitCode(code)
}

func (r *Run) SetEditorCode(code string) error {
	if err := r.requireActive(); err != nil {
		return err
	}
	r.orchestrator.SetEditorCode(code)
	return nil
}

func (r *Run) StartListening() error {
	if err := r.requireActive(); err != nil {
		return err
	}
	return r.coordinator.StartListening(r.ctx)
}

func (r *Run) StopListening() {
	r.coordinator.StopListening()
}

// IngestSpeech feeds recognised text from a browser-side recogniser.
func (r *Run) IngestSpeech(text string, final bool) error {
	client, ok := r.capture.(*speech.ClientCapture)
	if !ok {
		return ErrWrongCapture
	}
	if err := r.requireActive(); err != nil {
		return err
	}
	return client.Ingest(text, final)
}

// SpeechFailed reports a browser-side recognition error.
func (r *Run) SpeechFailed(message string) error {
	client, ok := r.capture.(*speech.ClientCapture)
	if !ok {
		return ErrWrongCapture
	}
	client.ReportError(errors.New(message))
	return nil
}

// SpeechEnded acknowledges that the client finished playing utteranceID.
func (r *Run) SpeechEnded(utteranceID string) bool {
	return r.output.MarkEnded(utteranceID)
}

func (r *Run) PostFrame(frame emotion.Frame) error {
	if err := r.requireActive(); err != nil {
		return err
	}
	if frame.CapturedAt.IsZero() {
		frame.CapturedAt = r.now().UTC()
	}
	r.frames.Put(frame)
	return nil
}

// WriteAudio accepts raw PCM from the candidate's microphone.
func (r *Run) WriteAudio(p []byte) (int, error) {
	if r.audio == nil {
		return 0, ErrWrongCapture
	}
	if err := r.requireActive(); err != nil {
		return 0, err
	}
	return r.audio.Write(p)
}

// StreamsAudio reports whether WriteAudio is usable.
func (r *Run) StreamsAudio() bool {
	return r.audio != nil
}

func (r *Run) RequestSubmit() error {
	if err := r.requireActive(); err != nil {
		return err
	}
	return r.controller.RequestSubmit()
}

// Confirm starts finalization in the background. A failed attempt can be
// confirmed again.
func (r *Run) Confirm() error {
	switch r.Status() {
	case StatusActive, StatusFinalizing:
	default:
		return ErrNotActive
	}
	if r.controller.Completed() {
		return submission.ErrCompleted
	}
	if r.controller.Running() {
		return submission.ErrInProgress
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := r.submitContext()
		defer cancel()
		_ = r.controller.Confirm(ctx)
	}()
	return nil
}

// submitContext bounds one finalization attempt.
func (r *Run) submitContext() (context.Context, context.CancelFunc) {
	if r.opts.RequestTimeout > 0 {
		return context.WithTimeout(r.ctx, r.opts.RequestTimeout)
	}
	return context.WithCancel(r.ctx)
}

func (r *Run) Dismiss() {
	r.controller.Dismiss()
}

func (r *Run) timeUp() {
	if r.Status() != StatusActive {
		return
	}
	slog.Info("session: time is up", "interview_id", r.id)
	ctx, cancel := r.submitContext()
	defer cancel()
	if err := r.controller.TimeUp(ctx, r.opts.SkipConfirmationOnTimeout); err != nil {
		slog.Warn("session: timeout submission failed", "interview_id", r.id, "error", err)
	}
}

// StopInputs silences the interviewer and drops any partial utterance.
func (r *Run) StopInputs() {
	r.coordinator.Interrupt()
	r.coordinator.Silence()
}

func (r *Run) BeginFinalizing() {
	r.mu.Lock()
	r.status = StatusFinalizing
	stop := r.stopSampler
	r.mu.Unlock()

	r.orchestrator.BeginFinalizing()
	r.countdown.Stop()
	if stop != nil {
		stop()
	}
	r.hub.BroadcastStatus(r.id, StatusFinalizing)
}

func (r *Run) Freeze() submission.Snapshot {
	return submission.Snapshot{
		Transcript: r.log.Freeze(),
		CodeLog:    r.orchestrator.CodeLog(),
		Emotions:   r.emotions.Freeze(),
	}
}

func (r *Run) Finish() {
	r.orchestrator.Finish()
	r.mu.Lock()
	r.status = StatusCompleted
	r.mu.Unlock()
	r.endRecording()
	r.hub.BroadcastStatus(r.id, StatusCompleted)
}

func (r *Run) endRecording() {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return
	}
	r.recording = false
	r.mu.Unlock()

	path, err := r.recorder.EndSession()
	if err != nil {
		slog.Warn("session: finishing audio recording failed", "interview_id", r.id, "error", err)
		return
	}
	r.mu.Lock()
	r.audioPath = path
	r.mu.Unlock()
	if path != "" {
		slog.Info("session: audio recording saved", "interview_id", r.id, "path", path)
	}
}

func (r *Run) View() View {
	r.mu.Lock()
	v := View{
		InterviewID:     r.id,
		Status:          r.status,
		CameraEnabled:   r.camera,
		EmotionFeedback: r.emotionFeedback,
		AudioPath:       r.audioPath,
		StartedAt:       r.startedAt,
	}
	r.mu.Unlock()

	v.Phase = r.orchestrator.State().String()
	v.Composing = r.orchestrator.Composing()
	v.EditorCode = r.orchestrator.EditorCode()
	v.Listening = r.capture.Listening()
	v.Speaking = r.output.Speaking()
	v.Turns = r.log.Turns()
	v.RemainingSeconds = int(r.countdown.Remaining().Round(time.Second) / time.Second)
	v.EmotionSamples = r.emotions.Len()
	v.Submission = r.controller.State().String()
	v.Progress = r.controller.Progress()
	v.ConfirmationOpen = r.controller.ConfirmationOpen()
	if err := r.controller.Err(); err != nil {
		v.SubmissionError = err.Error()
	}
	return v
}

// Close tears the run down. Outstanding model requests are cancelled.
func (r *Run) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	stop := r.stopSampler
	r.mu.Unlock()

	r.countdown.Stop()
	if stop != nil {
		stop()
	}
	r.cancel()
	r.coordinator.Close()
	r.orchestrator.Close()
	r.unsubscribe()
	r.wg.Wait()
	r.endRecording()
}
