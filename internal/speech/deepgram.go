package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

// Stream is a live transcription connection that accepts raw audio.
// Finalize asks the provider to flush results for audio already sent.
type Stream interface {
	Connect() bool
	Write(p []byte) (int, error)
	Finalize() error
	Stop()
}

// defaultDrainTimeout bounds how long Stop waits for the last results.
const defaultDrainTimeout = 2 * time.Second

// Dialer opens a live transcription stream that reports to cb.
type Dialer func(ctx context.Context, cb api.LiveMessageCallback) (Stream, error)

var initOnce sync.Once

// DeepgramDialer streams linear16 mono audio at sampleRate to Deepgram live
// transcription.
func DeepgramDialer(apiKey, model string, sampleRate int) Dialer {
	if model == "" {
		model = "nova-2"
	}
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return func(ctx context.Context, cb api.LiveMessageCallback) (Stream, error) {
		initOnce.Do(func() {
			client.Init(client.InitLib{LogLevel: client.LogLevelDefault})
		})

		cOptions := &interfaces.ClientOptions{EnableKeepAlive: true}
		tOptions := &interfaces.LiveTranscriptionOptions{
			Model:          model,
			Language:       "en-US",
			Punctuate:      true,
			SmartFormat:    true,
			InterimResults: true,
			UtteranceEndMs: "1000",
			VadEvents:      true,
			Encoding:       "linear16",
			SampleRate:     sampleRate,
			Channels:       1,
		}

		dg, err := client.NewWSUsingCallback(ctx, apiKey, cOptions, tOptions, cb)
		if err != nil {
			return nil, fmt.Errorf("create deepgram client: %w", err)
		}
		return dg, nil
	}
}

// DeepgramCapture recognizes audio streamed from the browser on the server.
type DeepgramCapture struct {
	*captureState
	dial         Dialer
	drainTimeout time.Duration

	streamMu sync.Mutex
	stream   Stream
	draining chan struct{}
}

func NewDeepgramCapture(dial Dialer) *DeepgramCapture {
	return &DeepgramCapture{captureState: newCaptureState(), dial: dial, drainTimeout: defaultDrainTimeout}
}

func (c *DeepgramCapture) Start(ctx context.Context) error {
	if c.Listening() {
		return ErrAlreadyListening
	}

	stream, err := c.dial(ctx, deepgramCallback{capture: c})
	if err != nil {
		c.fail(err)
		return err
	}
	if !stream.Connect() {
		err := errors.New("deepgram connect failed")
		c.fail(err)
		return err
	}

	c.streamMu.Lock()
	c.stream = stream
	c.streamMu.Unlock()

	if err := c.begin(); err != nil {
		c.closeStream()
		return err
	}
	return nil
}

// Stop finalizes the stream and waits for the results of audio already sent
// before reporting the utterance.
func (c *DeepgramCapture) Stop() {
	if c.Listening() {
		c.drain()
	}
	c.closeStream()
	c.end(true)
}

func (c *DeepgramCapture) drain() {
	c.streamMu.Lock()
	stream := c.stream
	if stream == nil || c.draining != nil {
		c.streamMu.Unlock()
		return
	}
	done := make(chan struct{})
	c.draining = done
	c.streamMu.Unlock()

	if err := stream.Finalize(); err != nil {
		slog.Warn("speech: deepgram finalize failed", "error", err)
	} else {
		timer := time.NewTimer(c.drainTimeout)
		select {
		case <-done:
		case <-timer.C:
			slog.Debug("speech: deepgram finalize timed out", "timeout", c.drainTimeout)
		}
		timer.Stop()
	}

	c.streamMu.Lock()
	c.draining = nil
	c.streamMu.Unlock()
}

// drained releases a Stop waiting in drain. Audio stays blocked until drain
// returns.
func (c *DeepgramCapture) drained() {
	c.streamMu.Lock()
	if c.draining != nil {
		select {
		case <-c.draining:
		default:
			close(c.draining)
		}
	}
	c.streamMu.Unlock()
}

func (c *DeepgramCapture) Abort() {
	c.drained()
	c.closeStream()
	c.end(false)
}

// Write forwards audio while listening and drops it otherwise, including
// while Stop waits for the last results.
func (c *DeepgramCapture) Write(p []byte) (int, error) {
	c.streamMu.Lock()
	stream := c.stream
	draining := c.draining != nil
	c.streamMu.Unlock()
	if stream == nil || draining || !c.Listening() {
		return len(p), nil
	}
	return stream.Write(p)
}

func (c *DeepgramCapture) closeStream() {
	c.streamMu.Lock()
	stream := c.stream
	c.stream = nil
	c.streamMu.Unlock()
	if stream != nil {
		stream.Stop()
	}
}

func (c *DeepgramCapture) message(mr *api.MessageResponse) {
	if len(mr.Channel.Alternatives) == 0 {
		return
	}
	sentence := strings.TrimSpace(mr.Channel.Alternatives[0].Transcript)
	if sentence == "" {
		return
	}

	c.mu.Lock()
	if !c.listening {
		c.mu.Unlock()
		return
	}
	var preview string
	if mr.IsFinal {
		c.buffer.Add(sentence)
		preview = c.buffer.String()
	} else {
		preview = strings.TrimSpace(c.buffer.String() + " " + sentence)
	}
	c.mu.Unlock()

	c.emit(Event{Kind: EventInterim, Text: preview})
	if mr.IsFinal {
		c.drained()
	}
}

type deepgramCallback struct {
	capture *DeepgramCapture
}

func (cb deepgramCallback) Open(*api.OpenResponse) error {
	slog.Debug("speech: connected to deepgram")
	return nil
}

func (cb deepgramCallback) Message(mr *api.MessageResponse) error {
	cb.capture.message(mr)
	return nil
}

func (cb deepgramCallback) Metadata(*api.MetadataResponse) error { return nil }

func (cb deepgramCallback) SpeechStarted(*api.SpeechStartedResponse) error { return nil }

func (cb deepgramCallback) UtteranceEnd(*api.UtteranceEndResponse) error {
	cb.capture.drained()
	return nil
}

func (cb deepgramCallback) Close(*api.CloseResponse) error {
	slog.Debug("speech: disconnected from deepgram")
	return nil
}

func (cb deepgramCallback) Error(er *api.ErrorResponse) error {
	slog.Warn("speech: deepgram error", "code", er.ErrCode, "description", er.Description)
	cb.capture.drained()
	cb.capture.closeStream()
	cb.capture.fail(fmt.Errorf("deepgram %s: %s", er.ErrCode, er.Description))
	return nil
}

func (cb deepgramCallback) UnhandledEvent([]byte) error { return nil }
