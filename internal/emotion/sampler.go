package emotion

import (
	"context"
	"log/slog"
	"time"
)

const (
	DefaultInterval         = 5 * time.Second
	DefaultFeedbackInterval = 30 * time.Second
)

type SamplerConfig struct {
	Interval         time.Duration
	FeedbackInterval time.Duration
	// Threshold is the minimum confidence a dominant label needs to be kept.
	Threshold float64
	// Active gates sampling; nil means always active.
	Active     func() bool
	OnSample   func(Sample)
	OnFeedback func(message string)
}

// Sampler periodically classifies the latest camera frame.
type Sampler struct {
	detector Detector
	frames   *FrameBuffer
	log      *Log
	cfg      SamplerConfig
	now      func() time.Time
}

func NewSampler(detector Detector, frames *FrameBuffer, log *Log, cfg SamplerConfig) *Sampler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.FeedbackInterval <= 0 {
		cfg.FeedbackInterval = DefaultFeedbackInterval
	}
	return &Sampler{detector: detector, frames: frames, log: log, cfg: cfg, now: time.Now}
}

// Run samples until ctx is done.
func (s *Sampler) Run(ctx context.Context) {
	sampleTicker := time.NewTicker(s.cfg.Interval)
	defer sampleTicker.Stop()
	feedbackTicker := time.NewTicker(s.cfg.FeedbackInterval)
	defer feedbackTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sampleTicker.C:
			s.SampleOnce(ctx)
		case <-feedbackTicker.C:
			s.feedback()
		}
	}
}

// SampleOnce classifies the latest frame and records the dominant label.
// Missing frames, absent faces and low confidence record nothing.
func (s *Sampler) SampleOnce(ctx context.Context) (Sample, bool) {
	if s.detector == nil || (s.cfg.Active != nil && !s.cfg.Active()) {
		return Sample{}, false
	}
	frame, ok := s.frames.Latest()
	if !ok {
		return Sample{}, false
	}

	det, err := s.detector.Detect(ctx, frame)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("emotion: detection failed", "error", err)
		}
		return Sample{}, false
	}
	if !det.Face {
		return Sample{}, false
	}
	label, confidence, ok := det.Dominant()
	if !ok || confidence < s.cfg.Threshold {
		return Sample{}, false
	}

	sample := Sample{Timestamp: s.now().UTC(), Label: label, Confidence: confidence}
	if err := s.log.Append(sample); err != nil {
		return Sample{}, false
	}
	if s.cfg.OnSample != nil {
		s.cfg.OnSample(sample)
	}
	return sample, true
}

func (s *Sampler) feedback() {
	if s.cfg.Active != nil && !s.cfg.Active() {
		return
	}
	msg, ok := Feedback(s.log.Samples())
	if ok && s.cfg.OnFeedback != nil {
		s.cfg.OnFeedback(msg)
	}
}
