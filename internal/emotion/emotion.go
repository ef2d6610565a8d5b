package emotion

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Labels is the expression set the detector scores, in tie-break order.
var Labels = []string{"neutral", "happy", "sad", "angry", "fearful", "disgusted", "surprised"}

// Sample is one dominant-expression reading.
type Sample struct {
	Timestamp  time.Time `json:"time"`
	Label      string    `json:"emotion"`
	Confidence float64   `json:"confidence"`
}

// Frame is a still image from the candidate's camera.
type Frame struct {
	Data       []byte
	MIMEType   string
	CapturedAt time.Time
}

// Detection holds per-label confidences; Face is false when nobody is in
// frame.
type Detection struct {
	Face        bool               `json:"face"`
	Expressions map[string]float64 `json:"expressions"`
}

type Detector interface {
	Detect(ctx context.Context, frame Frame) (Detection, error)
}

// Dominant returns the highest-scoring label.
func (d Detection) Dominant() (string, float64, bool) {
	best, bestScore, found := "", 0.0, false
	for _, label := range Labels {
		score, ok := d.Expressions[label]
		if !ok {
			continue
		}
		if !found || score > bestScore {
			best, bestScore, found = label, score, true
		}
	}
	return best, bestScore, found
}

var ErrFrozen = errors.New("emotion log is frozen")

// Log is the append-only list of samples for one interview.
type Log struct {
	mu      sync.RWMutex
	samples []Sample
	frozen  bool
}

func NewLog() *Log {
	return &Log{}
}

func (l *Log) Append(s Sample) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.frozen {
		return ErrFrozen
	}
	l.samples = append(l.samples, s)
	return nil
}

func (l *Log) Samples() []Sample {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Sample(nil), l.samples...)
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.samples)
}

// Freeze stops further appends and returns the final samples.
func (l *Log) Freeze() []Sample {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frozen = true
	return append([]Sample(nil), l.samples...)
}

// Feedback summarizes the last three samples as an encouragement line. It
// needs at least two samples.
func Feedback(samples []Sample) (string, bool) {
	if len(samples) < 2 {
		return "", false
	}
	recent := samples
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}

	counts := map[string]int{}
	var order []string
	for _, s := range recent {
		if counts[s.Label] == 0 {
			order = append(order, s.Label)
		}
		counts[s.Label]++
	}
	top := order[0]
	for _, label := range order[1:] {
		// later labels win ties
		if counts[label] >= counts[top] {
			top = label
		}
	}

	switch top {
	case "happy":
		return "Great energy! Your enthusiasm is showing.", true
	case "neutral":
		return "You seem calm and focused. Keep it up.", true
	case "surprised":
		return "You appear very engaged with the questions.", true
	default:
		return "Maintaining a professional demeanor.", true
	}
}

// FrameBuffer keeps only the most recent camera frame.
type FrameBuffer struct {
	mu    sync.Mutex
	frame *Frame
}

func (b *FrameBuffer) Put(f Frame) {
	b.mu.Lock()
	b.frame = &f
	b.mu.Unlock()
}

func (b *FrameBuffer) Latest() (Frame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frame == nil {
		return Frame{}, false
	}
	return *b.frame, true
}
