package conversation

import (
	"errors"
	"sync"
)

type Speaker string

const (
	Interviewer Speaker = "interviewer"
	Candidate   Speaker = "candidate"
)

// Turn is one utterance in the interview. Code is empty when the turn
// carries no code payload.
type Turn struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
	Code    string  `json:"code,omitempty"`
}

func (t Turn) HasCode() bool { return t.Code != "" }

var (
	// ErrOutOfTurn is returned when a candidate turn is appended while the
	// latest turn is not the interviewer's (or the log is empty).
	ErrOutOfTurn = errors.New("candidate turn rejected: latest turn is not the interviewer's")
	// ErrFrozen is returned by Append after Freeze.
	ErrFrozen = errors.New("conversation is frozen")
)

// Listener is notified after a turn is appended. Listeners run on the
// appending goroutine and must not block.
type Listener func(index int, turn Turn)

type subscription struct {
	id int
	fn Listener
}

// Log is the append-only, ordered record of an interview conversation.
type Log struct {
	mu        sync.RWMutex
	turns     []Turn
	frozen    bool
	listeners []subscription
	nextID    int
}

func NewLog() *Log {
	return &Log{}
}

// Append adds turn at the end of the log. A candidate turn is only accepted
// when the latest stored turn is the interviewer's.
func (l *Log) Append(turn Turn) error {
	l.mu.Lock()
	if l.frozen {
		l.mu.Unlock()
		return ErrFrozen
	}
	if turn.Speaker == Candidate {
		if len(l.turns) == 0 || l.turns[len(l.turns)-1].Speaker != Interviewer {
			l.mu.Unlock()
			return ErrOutOfTurn
		}
	}

	l.turns = append(l.turns, turn)
	index := len(l.turns) - 1
	listeners := make([]Listener, len(l.listeners))
	for i, sub := range l.listeners {
		listeners[i] = sub.fn
	}
	l.mu.Unlock()

	for _, fn := range listeners {
		fn(index, turn)
	}
	return nil
}

func (l *Log) Latest() (Turn, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.turns) == 0 {
		return Turn{}, false
	}
	return l.turns[len(l.turns)-1], true
}

// LatestFrom returns the most recent turn spoken by speaker.
func (l *Log) LatestFrom(speaker Speaker) (Turn, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := len(l.turns) - 1; i >= 0; i-- {
		if l.turns[i].Speaker == speaker {
			return l.turns[i], true
		}
	}
	return Turn{}, false
}

// Turns returns a copy of the log in insertion order.
func (l *Log) Turns() []Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Turn(nil), l.turns...)
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns)
}

// Freeze stops the log from accepting further turns and returns its final
// contents. Calling Freeze again returns the same snapshot.
func (l *Log) Freeze() []Turn {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frozen = true
	return append([]Turn(nil), l.turns...)
}

func (l *Log) Frozen() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.frozen
}

// Subscribe registers fn for future appends and returns a function that
// removes it.
func (l *Log) Subscribe(fn Listener) func() {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.listeners = append(l.listeners, subscription{id: id, fn: fn})
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, sub := range l.listeners {
			if sub.id == id {
				l.listeners = append(l.listeners[:i], l.listeners[i+1:]...)
				return
			}
		}
	}
}
