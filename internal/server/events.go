package server

import "time"

const EventVersion = 1

type Event struct {
	Type        string `json:"type"`
	Version     int    `json:"version"`
	Timestamp   string `json:"timestamp"`
	InterviewID string `json:"interview_id,omitempty"`
}

type ConnectionEvent struct {
	Event
	Connected bool `json:"connected"`
}

type StatusEvent struct {
	Event
	Status string `json:"status"`
}

type TurnEvent struct {
	Event
	Index   int    `json:"index"`
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
	Code    string `json:"code,omitempty"`
}

type ComposingEvent struct {
	Event
	Composing bool `json:"composing"`
}

type EditorCodeEvent struct {
	Event
	Code string `json:"code"`
}

// SpeakEvent asks the client to voice an interviewer utterance and report
// back with the same utterance id once playback ends.
type SpeakEvent struct {
	Event
	UtteranceID string `json:"utterance_id"`
	Text        string `json:"text"`
	Voice       string `json:"voice,omitempty"`
}

type ListeningEvent struct {
	Event
	Listening bool `json:"listening"`
}

type InterimEvent struct {
	Event
	Text string `json:"text"`
}

type MessageEvent struct {
	Event
	Message string `json:"message"`
}

type TimerEvent struct {
	Event
	RemainingSeconds int `json:"remaining_seconds"`
}

type EmotionEvent struct {
	Event
	Label      string  `json:"emotion"`
	Confidence float64 `json:"confidence"`
	CapturedAt string  `json:"captured_at"`
}

type SubmissionEvent struct {
	Event
	State   string `json:"state"`
	Message string `json:"message"`
}

type ConfirmationEvent struct {
	Event
	Open bool `json:"open"`
}

type RedirectEvent struct {
	Event
	Path string `json:"path"`
}

func newEvent(eventType, interviewID string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:        eventType,
		Version:     EventVersion,
		Timestamp:   now.UTC().Format(time.RFC3339Nano),
		InterviewID: interviewID,
	}
}
