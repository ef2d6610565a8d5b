package server

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/sjawhar/codereflex/internal/conversation"
	"github.com/sjawhar/codereflex/internal/emotion"
	"github.com/sjawhar/codereflex/internal/session"
)

var _ session.EventBroadcaster = (*Hub)(nil)

// Hub fans events out to websocket subscribers. A subscriber registered with
// an interview id only receives that interview's events.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan []byte]string
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan []byte]string)}
}

// Subscribe registers a client. An empty interviewID receives everything.
func (h *Hub) Subscribe(interviewID string) chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[ch] = interviewID
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	_, ok := h.clients[ch]
	delete(h.clients, ch)
	h.mu.Unlock()
	if ok {
		close(ch)
	}
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast delivers msg to matching subscribers, dropping it for clients
// whose buffer is full.
func (h *Hub) Broadcast(interviewID string, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch, filter := range h.clients {
		if filter != "" && filter != interviewID {
			continue
		}
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *Hub) BroadcastStatus(interviewID string, status session.Status) {
	h.broadcastEvent(interviewID, StatusEvent{
		Event:  newEvent("status", interviewID, time.Now()),
		Status: string(status),
	})
}

func (h *Hub) BroadcastTurn(interviewID string, index int, turn conversation.Turn) {
	h.broadcastEvent(interviewID, TurnEvent{
		Event:   newEvent("turn", interviewID, time.Now()),
		Index:   index,
		Speaker: turn.Speaker.Label(),
		Text:    turn.Text,
		Code:    turn.Code,
	})
}

func (h *Hub) BroadcastComposing(interviewID string, composing bool) {
	h.broadcastEvent(interviewID, ComposingEvent{
		Event:     newEvent("composing", interviewID, time.Now()),
		Composing: composing,
	})
}

func (h *Hub) BroadcastEditorCode(interviewID, code string) {
	h.broadcastEvent(interviewID, EditorCodeEvent{
		Event: newEvent("editor_code", interviewID, time.Now()),
		Code:  code,
	})
}

func (h *Hub) BroadcastSpeak(interviewID, utteranceID, text, voice string) {
	h.broadcastEvent(interviewID, SpeakEvent{
		Event:       newEvent("speak", interviewID, time.Now()),
		UtteranceID: utteranceID,
		Text:        text,
		Voice:       voice,
	})
}

func (h *Hub) BroadcastSpeechCancel(interviewID string) {
	h.broadcastEvent(interviewID, newEvent("speech_cancel", interviewID, time.Now()))
}

func (h *Hub) BroadcastListening(interviewID string, listening bool) {
	h.broadcastEvent(interviewID, ListeningEvent{
		Event:     newEvent("listening", interviewID, time.Now()),
		Listening: listening,
	})
}

func (h *Hub) BroadcastInterim(interviewID, text string) {
	h.broadcastEvent(interviewID, InterimEvent{
		Event: newEvent("interim", interviewID, time.Now()),
		Text:  text,
	})
}

func (h *Hub) BroadcastSpeechError(interviewID string, err error) {
	msg := "speech recognition failed"
	if err != nil {
		msg = err.Error()
	}
	h.broadcastEvent(interviewID, MessageEvent{
		Event:   newEvent("speech_error", interviewID, time.Now()),
		Message: msg,
	})
}

func (h *Hub) BroadcastTimer(interviewID string, remaining time.Duration) {
	h.broadcastEvent(interviewID, TimerEvent{
		Event:            newEvent("timer", interviewID, time.Now()),
		RemainingSeconds: int(remaining.Round(time.Second) / time.Second),
	})
}

func (h *Hub) BroadcastEmotion(interviewID string, sample emotion.Sample) {
	h.broadcastEvent(interviewID, EmotionEvent{
		Event:      newEvent("emotion", interviewID, time.Now()),
		Label:      sample.Label,
		Confidence: sample.Confidence,
		CapturedAt: sample.Timestamp.UTC().Format(time.RFC3339Nano),
	})
}

func (h *Hub) BroadcastEmotionFeedback(interviewID, message string) {
	h.broadcastEvent(interviewID, MessageEvent{
		Event:   newEvent("emotion_feedback", interviewID, time.Now()),
		Message: message,
	})
}

func (h *Hub) BroadcastSubmission(interviewID, state, message string) {
	h.broadcastEvent(interviewID, SubmissionEvent{
		Event:   newEvent("submission", interviewID, time.Now()),
		State:   state,
		Message: message,
	})
}

func (h *Hub) BroadcastConfirmation(interviewID string, open bool) {
	h.broadcastEvent(interviewID, ConfirmationEvent{
		Event: newEvent("confirmation", interviewID, time.Now()),
		Open:  open,
	})
}

func (h *Hub) BroadcastRedirect(interviewID, path string) {
	h.broadcastEvent(interviewID, RedirectEvent{
		Event: newEvent("redirect", interviewID, time.Now()),
		Path:  path,
	})
}

func (h *Hub) broadcastEvent(interviewID string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("server: event marshal failed", "error", err)
		return
	}
	h.Broadcast(interviewID, payload)
}
