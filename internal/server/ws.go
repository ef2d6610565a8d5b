package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sjawhar/codereflex/internal/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func registerWSRoutes(mux *http.ServeMux, hub *Hub, sessions Sessions) {
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		interviewID := r.URL.Query().Get("interview")
		if interviewID != "" && !validID(interviewID) {
			writeJSONError(w, http.StatusForbidden, "invalid interview id")
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("server: ws upgrade failed", "error", err)
			return
		}
		defer func() { _ = conn.Close() }()

		connectionEvent := ConnectionEvent{
			Event:     newEvent("connection", interviewID, time.Now()),
			Connected: true,
		}
		payload, err := json.Marshal(connectionEvent)
		if err == nil {
			_ = conn.WriteMessage(websocket.TextMessage, payload)
		}

		ch := hub.Subscribe(interviewID)
		defer hub.Unsubscribe(ch)

		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-closed:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		}
	})

	// Binary frames on this socket are raw 16-bit mono PCM for the
	// server-side recogniser.
	mux.HandleFunc("GET /ws/interviews/{id}/audio", func(w http.ResponseWriter, r *http.Request) {
		run, ok := liveRun(w, r, sessions)
		if !ok {
			return
		}
		if !run.StreamsAudio() {
			writeJSONError(w, http.StatusConflict, session.ErrWrongCapture.Error())
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("server: audio ws upgrade failed", "interview_id", run.ID(), "error", err)
			return
		}
		defer func() { _ = conn.Close() }()

		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind != websocket.BinaryMessage {
				continue
			}
			if _, err := run.WriteAudio(data); err != nil {
				if errors.Is(err, session.ErrNotActive) {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, err.Error()),
						time.Now().Add(time.Second))
					return
				}
				slog.Warn("server: audio write failed", "interview_id", run.ID(), "error", err)
			}
		}
	})
}
