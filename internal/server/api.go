package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sjawhar/codereflex/internal/conversation"
	"github.com/sjawhar/codereflex/internal/emotion"
	"github.com/sjawhar/codereflex/internal/interview"
	"github.com/sjawhar/codereflex/internal/session"
	"github.com/sjawhar/codereflex/internal/speech"
	"github.com/sjawhar/codereflex/internal/storage"
	"github.com/sjawhar/codereflex/internal/submission"
)

const (
	maxJSONBody  = 1 << 20
	maxFrameBody = 5 << 20
)

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

type InterviewStore interface {
	CreateInterview(ctx context.Context, profile interview.Profile) error
	GetInterview(ctx context.Context, id string) (storage.Interview, error)
	ListInterviews(ctx context.Context) ([]storage.Interview, error)
}

// Sessions is the registry of live interviews.
type Sessions interface {
	Start(ctx context.Context, id string) (*session.Run, error)
	Get(id string) (*session.Run, error)
	Close(id string) error
	Len() int
}

func registerAPIRoutes(mux *http.ServeMux, store InterviewStore, sessions Sessions, hooks Hooks) {
	mux.HandleFunc("POST /api/interviews", func(w http.ResponseWriter, r *http.Request) {
		var profile interview.Profile
		if !decodeJSON(w, r, &profile) {
			return
		}
		profile.ID = hooks.NewID()
		profile.CreatedAt = hooks.Now().UTC()
		profile.Role = strings.TrimSpace(profile.Role)
		profile.Company = strings.TrimSpace(profile.Company)

		if err := profile.Validate(); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := store.CreateInterview(r.Context(), profile); err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("create interview: %v", err))
			return
		}
		writeJSON(w, http.StatusCreated, profile)
	})

	mux.HandleFunc("GET /api/interviews", func(w http.ResponseWriter, r *http.Request) {
		interviews, err := store.ListInterviews(r.Context())
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list interviews: %v", err))
			return
		}
		if interviews == nil {
			interviews = []storage.Interview{}
		}
		writeJSON(w, http.StatusOK, interviews)
	})

	mux.HandleFunc("GET /api/interviews/{id}", func(w http.ResponseWriter, r *http.Request) {
		iv, ok := loadInterview(w, r, store)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, iv)
	})

	mux.HandleFunc("GET /api/interviews/{id}/report", func(w http.ResponseWriter, r *http.Request) {
		iv, ok := loadInterview(w, r, store)
		if !ok {
			return
		}
		if iv.Result == nil {
			writeJSONError(w, http.StatusNotFound, "interview has no result yet")
			return
		}
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, iv.Result.FormatMarkdown())
	})

	mux.HandleFunc("POST /api/interviews/{id}/session", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if !validID(id) {
			writeJSONError(w, http.StatusForbidden, "invalid interview id")
			return
		}
		run, err := sessions.Start(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, run.View())
	})

	mux.HandleFunc("DELETE /api/interviews/{id}/session", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if !validID(id) {
			writeJSONError(w, http.StatusForbidden, "invalid interview id")
			return
		}
		if err := sessions.Close(id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /api/interviews/{id}/live", func(w http.ResponseWriter, r *http.Request) {
		run, ok := liveRun(w, r, sessions)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, run.View())
	})

	mux.HandleFunc("POST /api/interviews/{id}/permissions", func(w http.ResponseWriter, r *http.Request) {
		run, ok := liveRun(w, r, sessions)
		if !ok {
			return
		}
		var req struct {
			Microphone bool `json:"microphone"`
			Camera     bool `json:"camera"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := run.GrantPermissions(r.Context(), req.Microphone, req.Camera); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, run.View())
	})

	runAction(mux, "POST /api/interviews/{id}/speech/start", sessions, func(run *session.Run, _ *http.Request) error {
		return run.StartListening()
	})

	runAction(mux, "POST /api/interviews/{id}/speech/stop", sessions, func(run *session.Run, _ *http.Request) error {
		run.StopListening()
		return nil
	})

	mux.HandleFunc("POST /api/interviews/{id}/speech/transcript", func(w http.ResponseWriter, r *http.Request) {
		run, ok := liveRun(w, r, sessions)
		if !ok {
			return
		}
		var req struct {
			Text  string `json:"text"`
			Final bool   `json:"final"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := run.IngestSpeech(req.Text, req.Final); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /api/interviews/{id}/speech/error", func(w http.ResponseWriter, r *http.Request) {
		run, ok := liveRun(w, r, sessions)
		if !ok {
			return
		}
		var req struct {
			Message string `json:"message"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			req.Message = "speech recognition failed"
		}
		if err := run.SpeechFailed(req.Message); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /api/interviews/{id}/speech/ended", func(w http.ResponseWriter, r *http.Request) {
		run, ok := liveRun(w, r, sessions)
		if !ok {
			return
		}
		var req struct {
			UtteranceID string `json:"utterance_id"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"current": run.SpeechEnded(req.UtteranceID)})
	})

	mux.HandleFunc("POST /api/interviews/{id}/code", func(w http.ResponseWriter, r *http.Request) {
		run, ok := liveRun(w, r, sessions)
		if !ok {
			return
		}
		var req struct {
			Code string `json:"code"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := run.SubmitCode(req.Code); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("PUT /api/interviews/{id}/editor", func(w http.ResponseWriter, r *http.Request) {
		run, ok := liveRun(w, r, sessions)
		if !ok {
			return
		}
		var req struct {
			Code string `json:"code"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := run.SetEditorCode(req.Code); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	// Frames are posted as raw image bodies, e.g. a canvas JPEG snapshot.
	mux.HandleFunc("POST /api/interviews/{id}/frames", func(w http.ResponseWriter, r *http.Request) {
		run, ok := liveRun(w, r, sessions)
		if !ok {
			return
		}
		mimeType := r.Header.Get("Content-Type")
		if !strings.HasPrefix(mimeType, "image/") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "frame must be an image")
			return
		}
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFrameBody))
		if err != nil {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "frame too large")
			return
		}
		if len(data) == 0 {
			writeJSONError(w, http.StatusBadRequest, "empty frame")
			return
		}
		if err := run.PostFrame(emotion.Frame{Data: data, MIMEType: mimeType}); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	runAction(mux, "POST /api/interviews/{id}/submit", sessions, func(run *session.Run, _ *http.Request) error {
		return run.RequestSubmit()
	})

	runAction(mux, "POST /api/interviews/{id}/submit/dismiss", sessions, func(run *session.Run, _ *http.Request) error {
		run.Dismiss()
		return nil
	})

	mux.HandleFunc("POST /api/interviews/{id}/submit/confirm", func(w http.ResponseWriter, r *http.Request) {
		run, ok := liveRun(w, r, sessions)
		if !ok {
			return
		}
		if err := run.Confirm(); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"redirect": submission.RedirectPath(run.ID())})
	})

	mux.HandleFunc("GET /api/interviews/{id}/audio", func(w http.ResponseWriter, r *http.Request) {
		run, ok := liveRun(w, r, sessions)
		if !ok {
			return
		}
		audioPath := run.View().AudioPath
		if audioPath == "" {
			writeJSONError(w, http.StatusNotFound, "audio not available")
			return
		}

		cleanPath := filepath.Clean(audioPath)
		if cleanPath == "." || strings.Contains(cleanPath, "..") {
			writeJSONError(w, http.StatusForbidden, "invalid audio path")
			return
		}

		f, err := os.Open(cleanPath)
		if err != nil {
			writeJSONError(w, http.StatusNotFound, "audio file not found")
			return
		}
		defer func() { _ = f.Close() }()

		info, err := f.Stat()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("stat audio: %v", err))
			return
		}

		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Content-Type", contentTypeForAudio(cleanPath))
		http.ServeContent(w, r, filepath.Base(cleanPath), info.ModTime(), f)
	})

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		var warnings []string
		if hooks.Warnings != nil {
			warnings = hooks.Warnings()
		}
		if warnings == nil {
			warnings = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"warnings":      warnings,
			"live_sessions": sessions.Len(),
		})
	})
}

// runAction registers a body-less route that acts on a live run.
func runAction(mux *http.ServeMux, pattern string, sessions Sessions, action func(*session.Run, *http.Request) error) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		run, ok := liveRun(w, r, sessions)
		if !ok {
			return
		}
		if err := action(run, r); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func loadInterview(w http.ResponseWriter, r *http.Request, store InterviewStore) (storage.Interview, bool) {
	id := r.PathValue("id")
	if !validID(id) {
		writeJSONError(w, http.StatusForbidden, "invalid interview id")
		return storage.Interview{}, false
	}
	iv, err := store.GetInterview(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return storage.Interview{}, false
	}
	return iv, true
}

func liveRun(w http.ResponseWriter, r *http.Request, sessions Sessions) (*session.Run, bool) {
	id := r.PathValue("id")
	if !validID(id) {
		writeJSONError(w, http.StatusForbidden, "invalid interview id")
		return nil, false
	}
	run, err := sessions.Get(id)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return run, true
}

func validID(id string) bool {
	return idPattern.MatchString(id)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		return false
	}
	return true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, session.ErrNoActiveSession):
		return http.StatusNotFound
	case errors.Is(err, session.ErrMicrophoneRequired),
		errors.Is(err, interview.ErrEmptyTurn):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrAlreadyActive),
		errors.Is(err, session.ErrNotActive),
		errors.Is(err, session.ErrInterviewCompleted),
		errors.Is(err, session.ErrWrongCapture),
		errors.Is(err, interview.ErrNotAcceptingTurns),
		errors.Is(err, conversation.ErrOutOfTurn),
		errors.Is(err, conversation.ErrFrozen),
		errors.Is(err, speech.ErrNotListening),
		errors.Is(err, speech.ErrAlreadyListening),
		errors.Is(err, submission.ErrInProgress),
		errors.Is(err, submission.ErrCompleted):
		return http.StatusConflict
	case errors.Is(err, session.ErrLLMUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSONError(w, statusFor(err), err.Error())
}

func contentTypeForAudio(path string) string {
	switch filepath.Ext(path) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
