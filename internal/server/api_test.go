package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sjawhar/codereflex/internal/llm"
	"github.com/sjawhar/codereflex/internal/session"
	"github.com/sjawhar/codereflex/internal/storage"
)

type llmStub struct {
	mu    sync.Mutex
	turns int
}

func (s *llmStub) Complete(_ context.Context, messages []llm.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.Contains(messages[len(messages)-1].Content, "evaluation") {
		return `{"interview_feedback":"Clear thinking.","emotional_feedback":"Steady.","final_rating":8,"recommendation":"Advance to next round"}`, nil
	}
	s.turns++
	return fmt.Sprintf(`{"text":"Question %d","code":null}`, s.turns), nil
}

type testEnv struct {
	handler  http.Handler
	hub      *Hub
	store    *storage.SQLiteStore
	sessions *session.Manager
}

func newTestEnv(t *testing.T, hooks Hooks) *testEnv {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	hub := NewHub()
	sessions := session.NewManager(session.Deps{Store: store, LLM: &llmStub{}, Hub: hub}, session.Options{})
	t.Cleanup(sessions.Shutdown)

	if hooks.NewID == nil {
		hooks.NewID = func() string { return "iv-test" }
	}
	h, err := Handler(nil, hub, store, sessions, hooks)
	if err != nil {
		t.Fatalf("Handler failed: %v", err)
	}
	return &testEnv{handler: h, hub: hub, store: store, sessions: sessions}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

const validProfile = `{
	"job_role": "Backend Engineer",
	"company_name": "Acme",
	"interview_type": "DSA",
	"difficulty_level": "Medium",
	"duration": 30,
	"interviewer_personality": "Friendly Dev"
}`

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("expected status %d, got %d body=%s", want, rr.Code, rr.Body.String())
	}
}

func TestAPICreateInterview(t *testing.T) {
	env := newTestEnv(t, Hooks{})

	rr := env.do(t, http.MethodPost, "/api/interviews", validProfile)
	expectStatus(t, rr, http.StatusCreated)

	var created map[string]any
	decodeBody(t, rr, &created)
	if created["id"] != "iv-test" || created["job_role"] != "Backend Engineer" {
		t.Fatalf("unexpected created profile: %#v", created)
	}

	rr = env.do(t, http.MethodGet, "/api/interviews", "")
	expectStatus(t, rr, http.StatusOK)
	var list []map[string]any
	decodeBody(t, rr, &list)
	if len(list) != 1 || list[0]["status"] != storage.StatusPending {
		t.Fatalf("unexpected list: %#v", list)
	}
}

func TestAPICreateInterviewValidation(t *testing.T) {
	env := newTestEnv(t, Hooks{})

	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad type", strings.Replace(validProfile, `"DSA"`, `"Trivia"`, 1), "interview type"},
		{"short duration", strings.Replace(validProfile, `30`, `2`, 1), "duration"},
		{"unknown persona", strings.Replace(validProfile, `"Friendly Dev"`, `"Pirate"`, 1), "personality"},
		{"missing role", strings.Replace(validProfile, `"Backend Engineer"`, `"  "`, 1), "job role"},
		{"invalid json", `{"job_role":`, "invalid json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/api/interviews", tt.body)
			expectStatus(t, rr, http.StatusBadRequest)
			var body map[string]string
			decodeBody(t, rr, &body)
			if !strings.Contains(strings.ToLower(body["error"]), tt.want) {
				t.Fatalf("error %q does not mention %q", body["error"], tt.want)
			}
		})
	}
}

func TestAPIInterviewNotFound(t *testing.T) {
	env := newTestEnv(t, Hooks{})

	expectStatus(t, env.do(t, http.MethodGet, "/api/interviews/missing", ""), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodPost, "/api/interviews/missing/session", ""), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodGet, "/api/interviews/missing/live", ""), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodPost, "/api/interviews/missing/submit", ""), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodGet, "/api/interviews/%2e%2e", ""), http.StatusForbidden)
}

func waitForView(t *testing.T, env *testEnv, cond func(session.View) bool) session.View {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var view session.View
	for time.Now().Before(deadline) {
		rr := env.do(t, http.MethodGet, "/api/interviews/iv-test/live", "")
		expectStatus(t, rr, http.StatusOK)
		view = session.View{}
		decodeBody(t, rr, &view)
		if cond(view) {
			return view
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for view, last: %#v", view)
	return view
}

func TestAPILiveInterview(t *testing.T) {
	env := newTestEnv(t, Hooks{})
	expectStatus(t, env.do(t, http.MethodPost, "/api/interviews", validProfile), http.StatusCreated)

	rr := env.do(t, http.MethodPost, "/api/interviews/iv-test/session", "")
	expectStatus(t, rr, http.StatusOK)
	var view session.View
	decodeBody(t, rr, &view)
	if view.Status != session.StatusAwaitingPermissions {
		t.Fatalf("unexpected status %s", view.Status)
	}

	rr = env.do(t, http.MethodPost, "/api/interviews/iv-test/permissions", `{"microphone":false,"camera":true}`)
	expectStatus(t, rr, http.StatusBadRequest)

	expectStatus(t, env.do(t, http.MethodPost, "/api/interviews/iv-test/permissions", `{"microphone":true}`), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodPost, "/api/interviews/iv-test/permissions", `{"microphone":true}`), http.StatusConflict)

	waitForView(t, env, func(v session.View) bool { return len(v.Turns) == 1 && !v.Composing })

	expectStatus(t, env.do(t, http.MethodPost, "/api/interviews/iv-test/speech/start", ""), http.StatusNoContent)
	expectStatus(t, env.do(t, http.MethodPost, "/api/interviews/iv-test/speech/transcript", `{"text":"Use two pointers.","final":true}`), http.StatusNoContent)
	expectStatus(t, env.do(t, http.MethodPost, "/api/interviews/iv-test/speech/stop", ""), http.StatusNoContent)

	view = waitForView(t, env, func(v session.View) bool { return len(v.Turns) == 3 && !v.Composing })
	if view.Turns[1].Text != "Use two pointers." {
		t.Fatalf("unexpected candidate turn %#v", view.Turns[1])
	}

	expectStatus(t, env.do(t, http.MethodPost, "/api/interviews/iv-test/code", `{"code":"   "}`), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodPut, "/api/interviews/iv-test/editor", `{"code":"x := 1"}`), http.StatusNoContent)
	expectStatus(t, env.do(t, http.MethodPost, "/api/interviews/iv-test/code", `{"code":"x := 1"}`), http.StatusAccepted)
	waitForView(t, env, func(v session.View) bool { return len(v.Turns) == 5 && !v.Composing })

	expectStatus(t, env.do(t, http.MethodPost, "/api/interviews/iv-test/submit", ""), http.StatusNoContent)
	expectStatus(t, env.do(t, http.MethodPost, "/api/interviews/iv-test/submit/dismiss", ""), http.StatusNoContent)
	expectStatus(t, env.do(t, http.MethodPost, "/api/interviews/iv-test/submit", ""), http.StatusNoContent)

	rr = env.do(t, http.MethodPost, "/api/interviews/iv-test/submit/confirm", "")
	expectStatus(t, rr, http.StatusAccepted)
	var confirm map[string]string
	decodeBody(t, rr, &confirm)
	if confirm["redirect"] != "/feedback/iv-test" {
		t.Fatalf("unexpected redirect %q", confirm["redirect"])
	}

	waitForView(t, env, func(v session.View) bool { return v.Status == session.StatusCompleted })

	rr = env.do(t, http.MethodGet, "/api/interviews/iv-test", "")
	expectStatus(t, rr, http.StatusOK)
	var stored storage.Interview
	decodeBody(t, rr, &stored)
	if !stored.Completed() || stored.Result == nil || stored.Result.Feedback.FinalRating != 8 {
		t.Fatalf("unexpected stored interview %#v", stored)
	}
	if len(stored.Result.CodeLog) != 1 || stored.Result.CodeLog[0].Code != "x := 1" {
		t.Fatalf("unexpected code log %#v", stored.Result.CodeLog)
	}

	rr = env.do(t, http.MethodGet, "/api/interviews/iv-test/report", "")
	expectStatus(t, rr, http.StatusOK)
	if !strings.Contains(rr.Body.String(), "8.0 / 10") {
		t.Fatalf("unexpected report: %s", rr.Body.String())
	}

	expectStatus(t, env.do(t, http.MethodPost, "/api/interviews/iv-test/submit/confirm", ""), http.StatusConflict)
	expectStatus(t, env.do(t, http.MethodDelete, "/api/interviews/iv-test/session", ""), http.StatusNoContent)
	expectStatus(t, env.do(t, http.MethodPost, "/api/interviews/iv-test/session", ""), http.StatusConflict)
}

func TestAPIRejectsSpeechOutsideCandidateTurn(t *testing.T) {
	env := newTestEnv(t, Hooks{})
	expectStatus(t, env.do(t, http.MethodPost, "/api/interviews", validProfile), http.StatusCreated)
	expectStatus(t, env.do(t, http.MethodPost, "/api/interviews/iv-test/session", ""), http.StatusOK)

	expectStatus(t, env.do(t, http.MethodPost, "/api/interviews/iv-test/speech/start", ""), http.StatusConflict)
	expectStatus(t, env.do(t, http.MethodPost, "/api/interviews/iv-test/frames", ""), http.StatusUnsupportedMediaType)

	expectStatus(t, env.do(t, http.MethodPost, "/api/interviews/iv-test/permissions", `{"microphone":true}`), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodPost, "/api/interviews/iv-test/speech/transcript", `{"text":"hello","final":true}`), http.StatusConflict)
}

func TestAPIReportWithoutResult(t *testing.T) {
	env := newTestEnv(t, Hooks{})
	expectStatus(t, env.do(t, http.MethodPost, "/api/interviews", validProfile), http.StatusCreated)
	expectStatus(t, env.do(t, http.MethodGet, "/api/interviews/iv-test/report", ""), http.StatusNotFound)
}

func TestAPIStatusWithWarnings(t *testing.T) {
	env := newTestEnv(t, Hooks{Warnings: func() []string { return []string{"OPENAI_API_KEY is not set"} }})

	rr := env.do(t, http.MethodGet, "/api/status", "")
	expectStatus(t, rr, http.StatusOK)
	var body struct {
		Warnings     []string `json:"warnings"`
		LiveSessions int      `json:"live_sessions"`
	}
	decodeBody(t, rr, &body)
	if len(body.Warnings) != 1 || body.LiveSessions != 0 {
		t.Fatalf("unexpected status body %#v", body)
	}
}

func TestAPIStatusNoWarnings(t *testing.T) {
	env := newTestEnv(t, Hooks{})

	rr := env.do(t, http.MethodGet, "/api/status", "")
	expectStatus(t, rr, http.StatusOK)
	if !strings.Contains(rr.Body.String(), `"warnings":[]`) {
		t.Fatalf("expected empty warnings array, got %s", rr.Body.String())
	}
}

func TestSPAFallback(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>ok</html>"), 0o644); err != nil {
		t.Fatalf("write index.html failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o644); err != nil {
		t.Fatalf("write app.js failed: %v", err)
	}

	env := newTestEnv(t, Hooks{})
	h, err := Handler(os.DirFS(dir), env.hub, env.store, env.sessions, Hooks{})
	if err != nil {
		t.Fatalf("Handler failed: %v", err)
	}

	for path, want := range map[string]string{
		"/":                "<html>ok</html>",
		"/feedback/iv-123": "<html>ok</html>",
		"/app.js":          "console.log(1)",
	} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK || rr.Body.String() != want {
			t.Fatalf("%s: got %d %q", path, rr.Code, rr.Body.String())
		}
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/unknown", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown api route, got %d", rr.Code)
	}
}
