package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sjawhar/codereflex/internal/submission"
)

// fakePostgrest serves the subset of the PostgREST interviews endpoint the
// store uses.
type fakePostgrest struct {
	mu      sync.Mutex
	rows    map[string]map[string]any
	methods []string
}

func (f *fakePostgrest) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/rest/v1/interviews") {
		http.NotFound(w, r)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.methods = append(f.methods, r.Method)

	id := strings.TrimPrefix(r.URL.Query().Get("id"), "eq.")
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodPost:
		body, _ := io.ReadAll(r.Body)
		var row map[string]any
		if err := json.Unmarshal(body, &row); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.rows[row["id"].(string)] = row
		w.WriteHeader(http.StatusCreated)
	case http.MethodGet:
		out := []map[string]any{}
		for rowID, row := range f.rows {
			if id == "" || rowID == id {
				out = append(out, row)
			}
		}
		_ = json.NewEncoder(w).Encode(out)
	case http.MethodPatch:
		row, ok := f.rows[id]
		if !ok {
			_, _ = w.Write([]byte("[]"))
			return
		}
		var patch map[string]any
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &patch)
		for k, v := range patch {
			row[k] = v
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{row})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestSupabaseStore(t *testing.T) (*SupabaseStore, *fakePostgrest) {
	t.Helper()
	fake := &fakePostgrest{rows: map[string]map[string]any{}}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	store, err := NewSupabaseStore(SupabaseConfig{URL: server.URL, ServiceRoleKey: "service-key"})
	if err != nil {
		t.Fatalf("NewSupabaseStore failed: %v", err)
	}
	return store, fake
}

func TestSupabaseStoreLifecycle(t *testing.T) {
	store, fake := newTestSupabaseStore(t)
	ctx := context.Background()
	createdAt := time.Date(2026, 2, 26, 10, 0, 0, 0, time.UTC)

	if err := store.CreateInterview(ctx, testProfile("iv-1", createdAt)); err != nil {
		t.Fatalf("CreateInterview failed: %v", err)
	}
	if err := store.MarkStarted(ctx, "iv-1", createdAt.Add(time.Minute)); err != nil {
		t.Fatalf("MarkStarted failed: %v", err)
	}
	if err := store.SaveResult(ctx, submission.Result{
		InterviewID: "iv-1",
		Feedback:    submission.Feedback{InterviewFeedback: "Good", FinalRating: 6},
		EndedAt:     createdAt.Add(time.Hour),
	}); err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}

	iv, err := store.GetInterview(ctx, "iv-1")
	if err != nil {
		t.Fatalf("GetInterview failed: %v", err)
	}
	if !iv.Completed() || iv.Result == nil || iv.Result.Feedback.FinalRating != 6 {
		t.Fatalf("unexpected interview: %#v", iv)
	}
	if iv.Company != "Acme" {
		t.Fatalf("profile not round-tripped: %#v", iv.Profile)
	}

	list, err := store.ListInterviews(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListInterviews = %d, %v", len(list), err)
	}

	fake.mu.Lock()
	methods := strings.Join(fake.methods, ",")
	fake.mu.Unlock()
	if !strings.HasPrefix(methods, "POST,PATCH,PATCH,GET") {
		t.Fatalf("unexpected request sequence %s", methods)
	}
}

func TestSupabaseStoreNotFound(t *testing.T) {
	store, _ := newTestSupabaseStore(t)
	ctx := context.Background()

	if _, err := store.GetInterview(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.MarkStarted(ctx, "missing", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNewSupabaseStoreRequiresCredentials(t *testing.T) {
	if _, err := NewSupabaseStore(SupabaseConfig{URL: "https://example.supabase.co"}); err == nil {
		t.Fatal("expected error without service role key")
	}
}
