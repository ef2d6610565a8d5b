package gdrive

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/api/option"

	"github.com/sjawhar/codereflex/internal/submission"
)

type fakeDrive struct {
	mu       sync.Mutex
	requests []string
	bodies   []string
}

func (f *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	f.bodies = append(f.bodies, string(body))
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"id": "doc-1", "name": "report"})
}

func newTestArchiver(t *testing.T) (*Archiver, *fakeDrive) {
	t.Helper()
	fake := &fakeDrive{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	a, err := newArchiver(context.Background(), "folder-1",
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
		option.WithoutAuthentication(),
	)
	if err != nil {
		t.Fatalf("newArchiver failed: %v", err)
	}
	return a, fake
}

func TestArchiverCreatesThenUpdates(t *testing.T) {
	a, fake := newTestArchiver(t)
	result := submission.Result{
		InterviewID: "iv-1",
		Feedback:    submission.Feedback{InterviewFeedback: "Strong fundamentals.", FinalRating: 9},
		EndedAt:     time.Date(2026, 2, 26, 12, 0, 0, 0, time.UTC),
	}

	if err := a.Archive(context.Background(), result); err != nil {
		t.Fatalf("first Archive failed: %v", err)
	}
	if err := a.Archive(context.Background(), result); err != nil {
		t.Fatalf("second Archive failed: %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.requests) != 2 {
		t.Fatalf("expected 2 requests, got %v", fake.requests)
	}
	if !strings.HasPrefix(fake.requests[0], "POST ") {
		t.Fatalf("expected create first, got %s", fake.requests[0])
	}
	if !strings.HasPrefix(fake.requests[1], "PATCH ") || !strings.HasSuffix(fake.requests[1], "/files/doc-1") {
		t.Fatalf("expected update of doc-1, got %s", fake.requests[1])
	}
	for _, want := range []string{"codereflex-2026-02-26-iv-1", "folder-1", "Strong fundamentals."} {
		if !strings.Contains(fake.bodies[0], want) {
			t.Errorf("create body missing %q", want)
		}
	}
}

func TestDocumentName(t *testing.T) {
	got := DocumentName(submission.Result{InterviewID: "abc", EndedAt: time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)})
	if got != "codereflex-2026-03-01-abc" {
		t.Fatalf("unexpected name %q", got)
	}
}
