package server

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Hooks struct {
	// Warnings lists configuration problems shown on /api/status.
	Warnings func() []string
	NewID    func() string
	Now      func() time.Time
}

// Handler builds the HTTP surface. staticFS may be nil when the frontend is
// served elsewhere.
func Handler(staticFS fs.FS, hub *Hub, store InterviewStore, sessions Sessions, hooks Hooks) (http.Handler, error) {
	if hub == nil || store == nil || sessions == nil {
		return nil, errors.New("server: hub, store and sessions are required")
	}
	if hooks.NewID == nil {
		hooks.NewID = uuid.NewString
	}
	if hooks.Now == nil {
		hooks.Now = time.Now
	}

	mux := http.NewServeMux()

	registerWSRoutes(mux, hub, sessions)
	registerAPIRoutes(mux, store, sessions, hooks)

	if staticFS != nil {
		mux.HandleFunc("/", serveSPA(staticFS))
	}

	return mux, nil
}

// Serve runs the HTTP server until ctx is cancelled.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server: listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// serveSPA serves the frontend build, falling back to index.html for client
// routes such as /interview/{id} and /feedback/{id}.
func serveSPA(staticFS fs.FS) func(http.ResponseWriter, *http.Request) {
	fileServer := http.FileServer(http.FS(staticFS))
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") || strings.HasPrefix(r.URL.Path, "/ws") {
			http.NotFound(w, r)
			return
		}

		cleanPath := path.Clean(strings.TrimPrefix(r.URL.Path, "/"))
		if cleanPath != "." && cleanPath != "" && !strings.Contains(cleanPath, ".") {
			http.ServeFileFS(w, r, staticFS, "index.html")
			return
		}
		if cleanPath != "." && cleanPath != "" {
			r.URL.Path = "/" + cleanPath
		}
		fileServer.ServeHTTP(w, r)
	}
}
