package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Manager keeps the live interviews keyed by interview id.
type Manager struct {
	deps Deps
	opts Options

	mu   sync.Mutex
	runs map[string]*Run
}

func NewManager(deps Deps, opts Options) *Manager {
	return &Manager{deps: deps, opts: opts, runs: make(map[string]*Run)}
}

// Start returns the live run for id, creating it from the stored profile
// when none exists. Completed interviews cannot be restarted.
func (m *Manager) Start(ctx context.Context, id string) (*Run, error) {
	m.mu.Lock()
	if run, ok := m.runs[id]; ok {
		m.mu.Unlock()
		return run, nil
	}
	m.mu.Unlock()

	if m.deps.LLM == nil {
		return nil, ErrLLMUnavailable
	}

	iv, err := m.deps.Store.GetInterview(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load interview: %w", err)
	}
	if iv.Completed() {
		return nil, ErrInterviewCompleted
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if run, ok := m.runs[id]; ok {
		return run, nil
	}
	run := newRun(iv, m.deps, m.opts)
	m.runs[id] = run
	slog.Info("session: run created", "interview_id", id)
	return run, nil
}

func (m *Manager) Get(id string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, ErrNoActiveSession
	}
	return run, nil
}

// Close tears down and forgets the run for id.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	run, ok := m.runs[id]
	delete(m.runs, id)
	m.mu.Unlock()
	if !ok {
		return ErrNoActiveSession
	}
	run.Close()
	return nil
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}

// Shutdown closes every live run.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	runs := make([]*Run, 0, len(m.runs))
	for id, run := range m.runs {
		runs = append(runs, run)
		delete(m.runs, id)
	}
	m.mu.Unlock()

	for _, run := range runs {
		run.Close()
	}
}
