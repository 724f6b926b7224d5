package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pavelanni/mocktest/internal/model"
	"github.com/pavelanni/mocktest/internal/session"
	"github.com/pavelanni/mocktest/internal/store"
)

// ErrNoSession is returned for unknown session IDs.
var ErrNoSession = errors.New("session not found")

type entry struct {
	runner    *session.Runner
	cancel    context.CancelFunc
	candidate string
}

// Manager owns the running exam sessions. Each candidate has at most one
// session; starting another cancels the previous one.
type Manager struct {
	source     session.Source
	sink       session.ResultSink
	store      *store.Store
	runnerOpts []session.RunnerOption
	threshold  func() int

	mu          sync.Mutex
	sessions    map[string]*entry
	byCandidate map[string]string
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithRunnerOptions passes extra options to every runner.
func WithRunnerOptions(opts ...session.RunnerOption) ManagerOption {
	return func(m *Manager) { m.runnerOpts = append(m.runnerOpts, opts...) }
}

// WithThreshold replaces the hidden countdown offset generator.
func WithThreshold(fn func() int) ManagerOption {
	return func(m *Manager) { m.threshold = fn }
}

// NewManager creates a manager that opens streams from src, hands results
// to sink and records transcripts in s. s may be nil.
func NewManager(src session.Source, sink session.ResultSink, s *store.Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		source:      src,
		sink:        sink,
		store:       s,
		sessions:    make(map[string]*entry),
		byCandidate: make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start opens a generation stream for req and runs a new session on it.
// The candidate's previous session is replaced atomically and then stopped.
func (m *Manager) Start(req model.GenerationRequest) (*session.Runner, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	chunks, err := m.source.Open(ctx, req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open stream: %w", err)
	}

	ctrl := session.NewController(session.Options{
		Candidate: req.Candidate,
		Sink:      m.sink,
		Threshold: m.threshold,
	})
	opts := append([]session.RunnerOption{session.WithStreamEnd(m.transcriptRecorder(id, req, time.Now()))}, m.runnerOpts...)
	r := session.NewRunner(id, ctrl, opts...)

	m.mu.Lock()
	prev := m.detachLocked(m.byCandidate[req.Candidate])
	m.sessions[id] = &entry{runner: r, cancel: cancel, candidate: req.Candidate}
	m.byCandidate[req.Candidate] = id
	m.mu.Unlock()

	go func() {
		defer cancel()
		if err := r.Run(ctx, req.Topic, chunks); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("exam session failed", "id", id, "error", err)
		}
	}()
	if prev != nil {
		m.stop(prev, "replaced")
	}
	slog.Info("exam session started", "id", id, "candidate", req.Candidate, "topic", req.Topic)
	return r, nil
}

func (m *Manager) transcriptRecorder(id string, req model.GenerationRequest, started time.Time) session.StreamEndFunc {
	return func(raw string, questions int) {
		if m.store == nil {
			return
		}
		finished := time.Now()
		err := m.store.SaveTranscript(model.Transcript{
			ID:            id,
			Candidate:     req.Candidate,
			Topic:         req.Topic,
			Difficulty:    req.Difficulty,
			Raw:           raw,
			QuestionCount: questions,
			StartedAt:     started,
			FinishedAt:    &finished,
		})
		if err != nil {
			slog.Error("failed to save transcript", "id", id, "error", err)
		}
	}
}

// Get returns the runner for id.
func (m *Manager) Get(id string) (*session.Runner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNoSession)
	}
	return e.runner, nil
}

// Cancel stops the session and forgets it. Unknown IDs are ignored.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	e := m.detachLocked(id)
	m.mu.Unlock()
	if e == nil {
		return false
	}
	m.stop(e, "cancelled")
	return true
}

// detachLocked removes session id from the maps and returns it, or nil when
// it is unknown. m.mu must be held.
func (m *Manager) detachLocked(id string) *entry {
	e, ok := m.sessions[id]
	if !ok {
		return nil
	}
	delete(m.sessions, id)
	if m.byCandidate[e.candidate] == id {
		delete(m.byCandidate, e.candidate)
	}
	return e
}

// stop cancels a detached session and waits for its runner to finish.
func (m *Manager) stop(e *entry, reason string) {
	e.cancel()
	<-e.runner.Done()
	slog.Info("exam session "+reason, "id", e.runner.ID(), "candidate", e.candidate)
}

// Shutdown cancels every session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.Cancel(id)
	}
}
