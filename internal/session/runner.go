package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pavelanni/mocktest/internal/extract"
	"github.com/pavelanni/mocktest/internal/model"
)

// ErrClosed is returned for commands sent to a runner that has stopped.
var ErrClosed = errors.New("session closed")

// Source opens a stream of text chunks for a generation request. The
// channel is closed at end of stream.
type Source interface {
	Open(ctx context.Context, req model.GenerationRequest) (<-chan string, error)
}

// TickerFunc returns a channel of timer ticks and a function that stops it.
type TickerFunc func() (<-chan time.Time, func())

// SecondTicker ticks once per second.
func SecondTicker() (<-chan time.Time, func()) {
	t := time.NewTicker(time.Second)
	return t.C, t.Stop
}

// StreamEndFunc is called once when the chunk stream ends, with the full
// buffer and the number of questions extracted from it.
type StreamEndFunc func(raw string, questions int)

// Runner serializes timer ticks, stream chunks and user commands for one
// Controller onto a single goroutine.
type Runner struct {
	id     string
	ctrl   *Controller
	ticker TickerFunc
	onEnd  StreamEndFunc

	cmds chan command
	done chan struct{}

	buf        strings.Builder
	generating bool

	mu   sync.Mutex
	last model.SessionView
	subs map[chan model.SessionView]struct{}
}

type command struct {
	fn    func(*Controller)
	reply chan model.SessionView
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithTicker replaces the one-second ticker.
func WithTicker(t TickerFunc) RunnerOption {
	return func(r *Runner) { r.ticker = t }
}

// WithStreamEnd registers a callback for the end of the chunk stream.
func WithStreamEnd(fn StreamEndFunc) RunnerOption {
	return func(r *Runner) { r.onEnd = fn }
}

// NewRunner creates a runner for ctrl identified by id.
func NewRunner(id string, ctrl *Controller, opts ...RunnerOption) *Runner {
	r := &Runner{
		id:     id,
		ctrl:   ctrl,
		ticker: SecondTicker,
		cmds:   make(chan command),
		done:   make(chan struct{}),
		subs:   make(map[chan model.SessionView]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.last = r.view()
	return r
}

// ID returns the runner identifier.
func (r *Runner) ID() string { return r.id }

// Done is closed when the runner loop has exited.
func (r *Runner) Done() <-chan struct{} { return r.done }

// Run starts the session for topic and processes events until the session
// terminates or ctx is cancelled. Cancelling stops the timer and stops
// reading chunks.
func (r *Runner) Run(ctx context.Context, topic string, chunks <-chan string) error {
	defer r.close()

	r.ctrl.Start(topic)
	r.generating = chunks != nil
	r.publish()

	ticks, stop := r.ticker()
	defer stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("exam session cancelled", "id", r.id, "state", r.ctrl.State())
			return ctx.Err()

		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				r.generating = false
				r.streamEnded()
				break
			}
			r.buf.WriteString(chunk)
			r.ctrl.SetQuestions(extract.Extract(r.buf.String()))

		case <-ticks:
			r.ctrl.Tick()

		case cmd := <-r.cmds:
			cmd.fn(r.ctrl)
			cmd.reply <- r.view()
		}

		r.publish()
		if r.ctrl.State() == model.StateTerminated {
			if r.generating {
				r.generating = false
				r.streamEnded()
			}
			return nil
		}
	}
}

func (r *Runner) streamEnded() {
	raw := r.buf.String()
	n := len(r.ctrl.Questions())
	slog.Info("generation stream finished", "id", r.id, "bytes", len(raw), "questions", n)
	if r.onEnd != nil {
		r.onEnd(raw, n)
	}
}

// Do runs fn against the controller on the runner goroutine and returns
// the resulting view.
func (r *Runner) Do(ctx context.Context, fn func(*Controller)) (model.SessionView, error) {
	cmd := command{fn: fn, reply: make(chan model.SessionView, 1)}
	select {
	case r.cmds <- cmd:
	case <-r.done:
		return r.Snapshot(), ErrClosed
	case <-ctx.Done():
		return model.SessionView{}, ctx.Err()
	}
	select {
	case v := <-cmd.reply:
		return v, nil
	case <-ctx.Done():
		return model.SessionView{}, ctx.Err()
	}
}

// Snapshot returns the most recently published view.
func (r *Runner) Snapshot() model.SessionView {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Subscribe returns a channel of views published after each event and a
// function to cancel the subscription. Slow subscribers miss views rather
// than block the session.
func (r *Runner) Subscribe() (<-chan model.SessionView, func()) {
	ch := make(chan model.SessionView, 8)
	r.mu.Lock()
	select {
	case <-r.done:
		r.mu.Unlock()
		ch <- r.last
		close(ch)
		return ch, func() {}
	default:
	}
	r.subs[ch] = struct{}{}
	ch <- r.last
	r.mu.Unlock()

	return ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.subs[ch]; ok {
			delete(r.subs, ch)
			close(ch)
		}
	}
}

func (r *Runner) view() model.SessionView {
	v := r.ctrl.View()
	v.ID = r.id
	v.Generating = r.generating
	return v
}

func (r *Runner) publish() {
	v := r.view()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = v
	for ch := range r.subs {
		select {
		case ch <- v:
		default:
		}
	}
}

func (r *Runner) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	close(r.done)
	for ch := range r.subs {
		close(ch)
	}
	r.subs = make(map[chan model.SessionView]struct{})
}
