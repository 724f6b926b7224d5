// Package session drives a timed exam against a question list that keeps
// growing while the exam is generated.
package session

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/pavelanni/mocktest/internal/model"
)

// ResultSink receives the result of a submitted exam. Delivery is best
// effort: an error is logged and never changes the local outcome.
type ResultSink interface {
	Deliver(ctx context.Context, res model.Result) error
}

// Options configure a Controller.
type Options struct {
	// Candidate identifies who sits the exam; it is copied into the result.
	Candidate string
	// Sink receives the result on submission. Nil discards it. Deliver is
	// called on the session goroutine, so it must return promptly; wrap
	// network sinks in sink.Async.
	Sink ResultSink
	// Threshold draws the hidden countdown offset. Defaults to RandomThreshold.
	Threshold func() int
	// Now is the clock used to stamp results. Defaults to time.Now.
	Now func() time.Time
}

// Controller owns the state of one exam session. It is not safe for
// concurrent use; a Runner serializes all calls onto one goroutine.
type Controller struct {
	opts Options

	state     model.SessionState
	topic     string
	questions []model.QuestionRecord

	current int
	answers map[int]string
	visited map[int]bool
	marked  map[int]bool

	duration  int
	remaining int
	threshold int

	result *model.Result
}

// NewController creates an idle controller.
func NewController(opts Options) *Controller {
	if opts.Threshold == nil {
		opts.Threshold = RandomThreshold
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Controller{opts: opts}
	c.Reset()
	return c
}

// Reset discards all session state and returns to idle.
func (c *Controller) Reset() {
	c.state = model.StateIdle
	c.topic = ""
	c.questions = nil
	c.current = 0
	c.answers = make(map[int]string)
	c.visited = make(map[int]bool)
	c.marked = make(map[int]bool)
	c.duration = 0
	c.remaining = 0
	c.threshold = 0
	c.result = nil
}

// Start begins a new session for the topic label and waits for questions.
func (c *Controller) Start(topic string) {
	c.Reset()
	c.topic = topic
	c.duration = DurationFromLabel(topic)
	c.remaining = c.duration
	c.threshold = c.opts.Threshold()
	c.state = model.StateLoading
	slog.Debug("exam session started",
		"topic", topic,
		"duration", c.duration,
		"candidate", c.opts.Candidate,
	)
}

// SetQuestions replaces the question list with the latest extraction.
func (c *Controller) SetQuestions(qs []model.QuestionRecord) {
	if !c.running() {
		return
	}
	c.questions = qs
	if len(qs) == 0 {
		return
	}
	if c.state == model.StateLoading {
		c.state = model.StateActive
		slog.Debug("first question available", "topic", c.topic)
	}
	c.visited[c.current] = true
}

// Tick advances the countdown by one second. It reports whether the tick
// forced the submission.
func (c *Controller) Tick() bool {
	if !c.running() {
		return false
	}
	if c.remaining > c.threshold {
		c.remaining--
	}
	if c.remaining <= c.threshold {
		slog.Info("time is up, submitting", "topic", c.topic, "remaining", c.remaining)
		c.Submit()
		return true
	}
	return false
}

// GoTo moves to question i. Negative indexes clamp to the first question;
// an index that has not been extracted yet is ignored.
func (c *Controller) GoTo(i int) {
	if !c.running() || len(c.questions) == 0 {
		return
	}
	if i < 0 {
		i = 0
	}
	if i >= len(c.questions) {
		return
	}
	c.current = i
	c.visited[i] = true
}

// Previous moves back one question, stopping at the first.
func (c *Controller) Previous() {
	c.GoTo(c.current - 1)
}

// SelectAnswer records value as the answer to question i. Any text is
// accepted; a blank value clears the answer.
func (c *Controller) SelectAnswer(i int, value string) {
	if !c.running() || !c.known(i) {
		return
	}
	if strings.TrimSpace(value) == "" {
		delete(c.answers, i)
		return
	}
	c.answers[i] = value
}

// ToggleMark flags or unflags question i for review.
func (c *Controller) ToggleMark(i int) {
	if !c.running() || !c.known(i) {
		return
	}
	if c.marked[i] {
		delete(c.marked, i)
		return
	}
	c.marked[i] = true
}

// SaveAndNext advances to the next question, or submits on the last one.
func (c *Controller) SaveAndNext() {
	if !c.running() || len(c.questions) == 0 {
		return
	}
	if c.current >= len(c.questions)-1 {
		c.Submit()
		return
	}
	c.current++
	c.visited[c.current] = true
}

// Submit grades the session and terminates it. The second return value is
// false when the session had already been submitted (or never started);
// the stored result, if any, is returned in that case.
func (c *Controller) Submit() (model.Result, bool) {
	if !c.running() {
		if c.result != nil {
			return *c.result, false
		}
		return model.Result{}, false
	}

	c.state = model.StateSubmitting
	res := score(c.questions, c.answers, c.topic)
	res.Candidate = c.opts.Candidate
	res.TimeSpent = c.duration - c.remaining
	res.SubmittedAt = c.opts.Now()
	c.result = &res
	c.state = model.StateTerminated

	slog.Info("exam submitted",
		"candidate", res.Candidate,
		"topic", res.Topic,
		"total", res.TotalQuestions,
		"attempted", res.Attempted,
		"correct", res.Correct,
		"score", res.Score,
	)

	if c.opts.Sink != nil {
		if err := c.opts.Sink.Deliver(context.Background(), res); err != nil {
			slog.Error("result delivery failed", "error", err)
		}
	}
	return res, true
}

// State returns the lifecycle state.
func (c *Controller) State() model.SessionState { return c.state }

// Topic returns the topic label the session was started with.
func (c *Controller) Topic() string { return c.topic }

// Current returns the current question index.
func (c *Controller) Current() int { return c.current }

// Questions returns the latest question list.
func (c *Controller) Questions() []model.QuestionRecord { return c.questions }

// Remaining returns the true remaining seconds.
func (c *Controller) Remaining() int { return c.remaining }

// Threshold returns the hidden countdown offset.
func (c *Controller) Threshold() int { return c.threshold }

// DisplaySeconds is the countdown the candidate sees; it reaches zero when
// the session is forced to submit.
func (c *Controller) DisplaySeconds() int {
	return max(0, c.remaining-c.threshold)
}

// Clock renders DisplaySeconds as HH:MM:SS.
func (c *Controller) Clock() string {
	return FormatClock(c.DisplaySeconds())
}

// Answer returns the recorded answer for question i.
func (c *Controller) Answer(i int) (string, bool) {
	a, ok := c.answers[i]
	return a, ok
}

// Marked reports whether question i is flagged for review.
func (c *Controller) Marked(i int) bool { return c.marked[i] }

// Visited reports whether question i has ever been current.
func (c *Controller) Visited(i int) bool { return c.visited[i] }

// Result returns the submitted result, or nil before submission.
func (c *Controller) Result() *model.Result { return c.result }

// Palette returns the status of every known question.
func (c *Controller) Palette() []model.PaletteEntry {
	entries := make([]model.PaletteEntry, len(c.questions))
	for i := range c.questions {
		status := model.PaletteNotVisited
		switch {
		case c.marked[i]:
			status = model.PaletteMarked
		case c.answers[i] != "":
			status = model.PaletteAnswered
		case c.visited[i]:
			status = model.PaletteNotAnswered
		}
		entries[i] = model.PaletteEntry{Index: i, Status: status, Current: i == c.current}
	}
	return entries
}

// View builds a client snapshot of the session.
func (c *Controller) View() model.SessionView {
	v := model.SessionView{
		Candidate:      c.opts.Candidate,
		Topic:          c.topic,
		State:          c.state,
		CurrentIndex:   c.current,
		Total:          len(c.questions),
		Clock:          c.Clock(),
		DisplaySeconds: c.DisplaySeconds(),
		Palette:        c.Palette(),
		Result:         c.result,
	}
	if c.known(c.current) {
		q := c.questions[c.current]
		v.Question = &q
		v.Answer = c.answers[c.current]
		v.Marked = c.marked[c.current]
		v.LastQuestion = c.current == len(c.questions)-1
	}
	return v
}

func (c *Controller) running() bool {
	return c.state == model.StateLoading || c.state == model.StateActive
}

func (c *Controller) known(i int) bool {
	return i >= 0 && i < len(c.questions)
}
