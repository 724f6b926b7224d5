package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pavelanni/mocktest/internal/model"
)

type manualTicker struct {
	c       chan time.Time
	stopped chan struct{}
}

func newManualTicker() *manualTicker {
	return &manualTicker{c: make(chan time.Time), stopped: make(chan struct{})}
}

func (m *manualTicker) fn() (<-chan time.Time, func()) {
	return m.c, func() { close(m.stopped) }
}

func startRunner(t *testing.T, r *Runner, topic string, chunks <-chan string) (context.CancelFunc, chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx, topic, chunks) }()
	t.Cleanup(cancel)
	return cancel, errc
}

func waitErr(t *testing.T, errc chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
		return nil
	}
}

// waitFor polls the runner until cond holds for its view.
func waitFor(t *testing.T, r *Runner, cond func(model.SessionView) bool) model.SessionView {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		v, err := r.Do(context.Background(), func(*Controller) {})
		if err != nil {
			t.Fatalf("Do: %v", err)
		}
		if cond(v) {
			return v
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached")
	return model.SessionView{}
}

func TestRunnerStreamsQuestions(t *testing.T) {
	tick := newManualTicker()
	var endRaw string
	var endCount int
	ctrl := newTestController(t, 10, nil)
	r := NewRunner("s1", ctrl, WithTicker(tick.fn), WithStreamEnd(func(raw string, n int) {
		endRaw, endCount = raw, n
	}))

	chunks := make(chan string)
	_, errc := startRunner(t, r, "GK 10 MIN", chunks)
	ctx := context.Background()

	parts := []string{
		"```json\n[{\"question\": \"Q1\", \"options\": [\"A\", \"B\"], \"ans",
		"wer\": \"A\"}, {\"question\": \"Q2\", ",
		"\"answer\": \"B\"}]```",
	}

	chunks <- parts[0]
	v, err := r.Do(ctx, func(*Controller) {})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if v.State != model.StateLoading || v.Total != 0 || !v.Generating {
		t.Errorf("after first chunk: %+v", v)
	}

	chunks <- parts[1]
	v, _ = r.Do(ctx, func(c *Controller) { c.SelectAnswer(0, "a") })
	if v.State != model.StateActive || v.Total != 1 || v.Answer != "a" {
		t.Errorf("after second chunk: %+v", v)
	}

	chunks <- parts[2]
	close(chunks)
	waitFor(t, r, func(v model.SessionView) bool { return !v.Generating })
	v, _ = r.Do(ctx, func(c *Controller) { c.GoTo(1) })
	if v.Total != 2 || v.CurrentIndex != 1 || v.Generating {
		t.Errorf("after end of stream: %+v", v)
	}
	if endCount != 2 || endRaw != parts[0]+parts[1]+parts[2] {
		t.Errorf("stream end hook got %d questions, raw %q", endCount, endRaw)
	}

	tick.c <- time.Now()
	v, _ = r.Do(ctx, func(c *Controller) { c.SaveAndNext() })
	if v.State != model.StateTerminated || v.Result == nil {
		t.Fatalf("expected terminated with result, got %+v", v)
	}
	if v.Result.Correct != 1 || v.Result.TimeSpent != 1 {
		t.Errorf("result: %+v", v.Result)
	}

	if err := waitErr(t, errc); err != nil {
		t.Errorf("Run returned %v", err)
	}
	select {
	case <-tick.stopped:
	default:
		t.Error("ticker should be stopped")
	}

	if _, err := r.Do(ctx, func(*Controller) {}); !errors.Is(err, ErrClosed) {
		t.Errorf("Do after termination = %v, want ErrClosed", err)
	}
	if r.Snapshot().State != model.StateTerminated {
		t.Error("snapshot should keep the terminal view")
	}
}

func TestRunnerCancelStopsProcessing(t *testing.T) {
	tick := newManualTicker()
	r := NewRunner("s2", newTestController(t, 10, nil), WithTicker(tick.fn))
	chunks := make(chan string)
	cancel, errc := startRunner(t, r, "GK", chunks)

	chunks <- `[{"question": "Q1"}]`
	if _, err := r.Do(context.Background(), func(*Controller) {}); err != nil {
		t.Fatalf("Do: %v", err)
	}

	cancel()
	if err := waitErr(t, errc); !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}

	select {
	case chunks <- "more":
		t.Error("runner should not read chunks after cancellation")
	case <-time.After(50 * time.Millisecond):
	}
	<-tick.stopped
}

func TestRunnerForcedSubmission(t *testing.T) {
	tick := newManualTicker()
	sink := &recordingSink{}
	r := NewRunner("s3", newTestController(t, 10, sink), WithTicker(tick.fn))
	_, errc := startRunner(t, r, "GK 0 MIN", nil)

	tick.c <- time.Now()
	if err := waitErr(t, errc); err != nil {
		t.Errorf("Run returned %v", err)
	}
	if len(sink.results) != 1 {
		t.Errorf("expected one forced submission, got %d", len(sink.results))
	}
}

func TestRunnerSubscribe(t *testing.T) {
	tick := newManualTicker()
	r := NewRunner("s4", newTestController(t, 10, nil), WithTicker(tick.fn))
	views, unsubscribe := r.Subscribe()
	defer unsubscribe()

	first := <-views
	if first.ID != "s4" || first.State != model.StateIdle {
		t.Errorf("initial view: %+v", first)
	}

	chunks := make(chan string, 1)
	_, errc := startRunner(t, r, "GK", chunks)
	chunks <- `[{"question": "Q1", "answer": "A"}]`

	deadline := time.After(2 * time.Second)
	for {
		select {
		case v := <-views:
			if v.Total == 1 {
				if _, err := r.Do(context.Background(), func(c *Controller) { c.Submit() }); err != nil {
					t.Fatalf("Do: %v", err)
				}
				if err := waitErr(t, errc); err != nil {
					t.Errorf("Run returned %v", err)
				}
				for range views {
				}
				return
			}
		case <-deadline:
			t.Fatal("never saw the extracted question")
		}
	}
}
