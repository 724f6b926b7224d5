// Package sink delivers submitted exam results to collaborators.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pavelanni/mocktest/internal/model"
	"github.com/pavelanni/mocktest/internal/session"
)

// Remote posts results as JSON to a stats endpoint.
type Remote struct {
	url        string
	httpClient *http.Client
}

// NewRemote creates a sink that posts to url.
func NewRemote(url string, timeout time.Duration) *Remote {
	return &Remote{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Deliver posts res to the stats endpoint.
func (r *Remote) Deliver(ctx context.Context, res model.Result) error {
	body, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post result: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("stats endpoint returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	slog.Info("result delivered", "url", r.url, "candidate", res.Candidate, "score", res.Score)
	return nil
}

// Log writes a result summary to the default logger.
type Log struct{}

// Deliver logs res.
func (Log) Deliver(_ context.Context, res model.Result) error {
	slog.Info("exam result",
		"candidate", res.Candidate,
		"topic", res.Topic,
		"total", res.TotalQuestions,
		"attempted", res.Attempted,
		"correct", res.Correct,
		"wrong", res.Wrong,
		"score", res.Score,
		"accuracy", res.Accuracy,
		"time_spent", res.TimeSpent,
	)
	return nil
}

// Multi delivers to every sink and joins their errors.
type Multi []session.ResultSink

// Deliver delivers res to each sink in order.
func (m Multi) Deliver(ctx context.Context, res model.Result) error {
	var errs []error
	for _, s := range m {
		if err := s.Deliver(ctx, res); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Async hands results to next on a separate goroutine so that submission
// never waits on the network. Failures are logged.
type Async struct {
	next    session.ResultSink
	timeout time.Duration
	done    func()
}

// NewAsync wraps next. Each delivery gets its own timeout.
func NewAsync(next session.ResultSink, timeout time.Duration) *Async {
	return &Async{next: next, timeout: timeout}
}

// Deliver starts the delivery and returns immediately.
func (a *Async) Deliver(_ context.Context, res model.Result) error {
	go func() {
		if a.done != nil {
			defer a.done()
		}
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if err := a.next.Deliver(ctx, res); err != nil {
			slog.Warn("background result delivery failed", "candidate", res.Candidate, "error", err)
		}
	}()
	return nil
}
