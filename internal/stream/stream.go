// Package stream turns byte streams into the text chunks an exam session
// consumes.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pavelanni/mocktest/internal/model"
)

const defaultChunkSize = 4096

// Chunks reads r until EOF and sends what it reads, in order, on the
// returned channel. The channel is closed at end of stream, on a read error
// or when ctx is cancelled. r is closed if it is an io.Closer.
func Chunks(ctx context.Context, r io.Reader, size int) <-chan string {
	if size <= 0 {
		size = defaultChunkSize
	}
	out := make(chan string)
	go func() {
		defer close(out)
		if c, ok := r.(io.Closer); ok {
			defer c.Close()
		}
		buf := make([]byte, size)
		total := 0
		for {
			n, err := r.Read(buf)
			if n > 0 {
				total++
				select {
				case out <- string(buf[:n]):
				case <-ctx.Done():
					return
				}
			}
			if errors.Is(err, io.EOF) {
				slog.Debug("stream complete", "chunks", total)
				return
			}
			if err != nil {
				slog.Error("stream read failed", "chunks", total, "error", err)
				return
			}
		}
	}()
	return out
}

// Generator endpoints, relative to the HTTPSource base URL.
const (
	generatePath  = "/generate"
	notesPath     = "/generate-from-pdf"
	webPath       = "/generate-from-web"
	pastPaperPath = "/api/extract-pyq"
)

// HTTPSource requests exams from an upstream generator that answers with a
// streamed text body. Each generation mode has its own endpoint under the
// base URL; document modes upload the file as multipart form data.
type HTTPSource struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPSource creates a source for the generator rooted at baseURL,
// for example "http://127.0.0.1:8000/exam".
func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{baseURL: strings.TrimRight(baseURL, "/"), httpClient: &http.Client{}}
}

// generateBody is the JSON body of the topic and web endpoints.
type generateBody struct {
	Topic          string   `json:"topic"`
	Difficulty     string   `json:"difficulty,omitempty"`
	TotalQuestions int      `json:"total_questions,omitempty"`
	QuestionTypes  []string `json:"q_types,omitempty"`
}

// Open posts req to the endpoint of its mode and streams the response body.
func (s *HTTPSource) Open(ctx context.Context, req model.GenerationRequest) (<-chan string, error) {
	httpReq, err := s.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("post generation request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("generator returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	slog.Info("generation stream opened", "url", httpReq.URL.String(), "mode", req.Mode, "topic", req.Topic)
	return Chunks(ctx, resp.Body, 0), nil
}

func (s *HTTPSource) newRequest(ctx context.Context, req model.GenerationRequest) (*http.Request, error) {
	var (
		path        string
		body        bytes.Buffer
		contentType string
	)
	switch req.Mode {
	case "", model.ModeTopic, model.ModeWeb:
		gb := generateBody{
			Topic:          req.Topic,
			Difficulty:     req.Difficulty,
			TotalQuestions: req.TotalQuestions,
			QuestionTypes:  req.QuestionTypes,
		}
		path = generatePath
		if req.Mode == model.ModeWeb {
			gb.Topic = req.URL
			path = webPath
		}
		if err := json.NewEncoder(&body).Encode(gb); err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		contentType = "application/json"

	case model.ModeNotes, model.ModePastPaper:
		if req.Document == nil {
			return nil, model.ErrDocumentRequired
		}
		mw := multipart.NewWriter(&body)
		fields := [][2]string{{"questions_limit", strconv.Itoa(req.TotalQuestions)}}
		path = pastPaperPath
		if req.Mode == model.ModeNotes {
			qTypes, err := json.Marshal(req.QuestionTypes)
			if err != nil {
				return nil, fmt.Errorf("marshal question types: %w", err)
			}
			fields = [][2]string{
				{"topic", req.Topic},
				{"difficulty", req.Difficulty},
				{"total_questions", strconv.Itoa(req.TotalQuestions)},
				{"q_types", string(qTypes)},
			}
			path = notesPath
		}
		if err := writeForm(mw, req.Document, fields); err != nil {
			return nil, fmt.Errorf("encode upload: %w", err)
		}
		contentType = mw.FormDataContentType()

	default:
		return nil, fmt.Errorf("%w: %q", model.ErrUnsupportedMode, req.Mode)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, &body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	return httpReq, nil
}

func writeForm(mw *multipart.Writer, doc *model.Document, fields [][2]string) error {
	fw, err := mw.CreateFormFile("file", doc.Name)
	if err != nil {
		return err
	}
	if _, err := fw.Write(doc.Data); err != nil {
		return err
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return err
		}
	}
	return mw.Close()
}

// FileSource replays a recorded stream from disk in fixed-size chunks.
type FileSource struct {
	Path      string
	ChunkSize int
	// Delay is slept before each chunk to imitate a live generator.
	Delay time.Duration
}

// Open streams the file. The request is ignored.
func (s FileSource) Open(ctx context.Context, _ model.GenerationRequest) (<-chan string, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.Path, err)
	}
	return Replay(ctx, string(data), s.ChunkSize, s.Delay), nil
}

// Replay splits text into chunks of size bytes and sends them in order.
func Replay(ctx context.Context, text string, size int, delay time.Duration) <-chan string {
	if size <= 0 {
		size = defaultChunkSize
	}
	out := make(chan string)
	go func() {
		defer close(out)
		for start := 0; start < len(text); start += size {
			end := min(start+size, len(text))
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return
				}
			}
			select {
			case out <- text[start:end]:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
