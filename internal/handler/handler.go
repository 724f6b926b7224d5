package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/pavelanni/mocktest/internal/i18n"
	"github.com/pavelanni/mocktest/internal/model"
	"github.com/pavelanni/mocktest/internal/session"
	"github.com/pavelanni/mocktest/internal/store"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	sessions *Manager
	config   model.ServeConfig
	upgrader *websocket.Upgrader
}

// New creates a new Handler. Websocket handshakes are checked against
// cfg.AllowedOrigins, the same list CORS is configured with.
func New(s *store.Store, m *Manager, cfg model.ServeConfig) *Handler {
	return &Handler{
		store:    s,
		sessions: m,
		config:   cfg,
		upgrader: newUpgrader(cfg.AllowedOrigins),
	}
}

// CORS returns middleware allowing browser front-ends served from origins.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", candidateHeader},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(h.identify)
		r.Post("/exams", h.handleStartExam)
		r.Get("/exams/{id}", h.handleGetExam)
		r.Get("/exams/{id}/ws", h.handleExamSocket)
		r.Post("/exams/{id}/{action}", h.handleCommand)
		r.Delete("/exams/{id}", h.handleCancelExam)
		r.Get("/transcripts", h.handleListTranscripts)
	})
}

// viewResponse is a session view with its localized labels.
type viewResponse struct {
	model.SessionView
	Labels i18n.ViewLabels `json:"labels"`
}

func respond(ctx context.Context, v model.SessionView) viewResponse {
	return viewResponse{SessionView: v, Labels: i18n.Labels(ctx, v)}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) handleStartExam(w http.ResponseWriter, r *http.Request) {
	req, err := decodeStartRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Candidate == "" {
		req.Candidate = model.CandidateFromContext(r.Context())
	}
	if req.Difficulty == "" {
		req.Difficulty = h.config.Difficulty
	}
	if req.TotalQuestions <= 0 {
		req.TotalQuestions = h.config.TotalQuestions
	}
	if err := req.Normalize(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	runner, err := h.sessions.Start(req)
	switch {
	case errors.Is(err, model.ErrUnsupportedMode):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		slog.Error("failed to start exam", "candidate", req.Candidate, "mode", req.Mode, "topic", req.Topic, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, respond(r.Context(), runner.Snapshot()))
}

func (h *Handler) handleGetExam(w http.ResponseWriter, r *http.Request) {
	runner, ok := h.runner(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, respond(r.Context(), runner.Snapshot()))
}

func (h *Handler) handleCommand(w http.ResponseWriter, r *http.Request) {
	runner, ok := h.runner(w, r)
	if !ok {
		return
	}
	cmd := commandRequest{Action: chi.URLParam(r, "action")}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		cmd.Action = chi.URLParam(r, "action")
	}

	v, err := apply(r.Context(), runner, cmd)
	switch {
	case errors.Is(err, errUnknownAction), errors.Is(err, errMissingIndex):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, respond(r.Context(), v))
}

func (h *Handler) handleCancelExam(w http.ResponseWriter, r *http.Request) {
	if !h.sessions.Cancel(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, ErrNoSession.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListTranscripts(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListTranscripts(r.URL.Query().Get("candidate"))
	if err != nil {
		slog.Error("failed to list transcripts", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []model.Transcript{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) runner(w http.ResponseWriter, r *http.Request) (*session.Runner, bool) {
	runner, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return runner, true
}

var (
	errUnknownAction = errors.New("unknown action")
	errMissingIndex  = errors.New("index is required")
)

// commandRequest is a user action against a running session. Index
// defaults to the current question where the action allows it.
type commandRequest struct {
	Action string `json:"action"`
	Index  *int   `json:"index,omitempty"`
	Value  string `json:"value,omitempty"`
}

// apply runs cmd on the runner goroutine. Commands sent to a finished
// session are ignored and the final view is returned.
func apply(ctx context.Context, runner *session.Runner, cmd commandRequest) (model.SessionView, error) {
	var fn func(*session.Controller)
	index := func(c *session.Controller) int {
		if cmd.Index != nil {
			return *cmd.Index
		}
		return c.Current()
	}

	switch cmd.Action {
	case "goto":
		if cmd.Index == nil {
			return model.SessionView{}, errMissingIndex
		}
		fn = func(c *session.Controller) { c.GoTo(*cmd.Index) }
	case "answer":
		fn = func(c *session.Controller) { c.SelectAnswer(index(c), cmd.Value) }
	case "mark":
		fn = func(c *session.Controller) { c.ToggleMark(index(c)) }
	case "next":
		fn = func(c *session.Controller) { c.SaveAndNext() }
	case "prev":
		fn = func(c *session.Controller) { c.Previous() }
	case "submit":
		fn = func(c *session.Controller) { c.Submit() }
	default:
		return model.SessionView{}, fmt.Errorf("%w: %q", errUnknownAction, cmd.Action)
	}

	v, err := runner.Do(ctx, fn)
	if errors.Is(err, session.ErrClosed) {
		return v, nil
	}
	return v, err
}
