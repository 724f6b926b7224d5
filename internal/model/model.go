package model

import (
	"context"
	"encoding/json"
)

// QuestionRecord is one question recovered from a generation stream.
type QuestionRecord struct {
	Text        string   `json:"question"`
	Options     []string `json:"options"`
	Answer      string   `json:"answer,omitempty"`
	Explanation string   `json:"explanation,omitempty"`
	// Section is the label of the section block the question was nested in.
	Section string `json:"section,omitempty"`
	// Extra holds source fields that are kept but not interpreted.
	Extra map[string]json.RawMessage `json:"extra,omitempty"`
}

// IsFreeText reports whether the question expects a typed answer.
func (q QuestionRecord) IsFreeText() bool {
	return len(q.Options) == 0
}

// SessionState is the lifecycle state of an exam session.
type SessionState string

const (
	StateIdle       SessionState = "idle"
	StateLoading    SessionState = "loading"
	StateActive     SessionState = "active"
	StateSubmitting SessionState = "submitting"
	StateTerminated SessionState = "terminated"
)

// PaletteStatus is the per-question status shown in the question palette.
type PaletteStatus string

const (
	PaletteNotVisited  PaletteStatus = "not_visited"
	PaletteNotAnswered PaletteStatus = "not_answered"
	PaletteAnswered    PaletteStatus = "answered"
	PaletteMarked      PaletteStatus = "marked"
)

// PaletteEntry describes one cell of the question palette.
type PaletteEntry struct {
	Index   int           `json:"index"`
	Status  PaletteStatus `json:"status"`
	Current bool          `json:"current"`
}

// GenerationRequest asks a stream source for a new exam.
type GenerationRequest struct {
	Mode           GenerationMode `json:"mode,omitempty"`
	Topic          string         `json:"topic"`
	Difficulty     string         `json:"difficulty,omitempty"`
	TotalQuestions int            `json:"total_questions,omitempty"`
	QuestionTypes  []string       `json:"q_types,omitempty"`
	Candidate      string         `json:"candidate,omitempty"`
	// URL is the page a ModeWeb exam is drawn from.
	URL string `json:"url,omitempty"`
	// Document is the upload behind ModeNotes and ModePastPaper exams.
	Document *Document `json:"-"`
}

// SessionView is a point-in-time snapshot of an exam session for clients.
type SessionView struct {
	ID             string          `json:"id"`
	Candidate      string          `json:"candidate"`
	Topic          string          `json:"topic"`
	State          SessionState    `json:"state"`
	Generating     bool            `json:"generating"`
	CurrentIndex   int             `json:"current_index"`
	Total          int             `json:"total_questions"`
	Clock          string          `json:"clock"`
	DisplaySeconds int             `json:"display_seconds"`
	Question       *QuestionRecord `json:"question,omitempty"`
	Answer         string          `json:"answer,omitempty"`
	Marked         bool            `json:"marked"`
	LastQuestion   bool            `json:"last_question"`
	Palette        []PaletteEntry  `json:"palette"`
	Result         *Result         `json:"result,omitempty"`
}

// ServeConfig holds runtime parameters of the HTTP server set via CLI flags.
type ServeConfig struct {
	DefaultCandidate string
	Difficulty       string // used when a request leaves it empty
	TotalQuestions   int    // used when a request leaves it zero
	ResultTimeout    int    // seconds allowed for the remote result hand-off
	StatsURL         string // receives submitted results when set
	AllowedOrigins   []string
}

type candidateCtxKey struct{}

// ContextWithCandidate stores the candidate identity in the request context.
func ContextWithCandidate(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, candidateCtxKey{}, name)
}

// CandidateFromContext retrieves the candidate identity from context (empty if unset).
func CandidateFromContext(ctx context.Context) string {
	c, _ := ctx.Value(candidateCtxKey{}).(string)
	return c
}
