package model

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// GenerationMode selects what an exam is generated from.
type GenerationMode string

const (
	// ModeTopic generates questions on a free-text topic.
	ModeTopic GenerationMode = "topic"
	// ModeNotes generates questions from an uploaded study document.
	ModeNotes GenerationMode = "notes"
	// ModePastPaper lifts the questions of an uploaded question paper.
	ModePastPaper GenerationMode = "past-paper"
	// ModeWeb generates questions from the content of a web page.
	ModeWeb GenerationMode = "web"
)

var (
	ErrTopicRequired    = errors.New("topic is required")
	ErrURLRequired      = errors.New("url is required")
	ErrDocumentRequired = errors.New("document is required")
	// ErrUnsupportedMode is returned by sources that cannot generate an
	// exam in the requested mode.
	ErrUnsupportedMode = errors.New("generation mode not supported")
)

// Document is an uploaded file an exam is generated from.
type Document struct {
	Name string
	Data []byte
}

// Normalize checks that req names what to generate from and fills the mode
// and topic defaults. Exams drawn from a page or a document get a label
// describing the source when no topic is given.
func (req *GenerationRequest) Normalize() error {
	if req.Mode == "" {
		req.Mode = ModeTopic
	}
	req.Topic = strings.TrimSpace(req.Topic)

	switch req.Mode {
	case ModeTopic:
		if req.Topic == "" {
			return ErrTopicRequired
		}
	case ModeWeb:
		if req.URL == "" {
			return ErrURLRequired
		}
		u, err := url.Parse(req.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("url %q: must be an absolute http or https URL", req.URL)
		}
		if req.Topic == "" {
			req.Topic = "Web Analysis"
		}
	case ModeNotes, ModePastPaper:
		if req.Document == nil || len(req.Document.Data) == 0 {
			return ErrDocumentRequired
		}
		if req.Topic == "" && req.Mode == ModeNotes {
			req.Topic = "PDF Analysis"
		}
		if req.Topic == "" {
			req.Topic = "PYQ: " + req.Document.Name
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedMode, req.Mode)
	}
	return nil
}
