package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/pavelanni/mocktest/internal/model"
)

const (
	maxUploadMemory = 8 << 20
	maxDocumentSize = 20 << 20
)

var errDocumentTooLarge = fmt.Errorf("document exceeds %d MB", maxDocumentSize>>20)

// decodeStartRequest reads a generation request from a JSON body or, for
// document exams, from a multipart form with the document in the "file"
// field.
func decodeStartRequest(w http.ResponseWriter, r *http.Request) (model.GenerationRequest, error) {
	var req model.GenerationRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, errors.New("invalid request body")
		}
		return req, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxDocumentSize+maxUploadMemory)
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		return req, fmt.Errorf("invalid upload: %w", err)
	}
	req.Mode = model.GenerationMode(r.FormValue("mode"))
	if req.Mode == "" {
		req.Mode = model.ModeNotes
	}
	req.Topic = r.FormValue("topic")
	req.Difficulty = r.FormValue("difficulty")
	req.Candidate = r.FormValue("candidate")
	req.QuestionTypes = questionTypes(r.FormValue("q_types"))

	count := r.FormValue("total_questions")
	if count == "" {
		count = r.FormValue("questions_limit")
	}
	if count != "" {
		n, err := strconv.Atoi(count)
		if err != nil {
			return req, fmt.Errorf("invalid question count %q", count)
		}
		req.TotalQuestions = n
	}

	file, hdr, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return req, model.ErrDocumentRequired
	}
	if err != nil {
		return req, fmt.Errorf("read upload: %w", err)
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxDocumentSize+1))
	if err != nil {
		return req, fmt.Errorf("read upload: %w", err)
	}
	if len(data) > maxDocumentSize {
		return req, errDocumentTooLarge
	}
	req.Document = &model.Document{Name: hdr.Filename, Data: data}
	return req, nil
}

// questionTypes accepts a JSON array or a comma separated list.
func questionTypes(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	var types []string
	if json.Unmarshal([]byte(v), &types) == nil {
		return types
	}
	types = nil
	for _, t := range strings.Split(v, ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, t)
		}
	}
	return types
}
