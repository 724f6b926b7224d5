package handler

import (
	"net/http"
	"strings"

	"github.com/pavelanni/mocktest/internal/model"
)

const candidateHeader = "X-Candidate"

// identify stores the candidate name in the request context. The header
// wins over the candidate query parameter; the configured default is used
// when neither is set.
func (h *Handler) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimSpace(r.Header.Get(candidateHeader))
		if name == "" {
			name = strings.TrimSpace(r.URL.Query().Get("candidate"))
		}
		if name == "" {
			name = h.config.DefaultCandidate
		}
		ctx := model.ContextWithCandidate(r.Context(), name)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
