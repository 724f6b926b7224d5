package store

import (
	"fmt"
	"time"

	"github.com/pavelanni/mocktest/internal/model"
)

// ExportTranscripts builds an export of every stored transcript, raw text
// included.
func (s *Store) ExportTranscripts() (model.TranscriptExport, error) {
	list, err := s.ListTranscripts("")
	if err != nil {
		return model.TranscriptExport{}, fmt.Errorf("list transcripts: %w", err)
	}

	out := model.TranscriptExport{
		ExportedAt:  time.Now().UTC(),
		Transcripts: make([]model.Transcript, 0, len(list)),
	}
	for _, t := range list {
		full, err := s.GetTranscript(t.ID)
		if err != nil {
			return model.TranscriptExport{}, fmt.Errorf("get transcript %s: %w", t.ID, err)
		}
		out.Transcripts = append(out.Transcripts, full)
	}
	out.Count = len(out.Transcripts)
	return out, nil
}
