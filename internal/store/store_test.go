package store

import (
	"errors"
	"testing"
	"time"

	"github.com/pavelanni/mocktest/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func insertTestTranscript(t *testing.T, s *Store, id, candidate string, offset time.Duration) model.Transcript {
	t.Helper()
	finished := baseTime.Add(offset + time.Minute)
	tr := model.Transcript{
		ID:            id,
		Candidate:     candidate,
		Topic:         "Reasoning 30 MIN",
		Difficulty:    "medium",
		Raw:           `[{"question": "Q1", "answer": "A"}]`,
		QuestionCount: 1,
		StartedAt:     baseTime.Add(offset),
		FinishedAt:    &finished,
	}
	if err := s.SaveTranscript(tr); err != nil {
		t.Fatalf("insertTestTranscript: %v", err)
	}
	return tr
}

func TestTranscriptCRUD(t *testing.T) {
	s := newTestStore(t)

	count, err := s.TranscriptCount()
	if err != nil {
		t.Fatalf("TranscriptCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 transcripts, got %d", count)
	}

	want := insertTestTranscript(t, s, "t1", "amita", 0)
	got, err := s.GetTranscript("t1")
	if err != nil {
		t.Fatalf("GetTranscript: %v", err)
	}
	if got.Raw != want.Raw || got.Topic != want.Topic || got.QuestionCount != 1 {
		t.Errorf("GetTranscript = %+v", got)
	}
	if !got.StartedAt.Equal(want.StartedAt) {
		t.Errorf("started_at = %v, want %v", got.StartedAt, want.StartedAt)
	}
	if got.FinishedAt == nil || !got.FinishedAt.Equal(*want.FinishedAt) {
		t.Errorf("finished_at = %v, want %v", got.FinishedAt, want.FinishedAt)
	}

	_, err = s.GetTranscript("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveTranscriptUpdates(t *testing.T) {
	s := newTestStore(t)
	tr := model.Transcript{ID: "t1", Candidate: "amita", Topic: "GK", StartedAt: baseTime}
	if err := s.SaveTranscript(tr); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}

	tr.Raw = `[{"question": "Q1"}]`
	tr.QuestionCount = 1
	if err := s.SaveTranscript(tr); err != nil {
		t.Fatalf("SaveTranscript again: %v", err)
	}

	got, err := s.GetTranscript("t1")
	if err != nil {
		t.Fatalf("GetTranscript: %v", err)
	}
	if got.Raw != tr.Raw || got.QuestionCount != 1 || got.FinishedAt != nil {
		t.Errorf("GetTranscript = %+v", got)
	}
	if count, _ := s.TranscriptCount(); count != 1 {
		t.Errorf("expected 1 transcript, got %d", count)
	}
}

func TestListTranscripts(t *testing.T) {
	s := newTestStore(t)
	insertTestTranscript(t, s, "t1", "amita", 0)
	insertTestTranscript(t, s, "t2", "ravi", time.Hour)
	insertTestTranscript(t, s, "t3", "amita", 2*time.Hour)

	tests := []struct {
		name      string
		candidate string
		want      []string
	}{
		{"everyone", "", []string{"t3", "t2", "t1"}},
		{"one candidate", "amita", []string{"t3", "t1"}},
		{"unknown candidate", "nobody", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := s.ListTranscripts(tt.candidate)
			if err != nil {
				t.Fatalf("ListTranscripts: %v", err)
			}
			if len(list) != len(tt.want) {
				t.Fatalf("expected %d transcripts, got %d", len(tt.want), len(list))
			}
			for i, id := range tt.want {
				if list[i].ID != id {
					t.Errorf("list[%d] = %s, want %s", i, list[i].ID, id)
				}
				if list[i].Raw != "" {
					t.Errorf("list should not carry raw text")
				}
			}
		})
	}
}

func TestExportTranscripts(t *testing.T) {
	s := newTestStore(t)

	empty, err := s.ExportTranscripts()
	if err != nil {
		t.Fatalf("ExportTranscripts: %v", err)
	}
	if empty.Count != 0 || empty.Transcripts == nil {
		t.Errorf("empty export = %+v", empty)
	}

	insertTestTranscript(t, s, "t1", "amita", 0)
	insertTestTranscript(t, s, "t2", "ravi", time.Hour)

	exp, err := s.ExportTranscripts()
	if err != nil {
		t.Fatalf("ExportTranscripts: %v", err)
	}
	if exp.Count != 2 || len(exp.Transcripts) != 2 {
		t.Fatalf("export count = %d", exp.Count)
	}
	for _, tr := range exp.Transcripts {
		if tr.Raw == "" {
			t.Errorf("export of %s should include raw text", tr.ID)
		}
	}
}
