package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/pavelanni/mocktest/internal/model"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transcripts (
		id TEXT PRIMARY KEY,
		candidate TEXT NOT NULL,
		topic TEXT NOT NULL,
		difficulty TEXT NOT NULL DEFAULT '',
		raw TEXT NOT NULL DEFAULT '',
		question_count INTEGER NOT NULL DEFAULT 0,
		started_at DATETIME NOT NULL,
		finished_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_transcripts_candidate ON transcripts(candidate);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveTranscript inserts a transcript or replaces the one with the same ID.
func (s *Store) SaveTranscript(t model.Transcript) error {
	_, err := s.db.Exec(
		`INSERT INTO transcripts (id, candidate, topic, difficulty, raw, question_count, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET raw = excluded.raw,
		   question_count = excluded.question_count, finished_at = excluded.finished_at`,
		t.ID, t.Candidate, t.Topic, t.Difficulty, t.Raw, t.QuestionCount, t.StartedAt, t.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("save transcript %s: %w", t.ID, err)
	}
	return nil
}

// GetTranscript returns a transcript by ID.
func (s *Store) GetTranscript(id string) (model.Transcript, error) {
	var t model.Transcript
	err := s.db.QueryRow(
		`SELECT id, candidate, topic, difficulty, raw, question_count, started_at, finished_at
		 FROM transcripts WHERE id = ?`, id,
	).Scan(&t.ID, &t.Candidate, &t.Topic, &t.Difficulty, &t.Raw, &t.QuestionCount, &t.StartedAt, &t.FinishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return t, fmt.Errorf("transcript %s: %w", id, ErrNotFound)
	}
	return t, err
}

// ListTranscripts returns transcripts newest first. Raw text is omitted;
// an empty candidate lists everyone's.
func (s *Store) ListTranscripts(candidate string) ([]model.Transcript, error) {
	query := `SELECT id, candidate, topic, difficulty, question_count, started_at, finished_at
		FROM transcripts`
	var args []any
	if candidate != "" {
		query += ` WHERE candidate = ?`
		args = append(args, candidate)
	}
	query += ` ORDER BY started_at DESC, id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var transcripts []model.Transcript
	for rows.Next() {
		var t model.Transcript
		if err := rows.Scan(&t.ID, &t.Candidate, &t.Topic, &t.Difficulty, &t.QuestionCount, &t.StartedAt, &t.FinishedAt); err != nil {
			return nil, err
		}
		transcripts = append(transcripts, t)
	}
	return transcripts, rows.Err()
}

// TranscriptCount returns the number of stored transcripts.
func (s *Store) TranscriptCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM transcripts`).Scan(&count)
	return count, err
}
