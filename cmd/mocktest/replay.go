package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"

	"github.com/spf13/cobra"

	"github.com/pavelanni/mocktest/internal/extract"
	"github.com/pavelanni/mocktest/internal/model"
	"github.com/pavelanni/mocktest/internal/store"
	"github.com/pavelanni/mocktest/internal/stream"
)

func replayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay [file]",
		Short: "Run the question extractor over a recorded stream",
		Long: `Replay feeds a recorded generation stream to the question extractor
chunk by chunk, checks that each extraction extends the previous one and
prints the final question list as JSON. The stream comes from a file or,
with --transcript, from the database.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runReplay,
	}
	f := cmd.Flags()
	f.String("db", "mocktest.db", "SQLite database path")
	f.String("transcript", "", "ID of a stored transcript to replay")
	f.Int("chunk-size", 16, "Bytes per chunk (0 = whole stream at once)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func runReplay(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	raw, err := loadRecording(v.GetString("db"), v.GetString("transcript"), args)
	if err != nil {
		return err
	}

	size := v.GetInt("chunk-size")
	if size <= 0 {
		size = len(raw)
	}
	questions, chunks, err := replay(context.Background(), raw, size)
	if err != nil {
		return err
	}
	slog.Info("replay finished", "bytes", len(raw), "chunks", chunks, "questions", len(questions))

	data, err := json.MarshalIndent(questions, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	w, closeOut, err := openOutput(v.GetString("output"))
	if err != nil {
		return err
	}
	defer closeOut()
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)
	return nil
}

func loadRecording(dbPath, transcriptID string, args []string) (string, error) {
	switch {
	case transcriptID != "" && len(args) > 0:
		return "", errors.New("give either a file or --transcript, not both")
	case transcriptID != "":
		db, err := store.New(dbPath)
		if err != nil {
			return "", fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		t, err := db.GetTranscript(transcriptID)
		if err != nil {
			return "", err
		}
		return t.Raw, nil
	case len(args) == 1:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("read %s: %w", args[0], err)
		}
		return string(data), nil
	default:
		return "", errors.New("nothing to replay: give a file or --transcript")
	}
}

var (
	replayChunks     = stream.Replay
	extractQuestions = extract.Extract
)

// replay extracts questions after every chunk and fails if a later
// extraction drops or rewrites a question seen earlier.
func replay(ctx context.Context, raw string, size int) ([]model.QuestionRecord, int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var buf []byte
	var prev []model.QuestionRecord
	chunks := 0
	for chunk := range replayChunks(ctx, raw, size, 0) {
		chunks++
		buf = append(buf, chunk...)
		next := extractQuestions(string(buf))
		if !hasPrefix(next, prev) {
			return nil, chunks, fmt.Errorf("chunk %d: extraction of %d questions does not extend the previous %d", chunks, len(next), len(prev))
		}
		if len(next) > len(prev) {
			slog.Debug("questions extracted", "chunk", chunks, "total", len(next))
		}
		prev = next
	}
	if prev == nil {
		prev = []model.QuestionRecord{}
	}
	return prev, chunks, nil
}

func hasPrefix(list, prefix []model.QuestionRecord) bool {
	if len(prefix) == 0 {
		return true
	}
	if len(prefix) > len(list) {
		return false
	}
	return reflect.DeepEqual(list[:len(prefix)], prefix)
}
