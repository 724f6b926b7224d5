package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/mocktest/internal/handler"
	appI18n "github.com/pavelanni/mocktest/internal/i18n"
	"github.com/pavelanni/mocktest/internal/llm"
	"github.com/pavelanni/mocktest/internal/model"
	"github.com/pavelanni/mocktest/internal/session"
	"github.com/pavelanni/mocktest/internal/sink"
	"github.com/pavelanni/mocktest/internal/store"
	"github.com/pavelanni/mocktest/internal/stream"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mocktest",
		Short: "Timed mock exams streamed from an LLM",
	}

	serve := serveCmd()
	root.AddCommand(serve, replayCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `mocktest --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP exam server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "mocktest.db", "SQLite database path")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("generator-url", "", "Upstream exam generator base URL, e.g. http://127.0.0.1:8000/exam; replaces the LLM when set")
	f.String("replay-file", "", "Serve every exam from a recorded stream file (for demos)")
	f.Duration("replay-delay", 50*time.Millisecond, "Delay between replayed chunks")
	f.String("stats-url", "", "Endpoint that receives submitted results (optional)")
	f.Int("result-timeout", 10, "Seconds allowed for result delivery")
	f.String("candidate", "guest", "Candidate name when a request does not carry one")
	f.StringP("lang", "l", "en", "Default UI language (en, ru)")
	f.StringP("difficulty", "d", "medium", "Default difficulty (easy, medium, hard)")
	f.IntP("num-questions", "n", 20, "Default number of questions per exam")
	f.StringSlice("cors-origins", []string{"http://localhost:3000"}, "Allowed browser origins")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export recorded generation streams as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "mocktest.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("MOCKTEST")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("mocktest")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/mocktest")
	v.AddConfigPath("/etc/mocktest")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// newSource picks where exams come from: a recorded file, an upstream
// generator or the LLM.
func newSource(v *viper.Viper) session.Source {
	if path := v.GetString("replay-file"); path != "" {
		slog.Info("serving exams from a recorded stream", "path", path)
		return stream.FileSource{Path: path, ChunkSize: 64, Delay: v.GetDuration("replay-delay")}
	}
	if url := v.GetString("generator-url"); url != "" {
		slog.Info("using upstream exam generator", "url", url)
		return stream.NewHTTPSource(url)
	}
	slog.Info("using LLM exam generator", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))
	return llm.New(v.GetString("llm-url"), v.GetString("llm-key"), v.GetString("llm-model"))
}

// newResultSink logs every result and posts it to the stats endpoint when
// one is configured. Delivery runs in the background so a slow endpoint
// never holds up the exam session.
func newResultSink(cfg model.ServeConfig) session.ResultSink {
	timeout := time.Duration(cfg.ResultTimeout) * time.Second
	sinks := sink.Multi{sink.Log{}}
	if cfg.StatsURL != "" {
		sinks = append(sinks, sink.NewRemote(cfg.StatsURL, timeout))
	}
	return sink.NewAsync(sinks, timeout)
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	cfg := model.ServeConfig{
		DefaultCandidate: v.GetString("candidate"),
		Difficulty:       v.GetString("difficulty"),
		TotalQuestions:   v.GetInt("num-questions"),
		ResultTimeout:    v.GetInt("result-timeout"),
		StatsURL:         v.GetString("stats-url"),
		AllowedOrigins:   v.GetStringSlice("cors-origins"),
	}

	if n, err := db.TranscriptCount(); err != nil {
		slog.Warn("count recorded transcripts", "error", err)
	} else {
		slog.Info("opened database", "path", v.GetString("db"), "transcripts", n)
	}

	mgr := handler.NewManager(newSource(v), newResultSink(cfg), db)
	defer mgr.Shutdown()
	h := handler.New(db, mgr, cfg)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(handler.CORS(cfg.AllowedOrigins))
	r.Use(appI18n.Middleware())
	h.Routes(r)

	addr := v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", addr,
			"lang", lang,
			"candidate", cfg.DefaultCandidate,
			"difficulty", cfg.Difficulty,
			"num_questions", cfg.TotalQuestions,
			"stats_url", cfg.StatsURL,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := db.ExportTranscripts()
	if err != nil {
		return fmt.Errorf("export transcripts: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
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
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	slog.Info("exported transcripts", "count", export.Count)
	return nil
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output file: %w", err)
	}
	return f, func() { f.Close() }, nil
}
