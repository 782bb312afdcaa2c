package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/CosmoTheDev/scanboard/internal/api"
	"github.com/CosmoTheDev/scanboard/internal/config"
	"github.com/CosmoTheDev/scanboard/internal/database"
	"github.com/CosmoTheDev/scanboard/internal/journal"
	"github.com/charmbracelet/lipgloss"
	"go.yaml.in/yaml/v3"
)

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#14B8A6")).
	MarginBottom(1)

var successStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#10B981"))

var warnStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#F59E0B"))

var dimStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#6B7280"))

// loadClient loads the config and returns a client carrying the stored session.
func loadClient() (*config.Config, *api.Client, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	session, err := config.LoadSession()
	if err != nil {
		return nil, nil, fmt.Errorf("reading session: %w", err)
	}
	return cfg, api.New(cfg.API, session), nil
}

// openJournal opens the journal database and applies migrations.
func openJournal(ctx context.Context, cfg *config.Config) (*journal.Journal, func(), error) {
	db, err := database.New(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	return journal.New(db), func() { _ = db.Close() }, nil
}

// optionalJournal is openJournal for commands that work without one. A
// journal that cannot be opened is logged and skipped.
func optionalJournal(ctx context.Context, cfg *config.Config) (journal.Recorder, func()) {
	j, closeFn, err := openJournal(ctx, cfg)
	if err != nil {
		slog.Warn("operator journal unavailable", "error", err)
		return nil, func() {}
	}
	return j, closeFn
}

// setupFileLogger sends slog output to a per-run file plus <name>.log in the
// log directory. Stdout is only added when echo is set; the TUI owns the
// terminal otherwise.
func setupFileLogger(name string, echo bool) (string, func(), error) {
	logDir, err := config.LogDir()
	if err != nil {
		return "", nil, err
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("creating log dir %s: %w", logDir, err)
	}

	ts := time.Now().UTC().Format("20060102-150405")
	runLogPath := filepath.Join(logDir, fmt.Sprintf("%s-%s.log", name, ts))
	runFile, err := os.OpenFile(runLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", nil, fmt.Errorf("opening run log file: %w", err)
	}

	latestPath := filepath.Join(logDir, name+".log")
	latestFile, err := os.OpenFile(latestPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		_ = runFile.Close()
		return "", nil, fmt.Errorf("opening latest log file: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	writers := []io.Writer{runFile, latestFile}
	if echo {
		writers = append(writers, os.Stdout)
	}
	handler := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level:     level,
		AddSource: verbose,
	})
	slog.SetDefault(slog.New(handler))
	slog.SetLogLoggerLevel(level)

	cleanup := func() {
		_ = latestFile.Close()
		_ = runFile.Close()
	}
	return runLogPath, cleanup, nil
}

// requestContext bounds one-shot commands.
func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(raw), "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

// printStructured writes v as JSON or YAML. It reports false for "table" so
// callers render their own table.
func printStructured(format string, v any) (bool, error) {
	switch strings.ToLower(format) {
	case "", "table":
		return false, nil
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case "yaml", "yml":
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return true, enc.Encode(v)
	default:
		return true, fmt.Errorf("unknown output format %q (valid: table, json, yaml)", format)
	}
}

// actionError turns a backend error into the operator-facing message while
// keeping the original for errors.Is checks. With --verbose the full chain
// is printed.
func actionError(err error) error {
	if err == nil {
		return nil
	}
	slog.Debug("backend call failed", "error", err)
	if verbose {
		return err
	}
	return &userError{msg: api.UserMessage(err), err: err}
}

type userError struct {
	msg string
	err error
}

func (e *userError) Error() string { return e.msg }
func (e *userError) Unwrap() error { return e.err }
