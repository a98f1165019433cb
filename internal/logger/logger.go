package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation of the launcher's own log file.
const (
	DefaultMaxSizeMB  = 5 // MB
	DefaultMaxBackups = 3 // number of backup files
	DefaultMaxAgeDays = 7 // days
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// SlogConfig controls the console handler.
type SlogConfig struct {
	Level      string // debug|info|warn|error (default info)
	Format     string // text|json (default text)
	Color      bool   // ANSI level colors, text format only
	TimeStamps bool   // include the time attribute on the console
}

// FileConfig controls the rotating log file. An empty Path disables it.
// Rotation parameters follow lumberjack semantics.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	// ConsoleDir, when set, receives one rotating file per server holding
	// its captured console.
	ConsoleDir string
}

// Config describes the launcher's logging destinations.
type Config struct {
	Slog SlogConfig
	File FileConfig
}

// DefaultConfig logs INFO text to the console and DEBUG to path.
func DefaultConfig(path string) Config {
	return Config{
		Slog: SlogConfig{Level: "info", Format: FormatText, TimeStamps: true},
		File: FileConfig{Path: path, MaxSizeMB: DefaultMaxSizeMB, MaxBackups: DefaultMaxBackups, MaxAgeDays: DefaultMaxAgeDays},
	}
}

// ParseLevel maps a level name to a slog.Level; unknown names yield INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewSlogger builds a logger writing to console at the configured level and,
// when File.Path is set, to a rotating file at DEBUG. The returned closer
// releases the file and is never nil.
func (c Config) NewSlogger(console io.Writer) (*slog.Logger, io.Closer, error) {
	if console == nil {
		console = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(c.Slog.Level)}
	if !c.Slog.TimeStamps {
		opts.ReplaceAttr = dropTime
	}

	var consoleH slog.Handler
	switch {
	case strings.EqualFold(c.Slog.Format, FormatJSON):
		consoleH = slog.NewJSONHandler(console, opts)
	case c.Slog.Color:
		consoleH = NewColorTextHandler(console, opts)
	default:
		consoleH = slog.NewTextHandler(console, opts)
	}

	if c.File.Path == "" {
		return slog.New(consoleH), io.NopCloser(nil), nil
	}
	if err := os.MkdirAll(filepath.Dir(c.File.Path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	fw := c.File.rotating(c.File.Path)
	fileH := slog.NewTextHandler(fw, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(&fanoutHandler{handlers: []slog.Handler{consoleH, fileH}}), fw, nil
}

func (f FileConfig) rotating(path string) *lj.Logger {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(f.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(f.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(f.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   f.Compress,
	}
}

func dropTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey {
		return slog.Attr{}
	}
	return a
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// fanoutHandler dispatches each record to every handler enabled for its level.
type fanoutHandler struct {
	handlers []slog.Handler
}

func (h *fanoutHandler) Enabled(ctx context.Context, l slog.Level) bool {
	for _, hh := range h.handlers {
		if hh.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, hh := range h.handlers {
		if hh.Enabled(ctx, r.Level) {
			if err := hh.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		out[i] = hh.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: out}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		out[i] = hh.WithGroup(name)
	}
	return &fanoutHandler{handlers: out}
}

// ConsoleFiles appends captured server console lines to
// <ConsoleDir>/<id>.console.log, rotated like the launcher log.
type ConsoleFiles struct {
	cfg FileConfig

	mu    sync.Mutex
	files map[string]*lj.Logger
}

// NewConsoleFiles returns nil when cfg.ConsoleDir is empty.
func (c Config) NewConsoleFiles() *ConsoleFiles {
	if c.File.ConsoleDir == "" {
		return nil
	}
	return &ConsoleFiles{cfg: c.File, files: make(map[string]*lj.Logger)}
}

// Write appends line to the server's console file. Its signature matches
// the supervisor's output callback.
func (cf *ConsoleFiles) Write(id, line string) {
	if cf == nil {
		return
	}
	cf.mu.Lock()
	defer cf.mu.Unlock()
	w, ok := cf.files[id]
	if !ok {
		w = cf.cfg.rotating(filepath.Join(cf.cfg.ConsoleDir, sanitizeID(id)+".console.log"))
		cf.files[id] = w
	}
	_, _ = io.WriteString(w, line+"\n")
}

// Close closes every open console file.
func (cf *ConsoleFiles) Close() error {
	if cf == nil {
		return nil
	}
	cf.mu.Lock()
	defer cf.mu.Unlock()
	var errs []error
	for id, w := range cf.files {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(cf.files, id)
	}
	return errors.Join(errs...)
}

func sanitizeID(id string) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator || r == ':' {
			return '_'
		}
		return r
	}, id)
}
