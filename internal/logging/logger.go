// Package logging provides structured logging with file and console output.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents logging levels
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LogEntry is one line of log history as served by the ingest server.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Component string `json:"component"`
	Message   string `json:"message"`
	Error     string `json:"error,omitempty"`
}

// Logger wraps zerolog with file output and log history
type Logger struct {
	zlog    zerolog.Logger
	file    *os.File
	logPath string
	history *history
}

type Config struct {
	Dir        string   `mapstructure:"dir"`
	Level      LogLevel `mapstructure:"level"`
	MaxHistory int      `mapstructure:"max_history"`
	Console    bool     `mapstructure:"console"`
}

func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Dir:        filepath.Join(home, ".rigavatar", "logs"),
		Level:      LevelInfo,
		MaxHistory: 1000,
		Console:    true,
	}
}

// New creates a Logger writing to a dated file in cfg.Dir, the console when
// enabled, and the in-memory history.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 1000
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logFileName := fmt.Sprintf("rigavatar_%s.log", time.Now().Format("2006-01-02"))
	logPath := filepath.Join(cfg.Dir, logFileName)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	hist := newHistory(cfg.MaxHistory)
	writers := []io.Writer{file, hist}
	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		})
	}

	zlog := zerolog.New(io.MultiWriter(writers...)).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("app", "rigavatar").
		Logger()

	logger := &Logger{
		zlog:    zlog,
		file:    file,
		logPath: logPath,
		history: hist,
	}
	initLog := logger.Component("logging")
	initLog.Info().
		Str("logFile", logPath).
		Str("level", string(cfg.Level)).
		Msg("Logger initialized")

	return logger, nil
}

// ParseLevel maps a configured level to zerolog's, defaulting to info.
func ParseLevel(l LogLevel) zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	}
	return zerolog.InfoLevel
}

// SetOnLog sets a callback for real-time log streaming.
func (l *Logger) SetOnLog(fn func(LogEntry)) {
	l.history.setOnLog(fn)
}

// GetHistory returns up to limit of the most recent entries, oldest first.
// A limit of zero or less returns everything kept.
func (l *Logger) GetHistory(limit int) []LogEntry {
	return l.history.recent(limit)
}

func (l *Logger) GetLogPath() string {
	return l.logPath
}

func (l *Logger) Close() error {
	closeLog := l.Component("logging")
	closeLog.Info().Msg("Logger shutting down")
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Component returns a zerolog.Logger with the component field set
func (l *Logger) Component(name string) zerolog.Logger {
	return l.zlog.With().Str("component", name).Logger()
}

func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}

// history is an io.Writer that keeps the last max JSON log events.
type history struct {
	mu      sync.RWMutex
	entries []LogEntry
	max     int
	onLog   func(LogEntry)
}

func newHistory(max int) *history {
	return &history{entries: make([]LogEntry, 0, max), max: max}
}

func (h *history) Write(p []byte) (int, error) {
	var raw struct {
		Time      string `json:"time"`
		Level     string `json:"level"`
		Component string `json:"component"`
		Message   string `json:"message"`
		Error     string `json:"error"`
	}
	if err := json.Unmarshal(p, &raw); err != nil {
		// Not ours to fail the other writers over.
		return len(p), nil
	}
	entry := LogEntry{
		Timestamp: raw.Time,
		Level:     raw.Level,
		Component: raw.Component,
		Message:   raw.Message,
		Error:     raw.Error,
	}

	h.mu.Lock()
	h.entries = append(h.entries, entry)
	if len(h.entries) > h.max {
		h.entries = h.entries[len(h.entries)-h.max:]
	}
	cb := h.onLog
	h.mu.Unlock()

	if cb != nil {
		go cb(entry)
	}
	return len(p), nil
}

func (h *history) setOnLog(fn func(LogEntry)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onLog = fn
}

func (h *history) recent(limit int) []LogEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if limit <= 0 || limit > len(h.entries) {
		limit = len(h.entries)
	}
	result := make([]LogEntry, limit)
	copy(result, h.entries[len(h.entries)-limit:])
	return result
}
