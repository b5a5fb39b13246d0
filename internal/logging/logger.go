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

// LogEntry is one recorded log line
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Component string `json:"component"`
	Message   string `json:"message"`
	Error     string `json:"error,omitempty"`
}

// Config holds logger configuration
type Config struct {
	Dir        string // Directory for log files; empty disables the file
	Level      string // Minimum level (default: info)
	MaxHistory int    // Max entries kept in memory (default: 1000)
	Console    bool   // Also log to the console
	Out        io.Writer
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Dir:        filepath.Join(home, ".cortexanim", "logs"),
		Level:      "info",
		MaxHistory: 1000,
		Console:    true,
	}
}

// Logger wraps zerolog with file output and log history
type Logger struct {
	zlog    zerolog.Logger
	file    *os.File
	logPath string

	mu      sync.RWMutex
	history []LogEntry
	maxHist int
}

// New creates a Logger writing to a daily file, the console, and memory.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	level := zerolog.InfoLevel
	if cfg.Level != "" {
		lvl, err := zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		level = lvl
	}
	maxHist := cfg.MaxHistory
	if maxHist <= 0 {
		maxHist = 1000
	}

	l := &Logger{
		history: make([]LogEntry, 0, maxHist),
		maxHist: maxHist,
	}

	writers := []io.Writer{historyWriter{l}}

	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		logFileName := fmt.Sprintf("cortexanim_%s.log", time.Now().Format("2006-01-02"))
		l.logPath = filepath.Join(cfg.Dir, logFileName)

		file, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		l.file = file
		writers = append(writers, file)
	}

	if cfg.Console {
		out := cfg.Out
		if out == nil {
			out = os.Stderr
		}
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
		})
	}

	l.zlog = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Str("app", "cortexanim").
		Logger()

	l.zlog.Debug().Str("component", "logging").Str("file", l.logPath).Str("level", level.String()).Msg("Logger initialized")
	return l, nil
}

// historyWriter records every line the logger emits.
type historyWriter struct{ l *Logger }

func (w historyWriter) Write(p []byte) (int, error) {
	var line struct {
		Time      string `json:"time"`
		Level     string `json:"level"`
		Component string `json:"component"`
		Message   string `json:"message"`
		Error     string `json:"error"`
	}
	if err := json.Unmarshal(p, &line); err == nil {
		w.l.addToHistory(LogEntry{
			Timestamp: line.Time,
			Level:     line.Level,
			Component: line.Component,
			Message:   line.Message,
			Error:     line.Error,
		})
	}
	return len(p), nil
}

func (l *Logger) addToHistory(entry LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.history = append(l.history, entry)
	if len(l.history) > l.maxHist {
		l.history = l.history[len(l.history)-l.maxHist:]
	}
}

// History returns up to limit of the most recent entries; limit <= 0 means all.
func (l *Logger) History(limit int) []LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 || limit > len(l.history) {
		limit = len(l.history)
	}
	result := make([]LogEntry, limit)
	copy(result, l.history[len(l.history)-limit:])
	return result
}

// Path returns the current log file path, empty without a file.
func (l *Logger) Path() string {
	return l.logPath
}

// Close closes the log file
func (l *Logger) Close() error {
	l.zlog.Debug().Str("component", "logging").Msg("Logger shutting down")
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Component returns a zerolog.Logger with the component field set
func (l *Logger) Component(name string) zerolog.Logger {
	return l.zlog.With().Str("component", name).Logger()
}

// Zerolog returns the underlying zerolog.Logger
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}
