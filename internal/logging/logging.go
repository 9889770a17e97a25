// Package logging provides structured logging for the graph engine.
// Output is either line-delimited JSON (for machine consumption) or a
// human-readable single-line format.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"
)

// Level is the severity of a log message.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

var levelPriority = map[Level]int{
	DebugLevel: 0,
	InfoLevel:  1,
	WarnLevel:  2,
	ErrorLevel: 3,
}

// Format selects the log output format.
type Format string

const (
	JSONFormat  Format = "json"
	HumanFormat Format = "human"
)

// Fields carries structured context attached to a log entry.
type Fields map[string]interface{}

// Config holds logger configuration.
type Config struct {
	Format Format
	Level  Level
	Output io.Writer // defaults to stderr
}

// Logger writes structured log entries.
type Logger struct {
	config Config
	writer io.Writer
}

// NewLogger creates a logger with the given configuration.
func NewLogger(config Config) *Logger {
	w := config.Output
	if w == nil {
		w = os.Stderr
	}
	if config.Level == "" {
		config.Level = InfoLevel
	}
	return &Logger{config: config, writer: w}
}

// NewNop returns a logger that discards everything. Intended for tests.
func NewNop() *Logger {
	return NewLogger(Config{Format: JSONFormat, Level: ErrorLevel, Output: io.Discard})
}

type entry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Fields    Fields `json:"fields,omitempty"`
}

func (l *Logger) enabled(level Level) bool {
	return levelPriority[level] >= levelPriority[l.config.Level]
}

func (l *Logger) log(level Level, message string, fields Fields) {
	if !l.enabled(level) {
		return
	}
	e := entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     string(level),
		Message:   message,
		Fields:    fields,
	}
	if l.config.Format == HumanFormat {
		l.writeHuman(e)
		return
	}
	l.writeJSON(e)
}

func (l *Logger) writeJSON(e entry) {
	data, err := json.Marshal(e)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: marshal entry: %v\n", err)
		return
	}
	fmt.Fprintln(l.writer, string(data))
}

func (l *Logger) writeHuman(e entry) {
	fmt.Fprintf(l.writer, "%s [%s] %s", e.Timestamp, e.Level, e.Message)
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprint(l.writer, " |")
		for _, k := range keys {
			fmt.Fprintf(l.writer, " %s=%v", k, e.Fields[k])
		}
	}
	fmt.Fprintln(l.writer)
}

// Debug logs at debug level.
func (l *Logger) Debug(message string, fields Fields) { l.log(DebugLevel, message, fields) }

// Info logs at info level.
func (l *Logger) Info(message string, fields Fields) { l.log(InfoLevel, message, fields) }

// Warn logs at warn level.
func (l *Logger) Warn(message string, fields Fields) { l.log(WarnLevel, message, fields) }

// Error logs at error level.
func (l *Logger) Error(message string, fields Fields) { l.log(ErrorLevel, message, fields) }
