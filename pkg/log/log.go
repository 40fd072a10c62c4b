// Package log provides levelled, categorised logging for sq3.
//
// Three categories are used across the library:
//   - System: connection lifecycle, configuration
//   - Execution: statement execution, transactions
//   - Cleanup: failures surfaced on implicit cleanup paths (statement
//     finalize, transaction resolution) that have no error return to
//     propagate through
//
// Each category can be configured independently with its own level and
// output.
package log

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents a logging severity level.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelCritical
	LevelOff // Disable logging entirely
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelCritical:
		return "CRIT"
	case LevelOff:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a level string.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR", "ERR":
		return LevelError, nil
	case "CRITICAL", "CRIT":
		return LevelCritical, nil
	case "OFF", "NONE":
		return LevelOff, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}

// Category identifies the logging category.
type Category string

const (
	CategorySystem    Category = "system"    // Connection lifecycle, config
	CategoryExecution Category = "execution" // Statement execution, transactions
	CategoryCleanup   Category = "cleanup"   // Implicit cleanup failures
)

var categories = []Category{
	CategorySystem,
	CategoryExecution,
	CategoryCleanup,
}

// Format specifies the output format.
type Format int

const (
	FormatText Format = iota // Human-readable text
	FormatJSON               // Structured JSON
)

// ParseFormat parses a format string.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("unknown log format: %s", s)
	}
}

// Entry represents a single log entry.
type Entry struct {
	Time     time.Time      `json:"time"`
	Level    Level          `json:"level"`
	Category Category       `json:"category"`
	Message  string         `json:"message"`
	Fields   map[string]any `json:"fields,omitempty"`
	Error    error          `json:"-"`
	ErrorStr string         `json:"error,omitempty"`
}

// Logger is the main logging interface.
type Logger struct {
	mu sync.RWMutex

	levels  map[Category]Level
	outputs map[Category]io.Writer
	format  Format
}

// Config holds logger configuration.
type Config struct {
	// Default level for all categories.
	DefaultLevel Level

	// Per-category level overrides.
	CategoryLevels map[Category]Level

	// Output configuration.
	Output io.Writer // Default output (os.Stderr if nil)
	Format Format
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		DefaultLevel: LevelInfo,
		Output:       os.Stderr,
		Format:       FormatText,
	}
}

// New creates a new logger with the given configuration.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	l := &Logger{
		levels:  make(map[Category]Level),
		outputs: make(map[Category]io.Writer),
		format:  cfg.Format,
	}

	for _, cat := range categories {
		l.levels[cat] = cfg.DefaultLevel
		l.outputs[cat] = cfg.Output
	}
	for cat, level := range cfg.CategoryLevels {
		l.levels[cat] = level
	}

	return l
}

// SetLevel sets the log level for a category.
func (l *Logger) SetLevel(cat Category, level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.levels[cat] = level
}

// SetOutput sets the output writer for a category.
func (l *Logger) SetOutput(cat Category, w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outputs[cat] = w
}

// SetFormat sets the output format.
func (l *Logger) SetFormat(f Format) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.format = f
}

// System returns a category logger for system events.
func (l *Logger) System() *CategoryLogger {
	return &CategoryLogger{logger: l, category: CategorySystem}
}

// Execution returns a category logger for execution events.
func (l *Logger) Execution() *CategoryLogger {
	return &CategoryLogger{logger: l, category: CategoryExecution}
}

// Cleanup returns a category logger for implicit cleanup failures.
func (l *Logger) Cleanup() *CategoryLogger {
	return &CategoryLogger{logger: l, category: CategoryCleanup}
}

// log is the internal logging implementation.
func (l *Logger) log(level Level, cat Category, msg string, err error, fields ...any) {
	l.mu.RLock()
	catLevel := l.levels[cat]
	output := l.outputs[cat]
	format := l.format
	l.mu.RUnlock()

	if level < catLevel {
		return
	}

	entry := &Entry{
		Time:     time.Now(),
		Level:    level,
		Category: cat,
		Message:  msg,
		Error:    err,
	}
	if err != nil {
		entry.ErrorStr = err.Error()
	}

	// Fields arrive as key-value pairs.
	if len(fields) > 0 {
		entry.Fields = make(map[string]any)
		for i := 0; i < len(fields)-1; i += 2 {
			if key, ok := fields[i].(string); ok {
				entry.Fields[key] = fields[i+1]
			}
		}
	}

	l.writeEntry(output, format, entry)
}

// writeEntry formats and writes an entry.
func (l *Logger) writeEntry(w io.Writer, format Format, entry *Entry) {
	var line string

	switch format {
	case FormatJSON:
		data, _ := json.Marshal(entry)
		line = string(data) + "\n"
	default:
		line = formatText(entry)
	}

	w.Write([]byte(line))
}

// formatText formats an entry as human-readable text.
func formatText(entry *Entry) string {
	var buf strings.Builder

	buf.WriteString(entry.Time.Format("2006-01-02 15:04:05.000"))
	buf.WriteString(" ")
	buf.WriteString(fmt.Sprintf("%-5s", entry.Level.String()))
	buf.WriteString(" [")
	buf.WriteString(string(entry.Category))
	buf.WriteString("] ")
	buf.WriteString(entry.Message)

	if entry.ErrorStr != "" {
		buf.WriteString(" error=\"")
		buf.WriteString(entry.ErrorStr)
		buf.WriteString("\"")
	}

	for k, v := range entry.Fields {
		buf.WriteString(" ")
		buf.WriteString(k)
		buf.WriteString("=")
		buf.WriteString(fmt.Sprintf("%v", v))
	}

	buf.WriteString("\n")
	return buf.String()
}

// CategoryLogger is a logger bound to a specific category.
type CategoryLogger struct {
	logger   *Logger
	category Category
}

func (cl *CategoryLogger) Debug(msg string, fields ...any) {
	cl.logger.log(LevelDebug, cl.category, msg, nil, fields...)
}

func (cl *CategoryLogger) Info(msg string, fields ...any) {
	cl.logger.log(LevelInfo, cl.category, msg, nil, fields...)
}

func (cl *CategoryLogger) Warn(msg string, fields ...any) {
	cl.logger.log(LevelWarn, cl.category, msg, nil, fields...)
}

func (cl *CategoryLogger) Error(msg string, err error, fields ...any) {
	cl.logger.log(LevelError, cl.category, msg, err, fields...)
}

func (cl *CategoryLogger) Critical(msg string, err error, fields ...any) {
	cl.logger.log(LevelCritical, cl.category, msg, err, fields...)
}

// Default logger instance
var (
	defaultLogger *Logger
	defaultMu     sync.RWMutex
)

// Default returns the default logger instance.
func Default() *Logger {
	defaultMu.RLock()
	l := defaultLogger
	defaultMu.RUnlock()
	if l != nil {
		return l
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = New(DefaultConfig())
	}
	return defaultLogger
}

// SetDefault sets the default logger instance.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}
