// Package logging provides leveled console logging for the task lifecycle
// packages. Output is a single line per entry:
//
//	LEVEL TIMESTAMP [component] message key=value ...
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// levelPriority maps levels to numeric priority for filtering.
var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// ParseLevel converts a configuration string to a Level.
// Unknown values fall back to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// Fields are key/value pairs appended to a log line.
type Fields map[string]interface{}

// Logger writes leveled log lines. Loggers derived with WithComponent or
// WithTaskID share the output, level and write lock of their parent.
type Logger struct {
	sink      *sink
	component string
	taskID    string
}

type sink struct {
	mu       sync.Mutex
	output   io.Writer
	minLevel Level
}

// New creates a new Logger writing INFO and above to stdout.
func New() *Logger {
	return &Logger{
		sink: &sink{output: os.Stdout, minLevel: LevelInfo},
	}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return &Logger{
		sink: &sink{output: io.Discard, minLevel: LevelError},
	}
}

// WithComponent returns a new logger with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{sink: l.sink, component: component, taskID: l.taskID}
}

// WithTaskID returns a new logger that tags every line with task=<id>.
func (l *Logger) WithTaskID(taskID string) *Logger {
	return &Logger{sink: l.sink, component: l.component, taskID: taskID}
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.minLevel = level
}

// SetOutput sets the output writer (default: stdout).
func (l *Logger) SetOutput(w io.Writer) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.output = w
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...Fields) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...Fields) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...Fields) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...Fields) {
	l.log(LevelError, msg, fields...)
}

// formatFields formats fields as key=value pairs in key order.
func formatFields(fields Fields) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return " " + strings.Join(parts, " ")
}

func (l *Logger) log(level Level, msg string, fields ...Fields) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	if levelPriority[level] < levelPriority[l.sink.minLevel] {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	merged := Fields{}
	if len(fields) > 0 && fields[0] != nil {
		for k, v := range fields[0] {
			merged[k] = v
		}
	}
	if l.taskID != "" {
		merged["task"] = l.taskID
	}
	fieldStr := formatFields(merged)

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.sink.output.Write([]byte(line))
}

// --- Task lifecycle events ---

// TaskCreated logs creation of a task.
func (l *Logger) TaskCreated(taskID string, ttl time.Duration, hasTTL bool) {
	fields := Fields{"task": taskID}
	if hasTTL {
		fields["ttl"] = ttl.String()
	} else {
		fields["ttl"] = "none"
	}
	l.Debug("task_created", fields)
}

// TaskTransition logs a status change. Progress updates that stay in the
// working status are logged at DEBUG; terminal transitions at INFO.
func (l *Logger) TaskTransition(taskID, from, to string, terminal bool) {
	fields := Fields{"task": taskID, "from": from, "to": to}
	if terminal {
		l.Info("task_terminal", fields)
		return
	}
	l.Debug("task_progress", fields)
}

// TaskExpired logs a record dropped because its TTL elapsed.
func (l *Logger) TaskExpired(taskID string) {
	l.Debug("task_expired", Fields{"task": taskID})
}

// SweepComplete logs the outcome of a periodic expiry sweep.
func (l *Logger) SweepComplete(purged int, duration time.Duration, err error) {
	fields := Fields{"purged": purged, "duration": duration.String()}
	if err != nil {
		fields["error"] = err.Error()
		l.Warn("sweep_failed", fields)
		return
	}
	if purged > 0 {
		l.Info("sweep_complete", fields)
		return
	}
	l.Debug("sweep_complete", fields)
}
