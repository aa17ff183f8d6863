// Package observability provides structured logging and Prometheus metrics
// for the harvester components.
package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// Logger defines the interface for structured logging in the application.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})

	// WithFields returns a new Logger with the given fields added to all
	// subsequent log lines.
	WithFields(fields map[string]interface{}) Logger
}

// LogLevel represents logging severity.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// ParseLevel converts a level name to a LogLevel, defaulting to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	default:
		return "unknown"
	}
}

// stdLogger writes structured log lines to a single writer, either as
// key=value text or as JSON.
type stdLogger struct {
	mu     *sync.Mutex
	out    io.Writer
	level  LogLevel
	json   bool
	fields map[string]interface{}
}

// NewLogger creates a logger for the given service scoped with a service field.
func NewLogger(service, level string, jsonOutput bool, out io.Writer) Logger {
	return &stdLogger{
		mu:     &sync.Mutex{},
		out:    out,
		level:  ParseLevel(level),
		json:   jsonOutput,
		fields: map[string]interface{}{"service": service},
	}
}

func (l *stdLogger) Debug(msg string, fields ...interface{}) { l.log(DebugLevel, msg, fields...) }
func (l *stdLogger) Info(msg string, fields ...interface{})  { l.log(InfoLevel, msg, fields...) }
func (l *stdLogger) Warn(msg string, fields ...interface{})  { l.log(WarnLevel, msg, fields...) }
func (l *stdLogger) Error(msg string, fields ...interface{}) { l.log(ErrorLevel, msg, fields...) }

// WithFields returns a new Logger with additional fields.
func (l *stdLogger) WithFields(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	return &stdLogger{
		mu:     l.mu,
		out:    l.out,
		level:  l.level,
		json:   l.json,
		fields: merged,
	}
}

func (l *stdLogger) log(level LogLevel, msg string, fields ...interface{}) {
	if level < l.level {
		return
	}

	entry := l.createEntry(level, msg, fields...)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.json {
		l.writeJSON(entry)
	} else {
		l.writeText(level, msg, entry)
	}
}

func (l *stdLogger) createEntry(level LogLevel, msg string, fields ...interface{}) map[string]interface{} {
	entry := make(map[string]interface{})
	entry["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	entry["level"] = strings.ToUpper(level.String())
	entry["message"] = msg

	for k, v := range l.fields {
		entry[k] = v
	}

	// Variadic fields come in key1, value1, key2, value2 pairs.
	for i := 0; i < len(fields)-1; i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		if err, ok := fields[i+1].(error); ok && err != nil {
			entry[key] = err.Error()
			continue
		}
		entry[key] = fields[i+1]
	}

	return entry
}

func (l *stdLogger) writeJSON(entry map[string]interface{}) {
	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(l.out, "{\"level\":\"ERROR\",\"message\":\"failed to marshal log entry: %v\"}\n", err)
		return
	}
	fmt.Fprintln(l.out, string(data))
}

func (l *stdLogger) writeText(level LogLevel, msg string, entry map[string]interface{}) {
	keys := make([]string, 0, len(entry))
	for k := range entry {
		if k == "timestamp" || k == "level" || k == "message" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %s", entry["timestamp"], strings.ToUpper(level.String()), msg)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry[k])
	}
	fmt.Fprintln(l.out, b.String())
}
