package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/tomoyayamashita/iocgate/internal/ecosystem"
	"github.com/tomoyayamashita/iocgate/internal/policy"
)

// Level represents log level
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// ParseLevel converts a --log-level value into a Level
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return Level(s), nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Logger provides JSON Lines logging
type Logger struct {
	writer io.Writer
	level  Level
}

// NewLogger creates a new Logger
func NewLogger(writer io.Writer, level Level) *Logger {
	if writer == nil {
		writer = os.Stderr
	}
	return &Logger{
		writer: writer,
		level:  level,
	}
}

// Discard returns a Logger that writes nothing
func Discard() *Logger {
	return NewLogger(io.Discard, LevelError)
}

// FindingEvent represents an indicator found in a lockfile
type FindingEvent struct {
	Timestamp       string `json:"ts"`
	Level           string `json:"level"`
	Event           string `json:"event"`
	Ecosystem       string `json:"ecosystem"`
	Name            string `json:"name"`
	Version         string `json:"version"`
	ExpectedVersion string `json:"expected_version,omitempty"`
	Status          string `json:"status"`
	Lockfile        string `json:"lockfile"`
	RequestID       string `json:"request_id,omitempty"`
}

// LogFinding logs a match or version mismatch. pkg carries the version
// resolved in the lockfile; expected is the version named by the feed.
func (l *Logger) LogFinding(
	pkg ecosystem.PackageIdentity,
	expected string,
	status string,
	lockfile string,
	requestID string,
) {
	if !l.shouldLog(LevelWarn) {
		return
	}

	l.writeJSON(FindingEvent{
		Timestamp:       time.Now().UTC().Format(time.RFC3339Nano),
		Level:           string(LevelWarn),
		Event:           "finding",
		Ecosystem:       string(pkg.Ecosystem),
		Name:            pkg.Name,
		Version:         pkg.Version,
		ExpectedVersion: expected,
		Status:          status,
		Lockfile:        lockfile,
		RequestID:       requestID,
	})
}

// DecisionEvent represents the policy decision for a whole scan
type DecisionEvent struct {
	Timestamp string `json:"ts"`
	Level     string `json:"level"`
	Event     string `json:"event"`
	Decision  string `json:"decision"`
	Reason    string `json:"reason"`
	Mode      string `json:"mode"`
	CI        bool   `json:"ci"`
	RequestID string `json:"request_id,omitempty"`
}

// LogDecision logs the policy decision taken for a scan
func (l *Logger) LogDecision(result policy.PolicyResult, mode policy.Mode, isCI bool, requestID string) {
	level := LevelInfo
	if result.ShouldBlock() {
		level = LevelError
	} else if result.ShouldWarn() {
		level = LevelWarn
	}

	if !l.shouldLog(level) {
		return
	}

	l.writeJSON(DecisionEvent{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     string(level),
		Event:     "policy_decision",
		Decision:  string(result.Decision),
		Reason:    result.Reason,
		Mode:      string(mode),
		CI:        isCI,
		RequestID: requestID,
	})
}

// GenericEvent represents a generic log event
type GenericEvent struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Event     string                 `json:"event"`
	Message   string                 `json:"message,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Log logs a generic event
func (l *Logger) Log(level Level, event, message string, data map[string]interface{}) {
	e := GenericEvent{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     string(level),
		Event:     event,
		Message:   message,
		Data:      data,
	}

	l.writeJSON(e)
}

// Debug logs a debug event
func (l *Logger) Debug(event, message string, data map[string]interface{}) {
	if l.shouldLog(LevelDebug) {
		l.Log(LevelDebug, event, message, data)
	}
}

// Info logs an info event
func (l *Logger) Info(event, message string, data map[string]interface{}) {
	if l.shouldLog(LevelInfo) {
		l.Log(LevelInfo, event, message, data)
	}
}

// Warn logs a warning event
func (l *Logger) Warn(event, message string, data map[string]interface{}) {
	if l.shouldLog(LevelWarn) {
		l.Log(LevelWarn, event, message, data)
	}
}

// Error logs an error event
func (l *Logger) Error(event, message string, data map[string]interface{}) {
	if l.shouldLog(LevelError) {
		l.Log(LevelError, event, message, data)
	}
}

// writeJSON writes a JSON line to the output
func (l *Logger) writeJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		// Fallback to stderr if marshal fails
		os.Stderr.WriteString("Failed to marshal log: " + err.Error() + "\n")
		return
	}

	l.writer.Write(append(data, '\n'))
}

// shouldLog checks if a log level should be logged
func (l *Logger) shouldLog(level Level) bool {
	levels := map[Level]int{
		LevelDebug: 0,
		LevelInfo:  1,
		LevelWarn:  2,
		LevelError: 3,
	}

	return levels[level] >= levels[l.level]
}
