// Package security provides structured JSON logging for operational and security events.
package security

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"
)

// LogLevel is the severity of a log entry.
type LogLevel string

// Log levels, lowest first. SECURITY entries are never filtered.
const (
	LogLevelDebug    LogLevel = "DEBUG"
	LogLevelInfo     LogLevel = "INFO"
	LogLevelWarning  LogLevel = "WARNING"
	LogLevelError    LogLevel = "ERROR"
	LogLevelCritical LogLevel = "CRITICAL"
	LogLevelSecurity LogLevel = "SECURITY"
)

var levelRank = map[LogLevel]int{
	LogLevelDebug:    0,
	LogLevelInfo:     1,
	LogLevelWarning:  2,
	LogLevelError:    3,
	LogLevelCritical: 4,
	LogLevelSecurity: 5,
}

// ParseLogLevel maps a LOG_LEVEL value to a LogLevel, defaulting to INFO.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LogLevelDebug
	case "WARN", "WARNING":
		return LogLevelWarning
	case "ERROR":
		return LogLevelError
	case "CRITICAL":
		return LogLevelCritical
	default:
		return LogLevelInfo
	}
}

// SecurityEventType names an auditable event in the data protection domain.
type SecurityEventType string

// Security event types.
const (
	EventAnalysis                SecurityEventType = "analysis"
	EventPolicyCreate            SecurityEventType = "policy_create"
	EventPolicyUpdate            SecurityEventType = "policy_update"
	EventPolicyDelete            SecurityEventType = "policy_delete"
	EventPolicyRestore           SecurityEventType = "policy_restore"
	EventAlertCreate             SecurityEventType = "alert_create"
	EventAlertStatusChange       SecurityEventType = "alert_status_change"
	EventTransferBlocked         SecurityEventType = "transfer_blocked"
	EventBlockBurst              SecurityEventType = "block_burst"
	EventCollaboratorUnavailable SecurityEventType = "collaborator_unavailable"
	EventAuditWriteFailure       SecurityEventType = "audit_write_failure"
	EventRateLimitExceeded       SecurityEventType = "rate_limit_exceeded"
	EventAccessDenied            SecurityEventType = "access_denied"
)

// LogEntry is one JSON log line.
type LogEntry struct {
	Timestamp    time.Time              `json:"timestamp"`
	Level        LogLevel               `json:"level"`
	Message      string                 `json:"message"`
	EventType    SecurityEventType      `json:"event_type,omitempty"`
	SourceUser   string                 `json:"source_user,omitempty"`
	SourceIP     string                 `json:"source_ip,omitempty"`
	SourceDevice string                 `json:"source_device,omitempty"`
	Method       string                 `json:"method,omitempty"`
	Path         string                 `json:"path,omitempty"`
	Status       int                    `json:"status,omitempty"`
	LatencyMS    int64                  `json:"latency_ms,omitempty"`
	Error        string                 `json:"error,omitempty"`
	Extra        map[string]interface{} `json:"extra,omitempty"`
}

// Logger writes LogEntry values as single JSON lines.
// It is safe for concurrent use.
type Logger struct {
	output   *log.Logger
	minLevel LogLevel
}

// NewLogger creates a logger writing to stdout at INFO level.
func NewLogger() *Logger {
	return &Logger{
		output:   log.New(os.Stdout, "", 0),
		minLevel: LogLevelInfo,
	}
}

// NewLoggerWithLevel creates a stdout logger that drops entries below level.
func NewLoggerWithLevel(level LogLevel) *Logger {
	l := NewLogger()
	l.minLevel = level
	return l
}

// NewLoggerWithOutput creates a logger writing to w that drops entries below level.
func NewLoggerWithOutput(w io.Writer, level LogLevel) *Logger {
	return &Logger{
		output:   log.New(w, "", 0),
		minLevel: level,
	}
}

func (l *Logger) enabled(level LogLevel) bool {
	return levelRank[level] >= levelRank[l.minLevel]
}

func (l *Logger) write(entry LogEntry) {
	if !l.enabled(entry.Level) {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		l.output.Printf(`{"level":"ERROR","message":"failed to encode log entry: %s"}`, err)
		return
	}
	l.output.Println(string(data))
}

// Debug logs a debug message.
func (l *Logger) Debug(message string) {
	l.write(LogEntry{Level: LogLevelDebug, Message: message})
}

// Info logs an informational message.
func (l *Logger) Info(message string) {
	l.write(LogEntry{Level: LogLevelInfo, Message: message})
}

// InfoWithFields logs an informational message with extra fields.
func (l *Logger) InfoWithFields(message string, extra map[string]interface{}) {
	l.write(LogEntry{Level: LogLevelInfo, Message: message, Extra: extra})
}

// Warn logs a warning.
func (l *Logger) Warn(message string) {
	l.write(LogEntry{Level: LogLevelWarning, Message: message})
}

// WarnWithFields logs a warning with extra fields.
func (l *Logger) WarnWithFields(message string, extra map[string]interface{}) {
	l.write(LogEntry{Level: LogLevelWarning, Message: message, Extra: extra})
}

// Error logs an error. err may be nil.
func (l *Logger) Error(message string, err error) {
	entry := LogEntry{Level: LogLevelError, Message: message}
	if err != nil {
		entry.Error = err.Error()
	}
	l.write(entry)
}

// Critical logs a failure that needs operator attention. err may be nil.
func (l *Logger) Critical(message string, err error) {
	entry := LogEntry{Level: LogLevelCritical, Message: message}
	if err != nil {
		entry.Error = err.Error()
	}
	l.write(entry)
}

// SecurityEvent logs an auditable event. SECURITY entries bypass level filtering.
func (l *Logger) SecurityEvent(eventType SecurityEventType, sourceUser, sourceIP, sourceDevice string, extra map[string]interface{}) {
	l.write(LogEntry{
		Level:        LogLevelSecurity,
		Message:      fmt.Sprintf("security event: %s", eventType),
		EventType:    eventType,
		SourceUser:   sourceUser,
		SourceIP:     sourceIP,
		SourceDevice: sourceDevice,
		Extra:        extra,
	})
}

// HTTPRequest logs one served request.
func (l *Logger) HTTPRequest(method, path string, status int, latencyMS int64, sourceIP string) {
	level := LogLevelInfo
	if status >= 500 {
		level = LogLevelError
	} else if status >= 400 {
		level = LogLevelWarning
	}
	l.write(LogEntry{
		Level:     level,
		Message:   fmt.Sprintf("%s %s %d", method, path, status),
		Method:    method,
		Path:      path,
		Status:    status,
		LatencyMS: latencyMS,
		SourceIP:  sourceIP,
	})
}
