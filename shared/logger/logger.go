// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package logger

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of a log entry
type LogLevel string

const (
	DEBUG LogLevel = "DEBUG"
	INFO  LogLevel = "INFO"
	WARN  LogLevel = "WARN"
	ERROR LogLevel = "ERROR"
)

var levelRank = map[LogLevel]int{
	DEBUG: 0,
	INFO:  1,
	WARN:  2,
	ERROR: 3,
}

// ParseLevel maps a LOG_LEVEL value to a LogLevel, defaulting to INFO.
func ParseLevel(s string) LogLevel {
	lvl := LogLevel(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := levelRank[lvl]; ok {
		return lvl
	}
	return INFO
}

// Logger writes structured single-line JSON entries for one gateway component.
type Logger struct {
	Component  string
	InstanceID string
	WorkerPID  int

	min LogLevel
	mu  *sync.Mutex // shared with loggers derived via With
	out io.Writer
}

// LogEntry is the wire shape of a log line.
type LogEntry struct {
	Timestamp  string                 `json:"timestamp"`
	Level      LogLevel               `json:"level"`
	Component  string                 `json:"component"`
	InstanceID string                 `json:"instance_id"`
	WorkerPID  int                    `json:"worker_pid"`
	ClientIP   string                 `json:"client_ip,omitempty"`
	RequestID  string                 `json:"request_id,omitempty"`
	Message    string                 `json:"message"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// New creates a Logger for the component writing to stdout.
func New(component string) *Logger {
	return NewWithWriter(component, os.Stdout)
}

// NewWithWriter creates a Logger writing to w. The minimum level is read
// from LOG_LEVEL.
func NewWithWriter(component string, w io.Writer) *Logger {
	instanceID := os.Getenv("INSTANCE_ID")
	if instanceID == "" {
		instanceID = "unknown"
	}
	return &Logger{
		Component:  component,
		InstanceID: instanceID,
		WorkerPID:  os.Getpid(),
		min:        ParseLevel(os.Getenv("LOG_LEVEL")),
		mu:         &sync.Mutex{},
		out:        w,
	}
}

// With returns a logger for a sub-component sharing the same writer.
func (l *Logger) With(component string) *Logger {
	return &Logger{
		Component:  l.Component + "." + component,
		InstanceID: l.InstanceID,
		WorkerPID:  l.WorkerPID,
		min:        l.min,
		mu:         l.mu,
		out:        l.out,
	}
}

// SetLevel changes the minimum level written.
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	l.min = level
	l.mu.Unlock()
}

// Enabled reports whether entries at level are written.
func (l *Logger) Enabled(level LogLevel) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return levelRank[level] >= levelRank[l.min]
}

// Log builds and writes one entry.
func (l *Logger) Log(level LogLevel, clientIP, requestID, message string, fields map[string]interface{}) {
	if !l.Enabled(level) {
		return
	}
	entry := LogEntry{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Level:      level,
		Component:  l.Component,
		InstanceID: l.InstanceID,
		WorkerPID:  l.WorkerPID,
		ClientIP:   clientIP,
		RequestID:  requestID,
		Message:    message,
		Fields:     fields,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		log.Printf("ERROR: Failed to marshal log entry: %v", err)
		return
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.out.Write(data); err != nil {
		log.Printf("ERROR: Failed to write log entry: %v", err)
	}
}

// Info logs an informational message
func (l *Logger) Info(clientIP, requestID, message string, fields map[string]interface{}) {
	l.Log(INFO, clientIP, requestID, message, fields)
}

// Error logs an error message
func (l *Logger) Error(clientIP, requestID, message string, fields map[string]interface{}) {
	l.Log(ERROR, clientIP, requestID, message, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(clientIP, requestID, message string, fields map[string]interface{}) {
	l.Log(WARN, clientIP, requestID, message, fields)
}

// Debug logs a debug message
func (l *Logger) Debug(clientIP, requestID, message string, fields map[string]interface{}) {
	l.Log(DEBUG, clientIP, requestID, message, fields)
}

// InfoWithDuration logs an info message with a duration_ms field.
func (l *Logger) InfoWithDuration(clientIP, requestID, message string, d time.Duration, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["duration_ms"] = float64(d.Microseconds()) / 1000.0
	l.Info(clientIP, requestID, message, fields)
}

// ErrorWithCode logs an error with status code
func (l *Logger) ErrorWithCode(clientIP, requestID, message string, statusCode int, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["status_code"] = statusCode
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Error(clientIP, requestID, message, fields)
}

// Nop returns a logger that discards everything. Useful in tests.
func Nop() *Logger {
	l := NewWithWriter("nop", io.Discard)
	l.min = ERROR
	return l
}
