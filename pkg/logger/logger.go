// Package logger provides leveled, file-backed logging for the engine.
// Log output never goes to the terminal; the CLI surface belongs to the
// event stream.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// Level represents log levels
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger writes tab-separated log lines with a JSON context column.
type Logger struct {
	Level   Level
	Service string

	mu     sync.Mutex
	writer io.Writer
}

var globalLogger *Logger

// Init initializes the global logger. When the log file cannot be opened,
// logging falls back to stderr instead of failing startup.
func Init(logPath string, level Level, serviceName string) error {
	globalLogger = &Logger{
		Level:   level,
		Service: serviceName,
		writer:  openLogWriter(logPath),
	}
	return nil
}

func openLogWriter(logPath string) io.Writer {
	logDir := filepath.Dir(logPath)
	if logDir != "." {
		if err := os.MkdirAll(logDir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to create log directory %s: %v\n", logDir, err)
			return os.Stderr
		}
	}
	file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to open log file %s: %v\n", logPath, err)
		return os.Stderr
	}
	return file
}

// log is the core logging method. Concurrent turns share the global logger,
// so each line is written under the lock.
func (l *Logger) log(level Level, scope string, msg string, ctx map[string]interface{}) {
	if level < l.Level {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	caller := callerRef(3)

	if l.Service != "" {
		if ctx == nil {
			ctx = make(map[string]interface{})
		}
		ctx["service"] = l.Service
	}

	jsonCtx := ""
	if len(ctx) > 0 {
		data, _ := json.Marshal(ctx)
		jsonCtx = string(data)
	}

	// Format: [Timestamp] [LEVEL] [Scope] [File:Line] Message JSON
	line := fmt.Sprintf("[%s]\t[%s]\t[%s]\t[%s]\t%s", timestamp, level.String(), scope, caller, msg)
	if jsonCtx != "" {
		line += "\t" + jsonCtx
	}
	line += "\n"

	l.mu.Lock()
	fmt.Fprint(l.writer, line)
	l.mu.Unlock()
}

// callerRef returns the call site as a path relative to the working
// directory when possible.
func callerRef(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown:0"
	}
	if root, err := os.Getwd(); err == nil {
		if rel, err := filepath.Rel(root, file); err == nil {
			return fmt.Sprintf("%s:%d", rel, line)
		}
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}

// Global functions
func Info(scope string, msg string, args ...map[string]interface{}) {
	if globalLogger == nil {
		return
	}
	globalLogger.log(INFO, scope, msg, getCtx(args))
}

func Error(scope string, msg string, args ...map[string]interface{}) {
	if globalLogger == nil {
		return
	}
	globalLogger.log(ERROR, scope, msg, getCtx(args))
}

func Debug(scope string, msg string, args ...map[string]interface{}) {
	if globalLogger == nil {
		return
	}
	globalLogger.log(DEBUG, scope, msg, getCtx(args))
}

func Warn(scope string, msg string, args ...map[string]interface{}) {
	if globalLogger == nil {
		return
	}
	globalLogger.log(WARN, scope, msg, getCtx(args))
}

func getCtx(args []map[string]interface{}) map[string]interface{} {
	if len(args) > 0 {
		return args[0]
	}
	return nil
}
