package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Fields map[string]interface{}

type Level int

const (
	DEBUG Level = iota
	INFO
	WARNING
	ERROR
	CRITICAL
)

var levelNames = map[Level]string{
	DEBUG:    "DEBUG",
	INFO:     "INFO",
	WARNING:  "WARNING",
	ERROR:    "ERROR",
	CRITICAL: "CRITICAL",
}

type Logger struct {
	mu     sync.RWMutex
	level  Level
	out    *log.Logger
	closer io.Closer
}

// New logs to stderr and, when logDir is set, to a rotated app.log inside it.
func New(logDir, level string) (*Logger, error) {
	l := &Logger{level: ParseLevel(level)}

	var w io.Writer = os.Stderr
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		fileWriter := &lumberjack.Logger{
			Filename:   filepath.Join(logDir, "app.log"),
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
		l.closer = fileWriter
		w = io.MultiWriter(os.Stderr, fileWriter)
	}
	l.out = log.New(w, "", log.LstdFlags)
	return l, nil
}

// NewWriter is used by tests to capture output.
func NewWriter(w io.Writer, level Level) *Logger {
	return &Logger{level: level, out: log.New(w, "", 0)}
}

// Discard drops everything.
func Discard() *Logger {
	return NewWriter(io.Discard, CRITICAL+1)
}

func (l *Logger) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

func (l *Logger) logWithFields(level Level, msg string, fields Fields) {
	l.mu.RLock()
	current := l.level
	l.mu.RUnlock()
	if level < current {
		return
	}

	prefix := fmt.Sprintf("[%s]", levelNames[level])
	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
		}
		prefix = fmt.Sprintf("%s [%s]", prefix, strings.Join(parts, " "))
	}
	l.out.Print(prefix + " " + msg)
}

func (l *Logger) Debugf(format string, args ...any) {
	l.logWithFields(DEBUG, fmt.Sprintf(format, args...), nil)
}

func (l *Logger) Infof(format string, args ...any) {
	l.logWithFields(INFO, fmt.Sprintf(format, args...), nil)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.logWithFields(WARNING, fmt.Sprintf(format, args...), nil)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.logWithFields(ERROR, fmt.Sprintf(format, args...), nil)
}

func (l *Logger) Fatalf(format string, args ...any) {
	l.logWithFields(CRITICAL, fmt.Sprintf(format, args...), nil)
	os.Exit(1)
}

func (l *Logger) WithFields(fields Fields) *Entry {
	return &Entry{logger: l, fields: fields}
}

type Entry struct {
	logger *Logger
	fields Fields
}

func (e *Entry) Debug(msg string) { e.logger.logWithFields(DEBUG, msg, e.fields) }
func (e *Entry) Info(msg string)  { e.logger.logWithFields(INFO, msg, e.fields) }
func (e *Entry) Warn(msg string)  { e.logger.logWithFields(WARNING, msg, e.fields) }
func (e *Entry) Error(msg string) { e.logger.logWithFields(ERROR, msg, e.fields) }

func (e *Entry) Errorf(format string, args ...any) {
	e.logger.logWithFields(ERROR, fmt.Sprintf(format, args...), e.fields)
}

func ParseLevel(value string) Level {
	switch strings.TrimSpace(strings.ToUpper(value)) {
	case "DEBUG":
		return DEBUG
	case "WARNING", "WARN":
		return WARNING
	case "ERROR":
		return ERROR
	case "CRITICAL":
		return CRITICAL
	default:
		return INFO
	}
}
