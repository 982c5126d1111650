package logger

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"strings"

	"github.com/sirupsen/logrus"
)

type ctxKey string

// Context keys whose values are added to log fields when a context.Context
// is passed as a log argument.
const (
	DatasetIDKey ctxKey = "datasetID"
	TaskIDKey    ctxKey = "taskID"
	LoopKey      ctxKey = "loop"
)

var ctxKeys = []ctxKey{DatasetIDKey, TaskIDKey, LoopKey}

// Logger handles structured logging.
type Logger struct {
	base *logrus.Logger
	log  *logrus.Entry
}

// New returns a new Logger instance with the given namespace.
// After the namespace, args are key-value pairs added to every message.
func New(ns string, args ...interface{}) *Logger {
	base := logrus.New()
	base.SetLevel(logrus.InfoLevel)
	f := fields(args...)
	f["ns"] = ns
	return &Logger{base: base, log: base.WithFields(f)}
}

// NewLogger returns a new Logger configured with the given config.
func NewLogger(ns string, conf Config) *Logger {
	l := New(ns)
	l.Configure(conf)
	return l
}

// Sub returns a child logger with a new namespace. The child shares
// the level, formatter and output of its parent.
func (l *Logger) Sub(ns string, args ...interface{}) *Logger {
	f := fields(args...)
	f["ns"] = ns
	return &Logger{base: l.base, log: l.log.WithFields(f)}
}

// WithFields returns a new Logger instance with the given fields added to all log messages.
func (l *Logger) WithFields(args ...interface{}) *Logger {
	defer recoverLogErr()
	return &Logger{base: l.base, log: l.log.WithFields(fields(args...))}
}

// SetLevel sets the level of logging.
func (l *Logger) SetLevel(lvl string) {
	switch strings.ToLower(lvl) {
	case "debug":
		l.base.SetLevel(logrus.DebugLevel)
	case "warn", "warning":
		l.base.SetLevel(logrus.WarnLevel)
	case "error":
		l.base.SetLevel(logrus.ErrorLevel)
	default:
		l.base.SetLevel(logrus.InfoLevel)
	}
}

// SetFormatter sets the formatter of the logger.
func (l *Logger) SetFormatter(f logrus.Formatter) {
	l.base.SetFormatter(f)
}

// SetOutput sets the output of the logger.
func (l *Logger) SetOutput(w io.Writer) {
	l.base.SetOutput(w)
}

// Discard configures the logger to discard all logs.
func (l *Logger) Discard() {
	l.base.SetOutput(ioutil.Discard)
}

// Debug logs a debug message.
//
// After the first argument, arguments are key-value pairs which are written as structured logs.
//
//	log.Debug("Some message here", "key1", value1, "key2", value2)
func (l *Logger) Debug(msg string, args ...interface{}) {
	defer recoverLogErr()
	l.log.WithFields(fields(args...)).Debug(msg)
}

// Info logs an info message.
//
//	log.Info("Some message here", "key1", value1, "key2", value2)
func (l *Logger) Info(msg string, args ...interface{}) {
	defer recoverLogErr()
	l.log.WithFields(fields(args...)).Info(msg)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...interface{}) {
	defer recoverLogErr()
	l.log.WithFields(fields(args...)).Warn(msg)
}

// Error logs an error message.
//
// Error has a two-argument version that can be used as a shortcut.
//
//	err := startServer()
//	log.Error("Couldn't start server", err)
func (l *Logger) Error(msg string, args ...interface{}) {
	defer recoverLogErr()
	l.log.WithFields(fields(args...)).Error(msg)
}

// recoverLogErr is used to recover from any panics during logging.
// Logging should never crash a program.
func recoverLogErr() {
	if r := recover(); r != nil {
		fmt.Println("Recovered from logging panic", r)
	}
}

// PrintSimpleError prints out an error message with a red "ERROR:" prefix.
func PrintSimpleError(err error) {
	fmt.Printf("\x1b[%dm%s\x1b[0m %s\n", 31, "ERROR:", err.Error())
}

// fields converts an argument list into logrus fields. A lone error is
// stored under "error", a context.Context contributes its known keys,
// and the remaining arguments are read as key-value pairs.
func fields(args ...interface{}) logrus.Fields {
	f := logrus.Fields{}
	var rest []interface{}

	for _, arg := range args {
		switch x := arg.(type) {
		case context.Context:
			for _, k := range ctxKeys {
				if v := x.Value(k); v != nil {
					f[string(k)] = v
				}
			}
		case error:
			if len(rest)%2 == 0 {
				f["error"] = x.Error()
			} else {
				rest = append(rest, x.Error())
			}
		default:
			rest = append(rest, arg)
		}
	}

	if len(rest)%2 != 0 {
		f["unknown"] = rest[len(rest)-1]
		rest = rest[:len(rest)-1]
	}
	for i := 0; i < len(rest); i += 2 {
		k := fmt.Sprintf("%v", rest[i])
		f[k] = rest[i+1]
	}
	return f
}
