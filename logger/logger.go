// Package logger provides the structured logger shared by every gridmatch component.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// LevelEnv overrides the configured log level when set.
const LevelEnv = "GRIDMATCH_LOG_LEVEL"

// Fields is an alias of logrus.Fields so callers need not import logrus.
type Fields = logrus.Fields

// Log wraps logrus.Logger with component helpers.
type Log struct {
	*logrus.Logger
}

// Options configures level, format and destination of a Log.
type Options struct {
	Level     string // trace, debug, info, warn, error
	Format    string // json or text
	Output    string // stdout, stderr or a file path
	MaxSizeMB int    // rotate file output at this size; 0 disables rotation
	MaxAge    int    // days to keep rotated files
}

var (
	defaultOnce sync.Once
	defaultLog  *Log
)

// New returns a JSON logger at info level writing to stdout.
func New() *Log {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(jsonFormatter())
	return &Log{Logger: l}
}

// Default returns the process-wide logger.
func Default() *Log {
	defaultOnce.Do(func() {
		defaultLog = New()
		if lvl, err := logrus.ParseLevel(os.Getenv(LevelEnv)); err == nil {
			defaultLog.SetLevel(lvl)
		}
	})
	return defaultLog
}

// Component returns an entry of the default logger tagged with a component name.
func Component(component string) *logrus.Entry {
	return Default().WithComponent(component)
}

// Discard returns an entry that drops everything; useful in tests.
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// WithComponent tags entries with the component that produced them.
func (l *Log) WithComponent(component string) *logrus.Entry {
	return l.Logger.WithField("component", component)
}

// Configure applies the options. The LevelEnv environment variable wins over opts.Level.
func (l *Log) Configure(opts Options) error {
	level := opts.Level
	if env := os.Getenv(LevelEnv); env != "" {
		level = env
	}
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level '%s'", level)
	}
	l.SetLevel(lvl)

	switch opts.Format {
	case "json", "":
		l.SetFormatter(jsonFormatter())
	case "text":
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:    true,
			TimestampFormat:  time.RFC3339,
			CallerPrettyfier: callerPrettyfier,
		})
	default:
		return fmt.Errorf("invalid log format '%s'", opts.Format)
	}

	switch opts.Output {
	case "stdout", "":
		l.SetOutput(os.Stdout)
	case "stderr":
		l.SetOutput(os.Stderr)
	default:
		if opts.MaxSizeMB > 0 {
			l.SetOutput(&lumberjack.Logger{
				Filename: opts.Output,
				MaxSize:  opts.MaxSizeMB,
				MaxAge:   opts.MaxAge,
				Compress: true,
			})
			return nil
		}
		file, err := os.OpenFile(opts.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file '%s': %w", opts.Output, err)
		}
		l.SetOutput(file)
	}

	return nil
}

func jsonFormatter() *logrus.JSONFormatter {
	return &logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
		CallerPrettyfier: callerPrettyfier,
	}
}

func callerPrettyfier(f *runtime.Frame) (string, string) {
	return "", fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
}
