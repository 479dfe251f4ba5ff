package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// Level defines the log severity levels.
type Level int32

// Enumeration of log levels from least to most severe.
const (
	Debug Level = iota
	Info
	Warn
	Error
	Fatal
)

// String provides a string representation of the logging level.
func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	case Fatal:
		return "FATAL"
	default:
		panic("invalid log level")
	}
}

// ParseLevel converts a case-insensitive level name such as "debug" or "WARN"
// into a Level.
func ParseLevel(name string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return Debug, nil
	case "INFO", "":
		return Info, nil
	case "WARN", "WARNING":
		return Warn, nil
	case "ERROR":
		return Error, nil
	case "FATAL":
		return Fatal, nil
	default:
		return Info, fmt.Errorf("unknown log level %q", name)
	}
}

// Logger writes leveled messages through a standard library logger.
type Logger struct {
	// Logging options that determine behavior such as output destination and log level.
	options options

	// The underlying standard logger.
	base *log.Logger
}

// NewLogger creates a new logger instance with the provided options.
// If no options are provided, default values are used.
func NewLogger(opts ...Option) (*Logger, error) {
	var options options
	for _, opt := range opts {
		if err := opt(&options); err != nil {
			return nil, err
		}
	}

	if options.writer == nil {
		options.writer = defaultWriter
	}
	if !options.flagSet {
		options.flag = defaultFlag
	}
	if options.prefix == "" {
		options.prefix = defaultPrefix
	}
	if !options.levelSet {
		options.level = Info
	}

	return &Logger{
		options: options,
		base:    log.New(options.writer, options.prefix, options.flag),
	}, nil
}

// Discard returns a logger that drops every message below fatal.
func Discard() *Logger {
	return &Logger{
		options: options{writer: io.Discard, level: Fatal, levelSet: true},
		base:    log.New(io.Discard, "", 0),
	}
}

// Named returns a logger sharing this logger's output and level whose
// messages are tagged with name, e.g. "node=3".
func (l *Logger) Named(name string) *Logger {
	options := l.options
	options.name = strings.TrimSpace(options.name + " " + name)
	return &Logger{options: options, base: l.base}
}

// Level returns the minimum level that is written.
func (l *Logger) Level() Level {
	return l.options.level
}

// Debug logs a debug message with the given arguments.
func (l *Logger) Debug(args ...any) {
	l.log(Debug, fmt.Sprint(args...))
}

// Debugf logs a formatted debug message.
func (l *Logger) Debugf(format string, args ...any) {
	if l.options.level > Debug {
		return
	}
	l.log(Debug, fmt.Sprintf(format, args...))
}

// Info logs an informational message.
func (l *Logger) Info(args ...any) {
	l.log(Info, fmt.Sprint(args...))
}

// Infof logs a formatted informational message.
func (l *Logger) Infof(format string, args ...any) {
	l.log(Info, fmt.Sprintf(format, args...))
}

// Warn logs a warning message.
func (l *Logger) Warn(args ...any) {
	l.log(Warn, fmt.Sprint(args...))
}

// Warnf logs a formatted warning message.
func (l *Logger) Warnf(format string, args ...any) {
	l.log(Warn, fmt.Sprintf(format, args...))
}

// Error logs an error message.
func (l *Logger) Error(args ...any) {
	l.log(Error, fmt.Sprint(args...))
}

// Errorf logs a formatted error message.
func (l *Logger) Errorf(format string, args ...any) {
	l.log(Error, fmt.Sprintf(format, args...))
}

// Fatal logs a fatal error message and then terminates the program.
func (l *Logger) Fatal(args ...any) {
	l.log(Fatal, fmt.Sprint(args...))
	os.Exit(1)
}

// Fatalf logs a formatted fatal error message and then terminates the program.
func (l *Logger) Fatalf(format string, args ...any) {
	l.log(Fatal, fmt.Sprintf(format, args...))
	os.Exit(1)
}

func (l *Logger) log(level Level, message string) {
	if l.options.level > level {
		return
	}
	if l.options.name != "" {
		l.base.Printf("%s: [%s] %s", level, l.options.name, message)
		return
	}
	l.base.Printf("%s: %s", level, message)
}
