package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the severity level of log messages.
type LogLevel int

// Log level constants defining message severity.
const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = map[LogLevel]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

// String returns the upper-case level name.
func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "INFO"
}

// ParseLogLevel converts a string log level to its LogLevel constant.
func ParseLogLevel(level string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

// Options configures log output and rotation.
// An empty File writes to stdout only.
type Options struct {
	File       string
	Level      LogLevel
	MaxSize    int // MB
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// Logger writes level-prefixed lines to stdout and an optional rotating file.
type Logger struct {
	outputs map[LogLevel]*log.Logger
	writer  io.Writer
	level   LogLevel
	mu      sync.RWMutex
}

var (
	instance *Logger
	once     sync.Once
)

// Init initializes the global logger. Later calls are ignored.
func Init(opts Options) {
	once.Do(func() {
		l, err := New(opts)
		if err != nil {
			log.Printf("[WARN] falling back to stdout logging: %v", err)
			l = NewWithWriter(os.Stdout, opts.Level)
		}
		instance = l
	})
}

// New creates a logger from options.
func New(opts Options) (*Logger, error) {
	if opts.File == "" {
		return NewWithWriter(os.Stdout, opts.Level), nil
	}

	dir := filepath.Dir(opts.File)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create log directory %s: %w", dir, err)
	}

	rotating := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSize,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAge,
		Compress:   opts.Compress,
	}
	return NewWithWriter(io.MultiWriter(os.Stdout, rotating), opts.Level), nil
}

// NewWithWriter creates a logger writing every level to w.
func NewWithWriter(w io.Writer, level LogLevel) *Logger {
	l := &Logger{
		outputs: make(map[LogLevel]*log.Logger, len(levelNames)),
		writer:  w,
		level:   level,
	}
	flags := log.LstdFlags | log.Lshortfile
	for lvl, name := range levelNames {
		l.outputs[lvl] = log.New(w, "["+name+"] ", flags)
	}
	return l
}

// Writer exposes the underlying writer, e.g. for gin's default writer.
func (l *Logger) Writer() io.Writer {
	return l.writer
}

// SetLevel changes the minimum log level for filtering messages.
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel returns the current minimum log level.
func (l *Logger) GetLevel() LogLevel {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

func (l *Logger) enabled(level LogLevel) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return level >= l.level
}

func (l *Logger) output(level LogLevel, depth int, msg string) {
	if !l.enabled(level) {
		return
	}
	l.outputs[level].Output(depth+1, msg)
	if level == FATAL {
		os.Exit(1)
	}
}

// Debugf logs a formatted debug-level message.
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.output(DEBUG, 2, fmt.Sprintf(format, v...))
}

// Infof logs a formatted info-level message.
func (l *Logger) Infof(format string, v ...interface{}) {
	l.output(INFO, 2, fmt.Sprintf(format, v...))
}

// Warnf logs a formatted warning-level message.
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.output(WARN, 2, fmt.Sprintf(format, v...))
}

// Errorf logs a formatted error-level message.
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.output(ERROR, 2, fmt.Sprintf(format, v...))
}

// Fatalf logs a formatted fatal-level message and exits the program.
func (l *Logger) Fatalf(format string, v ...interface{}) {
	l.output(FATAL, 2, fmt.Sprintf(format, v...))
}

// Global convenience functions

func global(level LogLevel, msg string) {
	if instance != nil {
		instance.output(level, 3, msg)
	}
}

// Debugf logs a formatted debug-level message using the global logger instance.
func Debugf(format string, v ...interface{}) {
	global(DEBUG, fmt.Sprintf(format, v...))
}

// Infof logs a formatted info-level message using the global logger instance.
func Infof(format string, v ...interface{}) {
	global(INFO, fmt.Sprintf(format, v...))
}

// Warnf logs a formatted warning-level message using the global logger instance.
func Warnf(format string, v ...interface{}) {
	global(WARN, fmt.Sprintf(format, v...))
}

// Errorf logs a formatted error-level message using the global logger instance.
func Errorf(format string, v ...interface{}) {
	global(ERROR, fmt.Sprintf(format, v...))
}

// Fatalf logs a formatted fatal-level message and exits the program using the global logger instance.
func Fatalf(format string, v ...interface{}) {
	if instance == nil {
		log.Fatalf(format, v...)
	}
	global(FATAL, fmt.Sprintf(format, v...))
}

// SetLevel changes the minimum log level for the global logger instance.
func SetLevel(level LogLevel) {
	if instance != nil {
		instance.SetLevel(level)
	}
}

// GetLevel returns the current minimum log level of the global logger instance.
func GetLevel() LogLevel {
	if instance != nil {
		return instance.GetLevel()
	}
	return INFO
}

// Output returns the writer of the global logger, stdout when uninitialized.
func Output() io.Writer {
	if instance != nil {
		return instance.Writer()
	}
	return os.Stdout
}
