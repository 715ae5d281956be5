// Package logx provides leveled logging with context-aware domain debug logging.
package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger writes "[timestamp] [component] LEVEL: message" lines.
type Logger struct {
	component string
}

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

const timestampFormat = "2006-01-02T15:04:05.000Z"

// ctxKey is the context key type for the component name used by Debug.
type ctxKey struct{}

// DebugConfig controls debug logging behavior.
type DebugConfig struct {
	Enabled bool
	Domains map[string]bool // nil = all domains
}

//nolint:gochecknoglobals // process-wide logging configuration
var (
	mu          sync.RWMutex
	minLevel    = LevelError
	output      io.Writer
	fileSink    *lumberjack.Logger
	debugConfig = &DebugConfig{}
)

func init() { //nolint:gochecknoinits // env driven defaults
	initFromEnv()
}

// initFromEnv reads LOG_LEVEL, DEBUG and DEBUG_DOMAINS.
func initFromEnv() {
	mu.Lock()
	defer mu.Unlock()

	if lvl, ok := ParseLevel(os.Getenv("LOG_LEVEL")); ok {
		minLevel = lvl
	}

	if debug := os.Getenv("DEBUG"); debug == "1" || strings.EqualFold(debug, "true") {
		debugConfig.Enabled = true
		minLevel = LevelDebug
	}

	if domains := os.Getenv("DEBUG_DOMAINS"); domains != "" {
		debugConfig.Domains = make(map[string]bool)
		for _, domain := range strings.Split(domains, ",") {
			debugConfig.Domains[strings.TrimSpace(domain)] = true
		}
	}
}

// ParseLevel maps a level name (case-insensitive) to a Level.
// WARNING is accepted as an alias for WARN.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR", "CRITICAL":
		return LevelError, true
	}
	return "", false
}

func (l Level) rank() int {
	switch l {
	case LevelDebug:
		return 0
	case LevelInfo:
		return 1
	case LevelWarn:
		return 2
	default:
		return 3
	}
}

// SetLevel sets the minimum level that is written.
func SetLevel(level Level) {
	mu.Lock()
	defer mu.Unlock()
	minLevel = level
	if level == LevelDebug {
		debugConfig.Enabled = true
	}
}

// GetLevel returns the current minimum level.
func GetLevel() Level {
	mu.RLock()
	defer mu.RUnlock()
	return minLevel
}

// SetOutput redirects console output. nil restores stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// EnableFileLogging mirrors every log line into a rotating file under dir.
func EnableFileLogging(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	mu.Lock()
	defer mu.Unlock()

	if fileSink != nil {
		_ = fileSink.Close()
	}
	fileSink = &lumberjack.Logger{
		Filename:   filepath.Join(dir, "openswe.log"),
		MaxSize:    15, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	return nil
}

// Close flushes and closes the file sink, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	if fileSink == nil {
		return nil
	}
	err := fileSink.Close()
	fileSink = nil
	if err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return nil
}

// SetDebugDomains configures which domains have debug logging enabled.
func SetDebugDomains(domains []string) {
	mu.Lock()
	defer mu.Unlock()

	if len(domains) == 0 {
		debugConfig.Domains = nil
		return
	}
	debugConfig.Domains = make(map[string]bool)
	for _, domain := range domains {
		debugConfig.Domains[strings.TrimSpace(domain)] = true
	}
}

// IsDebugEnabledForDomain returns whether debug logging is enabled for a specific domain.
func IsDebugEnabledForDomain(domain string) bool {
	mu.RLock()
	defer mu.RUnlock()

	if !debugConfig.Enabled && minLevel != LevelDebug {
		return false
	}
	if debugConfig.Domains == nil {
		return true
	}
	return debugConfig.Domains[domain]
}

func NewLogger(component string) *Logger {
	return &Logger{component: component}
}

// WithComponent returns a context carrying the component name used by Debug.
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, ctxKey{}, component)
}

func write(component string, level Level, message string) {
	mu.RLock()
	if level.rank() < minLevel.rank() {
		mu.RUnlock()
		return
	}
	out := output
	sink := fileSink
	mu.RUnlock()

	if out == nil {
		out = os.Stderr
	}

	timestamp := time.Now().UTC().Format(timestampFormat)
	line := fmt.Sprintf("[%s] [%s] %s: %s\n", timestamp, component, level, message)
	_, _ = io.WriteString(out, line)
	if sink != nil {
		_, _ = io.WriteString(sink, line)
	}
}

func (l *Logger) log(level Level, format string, args ...any) {
	write(l.component, level, fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(format string, args ...any) {
	l.log(LevelDebug, format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

// DebugState logs state transition information.
func (l *Logger) DebugState(action, state string, extra ...string) {
	extraInfo := ""
	if len(extra) > 0 {
		extraInfo = fmt.Sprintf(" - %s", extra[0])
	}
	l.Debug("State %s: %s%s", action, state, extraInfo)
}

func (l *Logger) GetComponent() string {
	return l.component
}

func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{component: component}
}

// Debug logs a debug message with context and domain filtering.
//
//	DEBUG=1                          # all domains
//	DEBUG=1 DEBUG_DOMAINS=workflow   # only the workflow domain
func Debug(ctx context.Context, domain, format string, args ...any) {
	if !IsDebugEnabledForDomain(domain) {
		return
	}

	component := "unknown"
	if ctx != nil {
		if name, ok := ctx.Value(ctxKey{}).(string); ok {
			component = name
		}
	}
	write(component, LevelDebug, fmt.Sprintf("[%s] %s", domain, fmt.Sprintf(format, args...)))
}

// DebugFlow logs workflow step information with context and domain.
func DebugFlow(ctx context.Context, domain, step, status string, extra ...string) {
	extraInfo := ""
	if len(extra) > 0 {
		extraInfo = fmt.Sprintf(" - %s", extra[0])
	}
	Debug(ctx, domain, "Flow %s: %s%s", step, status, extraInfo)
}

//nolint:gochecknoglobals // convenience logger
var defaultLogger = NewLogger("system")

func Infof(format string, args ...any) {
	defaultLogger.Info(format, args...)
}

func Warnf(format string, args ...any) {
	defaultLogger.Warn(format, args...)
}

// Errorf logs and returns the formatted error.
//
//	err := logx.Errorf("setup failed: %w", err)
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	defaultLogger.Error("%s", err.Error())
	return err
}

// Wrap logs msg + ": " + err.Error() and returns fmt.Errorf("%s: %w", msg, err).
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrappedErr := fmt.Errorf("%s: %w", msg, err)
	defaultLogger.Error("%s", wrappedErr.Error())
	return wrappedErr
}
