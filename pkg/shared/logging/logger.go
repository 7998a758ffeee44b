// Package logging provides the leveled key/value logger used across keywrapper.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"unicode"
)

// Level represents log level
type Level int

const (
	// LevelDebug is for debug messages
	LevelDebug Level = iota
	// LevelInfo is for informational messages
	LevelInfo
	// LevelWarn is for warning messages
	LevelWarn
	// LevelError is for error messages
	LevelError
	// LevelFatal is for fatal error messages
	LevelFatal
)

// String returns the string representation of the log level
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a string into a Level. Unknown values map to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// Logger is the interface for logging
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
	WithModule(module string) Logger
}

// SimpleLogger writes one line per entry:
//
//	[module] LEVEL: message @/request/path key=value ...
//
// A "path" key is lifted out of the pairs and rendered with an @ prefix so
// request logs are easy to scan. Values of credential keys such as
// "real_key" or "authorization" are never written.
type SimpleLogger struct {
	module    string
	level     Level
	logger    *log.Logger
	useColors bool
}

// NewSimpleLogger creates a logger writing to stdout.
// Colors are only used when requested and stdout is a terminal.
func NewSimpleLogger(module string, level Level, useColors bool) *SimpleLogger {
	return &SimpleLogger{
		module:    module,
		level:     level,
		logger:    log.New(os.Stdout, "", log.LstdFlags),
		useColors: useColors && isTerminal(os.Stdout),
	}
}

// NewSimpleLoggerWithWriter creates a logger writing to w.
func NewSimpleLoggerWithWriter(module string, level Level, useColors bool, w io.Writer) *SimpleLogger {
	return &SimpleLogger{
		module:    module,
		level:     level,
		logger:    log.New(w, "", log.LstdFlags),
		useColors: useColors,
	}
}

func isTerminal(f *os.File) bool {
	fileInfo, err := f.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// formatMessage formats a log message with module and level
func (l *SimpleLogger) formatMessage(level Level, msg string, args ...interface{}) string {
	var sb strings.Builder

	modulePart := "[" + l.module + "]"
	levelPart := level.String()
	if l.useColors {
		modulePart = colorCyan + modulePart + colorReset
		levelPart = colorizeLevel(level, levelPart)
	}
	sb.WriteString(modulePart)
	sb.WriteByte(' ')
	sb.WriteString(levelPart)
	sb.WriteString(": ")
	sb.WriteString(msg)

	var pairs []string
	for i := 0; i < len(args); i += 2 {
		key := fmt.Sprint(args[i])
		if i+1 >= len(args) {
			// Dangling key without a value
			pairs = append(pairs, "!MISSING="+key)
			break
		}
		value := args[i+1]
		if key == "path" {
			sb.WriteString(" @")
			sb.WriteString(formatValue(value))
			continue
		}
		if isSensitiveKey(key) {
			pairs = append(pairs, key+"=[REDACTED]")
			continue
		}
		pairs = append(pairs, key+"="+formatValue(value))
	}
	if len(pairs) > 0 {
		sb.WriteByte(' ')
		sb.WriteString(strings.Join(pairs, " "))
	}

	return sb.String()
}

// sensitiveKeys are rendered as [REDACTED] whatever their value
var sensitiveKeys = map[string]bool{
	"authorization": true,
	"api_key":       true,
	"dummy_key":     true,
	"real_key":      true,
	"token":         true,
	"secret_id":     true,
	"password":      true,
}

// isSensitiveKey reports whether values logged under key must be hidden
func isSensitiveKey(key string) bool {
	return sensitiveKeys[strings.ToLower(key)]
}

// formatValue quotes values containing spaces, quotes or control
// characters so that one call always yields one parseable line
func formatValue(v interface{}) string {
	s := fmt.Sprint(v)
	if strings.IndexFunc(s, needsQuote) >= 0 {
		return strconv.Quote(s)
	}
	return s
}

func needsQuote(r rune) bool {
	return r == ' ' || r == '"' || unicode.IsControl(r)
}

func colorizeLevel(level Level, text string) string {
	switch level {
	case LevelDebug:
		return colorGray + text + colorReset
	case LevelInfo:
		return colorGreen + text + colorReset
	case LevelWarn:
		return colorYellow + text + colorReset
	case LevelError:
		return colorRed + text + colorReset
	case LevelFatal:
		return colorRed + colorBold + text + colorReset
	default:
		return text
	}
}

func (l *SimpleLogger) log(level Level, msg string, args ...interface{}) {
	if level < l.level {
		return
	}

	l.logger.Println(l.formatMessage(level, msg, args...))

	if level == LevelFatal {
		os.Exit(1)
	}
}

// Debug logs a debug message
func (l *SimpleLogger) Debug(msg string, args ...interface{}) {
	l.log(LevelDebug, msg, args...)
}

// Info logs an informational message
func (l *SimpleLogger) Info(msg string, args ...interface{}) {
	l.log(LevelInfo, msg, args...)
}

// Warn logs a warning message
func (l *SimpleLogger) Warn(msg string, args ...interface{}) {
	l.log(LevelWarn, msg, args...)
}

// Error logs an error message
func (l *SimpleLogger) Error(msg string, args ...interface{}) {
	l.log(LevelError, msg, args...)
}

// Fatal logs a fatal error message and exits
func (l *SimpleLogger) Fatal(msg string, args ...interface{}) {
	l.log(LevelFatal, msg, args...)
}

// WithModule returns a logger whose module is nested under the current one
// (e.g. "main/proxy").
func (l *SimpleLogger) WithModule(module string) Logger {
	return &SimpleLogger{
		module:    joinModule(l.module, module),
		level:     l.level,
		logger:    l.logger,
		useColors: l.useColors,
	}
}

func joinModule(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + "/" + child
}

// Color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)
