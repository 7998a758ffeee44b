package logging

import "testing"

// TestLogger is a logger for tests. It is silent unless created with
// NewTestLoggerVerbose, in which case entries go to t.Logf.
type TestLogger struct {
	module string
	t      testing.TB
}

// NewTestLogger creates a silent test logger
func NewTestLogger() *TestLogger {
	return &TestLogger{module: "test"}
}

// NewTestLoggerVerbose creates a test logger that writes through t.Logf
func NewTestLoggerVerbose(t testing.TB) *TestLogger {
	return &TestLogger{module: "test", t: t}
}

func (l *TestLogger) emit(level Level, msg string, args []interface{}) {
	if l.t == nil {
		return
	}
	l.t.Helper()
	l.t.Logf("[%s] %s: %s %v", l.module, level, msg, args)
}

// Debug logs a debug message
func (l *TestLogger) Debug(msg string, args ...interface{}) { l.emit(LevelDebug, msg, args) }

// Info logs an informational message
func (l *TestLogger) Info(msg string, args ...interface{}) { l.emit(LevelInfo, msg, args) }

// Warn logs a warning message
func (l *TestLogger) Warn(msg string, args ...interface{}) { l.emit(LevelWarn, msg, args) }

// Error logs an error message
func (l *TestLogger) Error(msg string, args ...interface{}) { l.emit(LevelError, msg, args) }

// Fatal fails the test instead of exiting the process
func (l *TestLogger) Fatal(msg string, args ...interface{}) {
	if l.t != nil {
		l.t.Helper()
		l.t.Fatalf("[%s] FATAL: %s %v", l.module, msg, args)
	}
}

// WithModule creates a logger with a nested module name
func (l *TestLogger) WithModule(module string) Logger {
	return &TestLogger{module: joinModule(l.module, module), t: l.t}
}
