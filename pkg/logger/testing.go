package logger

import (
	"fmt"
	"sort"
	"strings"
	"testing"
)

// TestLogger routes log output through the test harness so that it shows up
// interleaved with test failures. Fields accumulate across WithField calls
// and are appended to every line in key order.
type TestLogger struct {
	tb     testing.TB
	fields map[string]interface{}
}

// NewTestLogger creates a logger writing to tb.
func NewTestLogger(tb testing.TB) Logger {
	return &TestLogger{tb: tb}
}

func (l *TestLogger) log(level, msg string) {
	if l.tb == nil {
		return
	}
	l.tb.Helper()
	l.tb.Logf("[%s] %s%s", level, msg, l.fieldSuffix())
}

func (l *TestLogger) fieldSuffix() string {
	if len(l.fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(l.fields))
	for k := range l.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, l.fields[k])
	}
	return b.String()
}

func (l *TestLogger) Debug(msg string) { l.log("DEBUG", msg) }
func (l *TestLogger) Info(msg string)  { l.log("INFO", msg) }
func (l *TestLogger) Warn(msg string)  { l.log("WARN", msg) }
func (l *TestLogger) Error(msg string) { l.log("ERROR", msg) }
func (l *TestLogger) Fatal(msg string) { l.log("FATAL", msg) }

// WithField returns a copy of the logger carrying one extra field.
func (l *TestLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a copy of the logger carrying the extra fields.
func (l *TestLogger) WithFields(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &TestLogger{tb: l.tb, fields: merged}
}
