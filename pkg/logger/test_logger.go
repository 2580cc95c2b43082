package logger

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// LogMessage is one captured entry
type LogMessage struct {
	Level   string
	Message string
	Fields  map[string]interface{}
	Error   error
}

func (m LogMessage) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", m.Level, m.Message)
	if len(m.Fields) > 0 {
		fmt.Fprintf(&b, " fields=%v", m.Fields)
	}
	if m.Error != nil {
		fmt.Fprintf(&b, " error=%v", m.Error)
	}
	return b.String()
}

type capture struct {
	mu   sync.Mutex
	msgs []LogMessage
}

// TestLogger records messages in memory. Children derived through
// WithField, WithFields or WithError record into the same capture.
type TestLogger struct {
	c      *capture
	fields map[string]interface{}
	err    error
}

func NewTestLogger() *TestLogger {
	return &TestLogger{c: &capture{}}
}

func (l *TestLogger) record(level, msg string, extra map[string]interface{}) {
	m := LogMessage{Level: level, Message: msg, Fields: l.with(extra), Error: l.err}
	l.c.mu.Lock()
	l.c.msgs = append(l.c.msgs, m)
	l.c.mu.Unlock()
}

func (l *TestLogger) with(extra map[string]interface{}) map[string]interface{} {
	if len(l.fields)+len(extra) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(l.fields)+len(extra))
	for _, src := range []map[string]interface{}{l.fields, extra} {
		for k, v := range src {
			out[k] = v
		}
	}
	return out
}

func (l *TestLogger) Debug(msg string) { l.record("DEBUG", msg, nil) }
func (l *TestLogger) Info(msg string)  { l.record("INFO", msg, nil) }
func (l *TestLogger) Warn(msg string)  { l.record("WARN", msg, nil) }
func (l *TestLogger) Error(msg string) { l.record("ERROR", msg, nil) }

func (l *TestLogger) DebugWithFields(msg string, f map[string]interface{}) { l.record("DEBUG", msg, f) }
func (l *TestLogger) InfoWithFields(msg string, f map[string]interface{})  { l.record("INFO", msg, f) }
func (l *TestLogger) WarnWithFields(msg string, f map[string]interface{})  { l.record("WARN", msg, f) }
func (l *TestLogger) ErrorWithFields(msg string, f map[string]interface{}) { l.record("ERROR", msg, f) }

func (l *TestLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

func (l *TestLogger) WithFields(fields map[string]interface{}) Logger {
	return &TestLogger{c: l.c, fields: l.with(fields), err: l.err}
}

func (l *TestLogger) WithError(err error) Logger {
	return &TestLogger{c: l.c, fields: l.fields, err: err}
}

func (l *TestLogger) GetZerolog() *zerolog.Logger {
	nop := zerolog.Nop()
	return &nop
}

// GetMessages returns a snapshot of everything recorded so far
func (l *TestLogger) GetMessages() []LogMessage {
	l.c.mu.Lock()
	defer l.c.mu.Unlock()
	return slices.Clone(l.c.msgs)
}

func (l *TestLogger) GetMessagesByLevel(level string) []LogMessage {
	var out []LogMessage
	for _, m := range l.GetMessages() {
		if m.Level == level {
			out = append(out, m)
		}
	}
	return out
}

func (l *TestLogger) HasMessage(text string) bool {
	return slices.ContainsFunc(l.GetMessages(), func(m LogMessage) bool { return m.Message == text })
}

func (l *TestLogger) HasError() bool {
	return len(l.GetMessagesByLevel("ERROR")) > 0
}

func (l *TestLogger) Clear() {
	l.c.mu.Lock()
	l.c.msgs = nil
	l.c.mu.Unlock()
}

// String renders every message, one per line
func (l *TestLogger) String() string {
	var b strings.Builder
	for _, m := range l.GetMessages() {
		b.WriteString(m.String())
		b.WriteByte('\n')
	}
	return b.String()
}
