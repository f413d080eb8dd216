// Copyright © 2018 The ELPS authors

package evaltest

import (
	"bytes"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
)

// Logger forwards written lines to the log of a test.
type Logger struct {
	t   testing.TB
	buf []byte
}

var _ io.Writer = (*Logger)(nil)

func NewLogger(t testing.TB) *Logger {
	return &Logger{
		t: t,
	}
}

func (log *Logger) Write(b []byte) (int, error) {
	log.buf = append(log.buf, b...)
	for {
		i := bytes.IndexByte(log.buf, '\n')
		if i < 0 {
			return len(b), nil
		}
		log.t.Log(string(log.buf[:i]))
		log.buf = log.buf[i+1:]
	}
}

func (log *Logger) Flush() {
	if len(log.buf) == 0 {
		return
	}
	log.t.Log(string(log.buf))
	log.buf = nil
}

// Logrus returns a debug level logger writing to the log of t.  The returned
// hook records every entry so tests can assert on warnings.
func Logrus(t testing.TB) (*logrus.Entry, *Hook) {
	w := NewLogger(t)
	t.Cleanup(w.Flush)
	log := logrus.New()
	log.SetOutput(w)
	log.SetLevel(logrus.DebugLevel)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	hook := &Hook{}
	log.AddHook(hook)
	return logrus.NewEntry(log), hook
}

// Hook collects log entries.
type Hook struct {
	mu      sync.Mutex
	entries []*logrus.Entry
}

func (h *Hook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *Hook) Fire(e *logrus.Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, e)
	return nil
}

// Messages returns the messages logged at level.
func (h *Hook) Messages(level logrus.Level) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var msgs []string
	for _, e := range h.entries {
		if e.Level == level {
			msgs = append(msgs, e.Message)
		}
	}
	return msgs
}
