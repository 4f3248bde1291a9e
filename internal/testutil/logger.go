// Package testutil provides fixtures and helpers shared by docteur tests.
package testutil

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// defaultTestTimeout bounds a test context when the test binary has no
// deadline of its own.
const defaultTestTimeout = 30 * time.Second

// NewTestLogger returns a logger that writes to t.Log under -v and
// discards output otherwise.
func NewTestLogger(t *testing.T) zerolog.Logger {
	t.Helper()
	if !testing.Verbose() {
		return zerolog.New(io.Discard)
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: &testLogWriter{t: t}, NoColor: true}).
		With().Timestamp().Logger()
}

type testLogWriter struct {
	t *testing.T
}

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

// Context returns a context cancelled when the test ends, or shortly before
// the test binary's deadline, whichever comes first.
func Context(t *testing.T) context.Context {
	t.Helper()
	deadline := time.Now().Add(defaultTestTimeout)
	if d, ok := t.Deadline(); ok && d.Add(-time.Second).Before(deadline) {
		deadline = d.Add(-time.Second)
	}
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	t.Cleanup(cancel)
	return ctx
}
