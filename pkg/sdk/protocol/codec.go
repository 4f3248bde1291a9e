package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Writer writes envelopes as JSON lines. It is safe for concurrent use.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	session string
}

// NewWriter returns a writer stamping every envelope with session.
func NewWriter(w io.Writer, session string) *Writer {
	return &Writer{w: w, session: session}
}

// Send encodes payload and writes it as one line.
func (w *Writer) Send(typ MessageType, payload any) error {
	env, err := NewEnvelope(typ, w.session, payload)
	if err != nil {
		return err
	}
	return w.WriteEnvelope(env)
}

// WriteEnvelope writes env as one line, filling the session when empty.
func (w *Writer) WriteEnvelope(env Envelope) error {
	if env.Session == "" {
		env.Session = w.session
	}
	line, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode %s envelope: %w", env.Type, err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(line); err != nil {
		return fmt.Errorf("failed to write %s envelope: %w", env.Type, err)
	}
	return nil
}

// MalformedError is returned by Reader.Next for a line that is not a valid
// envelope. The reader remains usable.
type MalformedError struct {
	Line []byte
	Err  error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed message %q: %v", truncate(e.Line, 80), e.Err)
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}

// Reader reads JSON line envelopes. Lines have no length limit.
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next envelope. Blank lines are skipped. It returns io.EOF
// once the stream is exhausted; a final line without a newline is still
// decoded.
func (r *Reader) Next() (Envelope, error) {
	for {
		line, err := r.r.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			var env Envelope
			if uerr := json.Unmarshal(line, &env); uerr != nil {
				return Envelope{}, &MalformedError{Line: line, Err: uerr}
			}
			if env.Type == "" {
				return Envelope{}, &MalformedError{Line: line, Err: errors.New("missing type")}
			}
			return env, nil
		}
		if err != nil {
			return Envelope{}, err
		}
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
