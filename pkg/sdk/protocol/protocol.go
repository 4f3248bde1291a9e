// Package protocol defines the newline-delimited JSON messages exchanged
// between the profiler and a target process under instrumentation.
//
// The target inherits three descriptors from the profiler: a control channel
// it writes to (ready, results, error), a control channel it reads from
// (getResults), and a telemetry side channel it streams module and provider
// batches to. The two outbound channels are independent and unordered
// relative to each other.
package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/coral-mesh/docteur/pkg/timing"
)

// Environment variables understood by the in-target SDK.
const (
	// EnvProfiling is set to "true" when the process runs under the profiler.
	EnvProfiling = "DOCTEUR_PROFILING"
	// EnvSessionID carries the session id every message must echo.
	EnvSessionID = "DOCTEUR_SESSION_ID"
	// EnvIPCFDs lists the inherited descriptors as "controlOut,controlIn,telemetry".
	EnvIPCFDs = "DOCTEUR_IPC_FDS"
)

// Default descriptor numbers in the child. They follow stdin, stdout and
// stderr in the order the profiler hands them to the child.
const (
	FDControlOut = 3
	FDControlIn  = 4
	FDTelemetry  = 5
)

// MessageType discriminates envelopes.
type MessageType string

// Message types.
const (
	TypeModule     MessageType = "module"
	TypeProvider   MessageType = "provider"
	TypeBatch      MessageType = "batch"
	TypeReady      MessageType = "ready"
	TypeResults    MessageType = "results"
	TypeError      MessageType = "error"
	TypeGetResults MessageType = "getResults"
)

// Envelope is one line on the wire.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Session string          `json:"session,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope encodes payload into an envelope. A nil payload produces an
// envelope without data.
func NewEnvelope(typ MessageType, session string, payload any) (Envelope, error) {
	env := Envelope{Type: typ, Session: session}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to encode %s payload: %w", typ, err)
	}
	env.Data = data
	return env, nil
}

// Decode unmarshals the envelope data into v.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s message has no data", e.Type)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return nil
}

// Batch is a group of telemetry records flushed together.
type Batch struct {
	Modules    []timing.ModuleTiming         `json:"modules,omitempty"`
	Components []timing.ComponentPhaseTiming `json:"components,omitempty"`
}

// Empty reports whether the batch carries no records.
func (b Batch) Empty() bool {
	return len(b.Modules) == 0 && len(b.Components) == 0
}

// Ready is sent by a target that announces readiness over the control channel.
type Ready struct {
	TotalTime float64 `json:"totalTime"`
}

// Results is the answer to a getResults request. When telemetry streaming
// is active, Modules carries only records changed since the last flush.
type Results struct {
	StartTimestamp float64                       `json:"startTimestamp"`
	EndTimestamp   float64                       `json:"endTimestamp"`
	TotalTime      float64                       `json:"totalTime"`
	Modules        []timing.ModuleTiming         `json:"modules"`
	Components     []timing.ComponentPhaseTiming `json:"components"`
	DroppedEvents  int64                         `json:"droppedEvents,omitempty"`
}

// ErrorPayload reports a failure inside the target.
type ErrorPayload struct {
	Message string `json:"message"`
}

// FDs holds the descriptor numbers of the three channels.
type FDs struct {
	ControlOut int
	ControlIn  int
	Telemetry  int
}

// DefaultFDs returns the descriptor layout used by the profiler.
func DefaultFDs() FDs {
	return FDs{ControlOut: FDControlOut, ControlIn: FDControlIn, Telemetry: FDTelemetry}
}

// String formats the descriptors for EnvIPCFDs.
func (f FDs) String() string {
	return fmt.Sprintf("%d,%d,%d", f.ControlOut, f.ControlIn, f.Telemetry)
}

// ParseFDs parses the EnvIPCFDs value.
func ParseFDs(s string) (FDs, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return FDs{}, fmt.Errorf("invalid %s value %q: want three descriptors", EnvIPCFDs, s)
	}

	var fds [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 3 {
			return FDs{}, fmt.Errorf("invalid %s value %q: bad descriptor %q", EnvIPCFDs, s, p)
		}
		fds[i] = n
	}
	return FDs{ControlOut: fds[0], ControlIn: fds[1], Telemetry: fds[2]}, nil
}
