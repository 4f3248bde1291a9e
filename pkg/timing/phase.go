package timing

import (
	"fmt"
	"strings"
)

// Phase is a bootstrap component lifecycle phase.
type Phase int

// Phases in lifecycle order.
const (
	PhaseRegister Phase = iota
	PhaseBoot
	PhaseStart
	PhaseReady
	PhaseShutdown
)

var phaseNames = [...]string{"register", "boot", "start", "ready", "shutdown"}

// Phases returns every phase in lifecycle order.
func Phases() []Phase {
	return []Phase{PhaseRegister, PhaseBoot, PhaseStart, PhaseReady, PhaseShutdown}
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	return p >= PhaseRegister && p <= PhaseShutdown
}

// ParsePhase parses a phase name (case-insensitive).
func ParsePhase(s string) (Phase, error) {
	for i, name := range phaseNames {
		if strings.EqualFold(s, name) {
			return Phase(i), nil
		}
	}
	return 0, fmt.Errorf("unknown lifecycle phase %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid lifecycle phase %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(text []byte) error {
	v, err := ParsePhase(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// ComponentPhaseTiming is the measured duration of one lifecycle phase of one
// bootstrap component.
type ComponentPhaseTiming struct {
	ComponentName string  `json:"componentName"`
	Phase         Phase   `json:"phase"`
	DurationMs    float64 `json:"durationMs"`
}
