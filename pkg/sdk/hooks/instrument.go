package hooks

import (
	"bytes"
	"fmt"
	"strconv"
	"text/template"
)

// SourceInstrumenter rewrites module source so that evaluating it reports
// its own execution time.
type SourceInstrumenter interface {
	// Accepts reports whether sources of the given format can be rewritten.
	Accepts(format string) bool
	Instrument(source []byte, identifier string) ([]byte, error)
}

// TemplateInstrumenter wraps source between a prologue and an epilogue.
// Both are text/template strings receiving {{.ID}} (the raw identifier) and
// {{.Quoted}} (the identifier as a double-quoted string literal). The
// epilogue is expected to call back into Hooks.RecordExecution.
type TemplateInstrumenter struct {
	Prologue string
	Epilogue string
	// Formats limits rewriting to these formats. Empty means all.
	Formats []string

	prologue *template.Template
	epilogue *template.Template
}

// NewTemplateInstrumenter parses the prologue and epilogue templates.
func NewTemplateInstrumenter(prologue, epilogue string, formats ...string) (*TemplateInstrumenter, error) {
	p, err := template.New("prologue").Option("missingkey=error").Parse(prologue)
	if err != nil {
		return nil, fmt.Errorf("invalid prologue template: %w", err)
	}
	e, err := template.New("epilogue").Option("missingkey=error").Parse(epilogue)
	if err != nil {
		return nil, fmt.Errorf("invalid epilogue template: %w", err)
	}
	return &TemplateInstrumenter{
		Prologue: prologue,
		Epilogue: epilogue,
		Formats:  formats,
		prologue: p,
		epilogue: e,
	}, nil
}

// Accepts implements SourceInstrumenter.
func (t *TemplateInstrumenter) Accepts(format string) bool {
	if len(t.Formats) == 0 {
		return true
	}
	for _, f := range t.Formats {
		if f == format {
			return true
		}
	}
	return false
}

// Instrument implements SourceInstrumenter.
func (t *TemplateInstrumenter) Instrument(source []byte, identifier string) ([]byte, error) {
	if t.prologue == nil || t.epilogue == nil {
		return nil, fmt.Errorf("instrumenter not initialised")
	}
	data := struct {
		ID     string
		Quoted string
	}{ID: identifier, Quoted: strconv.Quote(identifier)}

	var buf bytes.Buffer
	buf.Grow(len(source) + len(t.Prologue) + len(t.Epilogue) + 2*len(identifier))
	if err := t.prologue.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render prologue: %w", err)
	}
	buf.WriteByte('\n')
	buf.Write(source)
	if len(source) > 0 && source[len(source)-1] != '\n' {
		buf.WriteByte('\n')
	}
	if err := t.epilogue.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render epilogue: %w", err)
	}
	return buf.Bytes(), nil
}
