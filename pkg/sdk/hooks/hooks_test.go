package hooks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/docteur/pkg/sdk/session"
	"github.com/coral-mesh/docteur/pkg/timing"
)

type fakeRecorder struct {
	mu      sync.Mutex
	now     float64
	modules []timing.ModuleTiming
	panic   bool
}

func (f *fakeRecorder) Now() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now += 10
	return f.now
}

func (f *fakeRecorder) RecordModule(m timing.ModuleTiming) {
	if f.panic {
		panic("bookkeeping exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modules = append(f.modules, m)
}

func (f *fakeRecorder) RecordExecution(id string, ms float64) {
	f.RecordModule(timing.ModuleTiming{ResolvedIdentifier: id, ExecutionMs: timing.Float64(ms)})
}

func resolveTo(id string, delay time.Duration) NextResolve {
	return func(ctx context.Context, specifier string, rc ResolveContext) (Resolution, error) {
		time.Sleep(delay)
		return Resolution{Identifier: id, Format: "module"}, nil
	}
}

func loadWith(text string, delay time.Duration) NextLoad {
	return func(ctx context.Context, identifier string, lc LoadContext) (Source, error) {
		time.Sleep(delay)
		return Source{Format: "module", Text: []byte(text)}, nil
	}
}

func TestHooks_Resolve(t *testing.T) {
	rec := &fakeRecorder{}
	h := New(rec)

	res, err := h.Resolve(context.Background(), "./a", ResolveContext{ParentIdentifier: "main.js"}, resolveTo("a.js", 2*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, "a.js", res.Identifier)

	require.Len(t, rec.modules, 1)
	m := rec.modules[0]
	assert.Equal(t, "./a", m.Specifier)
	assert.Equal(t, "a.js", m.ResolvedIdentifier)
	assert.Equal(t, "main.js", m.ParentIdentifier)
	assert.True(t, m.Resolved)
	assert.False(t, m.Loaded)
	assert.GreaterOrEqual(t, m.ResolveDurationMs, 2.0)
}

func TestHooks_Load(t *testing.T) {
	rec := &fakeRecorder{}
	h := New(rec)

	src, err := h.Load(context.Background(), "a.js", LoadContext{}, loadWith("body", 3*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, "body", string(src.Text))

	require.Len(t, rec.modules, 1)
	m := rec.modules[0]
	assert.Equal(t, "a.js", m.ResolvedIdentifier)
	assert.Empty(t, m.Specifier)
	assert.True(t, m.Loaded)
	assert.GreaterOrEqual(t, m.LoadDurationMs, 3.0)
	assert.Equal(t, 10.0, m.StartTimestamp)
	assert.InDelta(t, m.StartTimestamp+m.LoadDurationMs, m.EndTimestamp, 1e-9)
}

func TestHooks_FailuresPropagateUnrecorded(t *testing.T) {
	rec := &fakeRecorder{}
	h := New(rec)
	boom := errors.New("ERR_MODULE_NOT_FOUND")

	_, err := h.Resolve(context.Background(), "./missing", ResolveContext{}, func(context.Context, string, ResolveContext) (Resolution, error) {
		return Resolution{}, boom
	})
	assert.Same(t, boom, err)

	_, err = h.Load(context.Background(), "x.js", LoadContext{}, func(context.Context, string, LoadContext) (Source, error) {
		return Source{}, boom
	})
	assert.Same(t, boom, err)

	err = h.Execute(context.Background(), "x.js", func(context.Context) error { return boom })
	assert.Same(t, boom, err)

	assert.Empty(t, rec.modules)
}

func TestHooks_BookkeepingPanicDoesNotAbort(t *testing.T) {
	h := New(&fakeRecorder{panic: true})

	res, err := h.Resolve(context.Background(), "./a", ResolveContext{}, resolveTo("a.js", 0))
	require.NoError(t, err)
	assert.Equal(t, "a.js", res.Identifier)

	src, err := h.Load(context.Background(), "a.js", LoadContext{}, loadWith("ok", 0))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(src.Text))

	assert.NotPanics(t, func() { h.RecordExecution("a.js", 1) })
}

func TestHooks_Execute(t *testing.T) {
	rec := &fakeRecorder{}
	h := New(rec)

	err := h.Execute(context.Background(), "a.js", func(context.Context) error {
		time.Sleep(2 * time.Millisecond)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, rec.modules, 1)
	require.NotNil(t, rec.modules[0].ExecutionMs)
	assert.GreaterOrEqual(t, *rec.modules[0].ExecutionMs, 2.0)

	h.RecordExecution("", 1)
	h.RecordExecution("b.js", -1)
	assert.Len(t, rec.modules, 1)
}

func TestHooks_WithInstrumenter(t *testing.T) {
	in, err := NewTemplateInstrumenter(
		`const __t = now(); // {{.ID}}`,
		`record({{.Quoted}}, now() - __t);`,
		"module",
	)
	require.NoError(t, err)

	h := New(&fakeRecorder{}, WithInstrumenter(in))

	src, err := h.Load(context.Background(), "a.js", LoadContext{}, loadWith("export default 1", 0))
	require.NoError(t, err)
	assert.Equal(t, "const __t = now(); // a.js\nexport default 1\nrecord(\"a.js\", now() - __t);", string(src.Text))

	jsonLoad := func(context.Context, string, LoadContext) (Source, error) {
		return Source{Format: "json", Text: []byte(`{}`)}, nil
	}
	src, err = h.Load(context.Background(), "b.json", LoadContext{}, jsonLoad)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(src.Text), "formats outside the allow list are untouched")
}

func TestNewTemplateInstrumenter_InvalidTemplate(t *testing.T) {
	_, err := NewTemplateInstrumenter("{{.ID", "")
	assert.Error(t, err)
	_, err = NewTemplateInstrumenter("", "{{end}}")
	assert.Error(t, err)
}

func TestPassthrough(t *testing.T) {
	var p Interceptor = Passthrough{}
	res, err := p.Resolve(context.Background(), "./a", ResolveContext{}, resolveTo("a.js", 0))
	require.NoError(t, err)
	assert.Equal(t, "a.js", res.Identifier)

	src, err := p.Load(context.Background(), "a.js", LoadContext{}, loadWith("x", 0))
	require.NoError(t, err)
	assert.Equal(t, "x", string(src.Text))
}

func TestHooks_WithSession(t *testing.T) {
	s := session.New(session.Config{})
	defer s.Close()
	h := New(s)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, id := range []string{"a.js", "b.js", "c.js"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			res, err := h.Resolve(ctx, "./"+id, ResolveContext{ParentIdentifier: "main.js"}, resolveTo(id, time.Millisecond))
			assert.NoError(t, err)
			_, err = h.Load(ctx, res.Identifier, LoadContext{}, loadWith("", time.Millisecond))
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	// A re-import records another resolve pass for the same identifier.
	_, err := h.Resolve(ctx, "./a.js", ResolveContext{ParentIdentifier: "b.js"}, resolveTo("a.js", 0))
	require.NoError(t, err)

	mods := s.Modules()
	require.Len(t, mods, 3)
	for _, m := range mods {
		assert.True(t, m.Resolved)
		assert.True(t, m.Loaded)
		assert.Equal(t, "main.js", m.ParentIdentifier)
		if m.ResolvedIdentifier == "a.js" {
			assert.Equal(t, []string{"b.js"}, m.OtherParents)
		}
	}
}
