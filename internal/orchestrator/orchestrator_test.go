package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/docteur/internal/testutil"
	"github.com/coral-mesh/docteur/pkg/sdk"
	"github.com/coral-mesh/docteur/pkg/sdk/hooks"
	"github.com/coral-mesh/docteur/pkg/sdk/protocol"
	"github.com/coral-mesh/docteur/pkg/timing"
)

// TestHelperProcess is not a real test. It is the target process the
// orchestrator tests spawn, running the real SDK.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	mode := ""
	for i, arg := range os.Args {
		if arg == "--" && i+1 < len(os.Args) {
			mode = os.Args[i+1]
		}
	}
	os.Exit(runHelper(mode))
}

func runHelper(mode string) int {
	switch mode {
	case "hang", "stubborn":
		if mode == "stubborn" {
			signal.Ignore(syscall.SIGTERM)
		}
		fmt.Println("started HTTP server on :3333")
		time.Sleep(time.Hour)
		return 0
	case "foreign":
		w := protocol.NewWriter(os.NewFile(protocol.FDControlOut, "control"), "not-this-session")
		_ = w.Send(protocol.TypeResults, protocol.Results{Modules: []timing.ModuleTiming{{ResolvedIdentifier: "x.js"}}})
		return 0
	}

	s, err := sdk.New(sdk.Config{})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	bootModules(s)

	switch mode {
	case "ready":
		fmt.Println("booting")
		fmt.Println("started HTTP server on :3333")
	case "ready-control":
		_ = s.Ready()
	case "silent":
	case "exit-early":
		_ = s.Close()
		return 0
	case "crash":
		_ = s.Close()
		return 3
	default:
		fmt.Fprintf(os.Stderr, "unknown helper mode %q\n", mode)
		return 1
	}
	time.Sleep(time.Hour)
	return 0
}

func bootModules(s *sdk.SDK) {
	ctx := context.Background()
	h := s.Hooks()
	edges := [][2]string{
		{"", "file:///app/bin/server.js"},
		{"file:///app/bin/server.js", "file:///app/start/routes.js"},
		{"file:///app/start/routes.js", "file:///app/node_modules/lodash/lodash.js"},
	}
	for _, e := range edges {
		id := e[1]
		res, _ := h.Resolve(ctx, "./"+id, hooks.ResolveContext{ParentIdentifier: e[0]},
			func(context.Context, string, hooks.ResolveContext) (hooks.Resolution, error) {
				return hooks.Resolution{Identifier: id}, nil
			})
		_, _ = h.Load(ctx, res.Identifier, hooks.LoadContext{},
			func(context.Context, string, hooks.LoadContext) (hooks.Source, error) {
				time.Sleep(2 * time.Millisecond)
				return hooks.Source{}, nil
			})
	}
	_ = s.Channels().TraceSync(timing.PhaseBoot, "AppProvider", func() error {
		time.Sleep(3 * time.Millisecond)
		return nil
	})
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func helperOptions(t *testing.T, mode string) Options {
	t.Helper()
	return Options{
		Command:         []string{os.Args[0], "-test.run=^TestHelperProcess$", "--"},
		Args:            []string{mode},
		Env:             []string{"GO_WANT_HELPER_PROCESS=1"},
		Timeout:         5 * time.Second,
		FallbackTimeout: 2 * time.Second,
		KillGrace:       200 * time.Millisecond,
		Logger:          testutil.NewTestLogger(t),
	}
}

func runHelperMode(t *testing.T, opts Options) (*timing.ProfileResult, error) {
	t.Helper()
	o, err := New(opts)
	require.NoError(t, err)

	return o.Run(testutil.Context(t))
}

func assertBootProfile(t *testing.T, res *timing.ProfileResult) {
	t.Helper()
	require.Len(t, res.Modules, 3)

	byID := map[string]timing.ModuleTiming{}
	for _, m := range res.Modules {
		byID[m.ResolvedIdentifier] = m
	}
	routes := byID["file:///app/start/routes.js"]
	assert.True(t, routes.Resolved)
	assert.True(t, routes.Loaded)
	assert.Equal(t, "file:///app/bin/server.js", routes.ParentIdentifier)
	assert.GreaterOrEqual(t, routes.LoadDurationMs, 2.0)

	require.Len(t, res.Components, 1)
	assert.Equal(t, "AppProvider", res.Components[0].ComponentName)
	assert.Equal(t, timing.PhaseBoot, res.Components[0].Phase)

	assert.Equal(t, 3, res.Summary.TotalModules)
	assert.Equal(t, 1, res.Summary.ThirdPartyModules)
	assert.Equal(t, 2, res.Summary.UserModules)
}

func TestRun_ReadyThenResults(t *testing.T) {
	stdout := &lockedBuffer{}
	opts := helperOptions(t, "ready")
	opts.Stdout = stdout

	res, err := runHelperMode(t, opts)
	require.NoError(t, err)

	assert.False(t, res.Partial)
	assert.NotEmpty(t, res.SessionID)
	assert.Greater(t, res.TotalTime, 0.0)
	assertBootProfile(t, res)
	assert.Contains(t, stdout.String(), "started HTTP server")
	if runtime.GOOS == "linux" {
		require.NotNil(t, res.Process)
		assert.Greater(t, res.Process.RSSBytes, uint64(0))
	}
}

func TestRun_ReadinessOverControlChannel(t *testing.T) {
	res, err := runHelperMode(t, helperOptions(t, "ready-control"))
	require.NoError(t, err)
	assert.False(t, res.Partial)
	assertBootProfile(t, res)
}

func TestRun_FallbackRequestsResults(t *testing.T) {
	opts := helperOptions(t, "silent")
	opts.FallbackTimeout = 300 * time.Millisecond

	start := time.Now()
	res, err := runHelperMode(t, opts)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
	assert.Less(t, time.Since(start), opts.Timeout)
	assert.False(t, res.Partial, "the results message, not the exit, determines the snapshot")
	assertBootProfile(t, res)
}

func TestRun_ExitBeforeResultsIsPartial(t *testing.T) {
	res, err := runHelperMode(t, helperOptions(t, "exit-early"))
	require.NoError(t, err)

	assert.True(t, res.Partial)
	assert.Greater(t, res.EndTimestamp, 0.0)
	assert.Equal(t, res.EndTimestamp, res.TotalTime)
	assertBootProfile(t, res)
}

func TestRun_AbnormalExit(t *testing.T) {
	_, err := runHelperMode(t, helperOptions(t, "crash"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAbnormalExit)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.Code)
}

func TestRun_ForeignSessionIsIgnored(t *testing.T) {
	res, err := runHelperMode(t, helperOptions(t, "foreign"))
	require.NoError(t, err)
	assert.True(t, res.Partial)
	assert.Empty(t, res.Modules)
}

func TestRun_Timeout(t *testing.T) {
	opts := helperOptions(t, "hang")
	opts.Timeout = 600 * time.Millisecond
	opts.FallbackTimeout = 200 * time.Millisecond

	_, err := runHelperMode(t, opts)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestRun_TimeoutEscalatesToKill(t *testing.T) {
	opts := helperOptions(t, "stubborn")
	opts.Timeout = 600 * time.Millisecond
	opts.FallbackTimeout = 200 * time.Millisecond
	opts.KillGrace = 100 * time.Millisecond

	start := time.Now()
	_, err := runHelperMode(t, opts)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestRun_ContextCancelled(t *testing.T) {
	o, err := New(helperOptions(t, "hang"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	_, err = o.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRun_SpawnFailure(t *testing.T) {
	o, err := New(Options{Command: []string{"/nonexistent/docteur-target"}})
	require.NoError(t, err)

	_, err = o.Run(context.Background())
	assert.ErrorIs(t, err, ErrSpawnFailure)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	_, err = New(Options{Command: []string{"node"}, Timeout: time.Second, FallbackTimeout: 2 * time.Second})
	assert.Error(t, err)
}

func TestOptions_Argv(t *testing.T) {
	opts := Options{
		Command: []string{"node", "--enable-source-maps"},
		Preload: []string{"--import", "docteur/register"},
		Entry:   "bin/server.js",
		Args:    []string{"--port", "3333"},
	}
	assert.Equal(t, []string{"--enable-source-maps", "--import", "docteur/register", "bin/server.js", "--port", "3333"}, opts.argv())
}

func TestExitStatus_Expected(t *testing.T) {
	tests := []struct {
		name   string
		status exitStatus
		want   bool
	}{
		{"clean exit", exitStatus{}, true},
		{"sigterm", exitStatus{code: 143, signal: syscall.SIGTERM}, true},
		{"sigkill", exitStatus{code: 137, signal: syscall.SIGKILL}, true},
		{"wrapped sigterm", exitStatus{code: 143}, true},
		{"segfault", exitStatus{code: 139, signal: syscall.SIGSEGV}, false},
		{"failure", exitStatus{code: 1}, false},
		{"wait error", exitStatus{code: -1, err: errors.New("wait failed")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.expected())
		})
	}

	err := exitStatus{code: 139, signal: syscall.SIGSEGV}.asError()
	assert.ErrorIs(t, err, ErrAbnormalExit)
	assert.Contains(t, err.Error(), "SIGSEGV")
}
