package diagnose

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/docteur/internal/collector"
	"github.com/coral-mesh/docteur/internal/constants"
	"github.com/coral-mesh/docteur/internal/testutil"
	"github.com/coral-mesh/docteur/pkg/sdk"
	"github.com/coral-mesh/docteur/pkg/sdk/hooks"
	"github.com/coral-mesh/docteur/pkg/timing"
)

// TestHelperProcess is the profiled application when re-executed by the
// tests below.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	s, err := sdk.New(sdk.Config{})
	if err != nil {
		os.Exit(2)
	}
	ctx := context.Background()
	h := s.Hooks()
	for _, e := range [][2]string{
		{"", "file:///app/bin/server.js"},
		{"file:///app/bin/server.js", "file:///app/start/routes.js"},
		{"file:///app/bin/server.js", "file:///app/node_modules/@adonisjs/core/build/index.js"},
	} {
		id := e[1]
		res, _ := h.Resolve(ctx, id, hooks.ResolveContext{ParentIdentifier: e[0]},
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
		time.Sleep(2 * time.Millisecond)
		return nil
	})
	time.Sleep(20 * time.Millisecond)

	fmt.Println("started HTTP server on :3333")
	time.Sleep(time.Hour)
}

func setupApp(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "server.js"), nil, 0o600))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv(constants.EnvConfig, "")
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")
	t.Setenv("DOCTEUR_COMMAND", os.Args[0]+" -test.run=^TestHelperProcess$ --")
	return dir
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	root := &cobra.Command{Use: "docteur", SilenceUsage: true, SilenceErrors: true}
	root.PersistentFlags().String("config", "", "")
	root.PersistentFlags().String("log-level", "warn", "")
	root.PersistentFlags().Bool("log-pretty", false, "")
	root.AddCommand(NewDiagnoseCmd())

	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"diagnose", "--timeout", "10s", "--fallback-timeout", "5s"}, args...))
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func TestDiagnose_JSONWithExports(t *testing.T) {
	dir := setupApp(t)
	pprofPath := filepath.Join(dir, "boot.pb.gz")
	otlpPath := filepath.Join(dir, "boot.json")

	out, _, err := execute(t, "-o", "json", "--pprof", pprofPath, "--otlp", otlpPath)
	require.NoError(t, err)

	var result timing.ProfileResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.False(t, result.Partial)
	assert.Len(t, result.Modules, 3)
	assert.NotEmpty(t, result.SessionID)
	require.NotEmpty(t, result.Components)
	assert.Equal(t, "AppProvider", result.Components[0].ComponentName)

	info, err := os.Stat(pprofPath)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	traces, err := os.ReadFile(otlpPath)
	require.NoError(t, err)
	assert.Contains(t, string(traces), "resourceSpans")
}

func TestDiagnose_Report(t *testing.T) {
	setupApp(t)

	out, _, err := execute(t, "--threshold", "0", "--tree")
	require.NoError(t, err)
	assert.Contains(t, out, "Total boot time:")
	assert.Contains(t, out, "@adonisjs/core")
	assert.Contains(t, out, "Legend:")
}

func TestDiagnose_CSV(t *testing.T) {
	setupApp(t)

	out, _, err := execute(t, "-o", "csv", "--threshold", "0", "--third-party=false")
	require.NoError(t, err)
	assert.Contains(t, out, "MODULE")
	assert.Contains(t, out, "routes.js")
	assert.NotContains(t, out, "@adonisjs")
}

func TestDiagnose_InvalidFlags(t *testing.T) {
	setupApp(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "format", args: []string{"-o", "xml"}, want: "unsupported format"},
		{name: "where", args: []string{"--where", "module.load_ms >"}, want: "profile.where"},
		{name: "threshold", args: []string{"--threshold", "-1"}, want: "profile.threshold_ms"},
		{name: "entry", args: []string{"--entry", "missing.js"}, want: "entry file not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestModuleRows_FilterAndTop(t *testing.T) {
	coll, err := collector.New(timing.Config{
		TopModules:        2,
		IncludeThirdParty: true,
		Where:             `module.load_ms >= 8.0`,
	})
	require.NoError(t, err)

	result := testutil.SampleResult()
	rows := moduleRows(coll, result, collector.DefaultConventions(), "/app")
	require.Len(t, rows, 2)
	assert.Equal(t, 30.0, rows[0].LoadMs)
	assert.Equal(t, 12.0, rows[1].LoadMs)
}
