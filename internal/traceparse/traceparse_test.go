package traceparse

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTrace = `{"traceEvents":[
  {"pid":1,"tid":1,"ts":1000,"ph":"b","cat":"node,node.module_timer","name":"require('lodash')","id":"0x1"},
  {"pid":1,"tid":1,"ts":1200,"ph":"b","cat":"node,node.module_timer","name":"require('./util')","id":"0x2"},
  {"pid":1,"tid":1,"ts":1700,"ph":"e","cat":"node,node.module_timer","name":"require('./util')","id":"0x2"},
  {"pid":1,"tid":1,"ts":3000,"ph":"e","cat":"node,node.module_timer","name":"require('lodash')","id":"0x1"},
  {"pid":1,"tid":2,"ts":3000,"ph":"e","cat":"node,node.module_timer","name":"require('orphan')"},
  {"pid":1,"tid":1,"ts":4000,"ph":"b","cat":"v8","name":"require('ignored')"},
  {"pid":1,"tid":1,"ts":4000,"ph":"b","cat":"node.module_timer","name":"compile"},
  {"pid":1,"tid":1,"ts":5000,"ph":"X","dur":250,"cat":"node.module_timer","name":"require(\"./util\")"}
]}`

func TestParse(t *testing.T) {
	timings, err := Parse(strings.NewReader(sampleTrace))
	require.NoError(t, err)

	assert.Equal(t, []ModuleLoadTiming{
		{Name: "require('./util')", LoadTimeUs: 500, LoadTimeMs: 0.5},
		{Name: "require('lodash')", LoadTimeUs: 2000, LoadTimeMs: 2},
		{Name: `require("./util")`, LoadTimeUs: 250, LoadTimeMs: 0.25},
	}, timings)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse(strings.NewReader("{not json"))
	assert.Error(t, err)

	timings, err := Parse(strings.NewReader(`{"traceEvents":[]}`))
	require.NoError(t, err)
	assert.Empty(t, timings)
}

func TestExtractModuleName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"require('lodash')", "lodash"},
		{`require("@adonisjs/core")`, "@adonisjs/core"},
		{"require('./a/b.js')", "./a/b.js"},
		{"compile", "compile"},
		{"require()", "require()"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractModuleName(tt.in))
		})
	}
}

func TestAggregate(t *testing.T) {
	timings, err := Parse(strings.NewReader(sampleTrace))
	require.NoError(t, err)

	agg := Aggregate(timings)
	assert.Equal(t, []ModuleLoadTiming{
		{Name: "./util", LoadTimeUs: 750, LoadTimeMs: 0.75},
		{Name: "lodash", LoadTimeUs: 2000, LoadTimeMs: 2},
	}, agg)

	sorted := SortByLoadTime(agg)
	assert.Equal(t, "lodash", sorted[0].Name)
	assert.Equal(t, "./util", agg[0].Name, "input is not reordered")
}

func TestToModuleTimings(t *testing.T) {
	modules := ToModuleTimings([]ModuleLoadTiming{{Name: "require('lodash')", LoadTimeUs: 2000, LoadTimeMs: 2}})
	require.Len(t, modules, 1)
	assert.Equal(t, "lodash", modules[0].ResolvedIdentifier)
	assert.Equal(t, 2.0, modules[0].EffectiveTime())
	assert.True(t, modules[0].Loaded)
}

func TestParseFileAndCleanup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node_trace.1.log")
	require.NoError(t, os.WriteFile(path, []byte(sampleTrace), 0o600))

	timings, err := ParseFile(path)
	require.NoError(t, err)
	assert.Len(t, timings, 3)

	require.NoError(t, Cleanup(path))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, Cleanup(path))

	_, err = ParseFile(path)
	assert.Error(t, err)
}
