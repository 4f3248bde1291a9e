package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	info := Get()
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
	assert.NotEmpty(t, info.GoVersion)
}

func TestShort(t *testing.T) {
	old, oldCommit := Version, GitCommit
	t.Cleanup(func() { Version, GitCommit = old, oldCommit })

	Version, GitCommit = "1.2.0", "abc1234"
	assert.Equal(t, "docteur 1.2.0 (abc1234)", Short())
}
