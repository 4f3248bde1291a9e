package proc

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_Self(t *testing.T) {
	stats, err := Snapshot(context.Background(), os.Getpid())
	require.NoError(t, err)
	assert.Equal(t, int32(os.Getpid()), stats.PID)
	assert.Greater(t, stats.RSSBytes, uint64(0))
	assert.GreaterOrEqual(t, stats.VMSBytes, stats.RSSBytes)
}

func TestSnapshot_InvalidPID(t *testing.T) {
	_, err := Snapshot(context.Background(), 0)
	assert.Error(t, err)
}

func TestAlive(t *testing.T) {
	assert.True(t, Alive(context.Background(), os.Getpid()))
	assert.False(t, Alive(context.Background(), -1))
}
