// Package proc snapshots the resource usage of a profiled process.
package proc

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/coral-mesh/docteur/pkg/timing"
)

// Snapshot reads the memory and thread usage of pid. It must be called
// while the process is still alive.
func Snapshot(ctx context.Context, pid int) (*timing.ProcessStats, error) {
	if pid <= 0 {
		return nil, fmt.Errorf("invalid pid %d", pid)
	}

	//nolint:gosec // G115: pid comes from os.Process and fits in int32.
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return nil, fmt.Errorf("failed to open process %d: %w", pid, err)
	}

	mem, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read memory of process %d: %w", pid, err)
	}

	stats := &timing.ProcessStats{
		PID:      p.Pid,
		RSSBytes: mem.RSS,
		VMSBytes: mem.VMS,
	}

	// Thread counts are not available on every platform.
	if n, err := p.NumThreadsWithContext(ctx); err == nil {
		stats.NumThreads = n
	}

	return stats, nil
}

// Alive reports whether pid still exists.
func Alive(ctx context.Context, pid int) bool {
	if pid <= 0 {
		return false
	}
	//nolint:gosec // G115: see Snapshot.
	ok, err := process.PidExistsWithContext(ctx, int32(pid))
	return err == nil && ok
}
