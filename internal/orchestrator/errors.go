package orchestrator

import (
	"errors"
	"fmt"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// Error kinds of a profiling run.
var (
	// ErrSpawnFailure means the target process could not be started.
	ErrSpawnFailure = errors.New("failed to spawn target process")
	// ErrTimeout means no result arrived within the hard timeout.
	ErrTimeout = errors.New("timed out waiting for profiling results")
	// ErrAbnormalExit means the target exited on its own with a failure.
	ErrAbnormalExit = errors.New("target process exited abnormally")
)

// ExitError describes an abnormal exit. It unwraps to ErrAbnormalExit.
type ExitError struct {
	Code   int
	Signal unix.Signal
}

func (e *ExitError) Error() string {
	if e.Signal != 0 {
		return fmt.Sprintf("%s: killed by %s", ErrAbnormalExit, unix.SignalName(e.Signal))
	}
	return fmt.Sprintf("%s: exit code %d", ErrAbnormalExit, e.Code)
}

func (e *ExitError) Unwrap() error {
	return ErrAbnormalExit
}

// exitStatus is how the child ended.
type exitStatus struct {
	code   int
	signal unix.Signal
	err    error // wait error that is not an exit status
}

func exitStatusOf(err error) exitStatus {
	if err == nil {
		return exitStatus{}
	}
	var ee *exec.ExitError
	if !errors.As(err, &ee) {
		return exitStatus{code: -1, err: err}
	}
	if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return exitStatus{code: 128 + int(ws.Signal()), signal: ws.Signal()}
	}
	return exitStatus{code: ee.ExitCode()}
}

// terminationSignals are the signals the orchestrator uses to stop a child.
var terminationSignals = []unix.Signal{unix.SIGTERM, unix.SIGKILL, unix.SIGINT}

func isTermination(sig unix.Signal) bool {
	for _, s := range terminationSignals {
		if s == sig {
			return true
		}
	}
	return false
}

// expected reports whether the exit is a clean exit or one caused by a
// termination signal. A shell wrapper reports a signal death as 128+n.
func (s exitStatus) expected() bool {
	if s.err != nil {
		return false
	}
	if s.code == 0 {
		return true
	}
	if s.signal != 0 {
		return isTermination(s.signal)
	}
	return s.code > 128 && isTermination(unix.Signal(s.code-128))
}

func (s exitStatus) asError() error {
	if s.err != nil {
		return fmt.Errorf("%w: %v", ErrAbnormalExit, s.err)
	}
	return &ExitError{Code: s.code, Signal: s.signal}
}
