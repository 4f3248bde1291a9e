package orchestrator

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"time"

	"golang.org/x/sys/unix"

	ierrors "github.com/coral-mesh/docteur/internal/errors"
	"github.com/coral-mesh/docteur/internal/sys/proc"
	"github.com/coral-mesh/docteur/pkg/sdk/protocol"
)

func (r *run) elapsedMs() float64 {
	return float64(time.Since(r.spawnedAt).Nanoseconds()) / 1e6
}

func (r *run) exited() bool {
	select {
	case <-r.waitDone:
		return true
	default:
		return false
	}
}

// signal delivers sig to the child's process group, falling back to the
// child alone.
func (r *run) signal(sig unix.Signal) {
	if r.exited() {
		return
	}
	pid := r.cmd.Process.Pid
	if err := unix.Kill(-pid, sig); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return
		}
		r.logger.Debug().Err(err).Stringer("signal", sig).Msg("Group signal failed, signalling child only")
		_ = r.cmd.Process.Signal(sig) //nolint:errcheck // best effort, the child may be gone
	}
}

// kill stops the child immediately and reaps it.
func (r *run) kill() {
	r.signal(unix.SIGKILL)
	<-r.waitDone
}

// terminate asks the child to stop, escalates after the grace period and
// reaps it.
func (r *run) terminate() {
	r.signal(unix.SIGTERM)
	grace := time.NewTimer(r.o.opts.KillGrace)
	defer grace.Stop()

	select {
	case <-r.waitDone:
	case <-grace.C:
		r.logger.Debug().Dur("grace", r.o.opts.KillGrace).Msg("Target ignored SIGTERM, killing")
		r.kill()
	}
}

// snapshot records the child's resource usage while it is still alive.
func (r *run) snapshot(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	stats, err := proc.Snapshot(ctx, r.cmd.Process.Pid)
	if err != nil {
		r.logger.Debug().Err(err).Msg("Failed to snapshot target process")
		return
	}
	r.process = stats
}

// drain consumes messages still in flight after the child stopped, until
// both channels hit EOF or the drain timeout expires. It returns a results
// payload if one shows up.
func (r *run) drain() *protocol.Results {
	finished := make(chan struct{})
	go func() {
		r.msgReaders.Wait()
		close(finished)
	}()

	deadline := time.NewTimer(r.o.opts.DrainTimeout)
	defer deadline.Stop()

	var final *protocol.Results
	apply := func(msg message) {
		if res, ok := r.handle(msg); ok && final == nil {
			final = res
		}
	}

	for {
		select {
		case msg := <-r.msgs:
			apply(msg)
		case <-finished:
			for {
				select {
				case msg := <-r.msgs:
					apply(msg)
				default:
					return final
				}
			}
		case <-deadline.C:
			r.logger.Debug().Msg("Stopped draining telemetry, pipes still open")
			return final
		}
	}
}

func (r *run) readMessages(f *os.File, src source) {
	defer r.msgReaders.Done()

	reader := protocol.NewReader(f)
	for {
		env, err := reader.Next()
		if err != nil {
			var malformed *protocol.MalformedError
			if errors.As(err, &malformed) {
				r.logger.Debug().Err(err).Msg("Skipping malformed message")
				continue
			}
			return
		}
		select {
		case r.msgs <- message{src: src, env: env}:
		case <-r.done:
			return
		}
	}
}

// watchStdout copies the child's output and signals the first line that
// matches the readiness pattern.
func (r *run) watchStdout() {
	defer close(r.stdoutDone)

	opts := r.o.opts
	reader := bufio.NewReader(r.stdout)
	matched := false
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			if opts.Stdout != nil {
				_, _ = opts.Stdout.Write([]byte(line)) //nolint:errcheck // passthrough is best effort
			}
			if !matched && opts.ReadyPattern.MatchString(line) {
				matched = true
				select {
				case r.ready <- struct{}{}:
				default:
				}
			}
		}
		if err != nil {
			// A PTY reports EIO once the child side is closed.
			return
		}
	}
}

func (r *run) closeParentEnds() {
	ierrors.CloseAll(r.logger, "Failed to close pipe", closers(r.controlOut, r.controlIn, r.telemetry, r.stdout)...)
}

// close releases the parent's pipe ends and waits briefly for the readers.
func (r *run) close() {
	close(r.done)
	r.closeParentEnds()

	finished := make(chan struct{})
	go func() {
		r.msgReaders.Wait()
		<-r.stdoutDone
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(r.o.opts.DrainTimeout):
		r.logger.Debug().Msg("Pipe readers still running after close")
	}
}

// closers drops nil files so a typed nil never reaches Close.
func closers(files ...*os.File) []io.Closer {
	out := make([]io.Closer, 0, len(files))
	for _, f := range files {
		if f != nil {
			out = append(out, f)
		}
	}
	return out
}
