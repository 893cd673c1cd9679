package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"
)

// maxLineBytes bounds a single decoded output line. Longer lines are
// split rather than dropped.
const maxLineBytes = 1 << 20

// Local runs stages as direct child processes. Each stage gets its own
// process group so that a timeout or cancel kills descendants too.
type Local struct {
	logger *slog.Logger
}

func NewLocal(logger *slog.Logger) *Local {
	return &Local{logger: logger}
}

func (l *Local) Run(ctx context.Context, stage Stage) <-chan Event {
	events := make(chan Event, 64)
	go l.run(ctx, stage, events)
	return events
}

func (l *Local) run(ctx context.Context, stage Stage, events chan<- Event) {
	defer close(events)

	if len(stage.Argv) == 0 {
		events <- errorEvent(ReasonStartFailed, "no command specified")
		return
	}
	if _, err := exec.LookPath(stage.Argv[0]); err != nil {
		events <- errorEvent(ReasonStartFailed, fmt.Sprintf("%s not found in PATH", stage.Argv[0]))
		return
	}

	cmd := exec.Command(stage.Argv[0], stage.Argv[1:]...)
	cmd.Dir = stage.HostDir
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		events <- errorEvent(ReasonStartFailed, err.Error())
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		events <- errorEvent(ReasonStartFailed, err.Error())
		return
	}

	if err := cmd.Start(); err != nil {
		events <- errorEvent(ReasonStartFailed, err.Error())
		return
	}

	logger := l.logger.With("pid", cmd.Process.Pid, "command", stage.Argv[0])
	logger.Debug("stage started")

	var readers sync.WaitGroup
	readers.Add(2)
	go scanLines(stdout, StreamStdout, events, &readers)
	go scanLines(stderr, StreamStderr, events, &readers)

	// Pipes EOF once the whole process group is gone, so waiting on the
	// readers first also waits out any lingering descendants.
	done := make(chan error, 1)
	go func() {
		readers.Wait()
		done <- cmd.Wait()
	}()

	timer := time.NewTimer(stage.Timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		code := exitCode(err)
		logger.Debug("stage exited", "exit_code", code)
		events <- exitEvent(code)
	case <-timer.C:
		// A natural exit racing the deadline wins: the process did finish
		// in time.
		select {
		case err := <-done:
			code := exitCode(err)
			logger.Debug("stage exited", "exit_code", code)
			events <- exitEvent(code)
			return
		default:
		}
		killTree(cmd)
		<-done
		logger.Warn("stage timed out", "timeout", stage.Timeout)
		events <- errorEvent(ReasonTimeout, fmt.Sprintf("killed after %s", stage.Timeout))
	case <-ctx.Done():
		select {
		case err := <-done:
			code := exitCode(err)
			logger.Debug("stage exited", "exit_code", code)
			events <- exitEvent(code)
			return
		default:
		}
		killTree(cmd)
		<-done
		logger.Debug("stage canceled")
		events <- errorEvent(ReasonCanceled, "canceled")
	}
}

// scanLines decodes the reader into line events as data arrives. A line
// longer than maxLineBytes is emitted in maxLineBytes chunks so oversized
// output keeps flowing instead of stalling the pipe.
func scanLines(r io.Reader, stream Stream, events chan<- Event, wg *sync.WaitGroup) {
	defer wg.Done()

	br := bufio.NewReaderSize(r, 64*1024)
	buf := make([]byte, 0, maxLineBytes)
	split := false
	for {
		chunk, err := br.ReadSlice('\n')
		buf = append(buf, chunk...)
		if err == bufio.ErrBufferFull {
			if len(buf) >= maxLineBytes {
				events <- lineEvent(stream, string(buf))
				buf = buf[:0]
				split = true
			}
			continue
		}
		if err != nil {
			// EOF or a broken pipe; flush any unterminated tail.
			if len(buf) > 0 {
				events <- lineEvent(stream, string(trimEOL(buf)))
			}
			return
		}
		line := trimEOL(buf)
		// The terminator of a line already emitted as chunks carries no
		// text of its own.
		if len(line) > 0 || !split {
			events <- lineEvent(stream, string(line))
		}
		buf = buf[:0]
		split = false
	}
}

func trimEOL(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\n' {
		b = b[:n-1]
	}
	if n := len(b); n > 0 && b[n-1] == '\r' {
		b = b[:n-1]
	}
	return b
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}
