package runner

import (
	"context"
	"time"
)

// Stream identifies which output pipe a line arrived on.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// Reason classifies an Errored event.
type Reason string

const (
	// ReasonTimeout means the stage exceeded its deadline and the process
	// tree was killed. Reported distinctly from a crash so the caller can
	// tell console policy from a program fault.
	ReasonTimeout Reason = "timeout"

	// ReasonCanceled means the stage was terminated on request.
	ReasonCanceled Reason = "canceled"

	// ReasonStartFailed means the process never started, typically because
	// the toolchain executable is not installed.
	ReasonStartFailed Reason = "start_failed"
)

type EventKind string

const (
	KindLine    EventKind = "line"
	KindExited  EventKind = "exited"
	KindErrored EventKind = "errored"
)

// Event is one observation from a running stage. A stage's event stream
// carries zero or more Line events in arrival order, then exactly one
// Exited or Errored event, after which the channel is closed.
type Event struct {
	Kind    EventKind
	Stream  Stream
	Text    string
	Code    int
	Reason  Reason
	Message string
}

func lineEvent(stream Stream, text string) Event {
	return Event{Kind: KindLine, Stream: stream, Text: text}
}

func exitEvent(code int) Event {
	return Event{Kind: KindExited, Code: code}
}

func errorEvent(reason Reason, message string) Event {
	return Event{Kind: KindErrored, Reason: reason, Message: message}
}

// Stage describes one sub-process invocation within a job's pipeline.
type Stage struct {
	// Argv is the fully resolved command. Argv[0] is the executable.
	Argv []string

	// HostDir is the job's scratch directory on the host filesystem.
	// WorkDir is the working directory as the process sees it; the local
	// runner runs directly in HostDir, the docker runner bind-mounts
	// HostDir at WorkDir.
	HostDir string
	WorkDir string

	// Timeout is the deadline measured from stage start.
	Timeout time.Duration

	// Image selects the container image for the docker runner; the local
	// runner ignores it.
	Image string
}

// Runner executes one stage and streams its output. The returned channel
// is closed after the terminal event. Cancelling ctx force-kills the
// process tree; no graceful shutdown is attempted, because arbitrary user
// programs cannot be trusted to honor a polite signal.
type Runner interface {
	Run(ctx context.Context, stage Stage) <-chan Event
}
