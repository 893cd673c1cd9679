// Package pipeline sequences the compile and run stages of one job.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/vanillastudio/console/internal/job"
	"github.com/vanillastudio/console/internal/runner"
)

type Pipeline struct {
	runner runner.Runner
	logger *slog.Logger
}

func New(r runner.Runner, logger *slog.Logger) *Pipeline {
	return &Pipeline{runner: r, logger: logger}
}

// Execute runs the job's stages in order and streams their output. The
// returned channel carries the stages' Line events and ends with exactly
// one terminal event; the job is in a terminal state by the time that
// event is delivered. A failed compile stage short-circuits: the run
// stage never starts and the compiler's exit code is preserved.
func (p *Pipeline) Execute(ctx context.Context, j *job.Job) <-chan runner.Event {
	out := make(chan runner.Event, 64)
	go p.run(ctx, j, out)
	return out
}

func (p *Pipeline) run(ctx context.Context, j *job.Job, out chan<- runner.Event) {
	defer close(out)

	logger := p.logger.With("job", j.ID, "language", j.Profile.ID)

	if len(j.CompileArgv) > 0 {
		j.Transition(job.StateCompiling)
		logger.Debug("compile stage starting")

		terminal := p.forward(ctx, p.stage(j, j.CompileArgv), out)
		switch {
		case terminal.Kind == runner.KindExited && terminal.Code != 0:
			j.SetExitCode(terminal.Code)
			j.Transition(job.StateCompileFailed)
			logger.Info("compile failed", "exit_code", terminal.Code)
			out <- terminal
			return
		case terminal.Kind == runner.KindErrored:
			j.Transition(compileFailureState(terminal.Reason))
			logger.Info("compile stage aborted", "reason", terminal.Reason)
			out <- terminal
			return
		}
		// Compile succeeded; its Exited(0) stays internal to the pipeline
		// so subscribers see a single terminal event per job.
	}

	// A cancel may land between stages.
	if ctx.Err() != nil {
		j.Transition(job.StateCanceled)
		out <- runner.Event{Kind: runner.KindErrored, Reason: runner.ReasonCanceled, Message: "canceled"}
		return
	}

	j.Transition(job.StateRunning)
	logger.Debug("run stage starting")

	terminal := p.forward(ctx, p.stage(j, j.RunArgv), out)
	switch terminal.Kind {
	case runner.KindExited:
		j.SetExitCode(terminal.Code)
		if terminal.Code == 0 {
			j.Transition(job.StateSucceeded)
		} else {
			j.Transition(job.StateRuntimeFailed)
		}
		logger.Info("run finished", "exit_code", terminal.Code)
	case runner.KindErrored:
		j.Transition(runFailureState(terminal.Reason))
		logger.Info("run stage aborted", "reason", terminal.Reason)
	}
	out <- terminal
}

// forward relays Line events and returns the stage's terminal event.
func (p *Pipeline) forward(ctx context.Context, stage runner.Stage, out chan<- runner.Event) runner.Event {
	var terminal runner.Event
	for ev := range p.runner.Run(ctx, stage) {
		if ev.Kind == runner.KindLine {
			out <- ev
			continue
		}
		terminal = ev
	}
	return terminal
}

func (p *Pipeline) stage(j *job.Job, argv []string) runner.Stage {
	return runner.Stage{
		Argv:    argv,
		HostDir: j.Dir,
		WorkDir: j.WorkDir,
		Timeout: j.Timeout,
		Image:   j.Profile.Image,
	}
}

func compileFailureState(reason runner.Reason) job.State {
	switch reason {
	case runner.ReasonTimeout:
		return job.StateTimedOut
	case runner.ReasonCanceled:
		return job.StateCanceled
	default:
		return job.StateCompileFailed
	}
}

func runFailureState(reason runner.Reason) job.State {
	switch reason {
	case runner.ReasonTimeout:
		return job.StateTimedOut
	case runner.ReasonCanceled:
		return job.StateCanceled
	default:
		return job.StateRuntimeFailed
	}
}
