//go:build unix

package manager_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/vanillastudio/console/internal/job"
	"github.com/vanillastudio/console/internal/language"
	"github.com/vanillastudio/console/internal/manager"
	"github.com/vanillastudio/console/internal/pipeline"
	"github.com/vanillastudio/console/internal/runner"
)

// newManager wires a manager over the real local runner. The lua profile
// is remapped to plain sh so tests only need a POSIX shell: submitted
// "lua" source is a shell script. Returns the scratch root the manager
// allocates job directories under.
func newManager(t *testing.T) (*manager.Manager, string) {
	t.Helper()

	overrides := &language.Overrides{
		Languages: []language.Override{
			{ID: "lua", Run: []string{"sh", "{source}"}},
		},
	}
	reg, err := language.NewRegistry(10*time.Second, overrides)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	root := t.TempDir()
	builder := job.NewBuilder(reg, root, "")
	m := manager.New(builder, pipeline.New(runner.NewLocal(logger), logger), job.NewStore(), logger)
	t.Cleanup(m.Shutdown)
	return m, root
}

// awaitTerminal reads envelopes for the given job until its terminal
// event arrives, returning the lines seen along the way.
func awaitTerminal(t *testing.T, events <-chan manager.Envelope, jobID string) ([]manager.Envelope, manager.Envelope) {
	t.Helper()

	var lines []manager.Envelope
	deadline := time.After(15 * time.Second)
	for {
		select {
		case env, ok := <-events:
			if !ok {
				t.Fatalf("stream closed before job %s finished", jobID)
			}
			if env.JobID != jobID {
				continue
			}
			if env.Kind == runner.KindLine {
				lines = append(lines, env)
				continue
			}
			return lines, env
		case <-deadline:
			t.Fatalf("job %s did not finish in time", jobID)
		}
	}
}

// awaitEmpty waits for the scratch root to hold no job directories.
func awaitEmpty(t *testing.T, root string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		entries, err := os.ReadDir(root)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("scratch root %s was not reclaimed", root)
}

func TestSubmitStreamsOutputAndSucceeds(t *testing.T) {
	m, _ := newManager(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := m.Subscribe(ctx)

	id, err := m.Submit("default", "lua", "echo hi\n", 0)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	lines, terminal := awaitTerminal(t, events, id)

	if len(lines) != 1 || lines[0].Text != "hi" || lines[0].Stream != runner.StreamStdout {
		t.Errorf("unexpected lines: %+v", lines)
	}
	if terminal.Kind != runner.KindExited || terminal.ExitCode == nil || *terminal.ExitCode != 0 {
		t.Errorf("expected Exited(0), got %+v", terminal)
	}
	if terminal.State != "SUCCEEDED" {
		t.Errorf("terminal event should carry state SUCCEEDED, got %q", terminal.State)
	}

	snap, err := m.Job(id)
	if err != nil {
		t.Fatalf("Job failed: %v", err)
	}
	if snap.State != "SUCCEEDED" {
		t.Errorf("expected SUCCEEDED, got %s", snap.State)
	}
}

func TestScratchDirReclaimedAfterRun(t *testing.T) {
	m, root := newManager(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := m.Subscribe(ctx)

	id, err := m.Submit("default", "lua", "true\n", 0)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	awaitTerminal(t, events, id)
	awaitEmpty(t, root)
}

func TestSubmitPreemptsBusySlot(t *testing.T) {
	m, _ := newManager(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := m.Subscribe(ctx)

	first, err := m.Submit("default", "lua", "sleep 30\n", 0)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	// Let the first job reach its run stage before resubmitting.
	time.Sleep(200 * time.Millisecond)

	second, err := m.Submit("default", "lua", "echo replaced\n", 0)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	_, terminal := awaitTerminal(t, events, first)
	if terminal.Kind != runner.KindErrored || terminal.Reason != runner.ReasonCanceled {
		t.Errorf("preempted job should end Errored(canceled), got %+v", terminal)
	}
	if terminal.State != "CANCELED" {
		t.Errorf("expected CANCELED, got %q", terminal.State)
	}

	lines, terminal := awaitTerminal(t, events, second)
	if len(lines) != 1 || lines[0].Text != "replaced" {
		t.Errorf("unexpected lines from replacement job: %+v", lines)
	}
	if terminal.Kind != runner.KindExited {
		t.Errorf("replacement job should run to completion, got %+v", terminal)
	}
}

func TestDistinctSlotsRunConcurrently(t *testing.T) {
	m, _ := newManager(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := m.Subscribe(ctx)

	a, err := m.Submit("left", "lua", "sleep 0.2; echo a\n", 0)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	b, err := m.Submit("right", "lua", "sleep 0.2; echo b\n", 0)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	start := time.Now()
	done := map[string]bool{}
	for len(done) < 2 {
		select {
		case env := <-events:
			if env.Kind != runner.KindLine && (env.JobID == a || env.JobID == b) {
				if env.Kind != runner.KindExited {
					t.Errorf("job %s: expected clean exit, got %+v", env.JobID, env)
				}
				done[env.JobID] = true
			}
		case <-time.After(15 * time.Second):
			t.Fatal("jobs did not finish")
		}
	}
	// Serial execution would take at least 0.4s.
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("jobs took %s", elapsed)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	m, _ := newManager(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := m.Subscribe(ctx)

	id, err := m.Submit("default", "lua", "sleep 30\n", 0)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	m.Cancel(id)
	_, terminal := awaitTerminal(t, events, id)
	if terminal.State != "CANCELED" {
		t.Errorf("expected CANCELED, got %q", terminal.State)
	}

	// Canceling again, and canceling nonsense, must not panic or block.
	m.Cancel(id)
	m.Cancel("job-unknown")

	snap, err := m.Job(id)
	if err != nil {
		t.Fatal(err)
	}
	if snap.State != "CANCELED" {
		t.Errorf("state changed after redundant cancel: %s", snap.State)
	}
}

func TestTimeoutOverride(t *testing.T) {
	m, _ := newManager(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := m.Subscribe(ctx)

	id, err := m.Submit("default", "lua", "sleep 30\n", 300*time.Millisecond)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	start := time.Now()
	_, terminal := awaitTerminal(t, events, id)
	if terminal.Reason != runner.ReasonTimeout || terminal.State != "TIMED_OUT" {
		t.Errorf("expected timeout, got %+v", terminal)
	}
	if time.Since(start) > 10*time.Second {
		t.Errorf("override timeout not honored")
	}
}

func TestSubmitUnsupportedLanguage(t *testing.T) {
	m, _ := newManager(t)

	_, err := m.Submit("default", "cobol", "", 0)
	if !errors.Is(err, language.ErrUnsupportedLanguage) {
		t.Fatalf("expected ErrUnsupportedLanguage, got %v", err)
	}
}

func TestJobUnknownID(t *testing.T) {
	m, _ := newManager(t)
	if _, err := m.Job("job-nope"); err == nil {
		t.Fatal("expected error for unknown job")
	}
}
