// Package manager owns the set of in-flight jobs: it dispatches each job
// onto its own goroutine, multiplexes per-job output events into a single
// subscriber-facing stream, and guarantees at most one live job per
// session slot.
package manager

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/vanillastudio/console/internal/job"
	"github.com/vanillastudio/console/internal/pipeline"
	"github.com/vanillastudio/console/internal/runner"
)

// Envelope is one output event tagged with its job id. State is set on
// the terminal event only.
type Envelope struct {
	JobID    string           `json:"jobId"`
	Kind     runner.EventKind `json:"kind"`
	Stream   runner.Stream    `json:"stream,omitempty"`
	Text     string           `json:"text,omitempty"`
	ExitCode *int             `json:"exitCode,omitempty"`
	Reason   runner.Reason    `json:"reason,omitempty"`
	Message  string           `json:"message,omitempty"`
	State    string           `json:"state,omitempty"`
}

type activeJob struct {
	id     string
	cancel context.CancelFunc
}

type Manager struct {
	builder  *job.Builder
	pipeline *pipeline.Pipeline
	store    *job.Store
	logger   *slog.Logger

	mu      sync.Mutex
	slots   map[string]*activeJob // live job per slot
	cancels map[string]context.CancelFunc

	subsMu sync.Mutex
	subs   map[chan Envelope]struct{}

	wg sync.WaitGroup
}

func New(builder *job.Builder, pl *pipeline.Pipeline, store *job.Store, logger *slog.Logger) *Manager {
	return &Manager{
		builder:  builder,
		pipeline: pl,
		store:    store,
		logger:   logger,
		slots:    make(map[string]*activeJob),
		cancels:  make(map[string]context.CancelFunc),
		subs:     make(map[chan Envelope]struct{}),
	}
}

// Submit builds and launches a job on the given slot. A job still live on
// that slot is force-canceled first, so repeated run requests never pile
// up orphaned processes. The timeout overrides the language default when
// positive.
func (m *Manager) Submit(slot, langID, source string, timeout time.Duration) (string, error) {
	j, err := m.builder.Build(slot, langID, source, timeout)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	if prev, ok := m.slots[slot]; ok {
		m.logger.Info("preempting job on busy slot", "slot", slot, "job", prev.id)
		prev.cancel()
	}
	m.slots[slot] = &activeJob{id: j.ID, cancel: cancel}
	m.cancels[j.ID] = cancel
	m.mu.Unlock()

	m.store.Save(j)

	m.wg.Add(1)
	go m.runJob(ctx, cancel, j)

	m.logger.Info("job submitted", "job", j.ID, "slot", slot, "language", langID)
	return j.ID, nil
}

// Cancel force-terminates a job. Idempotent: canceling an unknown or
// already-terminal job is a no-op.
func (m *Manager) Cancel(jobID string) {
	m.mu.Lock()
	cancel := m.cancels[jobID]
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Job returns a snapshot of the job with the given id.
func (m *Manager) Job(jobID string) (job.Snapshot, error) {
	j, err := m.store.Get(jobID)
	if err != nil {
		return job.Snapshot{}, err
	}
	return j.Snapshot(), nil
}

// Jobs returns snapshots of every job submitted since startup.
func (m *Manager) Jobs() []job.Snapshot {
	jobs := m.store.List()
	out := make([]job.Snapshot, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Snapshot())
	}
	return out
}

// Subscribe returns a stream of all jobs' output events. Per-job order is
// preserved; events from different jobs interleave arbitrarily. The
// subscription ends when ctx is canceled. A subscriber that stops reading
// has events dropped rather than blocking the producers.
func (m *Manager) Subscribe(ctx context.Context) <-chan Envelope {
	ch := make(chan Envelope, 256)

	m.subsMu.Lock()
	m.subs[ch] = struct{}{}
	m.subsMu.Unlock()

	go func() {
		<-ctx.Done()
		m.subsMu.Lock()
		delete(m.subs, ch)
		m.subsMu.Unlock()
		close(ch)
	}()

	return ch
}

// Shutdown cancels all in-flight jobs and waits for their scratch
// directories to be reclaimed.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	for _, cancel := range m.cancels {
		cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Manager) runJob(ctx context.Context, cancel context.CancelFunc, j *job.Job) {
	defer m.wg.Done()
	defer cancel()

	j.Start()
	for ev := range m.pipeline.Execute(ctx, j) {
		m.publish(m.envelope(j, ev))
	}
	m.finish(j)
}

func (m *Manager) envelope(j *job.Job, ev runner.Event) Envelope {
	env := Envelope{
		JobID:   j.ID,
		Kind:    ev.Kind,
		Stream:  ev.Stream,
		Text:    ev.Text,
		Reason:  ev.Reason,
		Message: ev.Message,
	}
	if ev.Kind == runner.KindExited {
		code := ev.Code
		env.ExitCode = &code
	}
	if ev.Kind != runner.KindLine {
		env.State = j.State().String()
	}
	return env
}

func (m *Manager) publish(env Envelope) {
	m.subsMu.Lock()
	for ch := range m.subs {
		select {
		case ch <- env:
		default:
			// drop if subscriber is slow
		}
	}
	m.subsMu.Unlock()
}

// finish releases the slot and reclaims the scratch directory. Cleanup
// failure is logged only - it must not mask the job's actual result.
func (m *Manager) finish(j *job.Job) {
	m.mu.Lock()
	delete(m.cancels, j.ID)
	if s, ok := m.slots[j.Slot]; ok && s.id == j.ID {
		delete(m.slots, j.Slot)
	}
	m.mu.Unlock()

	if err := os.RemoveAll(j.Dir); err != nil {
		m.logger.Warn("failed to remove scratch dir", "job", j.ID, "dir", j.Dir, "error", err)
	}
	m.logger.Info("job finished", "job", j.ID, "state", j.State().String())
}
