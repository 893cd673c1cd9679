package job

import (
	"sync"
	"time"

	"github.com/vanillastudio/console/internal/language"
)

type State int

const (
	StatePending State = iota
	StateCompiling
	StateRunning
	StateSucceeded
	StateCompileFailed
	StateRuntimeFailed
	StateTimedOut
	StateCanceled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateCompiling:
		return "COMPILING"
	case StateRunning:
		return "RUNNING"
	case StateSucceeded:
		return "SUCCEEDED"
	case StateCompileFailed:
		return "COMPILE_FAILED"
	case StateRuntimeFailed:
		return "RUNTIME_FAILED"
	case StateTimedOut:
		return "TIMED_OUT"
	case StateCanceled:
		return "CANCELED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateCompileFailed, StateRuntimeFailed, StateTimedOut, StateCanceled:
		return true
	default:
		return false
	}
}

// Job represents one user-triggered run: a source snapshot, the resolved
// stage commands, and an exclusive scratch directory reclaimed when the
// job reaches a terminal state.
type Job struct {
	ID      string
	Slot    string
	Profile language.Profile
	Source  string

	// Dir is the scratch directory on the host. WorkDir is the same
	// directory as the child process sees it; the two differ only when the
	// scratch area is bind-mounted into a container.
	Dir     string
	WorkDir string

	CompileArgv []string
	RunArgv     []string
	Timeout     time.Duration

	mu        sync.Mutex
	state     State
	exitCode  *int
	startedAt time.Time
}

// Start marks the job's start timestamp.
func (j *Job) Start() {
	j.mu.Lock()
	j.startedAt = time.Now().UTC()
	j.mu.Unlock()
}

// Transition advances the job state. Transitions are one-directional: a
// terminal state is sticky and earlier states are never restored.
func (j *Job) Transition(s State) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Terminal() || s <= j.state {
		return
	}
	j.state = s
}

// SetExitCode records the exit code of the stage that decided the job's
// outcome.
func (j *Job) SetExitCode(code int) {
	j.mu.Lock()
	j.exitCode = &code
	j.mu.Unlock()
}

// State returns the current state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Snapshot is a point-in-time copy of the job's observable fields.
type Snapshot struct {
	ID        string     `json:"jobId"`
	Slot      string     `json:"slot"`
	Language  string     `json:"language"`
	State     string     `json:"state"`
	ExitCode  *int       `json:"exitCode,omitempty"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
}

// Snapshot returns a copy of the job's observable fields.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	s := Snapshot{
		ID:       j.ID,
		Slot:     j.Slot,
		Language: j.Profile.ID,
		State:    j.state.String(),
	}
	if j.exitCode != nil {
		code := *j.exitCode
		s.ExitCode = &code
	}
	if !j.startedAt.IsZero() {
		t := j.startedAt
		s.StartedAt = &t
	}
	return s
}
