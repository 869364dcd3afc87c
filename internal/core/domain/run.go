package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrRunNotFound = errors.New("run not found")

// RunID identifies one run of the goal loop.
type RunID string

// NewRunID generates a fresh run id.
func NewRunID() RunID {
	return RunID(uuid.New().String())
}

// RunStatus is the terminal state of a run.
type RunStatus string

const (
	RunTaskComplete         RunStatus = "TASK_COMPLETE"
	RunMaxStepsExhausted    RunStatus = "MAX_STEPS_EXHAUSTED"
	RunMaxFailuresExhausted RunStatus = "MAX_FAILURES_EXHAUSTED"
	RunCancelled            RunStatus = "CANCELLED"
)

// RunReport summarizes a finished run.
type RunReport struct {
	ID        RunID         `json:"id"`
	Goal      string        `json:"goal"`
	Status    RunStatus     `json:"status"`
	Steps     int           `json:"steps"`
	Failures  int           `json:"failures"`
	Summary   string        `json:"summary"`
	Memory    []MemoryEntry `json:"memory"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
}

// Text renders the report returned to shells. Exhausted runs carry the
// serialized memory for post-mortem.
func (r RunReport) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\nStatus: %s\nSteps: %d\n%s", r.Goal, r.Status, r.Steps, r.Summary)
	if r.Status == RunMaxStepsExhausted || r.Status == RunMaxFailuresExhausted {
		b.WriteString("\nMemory:\n")
		b.WriteString(SerializeMemory(r.Memory))
	}
	return b.String()
}

// RunSummary is the lightweight view stored per run.
type RunSummary struct {
	ID        RunID     `json:"id"`
	Goal      string    `json:"goal"`
	Status    RunStatus `json:"status"`
	Steps     int       `json:"steps"`
	Report    string    `json:"report,omitempty"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}
