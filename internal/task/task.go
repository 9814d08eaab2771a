// Package task holds the per-task lifecycle record and the store that
// owns it. Tasks are mutated exclusively through the store; callers
// receive immutable snapshots.
package task

import (
	"time"

	"github.com/google/uuid"

	"github.com/contractclarity/engine/internal/domain"
)

// Transition records one lifecycle state change with its timestamp.
type Transition struct {
	State domain.TaskState `json:"state"`
	At    time.Time        `json:"at"`
}

// Task is the full per-task record: input, lifecycle state, completed
// stage results, and the final result or error.
type Task struct {
	ID           string
	ContractText string
	Category     domain.Category
	Language     string

	State    domain.TaskState
	Progress string

	Stages []domain.StageResult
	Result *domain.AnalysisResult
	Err    *domain.APIError

	CreatedAt   time.Time
	UpdatedAt   time.Time
	Transitions []Transition
}

// New builds a pending task with a fresh identifier.
func New(contractText string, category domain.Category, language string) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:           uuid.New().String(),
		ContractText: contractText,
		Category:     category,
		Language:     language,
		State:        domain.StatePending,
		Progress:     "queued for analysis",
		CreatedAt:    now,
		UpdatedAt:    now,
		Transitions:  []Transition{{State: domain.StatePending, At: now}},
	}
}

// snapshot returns a deep copy safe to hand outside the store.
func (t *Task) snapshot() Task {
	cp := *t
	cp.Stages = make([]domain.StageResult, len(t.Stages))
	copy(cp.Stages, t.Stages)
	cp.Transitions = make([]Transition, len(t.Transitions))
	copy(cp.Transitions, t.Transitions)
	if t.Result != nil {
		res := *t.Result
		res.Issues = append([]domain.RiskIssue(nil), t.Result.Issues...)
		res.Citations = append([]domain.Citation(nil), t.Result.Citations...)
		cp.Result = &res
	}
	if t.Err != nil {
		errCopy := *t.Err
		cp.Err = &errCopy
	}
	return cp
}
