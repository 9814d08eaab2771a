package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/contractclarity/engine/internal/domain"
)

// Store is the task registry injected into the orchestrator and the
// HTTP surface. Implementations must serialize access per task while
// allowing different tasks to be touched concurrently.
type Store interface {
	// Create registers a new task. The task identifier must be unused.
	Create(t *Task) error

	// Get returns an immutable snapshot of a task.
	Get(id string) (Task, error)

	// Transition advances a task to the next lifecycle state, recording
	// a timestamp. Illegal transitions are rejected.
	Transition(id string, next domain.TaskState, progress string) error

	// AppendStage records a validated stage result. Results are
	// append-only and never rewritten.
	AppendStage(id string, res domain.StageResult) error

	// Complete moves a task to COMPLETED with its final result.
	Complete(id string, result domain.AnalysisResult) error

	// Fail moves a task to FAILED with the originating error. Failing
	// an already terminal task is rejected.
	Fail(id string, apiErr *domain.APIError) error
}

// entry pairs a task with its own lock so different tasks never contend.
type entry struct {
	mu sync.Mutex
	t  *Task
}

// MemoryStore is the in-process Store implementation: a keyed registry
// with per-entry locking and an optional sweep of expired terminal
// tasks.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*entry
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory task store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]*entry)}
}

func (s *MemoryStore) Create(t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[t.ID]; exists {
		return fmt.Errorf("task %s already exists", t.ID)
	}
	s.tasks[t.ID] = &entry{t: t}
	return nil
}

func (s *MemoryStore) lookup(id string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.tasks[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound(id)
	}
	return e, nil
}

func (s *MemoryStore) Get(id string) (Task, error) {
	e, err := s.lookup(id)
	if err != nil {
		return Task{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.t.snapshot(), nil
}

func (s *MemoryStore) Transition(id string, next domain.TaskState, progress string) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.t.State.CanTransition(next) {
		return fmt.Errorf("illegal transition %s -> %s for task %s", e.t.State, next, id)
	}
	now := time.Now().UTC()
	e.t.State = next
	e.t.Progress = progress
	e.t.UpdatedAt = now
	e.t.Transitions = append(e.t.Transitions, Transition{State: next, At: now})
	return nil
}

func (s *MemoryStore) AppendStage(id string, res domain.StageResult) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.t.State.Terminal() {
		return fmt.Errorf("task %s is terminal, cannot record stage %s", id, res.Stage)
	}
	for _, existing := range e.t.Stages {
		if existing.Stage == res.Stage {
			return fmt.Errorf("stage %s already recorded for task %s", res.Stage, id)
		}
	}
	e.t.Stages = append(e.t.Stages, res)
	e.t.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) Complete(id string, result domain.AnalysisResult) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.t.State.CanTransition(domain.StateCompleted) {
		return fmt.Errorf("illegal transition %s -> %s for task %s", e.t.State, domain.StateCompleted, id)
	}
	now := time.Now().UTC()
	e.t.State = domain.StateCompleted
	e.t.Progress = "analysis complete"
	e.t.Result = &result
	e.t.UpdatedAt = now
	e.t.Transitions = append(e.t.Transitions, Transition{State: domain.StateCompleted, At: now})
	return nil
}

func (s *MemoryStore) Fail(id string, apiErr *domain.APIError) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.t.State.CanTransition(domain.StateFailed) {
		return domain.ErrConflict(fmt.Sprintf("task %s is already %s", id, e.t.State))
	}
	now := time.Now().UTC()
	e.t.State = domain.StateFailed
	e.t.Progress = "analysis failed"
	e.t.Err = apiErr
	e.t.UpdatedAt = now
	e.t.Transitions = append(e.t.Transitions, Transition{State: domain.StateFailed, At: now})
	return nil
}

// Sweep drops terminal tasks whose last update is older than retention.
// Returns the number of tasks removed.
func (s *MemoryStore) Sweep(retention time.Duration) int {
	cutoff := time.Now().UTC().Add(-retention)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.tasks {
		e.mu.Lock()
		expired := e.t.State.Terminal() && e.t.UpdatedAt.Before(cutoff)
		e.mu.Unlock()
		if expired {
			delete(s.tasks, id)
			removed++
		}
	}
	return removed
}

// RunSweeper sweeps on the given interval until ctx is done. Retention
// policy beyond the TTL itself is out of the engine's hands.
func (s *MemoryStore) RunSweeper(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(retention)
		}
	}
}

// Len reports how many tasks are currently held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}
