// Package tasks tracks the lifecycle of submitted crawl and analysis tasks
// in memory for the HTTP API.
package tasks

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crackdb/crawler/internal/crawler"
)

// Task states.
const (
	StatePending   = "PENDING"
	StateCrawling  = "CRAWLING"
	StateAnalysing = "ANALYSING"
	StateSuccess   = "SUCCESS"
	StateFailure   = "FAILURE"
)

// Meta is the live progress snapshot attached to a running task.
type Meta struct {
	FileName string `json:"file_name,omitempty"`
	FileSize string `json:"file_size,omitempty"`
	Count    int    `json:"count,omitempty"`
	Status   string `json:"status,omitempty"`
}

// Task is one tracked unit of work.
type Task struct {
	ID        uuid.UUID        `json:"task_id"`
	Kind      crawler.TaskKind `json:"kind"`
	State     string           `json:"state"`
	Meta      Meta             `json:"meta"`
	Result    any              `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Registry is an in-memory task table. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*Task
	clock crawler.Clock
}

// NewRegistry builds a registry. A nil clock falls back to wall time.
func NewRegistry(clock crawler.Clock) *Registry {
	return &Registry{
		tasks: make(map[uuid.UUID]*Task),
		clock: clock,
	}
}

func (r *Registry) now() time.Time {
	if r.clock != nil {
		return r.clock.Now()
	}
	return time.Now()
}

// Create registers a new pending task.
func (r *Registry) Create(id uuid.UUID, kind crawler.TaskKind) *Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	t := &Task{ID: id, Kind: kind, State: StatePending, CreatedAt: now, UpdatedAt: now}
	r.tasks[id] = t
	return snapshot(t)
}

// terminal reports whether a state admits no further transitions.
func terminal(state string) bool {
	return state == StateSuccess || state == StateFailure
}

// SetState moves a task into the given state. Terminal states are sticky:
// progress updates buffered before completion can be flushed after it, and
// they must not move a finished task back to a running state.
func (r *Registry) SetState(id uuid.UUID, state string) {
	r.mutate(id, func(t *Task) bool {
		if terminal(t.State) {
			return false
		}
		t.State = state
		return true
	})
}

// UpdateMeta replaces the task's progress snapshot. Terminal tasks keep their
// final snapshot.
func (r *Registry) UpdateMeta(id uuid.UUID, meta Meta) {
	r.mutate(id, func(t *Task) bool {
		if terminal(t.State) {
			return false
		}
		t.Meta = meta
		return true
	})
}

// SetCompleted marks the task successful with an optional result payload.
func (r *Registry) SetCompleted(id uuid.UUID, result any) {
	r.mutate(id, func(t *Task) bool {
		t.State = StateSuccess
		t.Result = result
		return true
	})
}

// SetFailure marks the task failed with the given message.
func (r *Registry) SetFailure(id uuid.UUID, msg string) {
	r.mutate(id, func(t *Task) bool {
		t.State = StateFailure
		t.Error = msg
		return true
	})
}

func (r *Registry) mutate(id uuid.UUID, fn func(*Task) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return
	}
	if fn(t) {
		t.UpdatedAt = r.now()
	}
}

// Get returns the task with the given id.
func (r *Registry) Get(id uuid.UUID) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, false
	}
	return snapshot(t), true
}

// List returns all tasks ordered by creation time, newest first.
func (r *Registry) List() []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, snapshot(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() > out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// LatestCompletedAnalysis returns the most recently finished analysis task.
func (r *Registry) LatestCompletedAnalysis() (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *Task
	for _, t := range r.tasks {
		if t.Kind != crawler.TaskAnalysis || t.State != StateSuccess {
			continue
		}
		if latest == nil || t.UpdatedAt.After(latest.UpdatedAt) {
			latest = t
		}
	}
	if latest == nil {
		return nil, false
	}
	return snapshot(latest), true
}

func snapshot(t *Task) *Task {
	copied := *t
	return &copied
}
