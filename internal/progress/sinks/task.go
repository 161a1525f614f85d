package sinks

import (
	"context"

	"github.com/crackdb/crawler/internal/crawler"
	"github.com/crackdb/crawler/internal/tasks"
)

// TaskSink mirrors updates into the task registry so the HTTP API can serve
// live progress.
type TaskSink struct {
	registry *tasks.Registry
}

// NewTaskSink builds a registry-backed sink.
func NewTaskSink(registry *tasks.Registry) *TaskSink {
	return &TaskSink{registry: registry}
}

// Consume applies each update to its task. Updates for unknown tasks are
// ignored; the registry is authoritative on which tasks exist.
func (s *TaskSink) Consume(_ context.Context, batch []crawler.Update) error {
	for _, u := range batch {
		if u.State != "" {
			s.registry.SetState(u.TaskID, u.State)
		}
		s.registry.UpdateMeta(u.TaskID, tasks.Meta{
			FileName: u.FileName,
			FileSize: u.FileSize,
			Count:    u.Count,
			Status:   u.Status,
		})
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *TaskSink) Close(context.Context) error { return nil }
