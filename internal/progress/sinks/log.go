// Package sinks contains progress.Sink implementations.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/crackdb/crawler/internal/crawler"
)

// LogSink writes each update as a structured log line.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink builds a logging sink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each update in the batch.
func (s *LogSink) Consume(_ context.Context, batch []crawler.Update) error {
	for _, u := range batch {
		s.logger.Info("progress",
			zap.String("task_id", u.TaskID.String()),
			zap.String("state", u.State),
			zap.String("file_name", u.FileName),
			zap.String("file_size", u.FileSize),
			zap.Int("count", u.Count),
			zap.String("status", u.Status),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error { return nil }
