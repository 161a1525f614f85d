// Package progress fans crawl and analysis updates out to registered sinks.
// Reporting never blocks the pipeline: under backpressure updates are dropped
// with a rate-limited warning.
package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/crackdb/crawler/internal/crawler"
)

// Sink receives batched updates. Consume must tolerate duplicate or
// out-of-order batches.
type Sink interface {
	Consume(ctx context.Context, batch []crawler.Update) error
	Close(ctx context.Context) error
}

// Config controls buffering and batching for the Hub.
type Config struct {
	BufferSize   int
	MaxBatch     int
	MaxBatchWait time.Duration
	SinkTimeout  time.Duration
	Logger       *zap.Logger
}

const (
	defaultBufferSize   = 1024
	defaultMaxBatch     = 256
	defaultMaxBatchWait = 500 * time.Millisecond
	defaultSinkTimeout  = 5 * time.Second
	dropLogInterval     = 5 * time.Second
)

// Hub implements crawler.ProgressReporter over a bounded channel with a
// background batching goroutine.
type Hub struct {
	cfg     Config
	sinks   []Sink
	updates chan crawler.Update
	stopCh  chan struct{}
	doneCh  chan struct{}
	logger  *zap.Logger

	dropped  atomic.Int64
	lastWarn atomic.Int64
	closed   atomic.Bool

	closeOnce sync.Once
}

// NewHub starts a hub fanning out to the given sinks.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = defaultMaxBatch
	}
	if cfg.MaxBatchWait <= 0 {
		cfg.MaxBatchWait = defaultMaxBatchWait
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	h := &Hub{
		cfg:     cfg,
		sinks:   append([]Sink(nil), sinks...),
		updates: make(chan crawler.Update, cfg.BufferSize),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		logger:  cfg.Logger,
	}
	go h.run()
	return h
}

// Report enqueues an update without blocking. A full buffer drops the update
// and increments the drop counter.
func (h *Hub) Report(update crawler.Update) {
	if h == nil || h.closed.Load() {
		return
	}
	select {
	case h.updates <- update:
	default:
		h.dropped.Add(1)
		h.warnDrops()
	}
}

func (h *Hub) warnDrops() {
	now := time.Now().UnixNano()
	last := h.lastWarn.Load()
	if now-last < dropLogInterval.Nanoseconds() {
		return
	}
	if h.lastWarn.CompareAndSwap(last, now) {
		h.logger.Warn("progress updates dropped due to backpressure",
			zap.Int64("dropped", h.dropped.Swap(0)))
	}
}

// Close drains pending updates, flushes sinks, and waits for the background
// goroutine to exit.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) run() {
	defer close(h.doneCh)

	batch := make([]crawler.Update, 0, h.cfg.MaxBatch)
	ticker := time.NewTicker(h.cfg.MaxBatchWait)
	defer ticker.Stop()

	for {
		select {
		case u := <-h.updates:
			batch = append(batch, u)
			if len(batch) >= h.cfg.MaxBatch {
				h.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				h.flush(batch)
				batch = batch[:0]
			}
		case <-h.stopCh:
			h.drain(batch)
			return
		}
	}
}

// drain empties the channel, flushes the final batch, and closes sinks.
func (h *Hub) drain(batch []crawler.Update) {
	for {
		select {
		case u := <-h.updates:
			batch = append(batch, u)
			if len(batch) >= h.cfg.MaxBatch {
				h.flush(batch)
				batch = batch[:0]
			}
		default:
			if len(batch) > 0 {
				h.flush(batch)
			}
			for _, sink := range h.sinks {
				if err := sink.Close(context.Background()); err != nil {
					h.logger.Warn("progress sink close failed", zap.Error(err))
				}
			}
			return
		}
	}
}

func (h *Hub) flush(batch []crawler.Update) {
	copied := append([]crawler.Update(nil), batch...)
	for _, sink := range h.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.SinkTimeout)
		if err := sink.Consume(ctx, copied); err != nil {
			h.logger.Warn("progress sink consume failed", zap.Error(err))
		}
		cancel()
	}
}
