// Package dispatcher manages worker fan-out over the task queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/crackdb/crawler/internal/crawler"
	"github.com/crackdb/crawler/internal/worker"
)

// TaskQueue is the queue surface the dispatcher needs: blocking dequeue for
// the workers, non-blocking enqueue for task submission.
type TaskQueue interface {
	crawler.Queue
	TryEnqueue(item crawler.QueueItem) error
}

// Dispatcher fans queued tasks out to a pool of workers.
type Dispatcher struct {
	queue   TaskQueue
	workers []*worker.Worker
}

// New creates a Dispatcher.
func New(queue TaskQueue, workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{queue: queue, workers: workers}
}

// Run starts all workers and blocks until the context finishes and every
// worker has exited.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// TryEnqueue proxies to the queue without blocking, so a full queue is
// rejected immediately instead of stalling the submitter.
func (d *Dispatcher) TryEnqueue(item crawler.QueueItem) error {
	if err := d.queue.TryEnqueue(item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
