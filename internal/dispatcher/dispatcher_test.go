package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crackdb/crawler/internal/crawler"
	"github.com/crackdb/crawler/internal/queue/memory"
)

func TestDispatcher_TryEnqueueRejectsWhenFull(t *testing.T) {
	t.Parallel()

	d := New(memory.New(1), nil)

	require.NoError(t, d.TryEnqueue(crawler.QueueItem{TaskID: uuid.New(), Kind: crawler.TaskCrawl}))

	err := d.TryEnqueue(crawler.QueueItem{TaskID: uuid.New(), Kind: crawler.TaskCrawl})
	require.Error(t, err)
	assert.ErrorIs(t, err, memory.ErrFull)
}

func TestDispatcher_RunStopsWhenContextEnds(t *testing.T) {
	t.Parallel()

	d := New(memory.New(1), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(ctx)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after cancellation")
	}
}
