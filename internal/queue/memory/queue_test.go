package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crackdb/crawler/internal/crawler"
)

func TestQueue_RoundTrip(t *testing.T) {
	t.Parallel()

	q := New(2)
	item := crawler.QueueItem{TaskID: uuid.New(), Kind: crawler.TaskCrawl}

	require.NoError(t, q.Enqueue(context.Background(), item))
	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, item, got)
}

func TestQueue_TryEnqueueRejectsWhenFull(t *testing.T) {
	t.Parallel()

	q := New(1)
	require.NoError(t, q.TryEnqueue(crawler.QueueItem{Kind: crawler.TaskCrawl}))
	assert.ErrorIs(t, q.TryEnqueue(crawler.QueueItem{Kind: crawler.TaskCrawl}), ErrFull)
}

func TestQueue_DequeueHonorsContext(t *testing.T) {
	t.Parallel()

	q := New(1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_CloseDrainsThenReportsClosed(t *testing.T) {
	t.Parallel()

	q := New(2)
	require.NoError(t, q.TryEnqueue(crawler.QueueItem{Kind: crawler.TaskAnalysis}))
	q.Close()
	q.Close() // double close is safe

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, crawler.TaskAnalysis, got.Kind)

	_, err = q.Dequeue(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
