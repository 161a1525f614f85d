package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisher_RecordsMessages(t *testing.T) {
	t.Parallel()

	p := New()

	id, err := p.Publish(context.Background(), "crawler-events", map[string]string{"state": "SUCCESS"})
	require.NoError(t, err)
	assert.Equal(t, "mem-1", id)

	id, err = p.Publish(context.Background(), "crawler-events", map[string]string{"state": "FAILURE"})
	require.NoError(t, err)
	assert.Equal(t, "mem-2", id)

	msgs := p.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "crawler-events", msgs[0].Topic)
	assert.JSONEq(t, `{"state":"SUCCESS"}`, string(msgs[0].Data))
}

func TestPublisher_RejectsUnmarshalablePayload(t *testing.T) {
	t.Parallel()

	p := New()
	_, err := p.Publish(context.Background(), "t", func() {})
	require.Error(t, err)
	assert.Empty(t, p.Messages())
}
