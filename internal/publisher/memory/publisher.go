// Package memory provides an in-process publisher for local development and
// tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Message is one captured publication.
type Message struct {
	ID    string
	Topic string
	Data  []byte
}

// Publisher records published payloads in memory.
type Publisher struct {
	mu       sync.Mutex
	messages []Message
}

// New creates an empty in-memory publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish marshals the payload and records it, returning a synthetic id.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	id := fmt.Sprintf("mem-%d", len(p.messages)+1)
	p.messages = append(p.messages, Message{ID: id, Topic: topic, Data: data})
	return id, nil
}

// Messages returns a copy of everything published so far.
func (p *Publisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.messages...)
}
