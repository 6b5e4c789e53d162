// Package memory keeps run notifications in process, for tests and for runs without Pub/Sub.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Notice is one recorded publish: the topic and the JSON the payload encoded to.
type Notice struct {
	ID    string
	Topic string
	Data  []byte
}

// Publisher records notices in order.
type Publisher struct {
	mu      sync.RWMutex
	notices []Notice
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish encodes payload the same way the Pub/Sub publisher does and keeps it.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	id := fmt.Sprintf("memory-%d", len(p.notices)+1)
	p.notices = append(p.notices, Notice{ID: id, Topic: topic, Data: data})
	return id, nil
}

// Notices returns a copy of everything published to topic, or to every topic when topic is empty.
func (p *Publisher) Notices(topic string) []Notice {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Notice, 0, len(p.notices))
	for _, n := range p.notices {
		if topic == "" || n.Topic == topic {
			out = append(out, n)
		}
	}
	return out
}
