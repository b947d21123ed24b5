// Package memory keeps run notices in memory, for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/igboarchives/harvester/internal/notify"
)

// Sent is one accepted publish call.
type Sent struct {
	ID      string
	Topic   string
	Payload any
}

// Publisher records every payload it is given.
type Publisher struct {
	// Err, when set, fails every Publish call.
	Err error

	mu   sync.Mutex
	sent []Sent
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the payload under a sequential ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	if p.Err != nil {
		return "", fmt.Errorf("publish notice: %w", p.Err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	id := fmt.Sprintf("notice-%03d", len(p.sent)+1)
	p.sent = append(p.sent, Sent{ID: id, Topic: topic, Payload: payload})
	return id, nil
}

// Sent returns a copy of the recorded calls.
func (p *Publisher) Sent() []Sent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Sent(nil), p.sent...)
}

// Notices returns the recorded payloads that are run notices.
func (p *Publisher) Notices() []notify.Notice {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []notify.Notice
	for _, s := range p.sent {
		if n, ok := s.Payload.(notify.Notice); ok {
			out = append(out, n)
		}
	}
	return out
}
