// Package store keeps captured messages in memory for the lifetime of a
// capture server.
package store

import (
	"context"
	"sync"

	"github.com/shineum/smtp-wiser/email"
)

// Store is an append-only, in-memory list of captured messages. It is safe
// for concurrent use by SMTP sessions and readers.
type Store struct {
	mu       sync.RWMutex
	messages []*email.Message
}

// New creates an empty Store.
func New() *Store {
	return &Store{}
}

// Deliver appends msg to the store.
func (s *Store) Deliver(_ context.Context, msg *email.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

// DeliverBatch appends every message of one transaction in a single step,
// so readers never see part of it.
func (s *Store) DeliverBatch(_ context.Context, msgs []*email.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msgs...)
	return nil
}

// Name returns the sink name.
func (s *Store) Name() string {
	return "memory"
}

// Messages returns a snapshot of the captured messages in arrival order.
// Later deliveries are not visible in the returned slice.
func (s *Store) Messages() []*email.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*email.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of captured messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Reset drops every captured message.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
}
