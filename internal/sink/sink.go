// Package sink defines the downstream consumers a captured message is
// handed to after it has been accepted by the SMTP server.
package sink

import (
	"context"
	"log/slog"

	"github.com/shineum/smtp-wiser/email"
)

// Sink is the interface that capture consumers must implement.
// The in-memory store and every relay are sinks.
type Sink interface {
	// Deliver hands one captured message to the sink.
	Deliver(ctx context.Context, msg *email.Message) error

	// Name returns the human-readable name of this sink.
	Name() string
}

// BatchSink is a Sink that accepts every recipient copy of a transaction
// at once. DeliverBatch keeps either all of msgs or none of them.
type BatchSink interface {
	Sink
	DeliverBatch(ctx context.Context, msgs []*email.Message) error
}

// DeliverAll hands msgs to s, as a single batch when s is a BatchSink and
// one by one otherwise. One by one delivery stops at the first error.
func DeliverAll(ctx context.Context, s Sink, msgs []*email.Message) error {
	if b, ok := s.(BatchSink); ok {
		return b.DeliverBatch(ctx, msgs)
	}
	for _, msg := range msgs {
		if err := s.Deliver(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// Multi fans a message out to several sinks in order. Every sink is
// called even when an earlier one fails; the first error is returned.
type Multi []Sink

// Deliver calls Deliver on every sink.
func (m Multi) Deliver(ctx context.Context, msg *email.Message) error {
	var firstErr error
	for _, s := range m {
		if err := s.Deliver(ctx, msg); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeliverBatch hands msgs to every sink with DeliverAll.
func (m Multi) DeliverBatch(ctx context.Context, msgs []*email.Message) error {
	var firstErr error
	for _, s := range m {
		if err := DeliverAll(ctx, s, msgs); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Name returns "multi".
func (m Multi) Name() string {
	return "multi"
}

// BestEffort wraps a relay whose failures must not fail the SMTP
// transaction. Errors are logged and Deliver always returns nil.
type BestEffort struct {
	Sink   Sink
	Logger *slog.Logger
}

// Deliver passes msg on and logs a failure.
func (b BestEffort) Deliver(ctx context.Context, msg *email.Message) error {
	if err := b.Sink.Deliver(ctx, msg); err != nil {
		logger := b.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("relay delivery failed",
			"sink", b.Sink.Name(),
			"message_id", msg.ID,
			"to", msg.EnvelopeReceiver,
			"error", err,
		)
	}
	return nil
}

// Name returns the name of the wrapped sink.
func (b BestEffort) Name() string {
	return b.Sink.Name()
}
