// Package assertions checks the messages captured by a test SMTP server.
//
// A chain is started from a snapshot of the captured messages and every
// link is an independent existential check over that snapshot:
//
//	srv := wiser.Start(t)
//	// ... code under test sends mail to srv.Addr() ...
//	assertions.AssertReceivedMessage(t, srv).
//		From("bob@a.com").
//		To("carl@b.com").
//		WithSubject("Subject").
//		WithContentContains("Hi Carl")
//
// The first link that matches no message fails the test and stops it.
package assertions

import (
	"errors"

	"github.com/stretchr/testify/require"

	"github.com/shineum/smtp-wiser/email"
)

//go:generate mockgen -destination=../internal/mocks/mock_testingt.go -package=mocks github.com/stretchr/testify/require TestingT

// Source gives access to the messages received so far.
type Source interface {
	Messages() []*email.Message
}

// Assertions is a chain of checks over a fixed snapshot of messages.
type Assertions struct {
	t        require.TestingT
	messages []*email.Message
}

type tHelper interface {
	Helper()
}

// AssertReceivedMessage takes a snapshot of the messages src has received
// and starts a chain over it. Messages received afterwards are not seen by
// the chain.
func AssertReceivedMessage(t require.TestingT, src Source) *Assertions {
	return New(t, src.Messages())
}

// New starts a chain over messages.
func New(t require.TestingT, messages []*email.Message) *Assertions {
	return &Assertions{t: t, messages: messages}
}

// From checks that a message was sent from sender.
func (a *Assertions) From(sender string) *Assertions {
	if h, ok := a.t.(tHelper); ok {
		h.Helper()
	}
	return a.check(SenderIs(sender))
}

// To checks that a message was sent to recipient.
func (a *Assertions) To(recipient string) *Assertions {
	if h, ok := a.t.(tHelper); ok {
		h.Helper()
	}
	return a.check(RecipientIs(recipient))
}

// WithSubject checks that a message has exactly the given subject.
func (a *Assertions) WithSubject(subject string) *Assertions {
	if h, ok := a.t.(tHelper); ok {
		h.Helper()
	}
	return a.check(SubjectIs(subject))
}

// WithSubjectContains checks that a message subject contains s.
func (a *Assertions) WithSubjectContains(s string) *Assertions {
	if h, ok := a.t.(tHelper); ok {
		h.Helper()
	}
	return a.check(SubjectContains(s))
}

// WithContent checks that a message body equals content, ignoring
// surrounding whitespace.
func (a *Assertions) WithContent(content string) *Assertions {
	if h, ok := a.t.(tHelper); ok {
		h.Helper()
	}
	return a.check(ContentIs(content))
}

// WithContentContains checks that a message body contains content.
func (a *Assertions) WithContentContains(content string) *Assertions {
	if h, ok := a.t.(tHelper); ok {
		h.Helper()
	}
	return a.check(ContentContains(content))
}

func (a *Assertions) check(p Predicate) *Assertions {
	if h, ok := a.t.(tHelper); ok {
		h.Helper()
	}

	err := Match(a.messages, p)
	if err == nil {
		return a
	}

	var failure *Failure
	if !errors.As(err, &failure) {
		require.NoError(a.t, err, "invalid email message")
		return a
	}
	if failure.HasContent {
		require.Fail(a.t, failure.Error(), "last content scanned: %q", failure.LastContent)
		return a
	}
	require.Fail(a.t, failure.Error())
	return a
}
