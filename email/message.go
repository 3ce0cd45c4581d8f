// Package email defines the captured message model shared by the capture
// server and the assertion chain.
package email

import (
	"time"

	"github.com/google/uuid"
)

// Message is a single captured message as seen by one envelope recipient.
// A transaction with several RCPT TO commands is captured as one Message
// per recipient, all sharing the same parsed content.
type Message struct {
	ID string

	// EnvelopeSender is the MAIL FROM address.
	EnvelopeSender string

	// EnvelopeReceiver is the RCPT TO address this copy was delivered to.
	EnvelopeReceiver string

	Subject   string
	From      []string
	To        []string
	Cc        []string
	MessageID string
	Header    map[string][]string

	// Content is the parsed body tree. It is nil when ParseErr is set.
	Content Content

	// Raw holds the message as received, after dot-unstuffing.
	Raw []byte

	ReceivedAt time.Time

	// ParseErr records why the body could not be parsed at capture time.
	ParseErr error
}

// NewID returns a fresh message identifier.
func NewID() string {
	return uuid.NewString()
}

// Body returns the flattened body of the message.
func (m *Message) Body() (string, error) {
	if m.ParseErr != nil {
		return "", m.ParseErr
	}
	return Flatten(m.Content)
}

// Clone returns a copy of m addressed to receiver, with a new ID.
// Content and Raw are shared; both are treated as immutable.
func (m *Message) Clone(receiver string) *Message {
	c := *m
	c.ID = NewID()
	c.EnvelopeReceiver = receiver
	return &c
}
