package assertions

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shineum/smtp-wiser/email"
)

// Failure reports that no message satisfied a predicate.
type Failure struct {
	// Format is the failure text with a single %s for Value.
	Format string
	Value  string

	// LastContent is the flattened body of the last message scanned by a
	// content predicate. HasContent is false for the other predicates and
	// when there was nothing to scan.
	LastContent string
	HasContent  bool
}

// Error returns the formatted failure text.
func (f *Failure) Error() string {
	return fmt.Sprintf(f.Format, f.Value)
}

// ErrInvalidPredicate is returned by Match for a Predicate that was not
// built by one of the constructors in this package.
var ErrInvalidPredicate = errors.New("invalid predicate")

// Predicate is one existential check over a message list. Only the values
// returned by SenderIs, RecipientIs, SubjectIs, SubjectContains, ContentIs
// and ContentContains are valid.
type Predicate struct {
	format  string
	value   string
	content bool
	field   func(m *email.Message) (string, error)
	test    func(field string) bool
}

func envelopeSender(m *email.Message) (string, error)   { return m.EnvelopeSender, nil }
func envelopeReceiver(m *email.Message) (string, error) { return m.EnvelopeReceiver, nil }
func subject(m *email.Message) (string, error)          { return m.Subject, nil }
func body(m *email.Message) (string, error)             { return m.Body() }

// SenderIs matches a message whose envelope sender equals sender.
func SenderIs(sender string) Predicate {
	return Predicate{
		format: "No message from [%s] found!",
		value:  sender,
		field:  envelopeSender,
		test:   func(s string) bool { return s == sender },
	}
}

// RecipientIs matches a message whose envelope receiver equals recipient.
func RecipientIs(recipient string) Predicate {
	return Predicate{
		format: "No message to [%s] found!",
		value:  recipient,
		field:  envelopeReceiver,
		test:   func(s string) bool { return s == recipient },
	}
}

// SubjectIs matches a message whose decoded subject equals s.
func SubjectIs(s string) Predicate {
	return Predicate{
		format: "No message with subject [%s] found!",
		value:  s,
		field:  subject,
		test:   func(got string) bool { return got == s },
	}
}

// SubjectContains matches a message whose decoded subject contains s.
func SubjectContains(s string) Predicate {
	return Predicate{
		format: "No message with subject [%s] found!",
		value:  s,
		field:  subject,
		test:   func(got string) bool { return strings.Contains(got, s) },
	}
}

// ContentIs matches a message whose flattened body equals content once
// surrounding whitespace is trimmed from both.
func ContentIs(content string) Predicate {
	want := strings.TrimSpace(content)
	return Predicate{
		format:  "No message with content [%s] found!",
		value:   content,
		content: true,
		field:   body,
		test:    func(got string) bool { return strings.TrimSpace(got) == want },
	}
}

// ContentContains matches a message whose trimmed flattened body contains
// content. The needle itself is not trimmed.
func ContentContains(content string) Predicate {
	return Predicate{
		format:  "No message with content containing [%s] found!",
		value:   content,
		content: true,
		field:   body,
		test:    func(got string) bool { return strings.Contains(strings.TrimSpace(got), content) },
	}
}

// Match scans messages in order and returns nil on the first one that
// satisfies p. It returns a *Failure when none does, or the flattening error
// of the first message whose body could not be read. A nil message is an
// error.
func Match(messages []*email.Message, p Predicate) error {
	if p.field == nil || p.test == nil {
		return ErrInvalidPredicate
	}

	failure := &Failure{Format: p.format, Value: p.value}
	for i, m := range messages {
		if m == nil {
			return fmt.Errorf("message %d: %w", i, email.ErrUnexpectedContent)
		}
		v, err := p.field(m)
		if err != nil {
			return fmt.Errorf("message %s to %s: %w", m.ID, m.EnvelopeReceiver, err)
		}
		if p.content {
			failure.LastContent = v
			failure.HasContent = true
		}
		if p.test(v) {
			return nil
		}
	}
	return failure
}
