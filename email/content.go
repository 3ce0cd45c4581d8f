package email

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnexpectedContent is returned by Flatten for content it cannot turn
// into text.
var ErrUnexpectedContent = errors.New("unexpected message content")

// Content is the parsed body of a message or of one MIME part.
// The implementations are Text, Multipart, Embedded and Binary.
type Content interface {
	isContent()
}

// Text is a decoded text/* leaf, converted to UTF-8.
type Text string

// Multipart is the ordered list of parts of a multipart/* entity.
type Multipart []Part

// Part is one entry of a Multipart.
type Part struct {
	MediaType string
	Header    map[string][]string
	Content   Content
}

// Embedded is a message/rfc822 part.
type Embedded struct {
	Message *Message
}

// Binary is any leaf that is not text, usually an attachment.
type Binary struct {
	MediaType string
	Filename  string
	Data      []byte
}

func (Text) isContent()      {}
func (Multipart) isContent() {}
func (Embedded) isContent()  {}
func (Binary) isContent()    {}

// Flatten turns c into a single string. Multipart content is flattened
// depth first and concatenated without separators; binary parts inside a
// multipart contribute nothing.
func Flatten(c Content) (string, error) {
	var b strings.Builder
	if err := flatten(&b, c, false); err != nil {
		return "", err
	}
	return b.String(), nil
}

func flatten(b *strings.Builder, c Content, nested bool) error {
	switch v := c.(type) {
	case Text:
		b.WriteString(string(v))
	case Multipart:
		for _, p := range v {
			if err := flatten(b, p.Content, true); err != nil {
				return err
			}
		}
	case Embedded:
		if v.Message == nil {
			return fmt.Errorf("%w: empty embedded message", ErrUnexpectedContent)
		}
		if v.Message.ParseErr != nil {
			return v.Message.ParseErr
		}
		return flatten(b, v.Message.Content, nested)
	case Binary:
		if !nested {
			return fmt.Errorf("%w: %s", ErrUnexpectedContent, v.MediaType)
		}
	case nil:
		return fmt.Errorf("%w: no content", ErrUnexpectedContent)
	default:
		return fmt.Errorf("%w: %T", ErrUnexpectedContent, c)
	}
	return nil
}
