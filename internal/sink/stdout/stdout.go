// Package stdout implements a Sink that prints captured messages in a
// human-readable format.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/shineum/smtp-wiser/email"
)

const separator = "========================================\n"

// Sink prints captured messages to a writer, os.Stdout by default.
type Sink struct {
	mu     sync.Mutex
	writer io.Writer
}

// New creates a new stdout Sink that writes to os.Stdout.
func New() *Sink {
	return &Sink{writer: os.Stdout}
}

// NewWithWriter creates a new Sink that writes to the given writer.
func NewWithWriter(w io.Writer) *Sink {
	return &Sink{writer: w}
}

// Deliver prints the message. Sessions deliver concurrently, so writes are
// serialized to keep dumps from interleaving.
func (s *Sink) Deliver(_ context.Context, msg *email.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Write(s.writer, msg)
}

// Name returns the sink name.
func (s *Sink) Name() string {
	return "stdout"
}

// Write renders msg to w.
func Write(w io.Writer, msg *email.Message) error {
	var b strings.Builder

	b.WriteString(separator)
	b.WriteString(fmt.Sprintf("ID: %s\n", msg.ID))
	b.WriteString(fmt.Sprintf("Envelope-From: %s\n", msg.EnvelopeSender))
	b.WriteString(fmt.Sprintf("Envelope-To: %s\n", msg.EnvelopeReceiver))

	if len(msg.From) > 0 {
		b.WriteString(fmt.Sprintf("From: %s\n", strings.Join(msg.From, ", ")))
	}
	if len(msg.To) > 0 {
		b.WriteString(fmt.Sprintf("To: %s\n", strings.Join(msg.To, ", ")))
	}
	if len(msg.Cc) > 0 {
		b.WriteString(fmt.Sprintf("Cc: %s\n", strings.Join(msg.Cc, ", ")))
	}

	b.WriteString(fmt.Sprintf("Subject: %s\n", msg.Subject))
	b.WriteString("Body:\n")

	body, err := msg.Body()
	if err != nil {
		body = fmt.Sprintf("(unreadable: %v)", err)
	}
	b.WriteString(body + "\n")

	if attachments := collectAttachments(msg.Content, nil); len(attachments) > 0 {
		names := make([]string, 0, len(attachments))
		for _, att := range attachments {
			name := att.Filename
			if name == "" {
				name = att.MediaType
			}
			names = append(names, fmt.Sprintf("%s (%s)", name, formatSize(len(att.Data))))
		}
		b.WriteString(fmt.Sprintf("Attachments: %s\n", strings.Join(names, ", ")))
	}

	b.WriteString(separator)

	_, err = io.WriteString(w, b.String())
	return err
}

func collectAttachments(c email.Content, acc []email.Binary) []email.Binary {
	switch v := c.(type) {
	case email.Multipart:
		for _, p := range v {
			acc = collectAttachments(p.Content, acc)
		}
	case email.Binary:
		acc = append(acc, v)
	}
	return acc
}

// formatSize formats a byte count into a human-readable string.
func formatSize(bytes int) string {
	const (
		kb = 1024
		mb = kb * 1024
	)

	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
