// Package parser turns raw RFC 5322 messages into captured email.Message
// values with a MIME content tree.
package parser

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/textproto"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/shineum/smtp-wiser/email"
)

// Parse parses raw into an email.Message. Header fields are always filled
// when Parse returns a nil error. A body that cannot be parsed does not make
// Parse fail: the error is recorded in ParseErr instead, so the message is
// still captured. An error is returned only when the header block itself is
// unreadable.
func Parse(raw []byte) (*email.Message, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil {
		if !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
			return nil, fmt.Errorf("failed to parse message: %w", err)
		}
		slog.Warn("unknown charset or encoding, body left undecoded", "error", err)
	}

	h := mail.Header{Header: entity.Header}

	result := &email.Message{
		Header:    headerMap(entity.Header),
		MessageID: h.Get("Message-Id"),
		From:      addressList(h, "From"),
		To:        addressList(h, "To"),
		Cc:        addressList(h, "Cc"),
		Raw:       raw,
	}

	subject, err := h.Subject()
	if err != nil {
		slog.Warn("failed to decode subject, using raw value", "error", err)
		subject = h.Get("Subject")
	}
	result.Subject = subject

	content, err := parseEntity(entity)
	if err != nil {
		result.ParseErr = fmt.Errorf("failed to parse message body: %w", err)
		return result, nil
	}
	result.Content = content

	return result, nil
}

// parseEntity builds the content tree of a single MIME entity, recursing
// into multipart bodies and message/rfc822 parts.
func parseEntity(e *message.Entity) (email.Content, error) {
	mediaType, params := contentType(e.Header)

	if mr := e.MultipartReader(); mr != nil {
		parts := email.Multipart{}
		for {
			p, err := mr.NextPart()
			// A truncated body surfaces as a wrapped EOF and is an error.
			if err == io.EOF {
				break
			}
			if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
				return nil, fmt.Errorf("failed to read next part: %w", err)
			}

			child, err := parseEntity(p)
			if err != nil {
				return nil, err
			}
			childType, _ := contentType(p.Header)
			parts = append(parts, email.Part{
				MediaType: childType,
				Header:    headerMap(p.Header),
				Content:   child,
			})
		}
		return parts, nil
	}

	body, err := io.ReadAll(e.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s body: %w", mediaType, err)
	}

	switch {
	case mediaType == "message/rfc822":
		embedded, err := Parse(body)
		if err != nil {
			embedded = &email.Message{Raw: body, ParseErr: err}
		}
		return email.Embedded{Message: embedded}, nil
	case strings.HasPrefix(mediaType, "text/"):
		return email.Text(body), nil
	default:
		return email.Binary{
			MediaType: mediaType,
			Filename:  filename(e.Header, params),
			Data:      body,
		}, nil
	}
}

// contentType returns the lower-cased media type of h, defaulting to
// text/plain when the header is missing or unparseable.
func contentType(h message.Header) (string, map[string]string) {
	if h.Get("Content-Type") == "" {
		return "text/plain", nil
	}
	mediaType, params, err := h.ContentType()
	if err != nil {
		slog.Warn("failed to parse content type, treating as plain text",
			"content_type", h.Get("Content-Type"),
			"error", err,
		)
		return "text/plain", nil
	}
	return strings.ToLower(mediaType), params
}

// filename checks Content-Disposition first, then the Content-Type name
// parameter.
func filename(h message.Header, params map[string]string) string {
	if _, dispParams, err := h.ContentDisposition(); err == nil {
		if fn := dispParams["filename"]; fn != "" {
			return fn
		}
	}
	return params["name"]
}

// addressList returns the bare addresses of a header address list. When the
// list is not valid RFC 5322 it falls back to a comma split.
func addressList(h mail.Header, key string) []string {
	raw := h.Get(key)
	if raw == "" {
		return nil
	}

	addresses, err := h.AddressList(key)
	if err != nil {
		parts := strings.Split(raw, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}

	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		result = append(result, addr.Address)
	}
	return result
}

func headerMap(h message.Header) map[string][]string {
	m := make(map[string][]string)
	fields := h.Fields()
	for fields.Next() {
		key := textproto.CanonicalMIMEHeaderKey(fields.Key())
		m[key] = append(m[key], fields.Value())
	}
	return m
}
