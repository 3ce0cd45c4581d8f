package email

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatten(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content Content
		want    string
	}{
		{
			name:    "plain text",
			content: Text("Hi Carl,\n\nA new message was just posted."),
			want:    "Hi Carl,\n\nA new message was just posted.",
		},
		{
			name: "multipart concatenates without separators",
			content: Multipart{
				{MediaType: "text/plain", Content: Text("one")},
				{MediaType: "text/html", Content: Text("<p>two</p>")},
				{MediaType: "text/plain", Content: Text("three")},
			},
			want: "one<p>two</p>three",
		},
		{
			name: "nested multipart is depth first",
			content: Multipart{
				{MediaType: "multipart/alternative", Content: Multipart{
					{MediaType: "text/plain", Content: Text("a")},
					{MediaType: "multipart/related", Content: Multipart{
						{MediaType: "text/html", Content: Text("b")},
					}},
				}},
				{MediaType: "text/plain", Content: Text("c")},
			},
			want: "abc",
		},
		{
			name: "binary parts inside multipart are skipped",
			content: Multipart{
				{MediaType: "text/plain", Content: Text("see attached")},
				{MediaType: "application/pdf", Content: Binary{MediaType: "application/pdf", Data: []byte("%PDF")}},
			},
			want: "see attached",
		},
		{
			name:    "embedded message",
			content: Embedded{Message: &Message{Content: Text("forwarded")}},
			want:    "forwarded",
		},
		{
			name:    "empty multipart",
			content: Multipart{},
			want:    "",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Flatten(tt.content)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type foreignContent struct {
	Content
}

func TestFlatten_Unexpected(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content Content
	}{
		{name: "nil", content: nil},
		{name: "top level binary", content: Binary{MediaType: "image/png"}},
		{name: "foreign implementation", content: foreignContent{}},
		{name: "empty embedded", content: Embedded{}},
		{name: "foreign inside multipart", content: Multipart{{Content: foreignContent{}}}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Flatten(tt.content)
			assert.ErrorIs(t, err, ErrUnexpectedContent)
		})
	}
}

func TestMessageBody(t *testing.T) {
	t.Parallel()

	parseErr := errors.New("broken boundary")
	m := &Message{ParseErr: parseErr}
	_, err := m.Body()
	assert.ErrorIs(t, err, parseErr)

	m = &Message{Content: Multipart{{Content: Text("x")}, {Content: Text("y")}}}
	body, err := m.Body()
	require.NoError(t, err)
	assert.Equal(t, "xy", body)
}

func TestMessageClone(t *testing.T) {
	t.Parallel()

	m := &Message{
		ID:               NewID(),
		EnvelopeSender:   "bob@a.com",
		EnvelopeReceiver: "carl@b.com",
		Subject:          "Subject",
		Content:          Text("body"),
	}

	c := m.Clone("dave@b.com")
	assert.NotEqual(t, m.ID, c.ID)
	assert.Equal(t, "dave@b.com", c.EnvelopeReceiver)
	assert.Equal(t, "carl@b.com", m.EnvelopeReceiver)
	assert.Equal(t, m.EnvelopeSender, c.EnvelopeSender)
	assert.Equal(t, m.Subject, c.Subject)
}
