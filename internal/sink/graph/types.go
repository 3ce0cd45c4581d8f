package graph

import (
	"encoding/base64"
	"strings"

	"github.com/shineum/smtp-wiser/email"
)

type sendMailRequest struct {
	Message         sendMailMessage `json:"message"`
	SaveToSentItems bool            `json:"saveToSentItems"`
}

type sendMailMessage struct {
	Subject      string           `json:"subject"`
	Body         messageBody      `json:"body"`
	ToRecipients []recipient      `json:"toRecipients"`
	ReplyTo      []recipient      `json:"replyTo,omitempty"`
	Attachments  []fileAttachment `json:"attachments,omitempty"`
	Headers      []internetHeader `json:"internetMessageHeaders,omitempty"`
}

type messageBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type recipient struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

type emailAddress struct {
	Address string `json:"address"`
}

type fileAttachment struct {
	ODataType    string `json:"@odata.type"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	ContentBytes string `json:"contentBytes"`
}

// internetHeader is a custom x- header; Graph rejects any other name.
type internetHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

type graphErrorResponse struct {
	Error graphError `json:"error"`
}

type graphError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// buildSendMailRequest converts one captured message into a sendMail body
// addressed to its envelope receiver only. The body is the first HTML leaf
// when there is one, else the first plain text leaf.
func buildSendMailRequest(msg *email.Message) *sendMailRequest {
	var leaves leafSet
	leaves.collect(rootMediaType(msg), msg.Content)

	body := messageBody{ContentType: "text", Content: leaves.plain}
	if leaves.hasHTML {
		body = messageBody{ContentType: "html", Content: leaves.html}
	}

	attachments := make([]fileAttachment, 0, len(leaves.binaries))
	for _, b := range leaves.binaries {
		name := b.Filename
		if name == "" {
			name = "attachment"
		}
		attachments = append(attachments, fileAttachment{
			ODataType:    "#microsoft.graph.fileAttachment",
			Name:         name,
			ContentType:  b.MediaType,
			ContentBytes: base64.StdEncoding.EncodeToString(b.Data),
		})
	}

	replyTo := make([]recipient, 0, len(msg.From))
	for _, addr := range msg.From {
		replyTo = append(replyTo, recipient{EmailAddress: emailAddress{Address: addr}})
	}

	headers := []internetHeader{{Name: "X-Wiser-Message-Id", Value: msg.ID}}
	if msg.EnvelopeSender != "" {
		headers = append(headers, internetHeader{Name: "X-Wiser-Envelope-From", Value: msg.EnvelopeSender})
	}

	return &sendMailRequest{
		Message: sendMailMessage{
			Subject:      msg.Subject,
			Body:         body,
			ToRecipients: []recipient{{EmailAddress: emailAddress{Address: msg.EnvelopeReceiver}}},
			ReplyTo:      replyTo,
			Attachments:  attachments,
			Headers:      headers,
		},
	}
}

type leafSet struct {
	plain    string
	html     string
	hasPlain bool
	hasHTML  bool
	binaries []email.Binary
}

func (l *leafSet) collect(mediaType string, c email.Content) {
	switch v := c.(type) {
	case email.Text:
		if mediaType == "text/html" {
			if !l.hasHTML {
				l.html, l.hasHTML = string(v), true
			}
			return
		}
		if !l.hasPlain {
			l.plain, l.hasPlain = string(v), true
		}
	case email.Multipart:
		for _, p := range v {
			l.collect(p.MediaType, p.Content)
		}
	case email.Binary:
		l.binaries = append(l.binaries, v)
	}
}

func rootMediaType(msg *email.Message) string {
	values := msg.Header["Content-Type"]
	if len(values) == 0 {
		return "text/plain"
	}
	mediaType, _, _ := strings.Cut(values[0], ";")
	return strings.ToLower(strings.TrimSpace(mediaType))
}
