package wiser

import (
	"crypto/tls"
	"io"
	"log/slog"

	"github.com/shineum/smtp-wiser/internal/sink"
	"github.com/shineum/smtp-wiser/internal/sink/stdout"
)

// Sink receives every captured message, one per envelope recipient.
type Sink = sink.Sink

// WriterSink returns a Sink that prints each captured message to w in the
// same format as Dump.
func WriterSink(w io.Writer) Sink {
	return stdout.NewWithWriter(w)
}

// Option configures a Server.
type Option func(*options)

type options struct {
	addr       string
	hostname   string
	username   string
	password   string
	tlsConfig  *tls.Config
	selfSigned bool
	maxSize    int64
	accept     func(from, recipient string) bool
	sinks      []Sink
	logger     *slog.Logger
}

// WithAddr sets the listen address. The default is 127.0.0.1:0, a free
// port on the loopback interface.
func WithAddr(addr string) Option {
	return func(o *options) {
		o.addr = addr
	}
}

// WithHostname sets the name used in the greeting and EHLO replies.
func WithHostname(hostname string) Option {
	return func(o *options) {
		o.hostname = hostname
	}
}

// WithAuth requires clients to authenticate with AUTH PLAIN or LOGIN.
func WithAuth(username, password string) Option {
	return func(o *options) {
		o.username = username
		o.password = password
	}
}

// WithTLS enables STARTTLS with cfg.
func WithTLS(cfg *tls.Config) Option {
	return func(o *options) {
		o.tlsConfig = cfg
		o.selfSigned = false
	}
}

// WithSelfSignedTLS enables STARTTLS with a certificate generated on Start.
// ClientTLSConfig returns a client configuration that trusts it.
func WithSelfSignedTLS() Option {
	return func(o *options) {
		o.tlsConfig = nil
		o.selfSigned = true
	}
}

// WithMaxMessageSize limits the size of a message accepted on DATA.
func WithMaxMessageSize(n int64) Option {
	return func(o *options) {
		o.maxSize = n
	}
}

// WithAcceptFunc filters recipients. A recipient for which accept returns
// false is rejected with 550 and no message is captured for it.
func WithAcceptFunc(accept func(from, recipient string) bool) Option {
	return func(o *options) {
		o.accept = accept
	}
}

// WithSink hands every captured message to s as well. A failure of s is
// logged and does not fail the SMTP transaction.
func WithSink(s Sink) Option {
	return func(o *options) {
		o.sinks = append(o.sinks, s)
	}
}

// WithLogger sets the logger used by the server and its sessions.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}
