// Package wiser runs an in-process SMTP server that captures every message
// it receives, for use in tests.
//
//	func TestSignup(t *testing.T) {
//		srv := wiser.Start(t)
//		app := NewApp(srv.Host(), srv.Port())
//		app.Signup("carl@b.com")
//		assertions.AssertReceivedMessage(t, srv).To("carl@b.com")
//	}
package wiser

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"testing"

	"github.com/shineum/smtp-wiser/email"
	"github.com/shineum/smtp-wiser/internal/sink"
	"github.com/shineum/smtp-wiser/internal/sink/stdout"
	"github.com/shineum/smtp-wiser/internal/smtp"
	"github.com/shineum/smtp-wiser/internal/store"
	wisertls "github.com/shineum/smtp-wiser/internal/tls"
)

// ErrAlreadyStarted is returned by Start on a running server.
var ErrAlreadyStarted = errors.New("wiser: server already started")

// Server captures messages in memory. Captured messages survive Stop and a
// later Start until Reset is called.
type Server struct {
	opts   options
	store  *store.Store
	logger *slog.Logger

	mu        sync.Mutex
	addr      string
	clientTLS *tls.Config
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a stopped Server.
func New(opts ...Option) *Server {
	o := options{
		addr:     "127.0.0.1:0",
		hostname: "localhost",
	}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		opts:   o,
		store:  store.New(),
		logger: logger,
	}
}

// Start binds the listener and serves in the background. The address is
// known when Start returns.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return ErrAlreadyStarted
	}

	tlsConfig := s.opts.tlsConfig
	s.clientTLS = nil
	if s.opts.selfSigned {
		cert, err := wisertls.GenerateSelfSigned(s.opts.hostname, "127.0.0.1", "::1")
		if err != nil {
			return fmt.Errorf("failed to generate certificate: %w", err)
		}
		tlsConfig = wisertls.ServerConfig(cert)
		s.clientTLS = wisertls.ClientConfig(cert)
	}

	// The store is the record of what the server accepted. Relay failures
	// are logged and never undo a capture.
	var dst sink.Sink = s.store
	if len(s.opts.sinks) > 0 {
		multi := sink.Multi{s.store}
		for _, extra := range s.opts.sinks {
			multi = append(multi, sink.BestEffort{Sink: extra, Logger: s.logger})
		}
		dst = multi
	}

	srv := smtp.New(smtp.ServerConfig{
		ListenAddr:     s.opts.addr,
		Hostname:       s.opts.hostname,
		Sink:           dst,
		TLSConfig:      tlsConfig,
		AuthUsername:   s.opts.username,
		AuthPassword:   s.opts.password,
		MaxMessageSize: s.opts.maxSize,
		AcceptFunc:     s.opts.accept,
		Logger:         s.logger,
	})
	if err := srv.Listen(); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.addr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(ctx); err != nil {
			s.logger.Error("capture server stopped", "error", err)
		}
	}()

	s.addr = srv.Addr()
	s.cancel = cancel
	s.done = done
	return nil
}

// Stop closes the listener and every open connection and waits for the
// server to finish. Stopping a stopped server does nothing.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
}

// Addr returns the address of the last Start, as host:port.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Host returns the host part of Addr.
func (s *Server) Host() string {
	host, _, err := net.SplitHostPort(s.Addr())
	if err != nil {
		return ""
	}
	return host
}

// Port returns the port part of Addr, or 0 before the first Start.
func (s *Server) Port() int {
	_, port, err := net.SplitHostPort(s.Addr())
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return 0
	}
	return n
}

// ClientTLSConfig returns a client configuration that trusts the
// certificate generated by WithSelfSignedTLS. It is nil otherwise.
func (s *Server) ClientTLSConfig() *tls.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clientTLS == nil {
		return nil
	}
	return s.clientTLS.Clone()
}

// Messages returns the captured messages in arrival order. The slice is a
// copy; messages captured later do not appear in it.
func (s *Server) Messages() []*email.Message {
	return s.store.Messages()
}

// Reset drops every captured message.
func (s *Server) Reset() {
	s.store.Reset()
}

// Dump writes every captured message to w in a human-readable form.
func (s *Server) Dump(w io.Writer) error {
	for _, msg := range s.store.Messages() {
		if err := stdout.Write(w, msg); err != nil {
			return err
		}
	}
	return nil
}

// Start creates a Server on a free loopback port, starts it and stops it
// when the test and its subtests complete.
func Start(t testing.TB, opts ...Option) *Server {
	t.Helper()

	srv := New(append([]Option{WithAddr("127.0.0.1:0")}, opts...)...)
	if err := srv.Start(); err != nil {
		t.Fatalf("failed to start capture server: %v", err)
	}
	t.Cleanup(srv.Stop)
	return srv
}
