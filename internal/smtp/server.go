package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/shineum/smtp-wiser/internal/sink"
)

// shutdownTimeout is the maximum time to wait for in-flight connections
// during graceful shutdown.
const shutdownTimeout = 30 * time.Second

// DefaultMaxMessageSize is used when ServerConfig.MaxMessageSize is zero.
const DefaultMaxMessageSize = 10 * 1024 * 1024

// ErrNotListening is returned by Serve when Listen has not been called.
var ErrNotListening = errors.New("smtp: server is not listening")

// AcceptFunc decides whether a recipient is accepted for a transaction
// started by from. Rejected recipients get a 550 reply.
type AcceptFunc func(from, recipient string) bool

// ServerConfig holds the configuration for an SMTP server.
type ServerConfig struct {
	// ListenAddr is the address to listen on (e.g., ":2525").
	ListenAddr string

	// Hostname is the server hostname used in the greeting and EHLO responses.
	Hostname string

	// Sink receives one message per accepted recipient.
	Sink sink.Sink

	// TLSConfig is the TLS configuration for STARTTLS support.
	// If nil, STARTTLS is not advertised.
	TLSConfig *tls.Config

	// AuthUsername and AuthPassword configure SMTP AUTH.
	// If both are empty, authentication is not required.
	AuthUsername string
	AuthPassword string

	// MaxMessageSize is advertised with SIZE and enforced on DATA.
	MaxMessageSize int64

	// AcceptFunc filters recipients. Nil accepts everyone.
	AcceptFunc AcceptFunc

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Server is an SMTP server that accepts connections and hands every
// received message to a Sink.
type Server struct {
	config   ServerConfig
	auth     *Authenticator
	logger   *slog.Logger
	listener net.Listener

	// wg tracks in-flight session goroutines for graceful shutdown.
	wg sync.WaitGroup

	mu      sync.Mutex
	conns   map[net.Conn]struct{}
	closing bool
}

// New creates a new SMTP Server with the given configuration.
func New(cfg ServerConfig) *Server {
	if cfg.Hostname == "" {
		cfg.Hostname = "localhost"
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = DefaultMaxMessageSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		config: cfg,
		auth:   NewAuthenticator(cfg.AuthUsername, cfg.AuthPassword),
		logger: logger,
		conns:  make(map[net.Conn]struct{}),
	}
}

// Listen binds the listener so the address is known before Serve runs.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return err
	}
	s.listener = ln
	return nil
}

// ListenAndServe binds the listener and serves until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve accepts connections until the context is cancelled. On cancellation
// it stops accepting, closes live connections and waits up to 30 seconds
// for sessions to return.
// @MX:WARN: [AUTO] Goroutine spawned per connection without explicit limit
// @MX:REASON: Each accepted TCP connection starts a goroutine for session handling
func (s *Server) Serve(ctx context.Context) error {
	ln := s.listener
	if ln == nil {
		return ErrNotListening
	}

	s.logger.Info("SMTP server listening",
		"addr", ln.Addr().String(),
		"sink", s.config.Sink.Name(),
		"auth_enabled", s.auth.Enabled(),
		"tls_enabled", s.config.TLSConfig != nil,
	)

	// Monitor context for shutdown
	go func() {
		<-ctx.Done()
		s.logger.Info("shutting down SMTP server")
		ln.Close()
		s.closeConns()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				// Expected error from listener close during shutdown
				s.waitForSessions()
				return nil
			default:
				if errors.Is(err, net.ErrClosed) {
					return err
				}
				s.logger.Error("accept error", "error", err)
				continue
			}
		}

		if !s.track(conn) {
			conn.Close()
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			session := NewSession(conn, s.auth, s.config, s.logger)
			session.Handle(ctx)
		}()
	}
}

// track registers a live connection. It returns false once shutdown has
// started.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

// closeConns closes every live connection so blocked reads return.
func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closing = true
	for conn := range s.conns {
		conn.Close()
	}
}

// waitForSessions waits for all in-flight sessions to complete,
// with a maximum timeout to prevent indefinite blocking.
func (s *Server) waitForSessions() {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(shutdownTimeout)
	defer timer.Stop()

	select {
	case <-done:
		s.logger.Info("all sessions completed")
	case <-timer.C:
		s.logger.Warn("shutdown timeout reached, forcing close")
	}
}

// Addr returns the listener address, or empty string if not listening.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
