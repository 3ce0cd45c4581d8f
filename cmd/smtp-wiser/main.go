// Command smtp-wiser runs the capture server on its own. Every message it
// receives is kept in memory, optionally printed and optionally relayed, and
// a summary is printed on shutdown.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/shineum/smtp-wiser/internal/config"
	"github.com/shineum/smtp-wiser/internal/sink/graph"
	"github.com/shineum/smtp-wiser/internal/sink/ses"
	smtptls "github.com/shineum/smtp-wiser/internal/tls"
	"github.com/shineum/smtp-wiser/wiser"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		slog.Error("smtp-wiser failed", "error", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:  "smtp-wiser",
		Usage: "capture every message sent to a local SMTP server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to YAML configuration file (optional)",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Value: ".env",
				Usage: "dotenv file loaded before the environment is read; a missing file is ignored",
			},
			&cli.StringFlag{
				Name:  "listen",
				Usage: "listen address, overrides SMTP_LISTEN",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error, overrides LOG_LEVEL",
			},
			&cli.BoolFlag{
				Name:  "dump",
				Usage: "print each captured message to stdout",
			},
		},
		Action: func(c *cli.Context) error {
			if err := loadEnvFile(c.String("env-file")); err != nil {
				return err
			}

			cfg, err := loadConfig(c.String("config"))
			if err != nil {
				return err
			}
			if c.IsSet("listen") {
				cfg.SMTP.Listen = c.String("listen")
			}
			if c.IsSet("log-level") {
				cfg.Logging.Level = strings.ToLower(c.String("log-level"))
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			slog.SetDefault(newLogger(cfg.Logging, os.Stderr))

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, c.Bool("dump"), out, nil)
		},
	}
}

// loadEnvFile loads path into the environment without overriding variables
// that are already set.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// newLogger builds a text or JSON slog logger at the configured level.
func newLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level

	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// run serves until ctx is cancelled and then prints how many messages were
// captured. ready, when not nil, receives the bound address.
func run(ctx context.Context, cfg *config.Config, dump bool, out io.Writer, ready chan<- string) error {
	opts, err := serverOptions(ctx, cfg, dump, out)
	if err != nil {
		return err
	}

	srv := wiser.New(opts...)
	if err := srv.Start(); err != nil {
		return err
	}
	slog.Info("starting smtp-wiser",
		"addr", srv.Addr(),
		"hostname", cfg.SMTP.Hostname,
		"auth_enabled", cfg.AuthEnabled(),
		"tls_enabled", cfg.TLS.Enabled,
		"relay", cfg.Relay.Provider,
	)
	if ready != nil {
		ready <- srv.Addr()
	}

	<-ctx.Done()
	slog.Info("received shutdown signal")
	srv.Stop()

	fmt.Fprintf(out, "smtp-wiser captured %d message(s)\n", len(srv.Messages()))
	return nil
}

// serverOptions maps the configuration onto capture server options and
// builds the relay sink.
func serverOptions(ctx context.Context, cfg *config.Config, dump bool, out io.Writer) ([]wiser.Option, error) {
	opts := []wiser.Option{
		wiser.WithAddr(cfg.SMTP.Listen),
		wiser.WithHostname(cfg.SMTP.Hostname),
		wiser.WithMaxMessageSize(cfg.SMTP.MaxMessageSize),
		wiser.WithLogger(slog.Default()),
	}
	if cfg.AuthEnabled() {
		opts = append(opts, wiser.WithAuth(cfg.SMTP.Username, cfg.SMTP.Password))
	}

	if cfg.TLS.Enabled {
		tlsConfig, err := smtptls.LoadOrGenerate(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.SMTP.Hostname)
		if err != nil {
			return nil, fmt.Errorf("failed to setup TLS: %w", err)
		}
		opts = append(opts, wiser.WithTLS(tlsConfig))
	}

	if dump || cfg.Relay.Provider == config.RelayStdout {
		opts = append(opts, wiser.WithSink(wiser.WriterSink(out)))
	}

	switch cfg.Relay.Provider {
	case config.RelaySES:
		relay, err := ses.New(ctx, ses.Config{
			Region:          cfg.Relay.SES.Region,
			AccessKeyID:     cfg.Relay.SES.AccessKeyID,
			SecretAccessKey: cfg.Relay.SES.SecretAccessKey,
			Sender:          cfg.Relay.SES.Sender,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create SES relay: %w", err)
		}
		slog.Info("relaying captured messages to AWS SES",
			"region", cfg.Relay.SES.Region,
			"sender", cfg.Relay.SES.Sender,
		)
		opts = append(opts, wiser.WithSink(relay))
	case config.RelayGraph:
		slog.Info("relaying captured messages via Microsoft Graph",
			"tenant_id", cfg.Relay.Graph.TenantID,
			"sender", cfg.Relay.Graph.Sender,
		)
		opts = append(opts, wiser.WithSink(graph.New(graph.Config{
			TenantID:     cfg.Relay.Graph.TenantID,
			ClientID:     cfg.Relay.Graph.ClientID,
			ClientSecret: cfg.Relay.Graph.ClientSecret,
			Sender:       cfg.Relay.Graph.Sender,
		})))
	}

	return opts, nil
}
