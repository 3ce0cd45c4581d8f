// Package config provides environment-variable-first configuration loading
// with optional YAML file fallback for the capture server.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// defaultMaxMessageSize is 10 MB in bytes.
const defaultMaxMessageSize = 10485760

// Relay names accepted in RelayConfig.Provider.
const (
	RelayNone   = ""
	RelayStdout = "stdout"
	RelaySES    = "ses"
	RelayGraph  = "graph"
)

// Config holds the complete application configuration.
type Config struct {
	SMTP    SMTPConfig    `yaml:"smtp"`
	TLS     TLSConfig     `yaml:"tls"`
	Relay   RelayConfig   `yaml:"relay"`
	Logging LoggingConfig `yaml:"logging"`
}

// SMTPConfig holds SMTP server configuration.
type SMTPConfig struct {
	Listen         string `yaml:"listen"`
	Hostname       string `yaml:"hostname"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	MaxMessageSize int64  `yaml:"max_message_size"`
}

// TLSConfig enables STARTTLS. Without cert and key files a self-signed
// certificate is generated at startup.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// RelayConfig selects an optional sink that receives every captured message
// in addition to the in-memory store.
type RelayConfig struct {
	Provider string      `yaml:"provider"`
	SES      SESConfig   `yaml:"ses"`
	Graph    GraphConfig `yaml:"graph"`
}

// SESConfig holds AWS SES configuration.
type SESConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Sender          string `yaml:"sender"`
}

// GraphConfig holds Microsoft Graph app registration settings.
type GraphConfig struct {
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Sender       string `yaml:"sender"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.normalize()

	// Environment variables always override YAML values
	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports configuration that cannot be started.
func (c *Config) Validate() error {
	var errs []error

	switch c.Relay.Provider {
	case RelayNone, RelayStdout:
	case RelaySES:
		if c.Relay.SES.Region == "" {
			errs = append(errs, errors.New("relay ses requires a region"))
		}
	case RelayGraph:
		g := c.Relay.Graph
		if g.TenantID == "" || g.ClientID == "" || g.ClientSecret == "" || g.Sender == "" {
			errs = append(errs, errors.New("relay graph requires tenant_id, client_id, client_secret and sender"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown relay %q", c.Relay.Provider))
	}

	if c.SMTP.MaxMessageSize <= 0 {
		errs = append(errs, fmt.Errorf("max message size must be positive, got %d", c.SMTP.MaxMessageSize))
	}
	if (c.SMTP.Username == "") != (c.SMTP.Password == "") {
		errs = append(errs, errors.New("smtp username and password must be set together"))
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		errs = append(errs, errors.New("tls cert_file and key_file must be set together"))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// AuthEnabled returns true if both SMTP username and password are set.
func (c *Config) AuthEnabled() bool {
	return c.SMTP.Username != "" && c.SMTP.Password != ""
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.SMTP.Listen = ":2525"
	c.SMTP.Hostname = "localhost"
	c.SMTP.MaxMessageSize = defaultMaxMessageSize
	c.Logging.Level = "info"
	c.Logging.Format = "text"
}

// normalize lower-cases the enumerated values the way applyEnvVars does for
// their environment variables.
func (c *Config) normalize() {
	c.Relay.Provider = strings.ToLower(strings.TrimSpace(c.Relay.Provider))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() error {
	setString(&c.SMTP.Listen, "SMTP_LISTEN")
	setString(&c.SMTP.Hostname, "SMTP_HOSTNAME")
	setString(&c.SMTP.Username, "SMTP_USERNAME")
	setString(&c.SMTP.Password, "SMTP_PASSWORD")
	if v := os.Getenv("SMTP_MAX_MESSAGE_SIZE"); v != "" {
		size, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid SMTP_MAX_MESSAGE_SIZE %q: %w", v, err)
		}
		c.SMTP.MaxMessageSize = size
	}

	if v := os.Getenv("TLS_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid TLS_ENABLED %q: %w", v, err)
		}
		c.TLS.Enabled = enabled
	}
	setString(&c.TLS.CertFile, "TLS_CERT_FILE")
	setString(&c.TLS.KeyFile, "TLS_KEY_FILE")

	if v := os.Getenv("RELAY"); v != "" {
		c.Relay.Provider = strings.ToLower(v)
	}
	setString(&c.Relay.SES.Region, "SES_REGION")
	setString(&c.Relay.SES.AccessKeyID, "SES_ACCESS_KEY_ID")
	setString(&c.Relay.SES.SecretAccessKey, "SES_SECRET_ACCESS_KEY")
	setString(&c.Relay.SES.Sender, "SES_SENDER")
	setString(&c.Relay.Graph.TenantID, "GRAPH_TENANT_ID")
	setString(&c.Relay.Graph.ClientID, "GRAPH_CLIENT_ID")
	setString(&c.Relay.Graph.ClientSecret, "GRAPH_CLIENT_SECRET")
	setString(&c.Relay.Graph.Sender, "GRAPH_SENDER")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}
	return nil
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}
