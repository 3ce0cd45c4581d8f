// Package ses implements a Sink that relays captured messages through
// AWS SES v2 unchanged.
package ses

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/shineum/smtp-wiser/email"
)

// maxRetries is the maximum number of retry attempts for transient failures.
const maxRetries = 3

// defaultRetryDelay is the initial delay for exponential backoff.
const defaultRetryDelay = 1 * time.Second

// errNoRawContent is returned for messages that carry no raw bytes.
var errNoRawContent = errors.New("message has no raw content to relay")

// Config holds the configuration for creating a Sink.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string

	// Sender overrides the envelope sender used by SES. When empty the
	// captured envelope sender is used.
	Sender string
}

// Sink relays every captured message to its envelope receiver via the
// AWS SES v2 API, as a raw MIME message.
type Sink struct {
	sender    string
	client    SendEmailAPI
	baseDelay time.Duration
}

// SendEmailAPI is the interface for the SES v2 SendEmail operation.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// New creates a new Sink with the given configuration.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewWithClient(cfg.Sender, sesv2.NewFromConfig(awsCfg)), nil
}

// NewWithClient creates a Sink with a custom client.
func NewWithClient(sender string, client SendEmailAPI) *Sink {
	return &Sink{
		sender:    sender,
		client:    client,
		baseDelay: defaultRetryDelay,
	}
}

// Deliver relays msg to its envelope receiver, retrying transient failures
// with exponential backoff.
func (s *Sink) Deliver(ctx context.Context, msg *email.Message) error {
	input, err := buildInput(s.sender, msg)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			slog.Debug("retrying SES API request",
				"attempt", attempt,
				"max_retries", maxRetries,
				"message_id", msg.ID,
			)
			if err := sleepWithContext(ctx, s.backoffDelay(attempt)); err != nil {
				return fmt.Errorf("context cancelled during retry wait: %w", err)
			}
		}

		out, err := s.client.SendEmail(ctx, input)
		if err == nil {
			slog.Info("relayed captured message",
				"message_id", msg.ID,
				"ses_message_id", aws.ToString(out.MessageId),
				"to", msg.EnvelopeReceiver,
			)
			return nil
		}

		lastErr = err
		slog.Warn("SES API error",
			"attempt", attempt,
			"error", err,
		)
	}

	return fmt.Errorf("SES API request failed after %d retries: %w", maxRetries, lastErr)
}

// Name returns the sink name.
func (s *Sink) Name() string {
	return "ses"
}

// buildInput creates a raw SendEmailInput addressed to the envelope
// receiver only, so per-recipient captures map to per-recipient sends.
func buildInput(sender string, msg *email.Message) (*sesv2.SendEmailInput, error) {
	if len(msg.Raw) == 0 {
		return nil, errNoRawContent
	}

	from := sender
	if from == "" {
		from = msg.EnvelopeSender
	}

	input := &sesv2.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{msg.EnvelopeReceiver},
		},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{
				Data: msg.Raw,
			},
		},
	}
	if from != "" {
		input.FromEmailAddress = aws.String(from)
	}
	return input, nil
}

// backoffDelay returns the exponential backoff delay for the given attempt number.
func (s *Sink) backoffDelay(attempt int) time.Duration {
	delay := s.baseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// sleepWithContext waits for the specified duration or until the context is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
