// Package forward delivers accepted submissions to the admin API with a per-request
// timeout, a bounded number of attempts and exponential backoff between them.
package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/tfkr-ae/formrelay/domain"
)

const (
	// APIKeyHeader carries the shared key expected by the admin API.
	APIKeyHeader = "X-API-Key"
	// TraceIDHeader lets the admin API correlate retried deliveries.
	TraceIDHeader = "X-Trace-Id"

	// maxErrorBody bounds how much of a failed response is kept for the error message.
	maxErrorBody = 512
)

var (
	// ErrDeliveryFailed is returned once every attempt failed.
	ErrDeliveryFailed = errors.New("delivery failed")
)

// StatusError is returned for an attempt that reached the admin API but got a non-2xx answer.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("admin api returned %d", e.StatusCode)
	}
	return fmt.Sprintf("admin api returned %d: %s", e.StatusCode, e.Body)
}

// Config holds the delivery settings of a Forwarder.
type Config struct {
	URL         string        // Admin API endpoint submissions are POSTed to
	APIKey      string        // Shared key sent in APIKeyHeader
	Timeout     time.Duration // Bound on a single attempt
	MaxRetries  int           // Total number of attempts per forwarding round
	BackoffBase time.Duration // Wait after the first failed attempt, doubled after each following one
}

// Forwarder performs the outbound calls to the admin API.
// It does not deduplicate, callers guarantee a submission is not forwarded from two places at once.
type Forwarder struct {
	cfg       Config
	client    *http.Client
	logger    *slog.Logger
	onAttempt func(attempt *domain.Attempt)
}

// New validates the configuration and creates a Forwarder.
func New(cfg Config, options ...func(*Forwarder) error) (*Forwarder, error) {
	if cfg.URL == "" {
		return nil, errors.New("admin api url is required")
	}
	if cfg.MaxRetries < 1 {
		return nil, fmt.Errorf("max retries must be at least 1, got %d", cfg.MaxRetries)
	}
	if cfg.BackoffBase <= 0 {
		return nil, fmt.Errorf("backoff base must be positive, got %s", cfg.BackoffBase)
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("request timeout must be positive, got %s", cfg.Timeout)
	}

	f := &Forwarder{
		cfg:    cfg,
		client: &http.Client{Transport: newRelayTransport()},
		logger: slog.New(slog.DiscardHandler),
	}
	for _, option := range options {
		if err := option(f); err != nil {
			return nil, fmt.Errorf("applying option on forwarder : %w", err)
		}
	}
	return f, nil
}

// WithHTTPClient replaces the client used for the outbound calls.
func WithHTTPClient(client *http.Client) func(*Forwarder) error {
	return func(f *Forwarder) error {
		if client == nil {
			return errors.New("http client is nil")
		}
		f.client = client
		return nil
	}
}

// WithLogger sets the logger, a nil logger keeps the silent default.
func WithLogger(logger *slog.Logger) func(*Forwarder) error {
	return func(f *Forwarder) error {
		if logger != nil {
			f.logger = logger
		}
		return nil
	}
}

// WithAttemptHandler registers a function that is called after every attempt.
func WithAttemptHandler(handler func(attempt *domain.Attempt)) func(*Forwarder) error {
	return func(f *Forwarder) error {
		if f.onAttempt != nil {
			return errors.New("forwarder already has an attempt handler defined")
		}
		f.onAttempt = handler
		return nil
	}
}

// Config returns the delivery settings.
func (f *Forwarder) Config() Config {
	return f.cfg
}

// payload is the body POSTed to the admin API.
type payload struct {
	TraceID    string         `json:"trace_id"`
	FormType   string         `json:"form_type"`
	ReceivedAt time.Time      `json:"received_at"`
	Payload    domain.Payload `json:"payload"`
}

// Forward delivers the submission, retrying failed attempts with exponential backoff.
//
// AttemptCount and Status of sub are updated as the round progresses: Status ends as
// delivered on success or failed once MaxRetries attempts failed. A cancelled context
// stops the round early and leaves Status untouched, since the outcome is not known.
// The returned error wraps ErrDeliveryFailed and the last attempt's error.
func (f *Forwarder) Forward(ctx context.Context, sub *domain.Submission) error {
	body, err := json.Marshal(payload{
		TraceID:    sub.TraceID,
		FormType:   string(sub.FormType),
		ReceivedAt: sub.ReceivedAt.UTC(),
		Payload:    sub.Payload,
	})
	if err != nil {
		return fmt.Errorf("marshalling submission %s: %w", sub.TraceID, err)
	}

	backoff := retry.WithMaxRetries(uint64(f.cfg.MaxRetries-1), retry.NewExponential(f.cfg.BackoffBase))

	round := 0
	var lastErr error
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		round++
		sub.AttemptCount++
		attempt, err := f.attempt(ctx, sub, round, body)
		if err == nil {
			return nil
		}
		lastErr = err
		f.logger.Warn("forward attempt failed",
			"trace_id", sub.TraceID,
			"attempt", round,
			"max_attempts", f.cfg.MaxRetries,
			"status_code", attempt.StatusCode,
			"err", attempt.Error,
		)
		return retry.RetryableError(lastErr)
	})

	switch {
	case err == nil:
		sub.Status = domain.StatusDelivered
		sub.LastError = ""
		f.logger.Info("submission delivered", "trace_id", sub.TraceID, "attempts", round)
		return nil
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		if lastErr != nil {
			sub.LastError = lastErr.Error()
		}
		return fmt.Errorf("forwarding %s interrupted after %d attempts: %w", sub.TraceID, round, err)
	default:
		sub.Status = domain.StatusFailed
		sub.LastError = err.Error()
		f.logger.Error("submission delivery failed", "trace_id", sub.TraceID, "attempts", round, "err", err)
		return fmt.Errorf("%w: %s after %d attempts: %w", ErrDeliveryFailed, sub.TraceID, round, err)
	}
}

// attempt performs a single POST bounded by the request timeout and reports it
// together with the error of the call.
func (f *Forwarder) attempt(ctx context.Context, sub *domain.Submission, number int, body []byte) (*domain.Attempt, error) {
	attempt := &domain.Attempt{
		TraceID:     sub.TraceID,
		Number:      number,
		AttemptedAt: time.Now(),
	}

	statusCode, err := f.send(ctx, sub.TraceID, body)
	attempt.Latency = time.Since(attempt.AttemptedAt)
	attempt.StatusCode = statusCode
	if err != nil {
		attempt.Error = err.Error()
	}

	if f.onAttempt != nil {
		f.onAttempt(attempt)
	}
	return attempt, err
}

func (f *Forwarder) send(ctx context.Context, traceID string, body []byte) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(TraceIDHeader, traceID)
	if f.cfg.APIKey != "" {
		req.Header.Set(APIKeyHeader, f.cfg.APIKey)
	}

	res, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("calling admin api: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return res.StatusCode, &StatusError{StatusCode: res.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}
	// Drain so the connection can be reused
	io.Copy(io.Discard, io.LimitReader(res.Body, 64<<10))
	return res.StatusCode, nil
}
