package formrelay

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tfkr-ae/formrelay/cache"
	"github.com/tfkr-ae/formrelay/forward"
)

// WithOptions applies a series of configuration functions to the relay instance.
// Each option function can modify the relay configuration and return an error if it fails.
//
// Parameters:
//   - options: Variadic list of configuration functions
//
// Returns:
//   - error: First error encountered from any option function
func (relay *Relay) WithOptions(options ...func(*Relay) error) error {
	for _, option := range options {
		err := option(relay)
		if err != nil {
			return fmt.Errorf("applying option on formrelay : %w", err)
		}
	}
	return nil
}

// WithConfig sets the process configuration after validating it.
func WithConfig(cfg *Config) func(*Relay) error {
	return func(relay *Relay) error {
		if cfg == nil {
			return errors.New("config is nil")
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		relay.Config = cfg
		return nil
	}
}

// WithLogger sets the structured logger used by the relay. A nil logger discards everything.
func WithLogger(logger *slog.Logger) func(*Relay) error {
	return func(relay *Relay) error {
		if logger == nil {
			logger = slog.New(slog.DiscardHandler)
		}
		relay.Logger = logger
		return nil
	}
}

// WithRepo will take the Repository interface, closing any repository that was set before
func WithRepo(repo Repository) func(*Relay) error {
	return func(relay *Relay) error {
		if repo == nil {
			return errors.New("repository is nil")
		}
		if relay.Repo != nil && relay.Repo != repo {
			if err := relay.Repo.Close(); err != nil {
				return err
			}
		}
		relay.Repo = repo
		return nil
	}
}

// WithCache sets the idempotency cache.
func WithCache(c *cache.Cache) func(*Relay) error {
	return func(relay *Relay) error {
		if c == nil {
			return errors.New("cache is nil")
		}
		relay.Cache = c
		return nil
	}
}

// WithForwarder sets the component that delivers submissions to the admin API
func WithForwarder(forwarder Forwarder) func(*Relay) error {
	return func(relay *Relay) error {
		if relay.Forwarder != nil {
			return errors.New("relay already has a forwarder defined")
		}
		relay.Forwarder = forwarder
		return nil
	}
}

// WithAdminAPI builds the HTTP forwarder described by cfg. Every attempt it makes
// is recorded in the attempts table of the repository.
func WithAdminAPI(cfg *Config) func(*Relay) error {
	return func(relay *Relay) error {
		if relay.Forwarder != nil {
			return errors.New("relay already has a forwarder defined")
		}
		forwarder, err := forward.New(cfg.ForwardConfig(),
			forward.WithLogger(relay.Logger),
			forward.WithAttemptHandler(relay.recordAttempt),
		)
		if err != nil {
			return fmt.Errorf("creating forwarder : %w", err)
		}
		relay.Forwarder = forwarder
		return nil
	}
}

// WithClock replaces the clock used to stamp received_at
func WithClock(now func() time.Time) func(*Relay) error {
	return func(relay *Relay) error {
		relay.now = now
		return nil
	}
}

// WithTraceIDGenerator replaces the generator used for submissions that arrive without a trace ID
func WithTraceIDGenerator(generate func() (string, error)) func(*Relay) error {
	return func(relay *Relay) error {
		relay.newTraceID = generate
		return nil
	}
}
