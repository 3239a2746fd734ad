package formrelay

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/tfkr-ae/formrelay/forward"
)

const defaultListenAddr = ":8080"

// Config holds the process configuration. It is loaded once at startup and never mutated.
type Config struct {
	AdminURL        string        `mapstructure:"admin_url"`        // Admin API endpoint submissions are forwarded to
	APIKey          string        `mapstructure:"api_key"`          // Sent as X-API-Key downstream and required by the admin routes
	ListenAddr      string        `mapstructure:"listen_addr"`      // Address the HTTP server binds to
	LogDir          string        `mapstructure:"log_dir"`          // Directory holding formrelay.log
	DataDir         string        `mapstructure:"data_dir"`         // Directory holding the pending store
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`  // Timeout of a single forwarding attempt
	MaxRetries      int           `mapstructure:"max_retries"`      // Forwarding attempts per round
	BackoffBase     time.Duration `mapstructure:"backoff_base"`     // Delay before the second attempt, doubled afterwards
	IdempotencyTTL  time.Duration `mapstructure:"idempotency_ttl"`  // Retention window of idempotency records
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"` // Interval of the cache cleaner
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`   // Interval of the failed entry sweeper, 0 disables it
	RateLimit       float64       `mapstructure:"rate_limit"`       // Ingress requests per second
	RateBurst       int           `mapstructure:"rate_burst"`       // Ingress burst size
	MaxConns        int           `mapstructure:"max_conns"`        // Connections served at once, 0 for no limit
	LogLevel        string        `mapstructure:"log_level"`        // debug, info, warn or error
}

// LoadConfig reads config.yaml from configDir when it exists and applies the environment on top.
// Variables are prefixed with FORMRELAY_ (FORMRELAY_ADMIN_URL, FORMRELAY_MAX_RETRIES, ...).
// ADMIN_DASHBOARD_URL and PORT are also honoured for deployments that already set them.
//
// Parameters:
//   - configDir: Directory searched for config.yaml, may be empty
//
// Returns:
//   - *Config: Validated configuration
//   - error: Reading, decoding or validation error
func LoadConfig(configDir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configDir != "" {
		v.AddConfigPath(configDir)
	}

	v.SetEnvPrefix("formrelay")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("admin_url", "FORMRELAY_ADMIN_URL", "ADMIN_DASHBOARD_URL"); err != nil {
		return nil, fmt.Errorf("binding admin_url : %w", err)
	}
	if err := v.BindEnv("api_key"); err != nil {
		return nil, fmt.Errorf("binding api_key : %w", err)
	}
	if err := v.BindEnv("listen_addr"); err != nil {
		return nil, fmt.Errorf("binding listen_addr : %w", err)
	}
	if err := v.BindEnv("port", "PORT"); err != nil {
		return nil, fmt.Errorf("binding port : %w", err)
	}

	v.SetDefault("log_dir", "./logs")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("request_timeout", 10*time.Second)
	v.SetDefault("max_retries", 3)
	v.SetDefault("backoff_base", 500*time.Millisecond)
	v.SetDefault("idempotency_ttl", 24*time.Hour)
	v.SetDefault("cleanup_interval", time.Minute)
	v.SetDefault("sweep_interval", time.Duration(0))
	v.SetDefault("rate_limit", 50.0)
	v.SetDefault("rate_burst", 100)
	v.SetDefault("max_conns", 512)
	v.SetDefault("log_level", "info")

	if configDir != "" {
		if err := v.ReadInConfig(); err != nil {
			// A missing file is fine, the environment may carry everything
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("reading config file : %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config to struct : %w", err)
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
		if port := v.GetString("port"); port != "" {
			cfg.ListenAddr = ":" + port
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration can run a relay.
func (cfg *Config) Validate() error {
	var errs []error
	if cfg.AdminURL == "" {
		errs = append(errs, errors.New("admin_url is required"))
	} else if u, err := url.Parse(cfg.AdminURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("admin_url %q is not an absolute url", cfg.AdminURL))
	}
	if cfg.APIKey == "" {
		errs = append(errs, errors.New("api_key is required"))
	}
	if cfg.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("max_retries must be at least 1, got %d", cfg.MaxRetries))
	}
	durations := []struct {
		key   string
		value time.Duration
	}{
		{"request_timeout", cfg.RequestTimeout},
		{"backoff_base", cfg.BackoffBase},
		{"idempotency_ttl", cfg.IdempotencyTTL},
		{"cleanup_interval", cfg.CleanupInterval},
	}
	for _, d := range durations {
		if d.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", d.key, d.value))
		}
	}
	if cfg.SweepInterval < 0 {
		errs = append(errs, fmt.Errorf("sweep_interval must not be negative, got %s", cfg.SweepInterval))
	}
	if cfg.RateLimit < 0 || cfg.RateBurst < 0 || cfg.MaxConns < 0 {
		errs = append(errs, errors.New("rate_limit, rate_burst and max_conns must not be negative"))
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config : %w", errors.Join(errs...))
	}
	return nil
}

// ForwardConfig returns the settings of the forwarder.
func (cfg *Config) ForwardConfig() forward.Config {
	return forward.Config{
		URL:         cfg.AdminURL,
		APIKey:      cfg.APIKey,
		Timeout:     cfg.RequestTimeout,
		MaxRetries:  cfg.MaxRetries,
		BackoffBase: cfg.BackoffBase,
	}
}
