package vault

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	envprovider "github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables read by LoadSettings.
// VAULT_CLIENT_API_URL maps to api.url, VAULT_CLIENT_BACKOFF_MAXTRIES to backoff.maxtries.
const EnvPrefix = "VAULT_CLIENT_"

// Settings is the file/environment form of the client configuration.
type Settings struct {
	API struct {
		URL   string `koanf:"url" validate:"required,url"`
		Token string `koanf:"token" validate:"required"`
	} `koanf:"api"`

	Backoff struct {
		MaxTries     int           `koanf:"maxtries" validate:"min=0"`
		InitialDelay time.Duration `koanf:"initialdelay" validate:"min=0"`
		MaxDelay     time.Duration `koanf:"maxdelay" validate:"min=0"`
	} `koanf:"backoff"`

	UserAgent struct {
		Suffix string `koanf:"suffix"`
	} `koanf:"useragent"`

	RateLimit struct {
		RPS   float64 `koanf:"rps" validate:"min=0"`
		Burst int     `koanf:"burst" validate:"min=0"`
	} `koanf:"ratelimit"`

	Breaker struct {
		Enabled     bool          `koanf:"enabled"`
		MaxRequests uint32        `koanf:"maxrequests"`
		Interval    time.Duration `koanf:"interval" validate:"min=0"`
		Timeout     time.Duration `koanf:"timeout" validate:"min=0"`
	} `koanf:"breaker"`
}

func settingsDefaults() map[string]any {
	return map[string]any{
		"backoff.maxtries":     0,
		"backoff.initialdelay": DefaultInitialDelay.String(),
		"backoff.maxdelay":     DefaultMaxDelay.String(),
		"ratelimit.rps":        0,
		"ratelimit.burst":      1,
		"breaker.enabled":      false,
		"breaker.maxrequests":  3,
		"breaker.interval":     "10s",
		"breaker.timeout":      "30s",
	}
}

// LoadSettings loads settings with priority:
// 1. Environment variables prefixed with EnvPrefix (highest priority)
// 2. YAML files in the given order; missing files are skipped
// 3. Default values (lowest priority)
func LoadSettings(paths ...string) (*Settings, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(settingsDefaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	for _, path := range paths {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				slog.Debug("vault settings file not found, skipping", "path", path)
				continue
			}
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	return finishSettings(k)
}

// LoadSettingsFromBytes loads settings from YAML data, defaults and the environment.
func LoadSettingsFromBytes(data []byte) (*Settings, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(settingsDefaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}

	return finishSettings(k)
}

func finishSettings(k *koanf.Koanf) (*Settings, error) {
	if err := k.Load(envprovider.Provider(EnvPrefix, ".", func(s string) string {
		// VAULT_CLIENT_API_URL -> api.url
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var s Settings
	if err := k.Unmarshal("", &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the settings, returning an error wrapping ErrInvalidConfiguration.
func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			fields := make([]string, 0, len(validationErrors))
			for _, fe := range validationErrors {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfiguration, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	return nil
}

// Options converts the settings to client options. Extra options are applied after
// them and win on conflict.
func (s *Settings) Options(extra ...Option) []Option {
	opts := []Option{
		WithBackoffMaxTries(s.Backoff.MaxTries),
		WithBackoff(s.Backoff.InitialDelay, s.Backoff.MaxDelay),
	}
	if s.UserAgent.Suffix != "" {
		opts = append(opts, WithUserAgentSuffix(s.UserAgent.Suffix))
	}
	if s.RateLimit.RPS > 0 {
		opts = append(opts, WithRateLimit(s.RateLimit.RPS, s.RateLimit.Burst))
	}
	if s.Breaker.Enabled {
		opts = append(opts, WithCircuitBreaker(
			WithMaxRequests(s.Breaker.MaxRequests),
			WithInterval(s.Breaker.Interval),
			WithTimeout(s.Breaker.Timeout),
		))
	}
	return append(opts, extra...)
}

// NewClientFromSettings creates a client from loaded settings.
//
// Example:
//
//	settings, err := vault.LoadSettings("vault.yaml")
//	if err != nil {
//	    return err
//	}
//	client, err := vault.NewClientFromSettings(settings, vault.WithLogger(logger))
func NewClientFromSettings(s *Settings, extra ...Option) (*Client, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return NewClient(s.API.URL, s.API.Token, s.Options(extra...)...)
}
