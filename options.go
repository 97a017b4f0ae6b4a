package vault

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// DefaultInitialDelay is the delay before the first retry.
	DefaultInitialDelay = time.Second

	// DefaultMaxDelay caps the delay between retries.
	DefaultMaxDelay = 30 * time.Second

	// ConnectTimeout bounds establishing a connection, per attempt.
	ConnectTimeout = 10 * time.Second

	// RequestTimeout bounds a whole attempt including reading the body.
	RequestTimeout = 120 * time.Second
)

// Configuration holds the client settings. It is built once by NewClient from the
// given options and never changes afterwards.
type Configuration struct {
	// BackoffMaxTries is the number of retries after the first attempt. 0 disables retry.
	// Default: 0
	BackoffMaxTries int

	// Logger receives attempt and retry events.
	// Default: slog.Default()
	Logger *slog.Logger

	// UserAgentSuffix is appended to the User-Agent header.
	UserAgentSuffix string

	// Transport replaces the network round tripper. Timeouts still apply.
	// Default: an http.Transport with a 10s dial timeout
	Transport http.RoundTripper

	// InitialDelay is the delay before the first retry; each further retry doubles it.
	// Default: 1 second
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries.
	// Default: 30 seconds
	MaxDelay time.Duration

	// Jitter is the maximum random deviation added to each delay. Delays never exceed MaxDelay.
	// Default: InitialDelay / 10
	Jitter time.Duration

	// ErrorClassifier decides which failures are retried.
	// Default: HTTPStatusClassifier
	ErrorClassifier ErrorClassifier

	// CircuitBreaker enables the circuit breaker stage when non-nil.
	CircuitBreaker *CircuitBreakerConfig

	// RateLimit enables client-side throttling of attempts when non-nil.
	RateLimit *RateLimitConfig

	// Registerer receives the client's Prometheus collectors when non-nil.
	Registerer prometheus.Registerer

	jitterSet bool
}

// Option configures the client.
type Option func(*Configuration)

// WithBackoffMaxTries sets how many times a retry-eligible failure is retried.
// The total number of attempts is tries + 1.
//
// Example:
//
//	vault.WithBackoffMaxTries(3) // up to 4 attempts
func WithBackoffMaxTries(tries int) Option {
	return func(c *Configuration) {
		c.BackoffMaxTries = tries
	}
}

// WithLogger sets the logger for attempt and retry events.
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
//	vault.WithLogger(logger)
func WithLogger(logger *slog.Logger) Option {
	return func(c *Configuration) {
		c.Logger = logger
	}
}

// WithUserAgentSuffix appends suffix to the User-Agent header, separated by " - ".
func WithUserAgentSuffix(suffix string) Option {
	return func(c *Configuration) {
		c.UserAgentSuffix = suffix
	}
}

// WithTransport replaces the round tripper used to reach the Vault API.
// Useful in tests to simulate network failures.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Configuration) {
		c.Transport = rt
	}
}

// WithBackoff configures the exponential backoff curve.
//
// Example:
//
//	vault.WithBackoff(time.Second, 30*time.Second)
//	// ~1s, ~2s, ~4s, ~8s, ~16s, 30s (capped)
func WithBackoff(initialDelay, maxDelay time.Duration) Option {
	return func(c *Configuration) {
		c.InitialDelay = initialDelay
		c.MaxDelay = maxDelay
	}
}

// WithJitter sets the maximum random deviation of each delay. 0 disables jitter.
func WithJitter(jitter time.Duration) Option {
	return func(c *Configuration) {
		c.Jitter = jitter
		c.jitterSet = true
	}
}

// WithErrorClassifier sets a custom classifier for retry decisions.
func WithErrorClassifier(classifier ErrorClassifier) Option {
	return func(c *Configuration) {
		c.ErrorClassifier = classifier
	}
}

// WithCircuitBreaker enables the circuit breaker.
//
// Example:
//
//	vault.WithCircuitBreaker(
//	    vault.WithMaxRequests(1),
//	    vault.WithTimeout(time.Minute),
//	)
func WithCircuitBreaker(opts ...CircuitBreakerOption) Option {
	return func(c *Configuration) {
		cfg := DefaultCircuitBreakerConfig()
		for _, opt := range opts {
			opt(cfg)
		}
		c.CircuitBreaker = cfg
	}
}

// WithRateLimit throttles attempts to rps per second with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Configuration) {
		c.RateLimit = &RateLimitConfig{RequestsPerSecond: rps, Burst: burst}
	}
}

// WithMetrics registers the client's Prometheus collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *Configuration) {
		c.Registerer = reg
	}
}

// defaultConfiguration returns the configuration before options are applied.
func defaultConfiguration() *Configuration {
	return &Configuration{
		BackoffMaxTries: 0,
		Logger:          slog.Default(),
		InitialDelay:    DefaultInitialDelay,
		MaxDelay:        DefaultMaxDelay,
		ErrorClassifier: DefaultErrorClassifier(),
	}
}

// normalize fills in defaults for values options left unset or invalid.
func (c *Configuration) normalize() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.ErrorClassifier == nil {
		c.ErrorClassifier = DefaultErrorClassifier()
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = DefaultInitialDelay
	}
	if c.MaxDelay < c.InitialDelay {
		c.MaxDelay = c.InitialDelay
	}
	if !c.jitterSet {
		c.Jitter = c.InitialDelay / 10
	}
	if c.Jitter < 0 {
		c.Jitter = 0
	}
}

// RateLimitConfig holds client-side throttling settings.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained attempt rate.
	RequestsPerSecond float64

	// Burst is the number of attempts allowed at once.
	Burst int
}

// CircuitBreakerConfig holds circuit breaker configuration options.
type CircuitBreakerConfig struct {
	// ReadyToTrip is called with a copy of counts whenever a call fails in the closed state.
	// If ReadyToTrip returns true, the circuit breaker will be placed into the open state.
	// Default: trips after 3 calls with 60% failure rate
	ReadyToTrip func(counts CircuitBreakerCounts) bool

	// ErrorClassifier determines which failures count against the circuit.
	// Default: HTTPStatusClassifier
	ErrorClassifier CircuitBreakerErrorClassifier

	// OnStateChange is called whenever the circuit breaker changes state.
	OnStateChange func(name string, from, to CircuitBreakerState)

	// Name identifies the breaker in logs.
	// Default: "vault-api"
	Name string

	// Interval is the cyclic period of the closed state for the circuit breaker
	// to clear the internal counts. If 0, never clears.
	// Default: 10 seconds
	Interval time.Duration

	// Timeout is the period of the open state, after which the state becomes half-open.
	// Default: 30 seconds
	Timeout time.Duration

	// MaxRequests is the maximum number of calls allowed to pass through
	// when the circuit breaker is in the half-open state.
	// Default: 3
	MaxRequests uint32
}

// CircuitBreakerOption is a functional option for configuring circuit breaker behavior.
type CircuitBreakerOption func(*CircuitBreakerConfig)

// CircuitBreakerCounts holds the internal counts of the circuit breaker.
type CircuitBreakerCounts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// CircuitBreakerState represents the state of the circuit breaker.
type CircuitBreakerState int

const (
	// StateClosed means the circuit is closed and calls flow normally.
	StateClosed CircuitBreakerState = iota

	// StateHalfOpen means the circuit is testing if the Vault API has recovered.
	StateHalfOpen

	// StateOpen means the circuit is open and calls are rejected immediately.
	StateOpen
)

// String returns the string representation of the circuit breaker state.
func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// WithMaxRequests sets the maximum number of calls in half-open state.
func WithMaxRequests(maxRequests uint32) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.MaxRequests = maxRequests
	}
}

// WithInterval sets the interval for clearing counts in closed state.
func WithInterval(interval time.Duration) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.Interval = interval
	}
}

// WithTimeout sets how long the circuit stays open.
func WithTimeout(timeout time.Duration) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.Timeout = timeout
	}
}

// WithReadyToTrip sets a custom function to determine when to trip the circuit.
//
// Example:
//
//	vault.WithReadyToTrip(func(counts vault.CircuitBreakerCounts) bool {
//	    return counts.ConsecutiveFailures >= 5
//	})
func WithReadyToTrip(fn func(counts CircuitBreakerCounts) bool) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.ReadyToTrip = fn
	}
}

// WithCircuitBreakerErrorClassifier sets a custom classifier for circuit breaker decisions.
func WithCircuitBreakerErrorClassifier(classifier CircuitBreakerErrorClassifier) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.ErrorClassifier = classifier
	}
}

// WithStateChangeHandler sets a callback for circuit breaker state changes.
func WithStateChangeHandler(fn func(name string, from, to CircuitBreakerState)) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.OnStateChange = fn
	}
}

// DefaultCircuitBreakerConfig returns circuit breaker configuration with sensible defaults.
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:        "vault-api",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts CircuitBreakerCounts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		ErrorClassifier: DefaultCircuitBreakerErrorClassifier(),
	}
}
