// Package vault is a client for the Keboola Vault API.
// It sends pre-built requests through an authenticated, retried and logged pipeline,
// decodes response bodies into caller-defined models, and reports every failure as a
// single *ClientError type carrying the HTTP status and the root cause.
//
// Example:
//
//	client, err := vault.NewClient(
//	    "https://vault.keboola.com",
//	    os.Getenv("KBC_STORAGE_TOKEN"),
//	    vault.WithBackoffMaxTries(3),
//	    vault.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//
//	req, _ := vault.NewRequest(http.MethodGet, "variables/scoped/branch/main", nil)
//	variables, err := vault.SendRequestAndMapListResponse[Variable](ctx, client, req)
package vault

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/go-playground/validator/v10"
)

// UserAgent is the User-Agent prefix sent with every request.
const UserAgent = "Keboola Vault Go Client"

// Client sends requests to the Vault API. It is safe for concurrent use.
type Client struct {
	config    *Configuration
	transport Transport
	breaker   *circuitBreaker
	stats     *callStats
}

// clientParams are the construction inputs checked before anything else happens.
type clientParams struct {
	BaseURL         string `validate:"required,url"`
	Token           string `validate:"required"`
	BackoffMaxTries int    `validate:"min=0"`
}

var validate = validator.New()

// NewClient creates a client for the Vault API at baseURL authenticating with token.
// It fails with ErrInvalidConfiguration when baseURL or token is empty, before any network use.
func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	config := defaultConfiguration()
	for _, opt := range opts {
		opt(config)
	}
	config.normalize()

	if err := validateParams(clientParams{
		BaseURL:         baseURL,
		Token:           token,
		BackoffMaxTries: config.BackoffMaxTries,
	}); err != nil {
		return nil, err
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: base URL: %v", ErrInvalidConfiguration, err)
	}

	metrics, err := newClientMetrics(config.Registerer)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	userAgent := UserAgent
	if config.UserAgentSuffix != "" {
		userAgent += " - " + config.UserAgentSuffix
	}

	c := &Client{
		config: config,
		stats:  &callStats{},
	}

	stages := []Stage{authStage(NewStorageAPITokenAuthenticator(token))}
	if config.CircuitBreaker != nil {
		c.breaker = newCircuitBreaker(config.CircuitBreaker, config.Logger)
		stages = append(stages, c.breaker.stage())
	}
	stages = append(stages, retryStage(config, c.stats, metrics))
	if config.RateLimit != nil {
		stages = append(stages, rateLimitStage(newLimiter(config.RateLimit)))
	}
	stages = append(stages, loggingStage(config.Logger, base.Host, userAgent, metrics))

	c.transport = chain(newHTTPSender(base, userAgent, config.Transport), stages...)

	config.Logger.Debug("vault client created",
		"base_url", base.String(),
		"backoff_max_tries", config.BackoffMaxTries,
		"circuit_breaker", config.CircuitBreaker != nil,
		"rate_limit", config.RateLimit != nil)

	return c, nil
}

func validateParams(params clientParams) error {
	if err := validate.Struct(params); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			fe := validationErrors[0]
			return fmt.Errorf("%w: %s failed on %q", ErrInvalidConfiguration, fe.Field(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	return nil
}

// SendRequest sends req and discards the response body.
// Any failure is returned as a *ClientError.
func (c *Client) SendRequest(ctx context.Context, req *Request) error {
	if _, err := c.send(ctx, req); err != nil {
		return err
	}
	return nil
}

// send runs req through the pipeline and returns the 2xx response, or a *ClientError.
func (c *Client) send(ctx context.Context, req *Request) (*RawResponse, *ClientError) {
	ctx = withCallID(ctx)

	resp, err := c.transport.Execute(ctx, req)
	if err != nil {
		return nil, translateFailure(err)
	}
	if !resp.IsSuccess() {
		return nil, translateFailure(&HTTPStatusError{Response: resp})
	}
	return resp, nil
}

// Stats returns a snapshot of the client's call statistics.
func (c *Client) Stats() CallStats {
	return c.stats.snapshot()
}

// Health reports the circuit breaker state. Without a circuit breaker the client is always healthy.
func (c *Client) Health() HealthStatus {
	if c.breaker == nil {
		return HealthStatus{Healthy: true, Status: "disabled"}
	}
	return c.breaker.health()
}

// Configuration returns a copy of the settings the client was built with.
func (c *Client) Configuration() Configuration {
	return *c.config
}
