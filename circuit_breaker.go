package vault

import (
	"context"
	"errors"
	"log/slog"

	jperrors "github.com/JohnPlummer/jp-go-errors"
	"github.com/sony/gobreaker/v2"
)

// circuitBreaker guards whole calls, retries included. An open circuit rejects a call
// before any attempt is made.
type circuitBreaker struct {
	cb         *gobreaker.CircuitBreaker[*RawResponse]
	logger     *slog.Logger
	classifier CircuitBreakerErrorClassifier
}

// observedStatus carries a non-2xx response through gobreaker so it can be
// classified; it is unwrapped again before leaving the stage.
type observedStatus struct {
	*HTTPStatusError
}

func (o observedStatus) Unwrap() error {
	return o.HTTPStatusError
}

// newCircuitBreaker fills unset fields on a copy of config; the caller's config is left as given.
func newCircuitBreaker(given *CircuitBreakerConfig, logger *slog.Logger) *circuitBreaker {
	config := *given
	defaults := DefaultCircuitBreakerConfig()
	if config.ErrorClassifier == nil {
		config.ErrorClassifier = defaults.ErrorClassifier
	}
	if config.ReadyToTrip == nil {
		config.ReadyToTrip = defaults.ReadyToTrip
	}
	if config.Name == "" {
		config.Name = defaults.Name
	}
	classifier := config.ErrorClassifier

	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return config.ReadyToTrip(convertCounts(counts))
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String())

			if config.OnStateChange != nil {
				config.OnStateChange(name, convertGobreakerState(from), convertGobreakerState(to))
			}
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			return !classifier.ShouldTripCircuit(err)
		},
	}

	return &circuitBreaker{
		cb:         gobreaker.NewCircuitBreaker[*RawResponse](settings),
		logger:     logger,
		classifier: classifier,
	}
}

func (b *circuitBreaker) stage() Stage {
	return func(next Transport) Transport {
		return TransportFunc(func(ctx context.Context, req *Request) (*RawResponse, error) {
			return b.execute(ctx, req, next)
		})
	}
}

// execute runs next through the breaker. Rejections become jp-go-errors circuit breaker errors.
func (b *circuitBreaker) execute(ctx context.Context, req *Request, next Transport) (*RawResponse, error) {
	resp, err := b.cb.Execute(func() (*RawResponse, error) {
		resp, err := next.Execute(ctx, req)
		if err == nil && resp != nil && !resp.IsSuccess() {
			return resp, observedStatus{&HTTPStatusError{Response: resp}}
		}
		return resp, err
	})

	var observed observedStatus
	if errors.As(err, &observed) {
		return resp, nil
	}
	if err == nil {
		return resp, nil
	}

	switch {
	case errors.Is(err, gobreaker.ErrOpenState):
		counts := b.cb.Counts()
		b.logger.Warn("circuit breaker is open, request rejected",
			"call_id", callIDFromContext(ctx),
			"error", err,
			"state", b.cb.State().String(),
			"consecutive_failures", counts.ConsecutiveFailures)
		return nil, jperrors.NewCircuitBreakerError(
			"vault api request rejected",
			"execute",
			"open",
			jperrors.WithCause(err),
			jperrors.WithCounts(toJPCounts(counts)),
		)
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		counts := b.cb.Counts()
		b.logger.Debug("circuit breaker in half-open state, too many requests",
			"call_id", callIDFromContext(ctx),
			"error", err)
		return nil, jperrors.NewCircuitBreakerError(
			"too many vault api requests in half-open state",
			"execute",
			"half-open",
			jperrors.WithCause(err),
			jperrors.WithCounts(toJPCounts(counts)),
		)
	default:
		b.logger.Debug("vault api call failed through circuit breaker",
			"call_id", callIDFromContext(ctx),
			"error", err,
			"should_trip", b.classifier.ShouldTripCircuit(err))
	}
	return resp, err
}

// State returns the current state of the circuit breaker.
func (b *circuitBreaker) State() CircuitBreakerState {
	return convertGobreakerState(b.cb.State())
}

// Counts returns the current counts of the circuit breaker.
func (b *circuitBreaker) Counts() CircuitBreakerCounts {
	return convertCounts(b.cb.Counts())
}

func convertCounts(counts gobreaker.Counts) CircuitBreakerCounts {
	return CircuitBreakerCounts{
		Requests:             counts.Requests,
		TotalSuccesses:       counts.TotalSuccesses,
		TotalFailures:        counts.TotalFailures,
		ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
		ConsecutiveFailures:  counts.ConsecutiveFailures,
	}
}

func toJPCounts(counts gobreaker.Counts) jperrors.CircuitCounts {
	return jperrors.CircuitCounts{
		Requests:             counts.Requests,
		TotalSuccesses:       counts.TotalSuccesses,
		TotalFailures:        counts.TotalFailures,
		ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
		ConsecutiveFailures:  counts.ConsecutiveFailures,
	}
}

// convertGobreakerState converts gobreaker.State to our CircuitBreakerState.
func convertGobreakerState(state gobreaker.State) CircuitBreakerState {
	switch state {
	case gobreaker.StateClosed:
		return StateClosed
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	default:
		return StateClosed
	}
}
