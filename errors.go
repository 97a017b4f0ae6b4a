package vault

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	jperrors "github.com/JohnPlummer/jp-go-errors"
)

// ErrInvalidConfiguration is returned by NewClient and LoadSettings when the
// client cannot be built from the given inputs.
var ErrInvalidConfiguration = errors.New("invalid vault client configuration")

// ErrorClassifier determines whether a failed attempt should be retried.
// Implement this interface to customize retry behavior for your specific error types.
type ErrorClassifier interface {
	// IsRetryable returns true if the failure is transient and another attempt is worth making.
	IsRetryable(err error) bool
}

// CircuitBreakerErrorClassifier determines whether a failed call should count against the circuit breaker.
type CircuitBreakerErrorClassifier interface {
	// ShouldTripCircuit returns true if the failure indicates the Vault API itself is unhealthy.
	ShouldTripCircuit(err error) bool
}

// HTTPError represents an error with an associated HTTP status code.
type HTTPError interface {
	error
	StatusCode() int
}

// HTTPStatusClassifier classifies failures by HTTP status code.
// Network failures are retryable, caller cancellations are not.
type HTTPStatusClassifier struct {
	// RetryableStatuses lists HTTP status codes that should trigger retries.
	// If nil, 429 and every status >= 500 are retryable.
	RetryableStatuses []int

	// CircuitTripStatuses lists HTTP status codes that count as circuit breaker failures.
	// If nil, 401, 403 and every status >= 500 trip the circuit.
	CircuitTripStatuses []int
}

// NewHTTPStatusClassifier creates an HTTPStatusClassifier with the default status mappings.
func NewHTTPStatusClassifier() *HTTPStatusClassifier {
	return &HTTPStatusClassifier{}
}

// IsRetryable implements ErrorClassifier.
func (c *HTTPStatusClassifier) IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Network failures carry their own verdict: a failure caused by the caller's
	// context is final, anything else (refused, reset, TLS, per-attempt timeout) is transient.
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return !netErr.Canceled
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	if errors.Is(err, jperrors.ErrRateLimited) {
		return true
	}
	if jperrors.IsTimeout(err) {
		return true
	}

	statusCode := extractStatusCode(err)
	if statusCode == 0 {
		return true
	}

	if c.RetryableStatuses != nil {
		return containsStatus(c.RetryableStatuses, statusCode)
	}
	return statusCode == http.StatusTooManyRequests || statusCode >= http.StatusInternalServerError
}

// ShouldTripCircuit implements CircuitBreakerErrorClassifier.
func (c *HTTPStatusClassifier) ShouldTripCircuit(err error) bool {
	if err == nil {
		return false
	}

	// Rate limits, timeouts and cancellations are transient and must not open the circuit
	if errors.Is(err, jperrors.ErrRateLimited) || jperrors.IsTimeout(err) {
		return false
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) && netErr.Canceled {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	statusCode := extractStatusCode(err)
	if statusCode == 0 {
		return true
	}

	if c.CircuitTripStatuses != nil {
		return containsStatus(c.CircuitTripStatuses, statusCode)
	}
	return statusCode == http.StatusUnauthorized ||
		statusCode == http.StatusForbidden ||
		statusCode >= http.StatusInternalServerError
}

// extractStatusCode returns the HTTP status carried by err, or 0.
func extractStatusCode(err error) int {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode()
	}
	return 0
}

func containsStatus(statuses []int, status int) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// DefaultErrorClassifier retries network failures, 429 and 5xx responses.
func DefaultErrorClassifier() ErrorClassifier {
	return NewHTTPStatusClassifier()
}

// DefaultCircuitBreakerErrorClassifier trips on network failures, 401, 403 and 5xx responses.
func DefaultCircuitBreakerErrorClassifier() CircuitBreakerErrorClassifier {
	return NewHTTPStatusClassifier()
}

// NetworkError is an attempt that never produced a response: connection refused,
// TLS failure, timeout, or the caller's context ending.
type NetworkError struct {
	Err    error
	Method string
	URL    string

	// Canceled is set when the failure was caused by the caller's context.
	Canceled bool
}

func (e *NetworkError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// HTTPStatusError is a response with a non-2xx status.
type HTTPStatusError struct {
	Response *RawResponse
}

// maxBodySummary caps how much of a failed response body ends up in the error message.
const maxBodySummary = 120

func (e *HTTPStatusError) Error() string {
	r := e.Response
	label := "Unsuccessful request"
	switch {
	case r.StatusCode >= 400 && r.StatusCode < 500:
		label = "Client error"
	case r.StatusCode >= 500:
		label = "Server error"
	}

	status := r.Status
	if status == "" {
		status = fmt.Sprintf("%d %s", r.StatusCode, http.StatusText(r.StatusCode))
	}

	msg := fmt.Sprintf("%s: `%s %s` resulted in a `%s` response", label, r.Method, r.URL, status)
	if summary := summarizeBody(r.Body); summary != "" {
		msg += ":\n" + summary
	}
	return msg
}

// StatusCode returns the HTTP status code.
// This implements the HTTPError interface.
func (e *HTTPStatusError) StatusCode() int {
	return e.Response.StatusCode
}

func summarizeBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if len(body) > maxBodySummary {
		return string(body[:maxBodySummary]) + " (truncated...)\n"
	}
	return string(body) + "\n"
}

// DecodeError is a body that is not valid JSON of the expected shape.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying parse error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// MappingError is a decoded body rejected by a ResponseModel.
type MappingError struct {
	// Index is the position of the rejected element in a list response, -1 for single responses.
	Index int
	Err   error
}

func (e *MappingError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("item %d: %v", e.Index, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the error returned by the model.
func (e *MappingError) Unwrap() error {
	return e.Err
}

// ClientError is the only error type returned by Client operations.
// Code is the HTTP status when the failure came from a response, 0 otherwise.
// Cause is one of *NetworkError, *HTTPStatusError, *DecodeError or *MappingError,
// or an error from jp-go-errors when the circuit breaker rejected the call.
type ClientError struct {
	Message string
	Code    int
	Cause   error
}

func (e *ClientError) Error() string {
	return e.Message
}

// Unwrap returns the cause.
func (e *ClientError) Unwrap() error {
	return e.Cause
}

// StatusCode returns Code.
// This implements the HTTPError interface.
func (e *ClientError) StatusCode() int {
	return e.Code
}

// IsNotFound reports whether err is a ClientError for a 404 response.
func IsNotFound(err error) bool {
	var clientErr *ClientError
	return errors.As(err, &clientErr) && clientErr.Code == http.StatusNotFound
}

func newClientError(message string, code int, cause error) *ClientError {
	return &ClientError{
		Message: message,
		Code:    code,
		Cause:   cause,
	}
}
