package vault

// HealthStatus reports whether the client is currently letting calls through to the Vault API.
type HealthStatus struct {
	// Healthy is false only while the circuit breaker is open.
	Healthy bool `json:"healthy"`

	// Status is "closed", "half-open", "open", or "disabled" when no circuit breaker is configured.
	Status string `json:"status"`

	// Requests is the number of calls in the current breaker interval.
	Requests uint32 `json:"requests"`

	// TotalSuccesses is the number of successful calls in the current interval.
	TotalSuccesses uint32 `json:"total_successes"`

	// TotalFailures is the number of failed calls in the current interval.
	TotalFailures uint32 `json:"total_failures"`

	// ConsecutiveFailures is the number of consecutive failures.
	ConsecutiveFailures uint32 `json:"consecutive_failures"`

	// ConsecutiveSuccesses is the number of consecutive successes.
	ConsecutiveSuccesses uint32 `json:"consecutive_successes"`
}

func (b *circuitBreaker) health() HealthStatus {
	state := b.State()
	counts := b.Counts()

	return HealthStatus{
		Healthy:              state != StateOpen,
		Status:               state.String(),
		Requests:             counts.Requests,
		TotalSuccesses:       counts.TotalSuccesses,
		TotalFailures:        counts.TotalFailures,
		ConsecutiveFailures:  counts.ConsecutiveFailures,
		ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
	}
}
