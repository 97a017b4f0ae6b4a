package vault

import (
	"sync"
	"time"
)

// callStats tracks call and attempt statistics for a client.
type callStats struct {
	mu              sync.RWMutex
	totalAttempts   int64
	totalRetries    int64
	totalSuccesses  int64
	totalFailures   int64
	lastAttemptTime time.Time
	lastError       error
}

func (s *callStats) recordAttempt(attempt int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalAttempts++
	if attempt > 1 {
		s.totalRetries++
	}
	s.lastAttemptTime = time.Now()
}

func (s *callStats) recordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalSuccesses++
}

func (s *callStats) recordFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalFailures++
	s.lastError = err
}

// CallStats holds statistics about the calls made by a client.
type CallStats struct {
	// TotalAttempts is the total number of attempts made (including initial and retries)
	TotalAttempts int64

	// TotalRetries is the number of retry attempts (not including initial attempts)
	TotalRetries int64

	// TotalSuccesses is the number of calls that got a 2xx response
	TotalSuccesses int64

	// TotalFailures is the number of calls that ended without a 2xx response
	TotalFailures int64

	// LastAttemptTime is the time of the last attempt
	LastAttemptTime time.Time

	// LastError is the last failure encountered (if any)
	LastError error
}

func (s *callStats) snapshot() CallStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return CallStats{
		TotalAttempts:   s.totalAttempts,
		TotalRetries:    s.totalRetries,
		TotalSuccesses:  s.totalSuccesses,
		TotalFailures:   s.totalFailures,
		LastAttemptTime: s.lastAttemptTime,
		LastError:       s.lastError,
	}
}
