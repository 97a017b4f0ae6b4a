package vault

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

// AttemptFailure describes a failed attempt to the RetryDecider.
type AttemptFailure struct {
	// Attempt is the 1-based index of the attempt that failed.
	Attempt int

	// Err is a *NetworkError or *HTTPStatusError.
	Err error

	// URL is the request target, for logging.
	URL string

	// Elapsed is the time since the first attempt started.
	Elapsed time.Duration
}

// RetryDecision is the outcome of RetryDecider.ShouldRetry.
type RetryDecision struct {
	Retry  bool
	Delay  time.Duration
	Reason string
}

// RetryDecider decides whether a failed attempt is retried and how long to wait first.
// A decider holds the backoff state of a single call; create one per call.
type RetryDecider struct {
	maxTries   int
	classifier ErrorClassifier
	logger     *slog.Logger
	backoff    retry.Backoff
}

// NewRetryDecider creates a decider for one call using cfg's retry settings.
func NewRetryDecider(cfg *Configuration) *RetryDecider {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	classifier := cfg.ErrorClassifier
	if classifier == nil {
		classifier = DefaultErrorClassifier()
	}

	return &RetryDecider{
		maxTries:   max(cfg.BackoffMaxTries, 0),
		classifier: classifier,
		logger:     logger,
		backoff:    newBackoff(cfg),
	}
}

// MaxAttempts returns the total number of attempts allowed, the first one included.
func (d *RetryDecider) MaxAttempts() int {
	return d.maxTries + 1
}

// ShouldRetry decides on a failed attempt. Attempts are expected in order starting at 1;
// each positive decision advances the backoff curve.
func (d *RetryDecider) ShouldRetry(f AttemptFailure) RetryDecision {
	if f.Attempt >= d.MaxAttempts() {
		return RetryDecision{Reason: "max attempts reached"}
	}
	if !d.classifier.IsRetryable(f.Err) {
		return RetryDecision{Reason: "failure is not retryable"}
	}

	delay, stop := d.backoff.Next()
	if stop {
		return RetryDecision{Reason: "backoff exhausted"}
	}

	reason := f.Err.Error()
	d.logger.Warn("retrying vault api request",
		"attempt", f.Attempt,
		"max_attempts", d.MaxAttempts(),
		"url", f.URL,
		"delay", delay,
		"elapsed", f.Elapsed,
		"reason", reason)

	return RetryDecision{Retry: true, Delay: delay, Reason: reason}
}

// newBackoff returns the exponential curve InitialDelay * 2^(n-1), jittered and capped at MaxDelay.
func newBackoff(cfg *Configuration) retry.Backoff {
	initial := cfg.InitialDelay
	if initial <= 0 {
		initial = DefaultInitialDelay
	}
	maxDelay := cfg.MaxDelay
	if maxDelay < initial {
		maxDelay = initial
	}

	b := retry.NewExponential(initial)
	if cfg.Jitter > 0 {
		b = retry.WithJitter(cfg.Jitter, b)
	}
	return retry.WithCappedDuration(maxDelay, b)
}

// retryTransport runs attempts against next until one succeeds or the decider gives up.
type retryTransport struct {
	next   Transport
	cfg    *Configuration
	stats  *callStats
	metric *clientMetrics
}

func retryStage(cfg *Configuration, stats *callStats, metrics *clientMetrics) Stage {
	return func(next Transport) Transport {
		return &retryTransport{next: next, cfg: cfg, stats: stats, metric: metrics}
	}
}

// Execute implements Transport.
//
// It returns (resp, nil) on 2xx and on statuses the classifier does not retry,
// (resp, *HTTPStatusError) when a retryable status outlived every attempt, and
// (nil, *NetworkError) when no response was obtained.
func (t *retryTransport) Execute(ctx context.Context, req *Request) (*RawResponse, error) {
	logger := t.cfg.Logger.With("call_id", callIDFromContext(ctx))
	deciderCfg := *t.cfg
	deciderCfg.Logger = logger
	decider := NewRetryDecider(&deciderCfg)

	var (
		response *RawResponse
		attempts int
		delay    time.Duration
	)
	start := time.Now()

	// the decider owns the curve; go-retry only sleeps for what it decided
	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		return delay, false
	})

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		t.stats.recordAttempt(attempts)
		if attempts > 1 {
			t.metric.observeRetry(req.Method)
		}

		resp, err := t.next.Execute(ctx, req)
		response = resp

		failure := err
		if failure == nil && resp == nil {
			failure = &NetworkError{Err: errors.New("no response received"), Method: req.Method, URL: req.Path}
		}
		if failure == nil {
			if resp.IsSuccess() {
				if attempts > 1 {
					logger.Info("vault api request succeeded after retry",
						"attempts", attempts)
				}
				return nil
			}
			failure = &HTTPStatusError{Response: resp}
		}

		decision := decider.ShouldRetry(AttemptFailure{
			Attempt: attempts,
			Err:     failure,
			URL:     attemptURL(resp, failure, req),
			Elapsed: time.Since(start),
		})
		if !decision.Retry {
			logger.Debug("giving up on vault api request",
				"attempts", attempts,
				"reason", decision.Reason,
				"error", failure)
			return failure
		}

		delay = decision.Delay
		return retry.RetryableError(failure)
	})

	if err == nil {
		t.stats.recordSuccess()
		return response, nil
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		// Only a retryable status that ran out of attempts is a pipeline failure;
		// anything else is handed back for the error translator to describe.
		t.stats.recordFailure(statusErr)
		if !t.cfg.ErrorClassifier.IsRetryable(statusErr) {
			return statusErr.Response, nil
		}
		return statusErr.Response, statusErr
	}

	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		// retry.Do stopped on the caller's context, either before an attempt or during the backoff sleep
		netErr = &NetworkError{
			Err:      err,
			Method:   req.Method,
			URL:      req.Path,
			Canceled: ctx.Err() != nil,
		}
	}

	logger.Warn("vault api request failed",
		"attempts", attempts,
		"error", netErr)
	t.stats.recordFailure(netErr)
	return nil, netErr
}

func attemptURL(resp *RawResponse, failure error, req *Request) string {
	if resp != nil {
		return resp.URL
	}
	var netErr *NetworkError
	if errors.As(failure, &netErr) && netErr.URL != "" {
		return netErr.URL
	}
	return req.Path
}
