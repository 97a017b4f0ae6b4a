package vault

import (
	"context"

	"golang.org/x/time/rate"
)

// rateLimitStage delays each attempt, retries included, until the limiter admits it.
func rateLimitStage(limiter *rate.Limiter) Stage {
	return func(next Transport) Transport {
		return TransportFunc(func(ctx context.Context, req *Request) (*RawResponse, error) {
			if err := limiter.Wait(ctx); err != nil {
				// Wait only fails because of ctx: it ended, or its deadline is too close
				return nil, &NetworkError{
					Err:      err,
					Method:   req.Method,
					URL:      req.Path,
					Canceled: true,
				}
			}
			return next.Execute(ctx, req)
		})
	}
}

func newLimiter(cfg *RateLimitConfig) *rate.Limiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		limit = rate.Inf
	}
	return rate.NewLimiter(limit, burst)
}
