package vault

import (
	"context"
	"log/slog"
	"strconv"
	"time"
)

// loggingStage writes one access line per attempt and feeds the attempt metrics.
func loggingStage(logger *slog.Logger, host, userAgent string, metrics *clientMetrics) Stage {
	return func(next Transport) Transport {
		return TransportFunc(func(ctx context.Context, req *Request) (*RawResponse, error) {
			start := time.Now()
			resp, err := next.Execute(ctx, req)
			elapsed := time.Since(start)

			ua := req.Header.Get("User-Agent")
			if ua == "" {
				ua = userAgent
			}

			if err != nil {
				metrics.observeAttempt(req.Method, 0, elapsed)
				logger.Warn("vault api attempt failed",
					"call_id", callIDFromContext(ctx),
					"host", host,
					"user_agent", ua,
					"method", req.Method,
					"resource", req.Path,
					"duration", elapsed,
					"error", err)
				return nil, err
			}

			metrics.observeAttempt(req.Method, resp.StatusCode, elapsed)
			logger.Info("vault api request",
				"call_id", callIDFromContext(ctx),
				"host", host,
				"user_agent", ua,
				"method", req.Method,
				"resource", req.Path,
				"protocol", resp.Proto,
				"status", resp.StatusCode,
				"size", responseSize(resp),
				"duration", elapsed)
			return resp, nil
		})
	}
}

// responseSize prefers the Content-Length header, like an access log would.
func responseSize(resp *RawResponse) int {
	if v := resp.Header.Get("Content-Length"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return len(resp.Body)
}
