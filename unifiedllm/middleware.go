package unifiedllm

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimitMiddleware blocks each request until the limiter admits it.
// A cancelled context while waiting becomes an AbortError.
func RateLimitMiddleware(limiter *rate.Limiter) Middleware {
	return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		if err := limiter.Wait(ctx); err != nil {
			return nil, &AbortError{SDKError: SDKError{Message: "rate limiter wait aborted", Cause: err}}
		}
		return next(ctx, req)
	}
}

// NewRateLimiter builds a limiter allowing perMinute requests with the given
// burst. A non-positive perMinute disables limiting.
func NewRateLimiter(perMinute float64, burst int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perMinute/60.0), burst)
}

// LoggingMiddleware logs each completion with its latency and token usage.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		elapsed := time.Since(start)
		if err != nil {
			logger.Warn("completion failed",
				zap.String("provider", req.Provider),
				zap.String("model", req.Model),
				zap.Duration("elapsed", elapsed),
				zap.Error(err))
			return nil, err
		}
		logger.Debug("completion",
			zap.String("provider", resp.Provider),
			zap.String("model", resp.Model),
			zap.String("finish_reason", resp.FinishReason.Reason),
			zap.Int("input_tokens", resp.Usage.InputTokens),
			zap.Int("output_tokens", resp.Usage.OutputTokens),
			zap.Duration("elapsed", elapsed))
		return resp, nil
	}
}
