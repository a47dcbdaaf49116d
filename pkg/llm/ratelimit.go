package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited delays calls to next so they stay under a token bucket limit.
type RateLimited struct {
	next    Generator
	limiter *rate.Limiter
}

// NewRateLimited wraps next with a limiter allowing rps calls per second
// with the given burst. A non-positive rps disables limiting and returns
// next unchanged.
func NewRateLimited(next Generator, rps float64, burst int) Generator {
	if rps <= 0 {
		return next
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Generate implements Generator.
func (r *RateLimited) Generate(ctx context.Context, req Request) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: rate limiter: %w", ErrUnavailable, err)
	}
	return r.next.Generate(ctx, req)
}
