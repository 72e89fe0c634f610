// Package velocity limits how often a single client may submit symptom texts.
package velocity

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-health/triage/internal/domain"
)

// Decision is the outcome of a velocity check.
type Decision struct {
	Allowed bool
	Count   int64
	Limit   int
	Window  time.Duration
}

// Limiter counts submissions per client in fixed windows using the
// shared cache, so limits hold across replicas when the cache is Redis.
type Limiter struct {
	cache  domain.Cache
	limit  int
	window time.Duration
}

// NewLimiter creates a limiter from configuration. A MaxSubmissions of
// zero disables limiting.
func NewLimiter(cache domain.Cache, cfg domain.VelocityConfig) *Limiter {
	window := time.Duration(cfg.WindowSecs) * time.Second
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		cache:  cache,
		limit:  cfg.MaxSubmissions,
		window: window,
	}
}

// Enabled reports whether the limiter enforces anything.
func (l *Limiter) Enabled() bool {
	return l != nil && l.limit > 0 && l.cache != nil
}

// Allow records one submission for clientKey and reports whether it is
// within the limit.
func (l *Limiter) Allow(ctx context.Context, clientKey string) (Decision, error) {
	if !l.Enabled() {
		return Decision{Allowed: true}, nil
	}
	if clientKey == "" {
		return Decision{}, fmt.Errorf("%w: client key is required", domain.ErrInvalidInput)
	}

	count, err := l.cache.IncrementCounter(ctx, "velocity:"+clientKey, l.window)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to count submissions: %w", err)
	}

	return Decision{
		Allowed: count <= int64(l.limit),
		Count:   count,
		Limit:   l.limit,
		Window:  l.window,
	}, nil
}
