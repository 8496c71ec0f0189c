package forecast

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/lox/climadash/internal/models"
)

// Runner produces a rolling forecast for a dated series.
type Runner interface {
	Run(ctx context.Context, dates []time.Time, values []float64) ([]models.ForecastPoint, error)
}

// RateLimitedRunner bounds how often forecasts are computed. Each run fits
// Horizon models, so it is far more expensive than a chart query.
type RateLimitedRunner struct {
	runner  Runner
	limiter *rate.Limiter
}

// NewRateLimitedRunner allows rps runs per second with the given burst.
func NewRateLimitedRunner(runner Runner, rps float64, burst int) *RateLimitedRunner {
	return &RateLimitedRunner{
		runner:  runner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (r *RateLimitedRunner) Run(ctx context.Context, dates []time.Time, values []float64) ([]models.ForecastPoint, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("forecast rate limit wait canceled: %w", err)
	}
	return r.runner.Run(ctx, dates, values)
}

var (
	_ Runner = (*Engine)(nil)
	_ Runner = (*RateLimitedRunner)(nil)
)
