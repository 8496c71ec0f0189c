package forecast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lox/climadash/internal/models"
)

// Horizon is the number of held-out points forecast per run.
const Horizon = 14

var ErrSeriesTooShort = errors.New("series shorter than forecast horizon")

// Engine runs rolling one-step forecasts. Each step refits a fresh model on
// a training series that ends with the previous step's forecast, so errors
// compound across the horizon.
type Engine struct {
	NewModel func() Model
	Horizon  int
}

func NewEngine() *Engine {
	return &Engine{
		NewModel: func() Model { return NewARIMA() },
		Horizon:  Horizon,
	}
}

// Run forecasts the last Horizon points of values, returning them in date
// order alongside the held-out actuals. Any fit error aborts the run.
func (e *Engine) Run(ctx context.Context, dates []time.Time, values []float64) ([]models.ForecastPoint, error) {
	if len(dates) != len(values) {
		return nil, fmt.Errorf("forecast: %d dates for %d values", len(dates), len(values))
	}
	n := len(values)
	if n < e.Horizon {
		return nil, fmt.Errorf("%w: %d points, need %d", ErrSeriesTooShort, n, e.Horizon)
	}

	split := n - e.Horizon
	train := make([]float64, split, n)
	copy(train, values[:split])

	points := make([]models.ForecastPoint, 0, e.Horizon)
	for i := split; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		model := e.NewModel()
		if err := model.Fit(train); err != nil {
			return nil, fmt.Errorf("forecast step %d (%s): %w", i-split+1, dates[i].Format(models.DateLayout), err)
		}
		yhat, err := model.Predict()
		if err != nil {
			return nil, fmt.Errorf("forecast step %d (%s): %w", i-split+1, dates[i].Format(models.DateLayout), err)
		}
		train = append(train, yhat)
		points = append(points, models.ForecastPoint{Date: dates[i], Forecast: yhat, Actual: values[i]})
	}
	return points, nil
}
