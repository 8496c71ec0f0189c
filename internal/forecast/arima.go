// Package forecast fits ARIMA(1,1,1) models and runs rolling one-step-ahead
// forecasts over a held-out tail.
package forecast

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"github.com/lox/climadash/internal/metrics"
)

var (
	ErrDegenerateSeries = errors.New("series too short or constant to fit")
	ErrFitFailed        = errors.New("model fit failed")
	ErrNotFitted        = errors.New("model not fitted")
)

// minObservations is the shortest series ARIMA(1,1,1) is fitted on.
const minObservations = 5

// Model is a univariate model that forecasts one step past its training data.
type Model interface {
	Fit(series []float64) error
	Predict() (float64, error)
}

// ARIMA is an ARIMA(1,1,1) model without constant:
//
//	w_t = y_t - y_{t-1}
//	w_t = phi*w_{t-1} + e_t + theta*e_{t-1}
//
// fitted by conditional sum of squares.
type ARIMA struct {
	Phi, Theta float64

	last     float64 // y_n
	lastDiff float64 // w_n
	lastErr  float64 // e_n
	fitted   bool
}

func NewARIMA() *ARIMA {
	return &ARIMA{}
}

func (m *ARIMA) Fit(series []float64) error {
	start := time.Now()
	err := m.fit(series)
	metrics.ForecastFitLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ForecastFits.WithLabelValues("error").Inc()
		return err
	}
	metrics.ForecastFits.WithLabelValues("ok").Inc()
	return nil
}

func (m *ARIMA) fit(series []float64) error {
	m.fitted = false
	if len(series) < minObservations {
		return fmt.Errorf("%w: %d observations", ErrDegenerateSeries, len(series))
	}
	for _, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite observation", ErrDegenerateSeries)
		}
	}

	w := make([]float64, len(series)-1)
	floats.SubTo(w, series[1:], series[:len(series)-1])
	if stat.Variance(w, nil) == 0 {
		return fmt.Errorf("%w: constant differenced series", ErrDegenerateSeries)
	}

	// tanh keeps phi and theta inside (-1, 1) so the search is unconstrained.
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			sse, _ := css(w, math.Tanh(x[0]), math.Tanh(x[1]))
			return sse
		},
	}
	settings := &optimize.Settings{FuncEvaluations: 2000}
	result, err := optimize.Minimize(problem, []float64{0.1, 0.1}, settings, &optimize.NelderMead{})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFitFailed, err)
	}
	if math.IsNaN(result.F) || math.IsInf(result.F, 0) {
		return fmt.Errorf("%w: non-finite objective", ErrFitFailed)
	}

	m.Phi = math.Tanh(result.X[0])
	m.Theta = math.Tanh(result.X[1])
	_, m.lastErr = css(w, m.Phi, m.Theta)
	m.last = series[len(series)-1]
	m.lastDiff = w[len(w)-1]
	m.fitted = true
	return nil
}

// Predict returns the one-step-ahead forecast of the undifferenced series.
func (m *ARIMA) Predict() (float64, error) {
	if !m.fitted {
		return 0, ErrNotFitted
	}
	y := m.last + m.Phi*m.lastDiff + m.Theta*m.lastErr
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return 0, fmt.Errorf("%w: non-finite forecast", ErrFitFailed)
	}
	return y, nil
}

// css returns the conditional sum of squared innovations over w, taking
// e_0 = 0, and the final innovation.
func css(w []float64, phi, theta float64) (sse, last float64) {
	var e float64
	for t := 1; t < len(w); t++ {
		e = w[t] - phi*w[t-1] - theta*e
		sse += e * e
	}
	return sse, e
}

var _ Model = (*ARIMA)(nil)
