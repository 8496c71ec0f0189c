package forecast

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"
)

func dailyDates(n int) []time.Time {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	dates := make([]time.Time, n)
	for i := range dates {
		dates[i] = start.AddDate(0, 0, i)
	}
	return dates
}

// ar1Walk integrates an AR(1) process, giving a series whose first
// difference is AR(1) with coefficient phi.
func ar1Walk(n int, phi float64, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	y := make([]float64, n)
	var w float64
	y[0] = 50
	for t := 1; t < n; t++ {
		w = phi*w + rng.NormFloat64()
		y[t] = y[t-1] + w
	}
	return y
}

// recordingModel predicts a value derived from its training length and
// records what it was trained on.
type recordingModel struct {
	trained *[][]float64
	series  []float64
}

func (m *recordingModel) Fit(series []float64) error {
	m.series = append([]float64(nil), series...)
	*m.trained = append(*m.trained, m.series)
	return nil
}

func (m *recordingModel) Predict() (float64, error) {
	return 1000 + float64(len(m.series)), nil
}

type failingModel struct{ err error }

func (m failingModel) Fit([]float64) error       { return m.err }
func (m failingModel) Predict() (float64, error) { return 0, nil }

func TestEngine_TwentyPoints(t *testing.T) {
	var trained [][]float64
	e := &Engine{
		NewModel: func() Model { return &recordingModel{trained: &trained} },
		Horizon:  Horizon,
	}
	dates := dailyDates(20)
	values := make([]float64, 20)
	for i := range values {
		values[i] = float64(i)
	}

	points, err := e.Run(context.Background(), dates, values)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(points) != 14 {
		t.Fatalf("points = %d, want 14", len(points))
	}
	for k, p := range points {
		if !p.Date.Equal(dates[6+k]) {
			t.Errorf("point %d date = %v, want %v", k, p.Date, dates[6+k])
		}
		if p.Actual != values[6+k] {
			t.Errorf("point %d actual = %v, want %v", k, p.Actual, values[6+k])
		}
	}
}

func TestEngine_TrainsOnOwnForecasts(t *testing.T) {
	var trained [][]float64
	e := &Engine{
		NewModel: func() Model { return &recordingModel{trained: &trained} },
		Horizon:  Horizon,
	}
	values := make([]float64, 20)
	for i := range values {
		values[i] = float64(i)
	}

	points, err := e.Run(context.Background(), dailyDates(20), values)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(trained) != 14 {
		t.Fatalf("fits = %d, want 14", len(trained))
	}
	if len(trained[0]) != 6 {
		t.Errorf("first training set len = %d, want 6", len(trained[0]))
	}
	for k := 0; k+1 < len(trained); k++ {
		next := trained[k+1]
		if got := next[len(next)-1]; got != points[k].Forecast {
			t.Errorf("fit %d ends with %v, want forecast %v", k+1, got, points[k].Forecast)
		}
		if got := next[len(next)-1]; got == values[6+k] {
			t.Errorf("fit %d trained on actual %v", k+1, got)
		}
	}
}

func TestEngine_TooShort(t *testing.T) {
	e := NewEngine()
	_, err := e.Run(context.Background(), dailyDates(13), make([]float64, 13))
	if !errors.Is(err, ErrSeriesTooShort) {
		t.Errorf("err = %v, want ErrSeriesTooShort", err)
	}
}

func TestEngine_MismatchedLengths(t *testing.T) {
	e := NewEngine()
	if _, err := e.Run(context.Background(), dailyDates(20), make([]float64, 19)); err == nil {
		t.Error("expected error for mismatched lengths")
	}
}

func TestEngine_FitErrorAborts(t *testing.T) {
	boom := errors.New("singular")
	fits := 0
	e := &Engine{
		NewModel: func() Model {
			fits++
			return failingModel{err: boom}
		},
		Horizon: Horizon,
	}
	points, err := e.Run(context.Background(), dailyDates(30), make([]float64, 30))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if points != nil || fits != 1 {
		t.Errorf("points = %v fits = %d, want nil and 1", points, fits)
	}
}

func TestEngine_ConstantSeriesFails(t *testing.T) {
	values := make([]float64, 40)
	for i := range values {
		values[i] = 72
	}
	_, err := NewEngine().Run(context.Background(), dailyDates(40), values)
	if !errors.Is(err, ErrDegenerateSeries) {
		t.Errorf("err = %v, want ErrDegenerateSeries", err)
	}
}

func TestEngine_ARIMA(t *testing.T) {
	values := ar1Walk(120, 0.5, 7)
	points, err := NewEngine().Run(context.Background(), dailyDates(120), values)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(points) != Horizon {
		t.Fatalf("points = %d, want %d", len(points), Horizon)
	}
	for i, p := range points {
		if math.IsNaN(p.Forecast) || math.IsInf(p.Forecast, 0) {
			t.Errorf("point %d forecast = %v", i, p.Forecast)
		}
	}
}

func TestEngine_ARIMATwentyPoints(t *testing.T) {
	dates := dailyDates(20)
	values := ar1Walk(20, 0.5, 7)

	points, err := NewEngine().Run(context.Background(), dates, values)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(points) != Horizon {
		t.Fatalf("points = %d, want %d", len(points), Horizon)
	}
	for k, p := range points {
		if !p.Date.Equal(dates[6+k]) || p.Actual != values[6+k] {
			t.Errorf("point %d = %+v, want date %v actual %v", k, p, dates[6+k], values[6+k])
		}
		if math.IsNaN(p.Forecast) || math.IsInf(p.Forecast, 0) {
			t.Errorf("point %d forecast = %v", k, p.Forecast)
		}
	}
}

func TestARIMA_RecoversCoefficients(t *testing.T) {
	m := NewARIMA()
	if err := m.Fit(ar1Walk(500, 0.6, 42)); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if math.Abs(m.Phi-0.6) > 0.2 {
		t.Errorf("phi = %.3f, want ~0.6", m.Phi)
	}
	if math.Abs(m.Theta) > 0.25 {
		t.Errorf("theta = %.3f, want ~0", m.Theta)
	}
}

func TestARIMA_Degenerate(t *testing.T) {
	tests := []struct {
		name   string
		series []float64
	}{
		{"too short", []float64{1, 2, 3}},
		{"constant", []float64{5, 5, 5, 5, 5, 5, 5, 5}},
		{"linear", []float64{1, 2, 3, 4, 5, 6, 7, 8}},
		{"nan", []float64{1, 3, 2, math.NaN(), 5, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewARIMA().Fit(tt.series)
			if !errors.Is(err, ErrDegenerateSeries) {
				t.Errorf("err = %v, want ErrDegenerateSeries", err)
			}
		})
	}
}

func TestARIMA_PredictBeforeFit(t *testing.T) {
	if _, err := NewARIMA().Predict(); !errors.Is(err, ErrNotFitted) {
		t.Errorf("err = %v, want ErrNotFitted", err)
	}
}

func TestARIMA_PredictUsesLastState(t *testing.T) {
	series := ar1Walk(60, 0.3, 3)
	m := NewARIMA()
	if err := m.Fit(series); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	w := make([]float64, len(series)-1)
	for i := range w {
		w[i] = series[i+1] - series[i]
	}
	_, e := css(w, m.Phi, m.Theta)
	want := series[len(series)-1] + m.Phi*w[len(w)-1] + m.Theta*e

	got, err := m.Predict()
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("Predict = %v, want %v", got, want)
	}
}
