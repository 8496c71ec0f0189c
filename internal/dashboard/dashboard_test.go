package dashboard

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/lox/climadash/internal/dataset"
	"github.com/lox/climadash/internal/filters"
	"github.com/lox/climadash/internal/forecast"
	"github.com/lox/climadash/internal/models"
)

type cityList []string

func (c cityList) Cities(ctx context.Context) ([]string, error) { return c, nil }

type fakeDatasets struct {
	calls map[models.Kind]int
}

func newFakeDatasets() *fakeDatasets {
	return &fakeDatasets{calls: map[models.Kind]int{}}
}

func (f *fakeDatasets) Bar(ctx context.Context, fs models.FilterSet) (*dataset.Frame, error) {
	f.calls[models.KindBar]++
	return &dataset.Frame{
		Index:   []time.Time{time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)},
		Columns: []string{dataset.ColumnHistorical, dataset.ColumnClimatology},
		Values:  [][]float64{{40, 42}, {44, 45}},
	}, nil
}

func (f *fakeDatasets) Line(ctx context.Context, fs models.FilterSet) (*dataset.Frame, error) {
	f.calls[models.KindLine]++
	return &dataset.Frame{}, nil
}

func (f *fakeDatasets) HeatMap(ctx context.Context, fs models.FilterSet) ([]dataset.HeatCell, error) {
	f.calls[models.KindHeatMap]++
	cells := make([]dataset.HeatCell, 0, len(fs.Cities))
	for _, c := range fs.Cities {
		cells = append(cells, dataset.HeatCell{Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), City: c, Anomaly: 1})
	}
	return cells, nil
}

func (f *fakeDatasets) ForecastSeries(ctx context.Context, fs models.FilterSet) (*dataset.Series, error) {
	f.calls[models.KindForecast]++
	s := &dataset.Series{City: fs.City(), Feature: string(fs.Feature())}
	for i := 0; i < 30; i++ {
		s.Dates = append(s.Dates, time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC))
		s.Values = append(s.Values, float64(i%7))
	}
	return s, nil
}

type stubRunner struct {
	err   error
	calls int
}

func (s *stubRunner) Run(ctx context.Context, dates []time.Time, values []float64) ([]models.ForecastPoint, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	n := len(dates)
	points := make([]models.ForecastPoint, 0, forecast.Horizon)
	for i := n - forecast.Horizon; i < n; i++ {
		points = append(points, models.ForecastPoint{Date: dates[i], Forecast: values[i] + 0.5, Actual: values[i]})
	}
	return points, nil
}

func newTestDispatcher(runner forecast.Runner) (*Dispatcher, *fakeDatasets) {
	ds := newFakeDatasets()
	resolver := filters.NewResolver(cityList{"Austin", "Boston", "Chicago"}, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewDispatcher(resolver, ds, runner), ds
}

func TestDispatch_UnknownKind(t *testing.T) {
	d, ds := newTestDispatcher(&stubRunner{})
	res := d.Dispatch(context.Background(), "Pie Chart", 0, filters.FormInput{}, false)
	if !errors.Is(res.Err, models.ErrUnknownKind) {
		t.Fatalf("err = %v, want ErrUnknownKind", res.Err)
	}
	if len(ds.calls) != 0 {
		t.Errorf("datasets called: %v", ds.calls)
	}
}

func TestDispatch_Bar(t *testing.T) {
	d, ds := newTestDispatcher(&stubRunner{})
	res := d.Dispatch(context.Background(), "Bar Chart", 0, filters.FormInput{}, false)
	if res.Err != nil {
		t.Fatalf("err = %v", res.Err)
	}
	if res.Outcome() != "ok" || len(res.PNG) == 0 {
		t.Errorf("outcome = %s, png = %d bytes", res.Outcome(), len(res.PNG))
	}
	if _, ok := res.Data.(*dataset.Frame); !ok {
		t.Errorf("data = %T, want *dataset.Frame", res.Data)
	}
	if ds.calls[models.KindBar] != 1 {
		t.Errorf("bar calls = %d", ds.calls[models.KindBar])
	}
}

func TestDispatch_HeatMapWithoutCitiesIsSkipped(t *testing.T) {
	d, ds := newTestDispatcher(&stubRunner{})
	in := filters.FormInput(url.Values{"cities_1" + filters.SetMarker: {"1"}})

	res := d.Dispatch(context.Background(), "Heat Map", 1, in, false)
	if !res.Skipped || res.Err != nil {
		t.Fatalf("result = %+v, want skipped", res)
	}
	if ds.calls[models.KindHeatMap] != 0 {
		t.Error("heat map queried with no cities")
	}
}

func TestDispatch_ForecastPendingUntilRun(t *testing.T) {
	runner := &stubRunner{}
	d, ds := newTestDispatcher(runner)

	res := d.Dispatch(context.Background(), "Forecast", 0, filters.FormInput{}, false)
	if !res.Pending {
		t.Fatalf("outcome = %s, want pending", res.Outcome())
	}
	if ds.calls[models.KindForecast] != 0 || runner.calls != 0 {
		t.Error("forecast ran without explicit action")
	}

	res = d.Dispatch(context.Background(), "Forecast", 0, filters.FormInput{}, true)
	if res.Err != nil {
		t.Fatalf("err = %v", res.Err)
	}
	points, ok := res.Data.([]models.ForecastPoint)
	if !ok || len(points) != forecast.Horizon {
		t.Fatalf("data = %T len %d", res.Data, len(points))
	}
	if len(res.PNG) == 0 {
		t.Error("forecast not rendered")
	}
}

func TestRenderAll_IsolatesFailures(t *testing.T) {
	fitErr := forecast.ErrDegenerateSeries
	d, _ := newTestDispatcher(&stubRunner{err: fitErr})
	d = d.DataOnly()

	results := d.RenderAll(context.Background(), []PanelRequest{
		{Index: 0, Kind: "Forecast", RunForecast: true},
		{Index: 1, Kind: "Bogus"},
		{Index: 2, Kind: "Heat Map"},
	}, filters.FormInput{})

	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	for i, r := range results {
		if r.Index != i {
			t.Errorf("result %d has index %d", i, r.Index)
		}
	}
	if !errors.Is(results[0].Err, fitErr) {
		t.Errorf("panel 0 err = %v, want %v", results[0].Err, fitErr)
	}
	if !errors.Is(results[1].Err, models.ErrUnknownKind) {
		t.Errorf("panel 1 err = %v", results[1].Err)
	}
	if results[2].Outcome() != "ok" {
		t.Errorf("panel 2 outcome = %s, err = %v", results[2].Outcome(), results[2].Err)
	}
	cells, _ := results[2].Data.([]dataset.HeatCell)
	if len(cells) != 3 {
		t.Errorf("heat map cells = %d, want 3", len(cells))
	}
	if results[2].PNG != nil {
		t.Error("PNG rendered with Render disabled")
	}
}

func TestDispatch_EmptyLineIsNotAnError(t *testing.T) {
	d, _ := newTestDispatcher(&stubRunner{})
	res := d.Dispatch(context.Background(), "Line Chart", 0, filters.FormInput{}, false)
	if res.Err != nil || res.Skipped {
		t.Fatalf("result = %+v", res)
	}
	if res.PNG != nil {
		t.Error("expected no image for an empty frame")
	}
}

func TestSession_PanelBounds(t *testing.T) {
	s := NewSession()
	if s.Panels() != 1 {
		t.Fatalf("initial panels = %d, want 1", s.Panels())
	}
	if s.ID == "" {
		t.Error("session has no id")
	}

	for i := 0; i < 5; i++ {
		s.AddPanel()
	}
	if s.Panels() != MaxPanels {
		t.Errorf("panels after adds = %d, want %d", s.Panels(), MaxPanels)
	}
	for i := 0; i < 5; i++ {
		s.RemovePanel()
	}
	if s.Panels() != MinPanels {
		t.Errorf("panels after removes = %d, want %d", s.Panels(), MinPanels)
	}
}

func TestSessions_GetAndExpire(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewSessions(30 * time.Minute)
	store.now = func() time.Time { return now }

	s, created := store.Get("")
	if !created {
		t.Fatal("expected a new session")
	}
	s.AddPanel()

	again, created := store.Get(s.ID)
	if created || again != s || again.Panels() != 2 {
		t.Fatalf("lookup returned %+v created=%v", again, created)
	}

	now = now.Add(20 * time.Minute)
	if n := store.Expire(); n != 0 {
		t.Errorf("expired %d sessions early", n)
	}
	now = now.Add(31 * time.Minute)
	if n := store.Expire(); n != 1 {
		t.Errorf("expired = %d, want 1", n)
	}
	if store.Len() != 0 {
		t.Errorf("len = %d, want 0", store.Len())
	}
	if _, created := store.Get(s.ID); !created {
		t.Error("expired session was returned")
	}
}
