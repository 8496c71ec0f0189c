// Package dashboard routes each panel to its dataset and renderer and keeps
// per-session panel state.
package dashboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/lox/climadash/internal/dataset"
	"github.com/lox/climadash/internal/filters"
	"github.com/lox/climadash/internal/forecast"
	"github.com/lox/climadash/internal/metrics"
	"github.com/lox/climadash/internal/models"
	"github.com/lox/climadash/internal/render"
)

// Datasets builds the data behind each visualization kind.
type Datasets interface {
	Bar(ctx context.Context, fs models.FilterSet) (*dataset.Frame, error)
	Line(ctx context.Context, fs models.FilterSet) (*dataset.Frame, error)
	HeatMap(ctx context.Context, fs models.FilterSet) ([]dataset.HeatCell, error)
	ForecastSeries(ctx context.Context, fs models.FilterSet) (*dataset.Series, error)
}

type FilterResolver interface {
	Resolve(ctx context.Context, kind models.Kind, index int, in filters.Input) (models.FilterSet, error)
}

// Result is the outcome of one panel. At most one of Skipped, Pending and
// Err is set; otherwise Data and PNG hold the rendered panel.
type Result struct {
	Index   int
	Kind    models.Kind
	Filters models.FilterSet

	Skipped bool  // filters incomplete, nothing to show yet
	Pending bool  // forecast waiting for an explicit run
	Err     error // visible failure

	Data any // *dataset.Frame, []dataset.HeatCell or []models.ForecastPoint
	PNG  []byte
}

// Outcome is a short label for metrics and templates.
func (r *Result) Outcome() string {
	switch {
	case r.Err != nil:
		return "error"
	case r.Skipped:
		return "skipped"
	case r.Pending:
		return "pending"
	}
	return "ok"
}

// PanelRequest selects the kind for one panel index.
type PanelRequest struct {
	Index       int
	Kind        string
	RunForecast bool
}

type Dispatcher struct {
	resolver FilterResolver
	datasets Datasets
	forecast forecast.Runner
	render   bool
}

func NewDispatcher(resolver FilterResolver, datasets Datasets, runner forecast.Runner) *Dispatcher {
	return &Dispatcher{resolver: resolver, datasets: datasets, forecast: runner, render: true}
}

// DataOnly returns a dispatcher that builds datasets without drawing them.
func (d *Dispatcher) DataOnly() *Dispatcher {
	c := *d
	c.render = false
	return &c
}

// RenderAll dispatches each panel in order. A failing panel is reported in
// its Result and does not stop the others.
func (d *Dispatcher) RenderAll(ctx context.Context, panels []PanelRequest, in filters.Input) []*Result {
	results := make([]*Result, 0, len(panels))
	for _, p := range panels {
		results = append(results, d.Dispatch(ctx, p.Kind, p.Index, in, p.RunForecast))
	}
	return results
}

// Dispatch resolves, builds and renders a single panel.
func (d *Dispatcher) Dispatch(ctx context.Context, kindName string, index int, in filters.Input, runForecast bool) *Result {
	start := time.Now()
	res := &Result{Index: index}
	defer func() {
		kind := string(res.Kind)
		if kind == "" {
			kind = "unknown"
		}
		metrics.PanelRenders.WithLabelValues(kind, res.Outcome()).Inc()
		if res.Err != nil {
			log.Printf("dashboard: panel %d (%s): %v", index, kindName, res.Err)
		} else if res.Outcome() == "ok" {
			log.Printf("dashboard: panel %d (%s) rendered in %v", index, kind, time.Since(start).Round(time.Millisecond))
		}
	}()

	kind, err := models.ParseKind(kindName)
	if err != nil {
		res.Err = err
		return res
	}
	res.Kind = kind

	fs, err := d.resolver.Resolve(ctx, kind, index, in)
	if err != nil {
		res.Err = err
		return res
	}
	res.Filters = fs
	if !fs.Complete(kind) {
		res.Skipped = true
		return res
	}
	if kind == models.KindForecast && !runForecast {
		res.Pending = true
		return res
	}

	var buf bytes.Buffer
	switch kind {
	case models.KindBar:
		frame, err := d.datasets.Bar(ctx, fs)
		if err == nil {
			res.Data = frame
			if d.render {
				err = render.Bar(&buf, fs.Feature(), frame)
			}
		}
		res.Err = err
	case models.KindLine:
		frame, err := d.datasets.Line(ctx, fs)
		if err == nil {
			res.Data = frame
			if d.render {
				err = render.Line(&buf, frame)
			}
		}
		res.Err = err
	case models.KindHeatMap:
		cells, err := d.datasets.HeatMap(ctx, fs)
		if err == nil {
			res.Data = cells
			if d.render {
				err = render.HeatMap(&buf, fs.Feature(), cells)
			}
		}
		res.Err = err
	case models.KindForecast:
		res.Err = d.runForecast(ctx, fs, res, &buf)
	default:
		res.Err = fmt.Errorf("%w: %q", models.ErrUnknownKind, kindName)
	}

	switch {
	case errors.Is(res.Err, dataset.ErrNothingSelected):
		res.Err = nil
		res.Skipped = true
	case errors.Is(res.Err, render.ErrNoData):
		// The query ran but matched nothing; show the panel as empty.
		res.Err = nil
	case res.Err == nil && buf.Len() > 0:
		res.PNG = buf.Bytes()
	}
	return res
}

func (d *Dispatcher) runForecast(ctx context.Context, fs models.FilterSet, res *Result, buf *bytes.Buffer) error {
	series, err := d.datasets.ForecastSeries(ctx, fs)
	if err != nil {
		return err
	}
	points, err := d.forecast.Run(ctx, series.Dates, series.Values)
	if err != nil {
		return fmt.Errorf("forecast %s %s: %w", series.City, series.Feature, err)
	}
	res.Data = points
	if !d.render {
		return nil
	}
	return render.Forecast(buf, fs.Feature(), points)
}
