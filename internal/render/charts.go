// Package render draws panel datasets as PNG images.
package render

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/lox/climadash/internal/dataset"
	"github.com/lox/climadash/internal/models"
)

const (
	Width  = 900
	Height = 420
)

var ErrNoData = errors.New("no data to render")

var palette = []drawing.Color{
	chart.ColorBlue,
	chart.ColorOrange,
	chart.ColorGreen,
	chart.ColorRed,
}

var background = chart.Style{Padding: chart.Box{Top: 30, Left: 16, Right: 16, Bottom: 16}}

// Bar draws the monthly historical and climatology averages side by side.
func Bar(w io.Writer, feature models.Feature, frame *dataset.Frame) error {
	if frame == nil || frame.Len() == 0 {
		return ErrNoData
	}
	hist, err := frame.Column(dataset.ColumnHistorical)
	if err != nil {
		return err
	}
	clim, err := frame.Column(dataset.ColumnClimatology)
	if err != nil {
		return err
	}

	histStyle := chart.Style{FillColor: chart.ColorBlue, StrokeColor: chart.ColorBlue}
	climStyle := chart.Style{FillColor: chart.ColorLightGray, StrokeColor: chart.ColorAlternateGray}

	bars := make([]chart.Value, 0, 2*frame.Len())
	for i, month := range frame.Index {
		bars = append(bars,
			chart.Value{Label: month.Format("Jan 06"), Value: finiteOrZero(hist[i]), Style: histStyle},
			chart.Value{Label: "clim", Value: finiteOrZero(clim[i]), Style: climStyle},
		)
	}

	barWidth := (Width - 80) / len(bars)
	if barWidth > 40 {
		barWidth = 40
	}
	if barWidth < 2 {
		barWidth = 2
	}
	bc := chart.BarChart{
		Title:      fmt.Sprintf("Monthly %s (%s): historical vs climatology", feature, feature.Unit()),
		Background: background,
		Width:      Width,
		Height:     Height,
		BarWidth:   barWidth,
		Bars:       bars,
	}
	if err := bc.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render bar chart: %w", err)
	}
	return nil
}

// Line draws one series per frame column against the date axis.
func Line(w io.Writer, frame *dataset.Frame) error {
	if frame == nil || frame.Len() == 0 {
		return ErrNoData
	}

	var series []chart.Series
	var all []float64
	for c, name := range frame.Columns {
		var xs []time.Time
		var ys []float64
		for r, row := range frame.Values {
			if math.IsNaN(row[c]) {
				continue
			}
			xs = append(xs, frame.Index[r])
			ys = append(ys, row[c])
		}
		if len(xs) == 0 {
			continue
		}
		xs, ys = padSingle(xs, ys)
		all = append(all, ys...)
		series = append(series, chart.TimeSeries{
			Name:    name,
			XValues: xs,
			YValues: ys,
			Style:   chart.Style{StrokeColor: palette[c%len(palette)], StrokeWidth: 2},
		})
	}
	if len(series) == 0 {
		return ErrNoData
	}

	graph := chart.Chart{
		Title:      "Daily observations",
		Background: background,
		Width:      Width,
		Height:     Height,
		XAxis:      chart.XAxis{ValueFormatter: chart.TimeDateValueFormatter},
		YAxis:      chart.YAxis{Range: flatRange(all)},
		Series:     series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}
	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render line chart: %w", err)
	}
	return nil
}

// Forecast draws the rolling forecast against the held-out actuals.
func Forecast(w io.Writer, feature models.Feature, points []models.ForecastPoint) error {
	if len(points) == 0 {
		return ErrNoData
	}
	xs := make([]time.Time, len(points))
	forecast := make([]float64, len(points))
	actual := make([]float64, len(points))
	for i, p := range points {
		xs[i] = p.Date
		forecast[i] = p.Forecast
		actual[i] = p.Actual
	}

	graph := chart.Chart{
		Title:      fmt.Sprintf("%s forecast vs actual (%s)", feature, feature.Unit()),
		Background: background,
		Width:      Width,
		Height:     Height,
		XAxis:      chart.XAxis{ValueFormatter: chart.TimeDateValueFormatter},
		YAxis:      chart.YAxis{Name: feature.Unit(), Range: flatRange(append(append([]float64{}, forecast...), actual...))},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Actual",
				XValues: xs,
				YValues: actual,
				Style:   chart.Style{StrokeColor: chart.ColorBlue, StrokeWidth: 2},
			},
			chart.TimeSeries{
				Name:    "Forecast",
				XValues: xs,
				YValues: forecast,
				Style:   chart.Style{StrokeColor: chart.ColorRed, StrokeWidth: 2, StrokeDashArray: []float64{5, 3}},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}
	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render forecast chart: %w", err)
	}
	return nil
}

// padSingle gives go-chart a non-zero x range for one-point series.
func padSingle(xs []time.Time, ys []float64) ([]time.Time, []float64) {
	if len(xs) != 1 {
		return xs, ys
	}
	return []time.Time{xs[0], xs[0].AddDate(0, 0, 1)}, []float64{ys[0], ys[0]}
}

// flatRange returns an explicit y range when every value is equal, which
// go-chart otherwise rejects as a zero range. Nil means auto-range.
func flatRange(values []float64) chart.Range {
	if len(values) == 0 {
		return nil
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi > lo {
		return nil
	}
	return &chart.ContinuousRange{Min: lo - 1, Max: hi + 1}
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
