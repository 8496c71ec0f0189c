// Package dataset turns a panel's filters into warehouse queries and
// reshapes the results into the series each visualization renders.
package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/lox/climadash/internal/models"
	"github.com/lox/climadash/internal/store"
)

// ErrNothingSelected means the filters are incomplete; no query was issued.
var ErrNothingSelected = errors.New("nothing selected")

// Frame is a column-oriented numeric result indexed by date.
type Frame struct {
	Index   []time.Time `json:"index"`
	Columns []string    `json:"columns"`
	Values  [][]float64 `json:"values"` // Values[row][col]
}

func (f *Frame) Len() int {
	return len(f.Index)
}

// Column returns a copy of the named column.
func (f *Frame) Column(name string) ([]float64, error) {
	for c, col := range f.Columns {
		if col == name {
			out := make([]float64, len(f.Values))
			for r, row := range f.Values {
				out[r] = row[c]
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", store.ErrMissingColumn, name)
}

// MarshalJSON writes missing (NaN) values as null.
func (f *Frame) MarshalJSON() ([]byte, error) {
	values := make([][]*float64, len(f.Values))
	for r, row := range f.Values {
		values[r] = make([]*float64, len(row))
		for c := range row {
			values[r][c] = nullable(row[c])
		}
	}
	return json.Marshal(struct {
		Index   []time.Time  `json:"index"`
		Columns []string     `json:"columns"`
		Values  [][]*float64 `json:"values"`
	}{f.Index, f.Columns, values})
}

// HeatCell is one long-format heat map row.
type HeatCell struct {
	Date    time.Time `json:"date"`
	City    string    `json:"city"`
	Anomaly float64   `json:"anomaly"`
}

func (c HeatCell) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Date    time.Time `json:"date"`
		City    string    `json:"city"`
		Anomaly *float64  `json:"anomaly"`
	}{c.Date, c.City, nullable(c.Anomaly)})
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Series is a single feature over time for one city.
type Series struct {
	City    string      `json:"city"`
	Feature string      `json:"feature"`
	Dates   []time.Time `json:"dates"`
	Values  []float64   `json:"values"`
}

const (
	ColumnHistorical  = "historical"
	ColumnClimatology = "climatology"
)

type Builder struct {
	exec    store.Executor
	dialect store.Dialect
}

func NewBuilder(exec store.Executor, dialect store.Dialect) *Builder {
	return &Builder{exec: exec, dialect: dialect}
}

// Cities lists the distinct cities present in history_day.
func (b *Builder) Cities(ctx context.Context) ([]string, error) {
	table, err := b.exec.Execute(ctx, `SELECT DISTINCT city FROM history_day ORDER BY city`)
	if err != nil {
		return nil, fmt.Errorf("list cities: %w", err)
	}
	col, err := table.Index("city")
	if err != nil {
		return nil, err
	}
	cities := make([]string, 0, table.Len())
	for r := range table.Rows {
		c, err := table.String(r, col)
		if err != nil {
			return nil, err
		}
		cities = append(cities, c)
	}
	return cities, nil
}

// Coverage summarizes what history_day holds.
type Coverage struct {
	Cities int       `json:"cities"`
	First  time.Time `json:"first"`
	Last   time.Time `json:"last"`
}

func (b *Builder) Coverage(ctx context.Context) (*Coverage, error) {
	table, err := b.exec.Execute(ctx, `
		SELECT COUNT(DISTINCT city) AS cities, MIN(date) AS first_date, MAX(date) AS last_date
		FROM history_day`)
	if err != nil {
		return nil, fmt.Errorf("coverage: %w", err)
	}
	cov := &Coverage{}
	if table.Len() == 0 {
		return cov, nil
	}
	if cov.Cities, err = table.Int(0, 0); err != nil || cov.Cities == 0 {
		return cov, err
	}
	if cov.First, err = table.Time(0, 1); err != nil {
		return nil, err
	}
	if cov.Last, err = table.Time(0, 2); err != nil {
		return nil, err
	}
	return cov, nil
}

// Bar averages the feature and its climatology per calendar month.
func (b *Builder) Bar(ctx context.Context, fs models.FilterSet) (*Frame, error) {
	if !fs.Complete(models.KindBar) {
		return nil, ErrNothingSelected
	}
	cols, err := fs.Feature().Columns()
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s AS year,
			%s AS month,
			AVG(h.%s) AS %s,
			AVG(c.%s) AS %s
		FROM history_day h
		JOIN climatology_day c
			ON c.city = h.city AND c.day_of_year = %s
		WHERE h.city = ? AND h.date >= ? AND h.date <= ?
		GROUP BY year, month
		ORDER BY year, month
	`, b.dialect.Year("h.date"), b.dialect.Month("h.date"),
		cols.History, ColumnHistorical, cols.Climatology, ColumnClimatology,
		b.dialect.DayOfYear("h.date"))

	table, err := b.exec.Execute(ctx, query, fs.City(), formatDate(fs.Start), formatDate(fs.End))
	if err != nil {
		return nil, fmt.Errorf("bar query: %w", err)
	}
	return reshapeBar(table)
}

func reshapeBar(table *store.Table) (*Frame, error) {
	yearCol, err := table.Index("year")
	if err != nil {
		return nil, err
	}
	monthCol, err := table.Index("month")
	if err != nil {
		return nil, err
	}
	histCol, err := table.Index(ColumnHistorical)
	if err != nil {
		return nil, err
	}
	climCol, err := table.Index(ColumnClimatology)
	if err != nil {
		return nil, err
	}

	frame := &Frame{Columns: []string{ColumnHistorical, ColumnClimatology}}
	for r := range table.Rows {
		year, err := table.Int(r, yearCol)
		if err != nil {
			return nil, err
		}
		month, err := table.Int(r, monthCol)
		if err != nil {
			return nil, err
		}
		hist, err := table.Float(r, histCol)
		if err != nil {
			return nil, err
		}
		clim, err := table.Float(r, climCol)
		if err != nil {
			return nil, err
		}
		frame.Index = append(frame.Index, time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC))
		frame.Values = append(frame.Values, []float64{hist, clim})
	}
	return frame, nil
}

// Line returns the selected features day by day, in date order.
func (b *Builder) Line(ctx context.Context, fs models.FilterSet) (*Frame, error) {
	if !fs.Complete(models.KindLine) {
		return nil, ErrNothingSelected
	}

	var selects string
	for _, f := range models.Features {
		cols, _ := f.Columns()
		selects += ", " + cols.History
	}
	query := `SELECT date` + selects + `
		FROM history_day
		WHERE city = ? AND date >= ? AND date <= ?
		ORDER BY date`

	table, err := b.exec.Execute(ctx, query, fs.City(), formatDate(fs.Start), formatDate(fs.End))
	if err != nil {
		return nil, fmt.Errorf("line query: %w", err)
	}
	return reshapeLine(table, fs.Features)
}

func reshapeLine(table *store.Table, features []models.Feature) (*Frame, error) {
	dateCol, err := table.Index("date")
	if err != nil {
		return nil, err
	}
	idx := make([]int, len(features))
	frame := &Frame{Columns: make([]string, len(features))}
	for i, f := range features {
		cols, err := f.Columns()
		if err != nil {
			return nil, err
		}
		if idx[i], err = table.Index(cols.History); err != nil {
			return nil, err
		}
		frame.Columns[i] = string(f)
	}

	for r := range table.Rows {
		d, err := table.Time(r, dateCol)
		if err != nil {
			return nil, err
		}
		row := make([]float64, len(idx))
		for i, c := range idx {
			if row[i], err = table.Float(r, c); err != nil {
				return nil, err
			}
		}
		frame.Index = append(frame.Index, d)
		frame.Values = append(frame.Values, row)
	}
	return frame, nil
}

// HeatMap returns per-day anomalies against climatology for every selected
// city, ordered by city then date.
func (b *Builder) HeatMap(ctx context.Context, fs models.FilterSet) ([]HeatCell, error) {
	if !fs.Complete(models.KindHeatMap) {
		return nil, ErrNothingSelected
	}
	feature, err := fs.Feature().Columns()
	if err != nil {
		return nil, err
	}

	var anomalies string
	for _, f := range models.Features {
		cols, _ := f.Columns()
		anomalies += fmt.Sprintf(",\n\t\t\th.%s - c.%s AS %s", cols.History, cols.Climatology, cols.Anomaly)
	}
	inList, inArgs := b.dialect.InList("h.city", fs.Cities)
	query := fmt.Sprintf(`
		SELECT h.date AS date, h.city AS city%s
		FROM history_day h
		JOIN climatology_day c
			ON c.postal_code = h.postal_code AND c.day_of_year = %s
		WHERE %s AND h.date >= ? AND h.date <= ?
		ORDER BY h.city, h.date
	`, anomalies, b.dialect.DayOfYear("h.date"), inList)

	args := append(inArgs, formatDate(fs.Start), formatDate(fs.End))
	table, err := b.exec.Execute(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("heat map query: %w", err)
	}
	return reshapeHeatMap(table, feature.Anomaly)
}

func reshapeHeatMap(table *store.Table, anomalyColumn string) ([]HeatCell, error) {
	dateCol, err := table.Index("date")
	if err != nil {
		return nil, err
	}
	cityCol, err := table.Index("city")
	if err != nil {
		return nil, err
	}
	anomCol, err := table.Index(anomalyColumn)
	if err != nil {
		return nil, err
	}

	cells := make([]HeatCell, 0, table.Len())
	for r := range table.Rows {
		d, err := table.Time(r, dateCol)
		if err != nil {
			return nil, err
		}
		city, err := table.String(r, cityCol)
		if err != nil {
			return nil, err
		}
		a, err := table.Float(r, anomCol)
		if err != nil {
			return nil, err
		}
		cells = append(cells, HeatCell{Date: d, City: city, Anomaly: a})
	}
	return cells, nil
}

// ForecastSeries returns the whole history of one feature for one city.
func (b *Builder) ForecastSeries(ctx context.Context, fs models.FilterSet) (*Series, error) {
	if !fs.Complete(models.KindForecast) {
		return nil, ErrNothingSelected
	}
	feature := fs.Feature()
	cols, err := feature.Columns()
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT date, %[1]s
		FROM history_day
		WHERE city = ? AND %[1]s IS NOT NULL
		ORDER BY date`, cols.History)

	table, err := b.exec.Execute(ctx, query, fs.City())
	if err != nil {
		return nil, fmt.Errorf("forecast query: %w", err)
	}

	dateCol, err := table.Index("date")
	if err != nil {
		return nil, err
	}
	valCol, err := table.Index(cols.History)
	if err != nil {
		return nil, err
	}
	series := &Series{City: fs.City(), Feature: string(feature)}
	for r := range table.Rows {
		d, err := table.Time(r, dateCol)
		if err != nil {
			return nil, err
		}
		v, err := table.Float(r, valCol)
		if err != nil {
			return nil, err
		}
		series.Dates = append(series.Dates, d)
		series.Values = append(series.Values, v)
	}
	return series, nil
}

func formatDate(t *time.Time) string {
	return t.Format(models.DateLayout)
}
