package models

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the on-disk and on-wire format for calendar dates.
const DateLayout = "2006-01-02"

type Observation struct {
	Date          time.Time
	City          string
	PostalCode    string
	Temperature   sql.NullFloat64
	Precipitation sql.NullFloat64
	Humidity      sql.NullFloat64
	Windspeed     sql.NullFloat64
}

type Climatology struct {
	City             string
	PostalCode       string
	DayOfYear        int
	AvgTemperature   sql.NullFloat64
	AvgPrecipitation sql.NullFloat64
	AvgHumidity      sql.NullFloat64
	AvgWindspeed     sql.NullFloat64
}

// Kind is a visualization a panel can show.
type Kind string

const (
	KindBar      Kind = "Bar Chart"
	KindLine     Kind = "Line Chart"
	KindHeatMap  Kind = "Heat Map"
	KindForecast Kind = "Forecast"
)

// Kinds lists the selectable visualizations in menu order.
var Kinds = []Kind{KindBar, KindLine, KindHeatMap, KindForecast}

var ErrUnknownKind = errors.New("unknown visualization kind")

func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// NeedsDateRange reports whether panels of this kind are filtered by date.
func (k Kind) NeedsDateRange() bool {
	return k != KindForecast
}

// MultiCity reports whether the kind selects several cities at once.
func (k Kind) MultiCity() bool {
	return k == KindHeatMap
}

// MultiFeature reports whether the kind plots several features at once.
func (k Kind) MultiFeature() bool {
	return k == KindLine
}

// Feature is a selectable weather measurement.
type Feature string

const (
	FeatureTemperature   Feature = "Temperature"
	FeaturePrecipitation Feature = "Precipitation"
	FeatureHumidity      Feature = "Humidity"
	FeatureWindspeed     Feature = "Windspeed"
)

var Features = []Feature{FeatureTemperature, FeaturePrecipitation, FeatureHumidity, FeatureWindspeed}

var ErrUnknownFeature = errors.New("unknown feature")

// FeatureColumns maps a feature onto the matching history_day and
// climatology_day columns.
type FeatureColumns struct {
	History     string
	Climatology string
	Anomaly     string
}

var featureColumns = map[Feature]FeatureColumns{
	FeatureTemperature:   {History: "avg_temperature_air", Climatology: "avg_daily_avg_temperature", Anomaly: "temperature_anomaly"},
	FeaturePrecipitation: {History: "tot_precipitation", Climatology: "avg_pos_daily_tot_precipitation", Anomaly: "precipitation_anomaly"},
	FeatureHumidity:      {History: "avg_humidity_relative", Climatology: "avg_daily_avg_humidity", Anomaly: "humidity_anomaly"},
	FeatureWindspeed:     {History: "avg_wind_speed", Climatology: "avg_daily_avg_wind_speed", Anomaly: "windspeed_anomaly"},
}

func (f Feature) Columns() (FeatureColumns, error) {
	cols, ok := featureColumns[f]
	if !ok {
		return FeatureColumns{}, fmt.Errorf("%w: %q", ErrUnknownFeature, string(f))
	}
	return cols, nil
}

// Unit returns the display unit for the feature.
func (f Feature) Unit() string {
	switch f {
	case FeatureTemperature:
		return "°F"
	case FeaturePrecipitation:
		return "in"
	case FeatureHumidity:
		return "%"
	case FeatureWindspeed:
		return "mph"
	}
	return ""
}

// ParseFeature accepts the feature name ignoring case and spaces, so the
// legacy "Wind Speed" spelling resolves to FeatureWindspeed.
func ParseFeature(s string) (Feature, error) {
	norm := strings.ToLower(strings.Join(strings.Fields(s), ""))
	for _, f := range Features {
		if strings.ToLower(string(f)) == norm {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFeature, s)
}

// FilterSet is the set of filters one panel resolves for a single render.
type FilterSet struct {
	Cities   []string
	Start    *time.Time
	End      *time.Time
	Features []Feature
}

// Complete reports whether every filter the kind depends on is set.
func (fs FilterSet) Complete(kind Kind) bool {
	if len(fs.Cities) == 0 || len(fs.Features) == 0 {
		return false
	}
	if kind.NeedsDateRange() && (fs.Start == nil || fs.End == nil) {
		return false
	}
	return true
}

// City returns the single selected city, or "" when none is selected.
func (fs FilterSet) City() string {
	if len(fs.Cities) == 0 {
		return ""
	}
	return fs.Cities[0]
}

// Feature returns the first selected feature, or "" when none is selected.
func (fs FilterSet) Feature() Feature {
	if len(fs.Features) == 0 {
		return ""
	}
	return fs.Features[0]
}

type Panel struct {
	Index int
	Kind  Kind
}

type ForecastPoint struct {
	Date     time.Time `json:"date"`
	Forecast float64   `json:"forecast"`
	Actual   float64   `json:"actual"`
}
