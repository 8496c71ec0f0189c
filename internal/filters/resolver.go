// Package filters derives a panel's concrete FilterSet from captured input.
package filters

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/lox/climadash/internal/models"
)

// DefaultHeatMapCities is how many cities a heat map selects before the
// user picks any.
const DefaultHeatMapCities = 5

// Input captures widget state. Keys are unique per panel.
type Input interface {
	SelectOne(key string, options []string, def string) string
	SelectMany(key string, options []string, def []string) []string
	DateRange(startKey, endKey string, defStart, defEnd time.Time) (start, end time.Time, ok bool)
}

// CityLister provides the selectable cities.
type CityLister interface {
	Cities(ctx context.Context) ([]string, error)
}

type Resolver struct {
	cities       CityLister
	defaultStart time.Time
	now          func() time.Time
}

func NewResolver(cities CityLister, defaultStart time.Time) *Resolver {
	return &Resolver{cities: cities, defaultStart: defaultStart, now: time.Now}
}

// WithClock overrides the clock used for the default end date.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// Key builds the per-panel input key, e.g. Key("city", 2) = "city_2".
func Key(name string, index int) string {
	return name + "_" + strconv.Itoa(index)
}

// FeatureOptions returns the selectable feature names.
func FeatureOptions() []string {
	out := make([]string, len(models.Features))
	for i, f := range models.Features {
		out[i] = string(f)
	}
	return out
}

// Resolve reads the filters kind needs from in. A kind that does not need
// a filter leaves it zero; an empty multi-select is returned as-is.
func (r *Resolver) Resolve(ctx context.Context, kind models.Kind, index int, in Input) (models.FilterSet, error) {
	var fs models.FilterSet

	cities, err := r.cities.Cities(ctx)
	if err != nil {
		return fs, fmt.Errorf("resolve cities: %w", err)
	}

	if kind.MultiCity() {
		def := cities
		if len(def) > DefaultHeatMapCities {
			def = def[:DefaultHeatMapCities]
		}
		fs.Cities = in.SelectMany(Key("cities", index), cities, def)
	} else if len(cities) > 0 {
		if c := in.SelectOne(Key("city", index), cities, cities[0]); c != "" {
			fs.Cities = []string{c}
		}
	}

	if kind.NeedsDateRange() {
		today := truncateDay(r.now())
		start, end, ok := in.DateRange(Key("start", index), Key("end", index), r.defaultStart, today)
		if ok {
			fs.Start, fs.End = &start, &end
		}
	}

	features := FeatureOptions()
	var names []string
	if kind.MultiFeature() {
		names = in.SelectMany(Key("features", index), features, []string{string(models.FeatureTemperature)})
	} else if f := in.SelectOne(Key("feature", index), features, string(models.FeatureTemperature)); f != "" {
		names = []string{f}
	}
	for _, name := range names {
		f, err := models.ParseFeature(name)
		if err != nil {
			return fs, err
		}
		fs.Features = append(fs.Features, f)
	}

	return fs, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
