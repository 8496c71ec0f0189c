package filters

import (
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/lox/climadash/internal/models"
)

// SetMarker suffixes a hidden form field that marks a multi-select as
// submitted, so an empty selection is distinguishable from an absent one.
const SetMarker = "__set"

// FormInput reads widget state from submitted form or query values.
type FormInput url.Values

func (f FormInput) SelectOne(key string, options []string, def string) string {
	if v, ok := matchOption(options, url.Values(f).Get(key)); ok {
		return v
	}
	return def
}

func (f FormInput) SelectMany(key string, options []string, def []string) []string {
	vals, ok := f[key]
	if !ok {
		if _, set := f[key+SetMarker]; !set {
			return def
		}
	}
	out := []string{}
	for _, v := range vals {
		if opt, ok := matchOption(options, v); ok && !slices.Contains(out, opt) {
			out = append(out, opt)
		}
	}
	return out
}

// matchOption returns the option v names. An exact match wins; otherwise
// case and whitespace are ignored, so "Wind Speed" selects "Windspeed".
func matchOption(options []string, v string) (string, bool) {
	if v == "" {
		return "", false
	}
	if slices.Contains(options, v) {
		return v, true
	}
	norm := foldOption(v)
	for _, opt := range options {
		if foldOption(opt) == norm {
			return opt, true
		}
	}
	return "", false
}

func foldOption(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

// DateRange parses YYYY-MM-DD values. A malformed or inverted range is
// reported as not ok.
func (f FormInput) DateRange(startKey, endKey string, defStart, defEnd time.Time) (time.Time, time.Time, bool) {
	start, ok := parseDate(url.Values(f).Get(startKey), defStart)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	end, ok := parseDate(url.Values(f).Get(endKey), defEnd)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func parseDate(s string, def time.Time) (time.Time, bool) {
	if s == "" {
		return def, true
	}
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

var _ Input = FormInput(nil)
