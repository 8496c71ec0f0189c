package ingest

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/lox/climadash/internal/models"
)

var ErrMissingColumn = errors.New("missing required column")

// header maps lower-cased column names to their position.
type header map[string]int

func readHeader(r *csv.Reader, required ...string) (header, error) {
	names, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	h := make(header, len(names))
	for i, name := range names {
		h[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	for _, col := range required {
		if _, ok := h[col]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}
	return h, nil
}

func (h header) get(rec []string, col string) string {
	i, ok := h[col]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func (h header) float(rec []string, col string) (sql.NullFloat64, error) {
	v := h.get(rec, col)
	switch strings.ToLower(v) {
	case "", "null", "nan", "na":
		return sql.NullFloat64{}, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return sql.NullFloat64{}, fmt.Errorf("%s: %w", col, err)
	}
	return sql.NullFloat64{Float64: f, Valid: true}, nil
}

// ParseHistoryCSV reads history_day rows. The header must name at least
// date and city; measurement columns may be absent or blank.
func ParseHistoryCSV(r io.Reader) ([]models.Observation, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	h, err := readHeader(cr, "date", "city")
	if err != nil {
		return nil, err
	}

	var out []models.Observation
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		date, err := parseDate(h.get(rec, "date"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		city := h.get(rec, "city")
		if city == "" {
			return nil, fmt.Errorf("line %d: empty city", line)
		}

		o := models.Observation{Date: date, City: city, PostalCode: h.get(rec, "postal_code")}
		fields := []struct {
			col string
			dst *sql.NullFloat64
		}{
			{"avg_temperature_air", &o.Temperature},
			{"tot_precipitation", &o.Precipitation},
			{"avg_humidity_relative", &o.Humidity},
			{"avg_wind_speed", &o.Windspeed},
		}
		for _, f := range fields {
			if *f.dst, err = h.float(rec, f.col); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
		}
		out = append(out, o)
	}
	return out, nil
}

// ParseClimatologyCSV reads climatology_day rows keyed by city and
// day_of_year (1-366).
func ParseClimatologyCSV(r io.Reader) ([]models.Climatology, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	h, err := readHeader(cr, "city", "day_of_year")
	if err != nil {
		return nil, err
	}

	var out []models.Climatology
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		city := h.get(rec, "city")
		if city == "" {
			return nil, fmt.Errorf("line %d: empty city", line)
		}
		doy, err := strconv.Atoi(h.get(rec, "day_of_year"))
		if err != nil || doy < 1 || doy > 366 {
			return nil, fmt.Errorf("line %d: invalid day_of_year %q", line, h.get(rec, "day_of_year"))
		}

		c := models.Climatology{City: city, PostalCode: h.get(rec, "postal_code"), DayOfYear: doy}
		fields := []struct {
			col string
			dst *sql.NullFloat64
		}{
			{"avg_daily_avg_temperature", &c.AvgTemperature},
			{"avg_pos_daily_tot_precipitation", &c.AvgPrecipitation},
			{"avg_daily_avg_humidity", &c.AvgHumidity},
			{"avg_daily_avg_wind_speed", &c.AvgWindspeed},
		}
		for _, f := range fields {
			if *f.dst, err = h.float(rec, f.col); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
		}
		out = append(out, c)
	}
	return out, nil
}

// parseDate accepts plain dates and the timestamp form some warehouse
// exports use.
func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{models.DateLayout, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}
