package ingest

import (
	"database/sql"

	"github.com/lox/climadash/internal/models"
)

const (
	FlagTempOutOfRange   = "temp_out_of_range"
	FlagHumidityInvalid  = "humidity_invalid"
	FlagWindSpeedInvalid = "wind_speed_invalid"
	FlagPrecipNegative   = "precip_negative"
	FlagPrecipOutOfRange = "precip_out_of_range"
	FlagDayOfYearInvalid = "day_of_year_invalid"
)

// Plausible daily ranges, US units.
const (
	minTempF     = -80.0
	maxTempF     = 135.0
	maxWindMph   = 200.0
	maxPrecipDay = 50.0
	maxHumidity  = 100.0
)

// ValidateObservation returns the flags for implausible measurements and
// nulls each offending field so it never reaches the warehouse.
func ValidateObservation(obs *models.Observation) []string {
	var flags []string

	if outside(obs.Temperature, minTempF, maxTempF) {
		flags = append(flags, FlagTempOutOfRange)
		obs.Temperature = sql.NullFloat64{}
	}
	if outside(obs.Humidity, 0, maxHumidity) {
		flags = append(flags, FlagHumidityInvalid)
		obs.Humidity = sql.NullFloat64{}
	}
	if outside(obs.Windspeed, 0, maxWindMph) {
		flags = append(flags, FlagWindSpeedInvalid)
		obs.Windspeed = sql.NullFloat64{}
	}
	if obs.Precipitation.Valid {
		if obs.Precipitation.Float64 < 0 {
			flags = append(flags, FlagPrecipNegative)
			obs.Precipitation = sql.NullFloat64{}
		} else if obs.Precipitation.Float64 > maxPrecipDay {
			flags = append(flags, FlagPrecipOutOfRange)
			obs.Precipitation = sql.NullFloat64{}
		}
	}

	return flags
}

// ValidateClimatology applies the same ranges to a climatology baseline.
func ValidateClimatology(c *models.Climatology) []string {
	var flags []string

	if c.DayOfYear < 1 || c.DayOfYear > 366 {
		flags = append(flags, FlagDayOfYearInvalid)
	}
	if outside(c.AvgTemperature, minTempF, maxTempF) {
		flags = append(flags, FlagTempOutOfRange)
		c.AvgTemperature = sql.NullFloat64{}
	}
	if outside(c.AvgHumidity, 0, maxHumidity) {
		flags = append(flags, FlagHumidityInvalid)
		c.AvgHumidity = sql.NullFloat64{}
	}
	if outside(c.AvgWindspeed, 0, maxWindMph) {
		flags = append(flags, FlagWindSpeedInvalid)
		c.AvgWindspeed = sql.NullFloat64{}
	}
	if outside(c.AvgPrecipitation, 0, maxPrecipDay) {
		flags = append(flags, FlagPrecipOutOfRange)
		c.AvgPrecipitation = sql.NullFloat64{}
	}

	return flags
}

func outside(v sql.NullFloat64, lo, hi float64) bool {
	return v.Valid && (v.Float64 < lo || v.Float64 > hi)
}
