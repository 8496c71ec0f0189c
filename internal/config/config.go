package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/lox/climadash/internal/models"
)

var validate = validator.New()

// Database selects the warehouse connection.
type Database struct {
	Driver string `validate:"required,oneof=sqlite sqlite3 postgres postgresql"`
	DSN    string `validate:"required"`
}

// Server holds the settings for the dashboard process.
type Server struct {
	Port          string        `validate:"required,numeric"`
	CacheTTL      time.Duration `validate:"gte=0"`
	QueryRetry    time.Duration `validate:"gte=0"`
	SessionIdle   time.Duration `validate:"gte=1m"`
	DefaultStart  string        `validate:"required,datetime=2006-01-02"`
	ForecastRate  float64       `validate:"gt=0"`
	ForecastBurst int           `validate:"gte=1"`
	SecureCookies bool

	// ImportSource, a file path or ftp:// URL, is re-imported into
	// history_day every ImportInterval when set.
	ImportSource       string
	ImportInterval     time.Duration `validate:"required_with=ImportSource"`
	RebuildClimatology bool
	PayloadRetention   time.Duration `validate:"gte=0"`
}

// LoadEnv loads a .env file into the process environment. A missing file is
// not an error.
func LoadEnv(paths ...string) {
	if err := godotenv.Load(paths...); err != nil {
		log.Printf("config: no .env file loaded: %v", err)
	}
}

// Validate checks a config struct and flattens validator errors into one
// message naming each offending field.
func Validate(cfg any) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("config: invalid %s", strings.Join(msgs, ", "))
}

// StartDate parses DefaultStart.
func (s Server) StartDate() time.Time {
	t, err := time.Parse(models.DateLayout, s.DefaultStart)
	if err != nil {
		return time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return t
}
