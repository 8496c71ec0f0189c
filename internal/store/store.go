package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/lox/climadash/internal/metrics"
	"github.com/lox/climadash/internal/models"
)

type Store struct {
	db      *sql.DB
	dialect Dialect
}

func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Open opens the warehouse connection pool and waits for it to answer a
// ping, retrying with exponential backoff while the database comes up.
func Open(ctx context.Context, dialect Dialect, dsn string) (*sql.DB, error) {
	db, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect.Name, err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	err = backoff.RetryNotify(func() error {
		return db.PingContext(ctx)
	}, backoff.WithContext(bo, ctx), func(err error, wait time.Duration) {
		log.Printf("store: ping %s failed, retrying in %s: %v", dialect.Name, wait.Round(time.Millisecond), err)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect.Name, err)
	}

	if dialect.Name == SQLite.Name {
		db.Exec("PRAGMA journal_mode=WAL")
		db.Exec("PRAGMA busy_timeout=5000")
	}
	return db, nil
}

func (s *Store) Dialect() Dialect {
	return s.dialect
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Execute runs a read-only query and materializes the whole result.
func (s *Store) Execute(ctx context.Context, query string, args ...any) (*Table, error) {
	start := time.Now()
	table, err := s.execute(ctx, query, args...)
	metrics.QueryLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.QueriesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.QueriesTotal.WithLabelValues("ok").Inc()
	return table, nil
}

func (s *Store) execute(ctx context.Context, query string, args ...any) (*Table, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	table := &Table{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		table.Rows = append(table.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return table, nil
}

// InsertObservations upserts daily observations in a single transaction.
func (s *Store) InsertObservations(ctx context.Context, obs []models.Observation) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.dialect.Rebind(`
		INSERT INTO history_day (date, city, postal_code, avg_temperature_air, tot_precipitation, avg_humidity_relative, avg_wind_speed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date, city) DO UPDATE SET
			postal_code = excluded.postal_code,
			avg_temperature_air = excluded.avg_temperature_air,
			tot_precipitation = excluded.tot_precipitation,
			avg_humidity_relative = excluded.avg_humidity_relative,
			avg_wind_speed = excluded.avg_wind_speed
	`))
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, o := range obs {
		if _, err := stmt.ExecContext(ctx, o.Date.Format(models.DateLayout), o.City, o.PostalCode,
			o.Temperature, o.Precipitation, o.Humidity, o.Windspeed); err != nil {
			return 0, fmt.Errorf("insert %s %s: %w", o.City, o.Date.Format(models.DateLayout), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(obs), nil
}

// UpsertClimatology upserts per-day-of-year baselines in a single transaction.
func (s *Store) UpsertClimatology(ctx context.Context, rows []models.Climatology) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.dialect.Rebind(`
		INSERT INTO climatology_day (city, postal_code, day_of_year, avg_daily_avg_temperature, avg_pos_daily_tot_precipitation, avg_daily_avg_humidity, avg_daily_avg_wind_speed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(city, day_of_year) DO UPDATE SET
			postal_code = excluded.postal_code,
			avg_daily_avg_temperature = excluded.avg_daily_avg_temperature,
			avg_pos_daily_tot_precipitation = excluded.avg_pos_daily_tot_precipitation,
			avg_daily_avg_humidity = excluded.avg_daily_avg_humidity,
			avg_daily_avg_wind_speed = excluded.avg_daily_avg_wind_speed
	`))
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, c := range rows {
		if _, err := stmt.ExecContext(ctx, c.City, c.PostalCode, c.DayOfYear,
			c.AvgTemperature, c.AvgPrecipitation, c.AvgHumidity, c.AvgWindspeed); err != nil {
			return 0, fmt.Errorf("upsert %s day %d: %w", c.City, c.DayOfYear, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(rows), nil
}

// RebuildClimatology replaces climatology_day with per-(city, day-of-year)
// averages computed from history_day. Precipitation averages only days with
// a positive total.
func (s *Store) RebuildClimatology(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM climatology_day`); err != nil {
		return 0, fmt.Errorf("clear climatology: %w", err)
	}

	doy := s.dialect.DayOfYear("date")
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO climatology_day (city, postal_code, day_of_year, avg_daily_avg_temperature, avg_pos_daily_tot_precipitation, avg_daily_avg_humidity, avg_daily_avg_wind_speed)
		SELECT city, MAX(postal_code), %s AS doy,
			AVG(avg_temperature_air),
			AVG(CASE WHEN tot_precipitation > 0 THEN tot_precipitation END),
			AVG(avg_humidity_relative),
			AVG(avg_wind_speed)
		FROM history_day
		GROUP BY city, doy
	`, doy))
	if err != nil {
		return 0, fmt.Errorf("rebuild climatology: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}
