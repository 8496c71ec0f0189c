package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Initial schema",
		SQL: `
CREATE TABLE IF NOT EXISTS history_day (
    date TEXT NOT NULL,
    city TEXT NOT NULL,
    postal_code TEXT NOT NULL DEFAULT '',
    avg_temperature_air REAL,
    tot_precipitation REAL,
    avg_humidity_relative REAL,
    avg_wind_speed REAL,
    PRIMARY KEY (date, city)
);

CREATE INDEX IF NOT EXISTS idx_history_city_date ON history_day(city, date);
CREATE INDEX IF NOT EXISTS idx_history_postal_date ON history_day(postal_code, date);

CREATE TABLE IF NOT EXISTS climatology_day (
    city TEXT NOT NULL,
    postal_code TEXT NOT NULL DEFAULT '',
    day_of_year INTEGER NOT NULL,
    avg_daily_avg_temperature REAL,
    avg_pos_daily_tot_precipitation REAL,
    avg_daily_avg_humidity REAL,
    avg_daily_avg_wind_speed REAL,
    PRIMARY KEY (city, day_of_year)
);

CREATE INDEX IF NOT EXISTS idx_climatology_postal_doy ON climatology_day(postal_code, day_of_year);
`,
	},
	{
		Version:     2,
		Description: "Import run auditing",
		SQL: `
CREATE TABLE IF NOT EXISTS import_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at DATETIME NOT NULL,
    finished_at DATETIME,
    source TEXT NOT NULL,
    table_name TEXT NOT NULL,
    rows_parsed INTEGER,
    rows_stored INTEGER,
    rows_flagged INTEGER,
    success BOOLEAN NOT NULL DEFAULT FALSE,
    error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_import_runs_started ON import_runs(started_at);
`,
	},
	{
		Version:     3,
		Description: "Archived import payloads",
		SQL: `
CREATE TABLE IF NOT EXISTS import_payloads (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    import_run_id INTEGER REFERENCES import_runs(id),
    table_name TEXT NOT NULL,
    fetched_at DATETIME NOT NULL,
    payload_compressed BLOB NOT NULL,
    payload_hash TEXT NOT NULL,
    UNIQUE (table_name, payload_hash)
);

CREATE INDEX IF NOT EXISTS idx_import_payloads_fetched ON import_payloads(fetched_at);

ALTER TABLE import_runs ADD COLUMN skipped BOOLEAN NOT NULL DEFAULT FALSE;
`,
	},
}

// Migrate applies pending schema migrations. Only the embedded SQLite
// warehouse is migrated; a Postgres warehouse is provisioned externally.
func (s *Store) Migrate() error {
	if s.dialect.Name != SQLite.Name {
		return fmt.Errorf("migrate: %s schema is managed externally", s.dialect.Name)
	}
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		log.Printf("migrations: applying %d - %s", m.Version, m.Description)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		log.Printf("migrations: completed %d", m.Version)
	}

	return nil
}

func (s *Store) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`)
	return err
}

func (s *Store) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (s *Store) MigrationVersion() (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
