package store

import (
	"context"
	"database/sql"
	"time"
)

// ImportRun records a single CSV import for auditing.
type ImportRun struct {
	ID           int64          `json:"id"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   sql.NullTime   `json:"-"`
	Source       string         `json:"source"` // file path or ftp://host/path
	TableName    string         `json:"table"`
	RowsParsed   sql.NullInt64  `json:"-"`
	RowsStored   sql.NullInt64  `json:"-"`
	RowsFlagged  sql.NullInt64  `json:"-"`
	Success      bool           `json:"success"`
	Skipped      bool           `json:"skipped"` // export unchanged since the last import
	ErrorMessage sql.NullString `json:"-"`
}

// StartImportRun creates a new import run record and returns it.
func (s *Store) StartImportRun(ctx context.Context, source, table string) (*ImportRun, error) {
	run := &ImportRun{
		StartedAt: time.Now().UTC(),
		Source:    source,
		TableName: table,
	}

	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(`
		INSERT INTO import_runs (started_at, source, table_name, success)
		VALUES (?, ?, ?, FALSE)
		RETURNING id
	`), run.StartedAt, run.Source, run.TableName).Scan(&run.ID)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// CompleteImportRun updates the import run with results.
func (s *Store) CompleteImportRun(ctx context.Context, run *ImportRun) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	_, err := s.db.ExecContext(ctx, s.dialect.Rebind(`
		UPDATE import_runs SET
			finished_at = ?,
			rows_parsed = ?,
			rows_stored = ?,
			rows_flagged = ?,
			success = ?,
			skipped = ?,
			error_message = ?
		WHERE id = ?
	`), run.FinishedAt, run.RowsParsed, run.RowsStored, run.RowsFlagged,
		run.Success, run.Skipped, run.ErrorMessage, run.ID)
	return err
}

// RecentImportRuns returns the latest import runs, newest first.
func (s *Store) RecentImportRuns(ctx context.Context, limit int) ([]ImportRun, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(`
		SELECT id, started_at, finished_at, source, table_name,
			   rows_parsed, rows_stored, rows_flagged, success, skipped, error_message
		FROM import_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ImportRun
	for rows.Next() {
		var r ImportRun
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Source, &r.TableName,
			&r.RowsParsed, &r.RowsStored, &r.RowsFlagged, &r.Success, &r.Skipped, &r.ErrorMessage); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
