package ingest

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/lox/climadash/internal/metrics"
	"github.com/lox/climadash/internal/models"
	"github.com/lox/climadash/internal/store"
)

const (
	TableHistory     = "history_day"
	TableClimatology = "climatology_day"
)

// Warehouse is the write side of the store used by imports.
type Warehouse interface {
	InsertObservations(ctx context.Context, obs []models.Observation) (int, error)
	UpsertClimatology(ctx context.Context, rows []models.Climatology) (int, error)
	RebuildClimatology(ctx context.Context) (int64, error)
	StartImportRun(ctx context.Context, source, table string) (*store.ImportRun, error)
	CompleteImportRun(ctx context.Context, run *store.ImportRun) error
	HasImportPayload(ctx context.Context, table, hash string) (bool, error)
	StoreImportPayload(ctx context.Context, runID int64, table string, payload []byte) (bool, error)
	CleanupImportPayloads(ctx context.Context, cutoff time.Time) (int64, error)
}

// Clearer drops cached query results after new rows land.
type Clearer interface {
	Clear()
}

type Importer struct {
	wh    Warehouse
	cache Clearer
	force bool
}

// NewImporter creates an importer. cache may be nil.
func NewImporter(wh Warehouse, cache Clearer) *Importer {
	return &Importer{wh: wh, cache: cache}
}

// Force returns a copy of the importer that reloads exports even when an
// identical copy was already imported.
func (im *Importer) Force() *Importer {
	c := *im
	c.force = true
	return &c
}

// ImportHistory loads a history_day export. With rebuild set, climatology
// is recomputed from the updated history afterwards.
func (im *Importer) ImportHistory(ctx context.Context, src Source, rebuild bool) (*store.ImportRun, error) {
	return im.run(ctx, src, TableHistory, func(r io.Reader, run *store.ImportRun) error {
		obs, err := ParseHistoryCSV(r)
		if err != nil {
			return fmt.Errorf("parse: %w", err)
		}
		run.RowsParsed = sql.NullInt64{Int64: int64(len(obs)), Valid: true}

		var flagged int64
		for i := range obs {
			flags := ValidateObservation(&obs[i])
			if len(flags) > 0 {
				flagged++
				countFlags(flags)
			}
		}
		run.RowsFlagged = sql.NullInt64{Int64: flagged, Valid: true}

		stored, err := im.wh.InsertObservations(ctx, obs)
		if err != nil {
			return fmt.Errorf("store: %w", err)
		}
		run.RowsStored = sql.NullInt64{Int64: int64(stored), Valid: true}
		metrics.RowsImported.WithLabelValues(TableHistory).Add(float64(stored))

		if rebuild {
			n, err := im.wh.RebuildClimatology(ctx)
			if err != nil {
				return fmt.Errorf("rebuild climatology: %w", err)
			}
			log.Printf("ingest: rebuilt %d climatology rows", n)
		}
		return nil
	})
}

// ImportClimatology loads a climatology_day export.
func (im *Importer) ImportClimatology(ctx context.Context, src Source) (*store.ImportRun, error) {
	return im.run(ctx, src, TableClimatology, func(r io.Reader, run *store.ImportRun) error {
		rows, err := ParseClimatologyCSV(r)
		if err != nil {
			return fmt.Errorf("parse: %w", err)
		}
		run.RowsParsed = sql.NullInt64{Int64: int64(len(rows)), Valid: true}

		var flagged int64
		for i := range rows {
			flags := ValidateClimatology(&rows[i])
			if len(flags) > 0 {
				flagged++
				countFlags(flags)
			}
		}
		run.RowsFlagged = sql.NullInt64{Int64: flagged, Valid: true}

		stored, err := im.wh.UpsertClimatology(ctx, rows)
		if err != nil {
			return fmt.Errorf("store: %w", err)
		}
		run.RowsStored = sql.NullInt64{Int64: int64(stored), Valid: true}
		metrics.RowsImported.WithLabelValues(TableClimatology).Add(float64(stored))
		return nil
	})
}

// RebuildClimatology recomputes climatology_day from history_day.
func (im *Importer) RebuildClimatology(ctx context.Context) (int64, error) {
	n, err := im.wh.RebuildClimatology(ctx)
	if err != nil {
		return 0, err
	}
	im.clearCache()
	return n, nil
}

// CleanupPayloads drops archived exports older than retention.
func (im *Importer) CleanupPayloads(ctx context.Context, retention time.Duration) (int64, error) {
	return im.wh.CleanupImportPayloads(ctx, time.Now().Add(-retention))
}

func (im *Importer) run(ctx context.Context, src Source, table string, load func(io.Reader, *store.ImportRun) error) (*store.ImportRun, error) {
	run, err := im.wh.StartImportRun(ctx, src.Name(), table)
	if err != nil {
		return nil, fmt.Errorf("start import run: %w", err)
	}

	loadErr := func() error {
		payload, err := readAll(ctx, src)
		if err != nil {
			return err
		}

		if !im.force {
			seen, err := im.wh.HasImportPayload(ctx, table, store.PayloadHash(payload))
			if err != nil {
				return fmt.Errorf("check payload: %w", err)
			}
			if seen {
				run.Skipped = true
				return nil
			}
		}

		if err := load(bytes.NewReader(payload), run); err != nil {
			return err
		}
		if _, err := im.wh.StoreImportPayload(ctx, run.ID, table, payload); err != nil {
			log.Printf("ingest: failed to archive payload for run %d: %v", run.ID, err)
		}
		return nil
	}()

	run.Success = loadErr == nil
	if loadErr != nil {
		run.ErrorMessage = sql.NullString{String: loadErr.Error(), Valid: true}
	}
	if err := im.wh.CompleteImportRun(ctx, run); err != nil {
		log.Printf("ingest: failed to complete import run %d: %v", run.ID, err)
	}
	// Rows may be committed even when a later step failed.
	if run.RowsStored.Valid {
		im.clearCache()
	}
	if loadErr != nil {
		return run, fmt.Errorf("import %s from %s: %w", table, src.Name(), loadErr)
	}
	if run.Skipped {
		log.Printf("ingest: %s unchanged since last import, skipping", src.Name())
		return run, nil
	}

	log.Printf("ingest: imported %d/%d %s rows from %s (%d flagged)",
		run.RowsStored.Int64, run.RowsParsed.Int64, table, src.Name(), run.RowsFlagged.Int64)
	return run, nil
}

func readAll(ctx context.Context, src Source) ([]byte, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	payload, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", src.Name(), err)
	}
	return payload, nil
}

func (im *Importer) clearCache() {
	if im.cache != nil {
		im.cache.Clear()
	}
}

func countFlags(flags []string) {
	for _, f := range flags {
		metrics.ValuesFlagged.WithLabelValues(f).Inc()
	}
}
