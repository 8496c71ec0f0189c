package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"
)

// PayloadHash returns the hex sha256 used to deduplicate archived exports.
func PayloadHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// StoreImportPayload archives a gzip-compressed copy of an imported export.
// Returns false if the same export was already archived for the table.
func (s *Store) StoreImportPayload(ctx context.Context, runID int64, table string, payload []byte) (bool, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return false, fmt.Errorf("compress payload: %w", err)
	}
	if err := gz.Close(); err != nil {
		return false, fmt.Errorf("close gzip: %w", err)
	}

	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(`
		INSERT INTO import_payloads (import_run_id, table_name, fetched_at, payload_compressed, payload_hash)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(table_name, payload_hash) DO NOTHING
	`), runID, table, time.Now().UTC(), buf.Bytes(), PayloadHash(payload))
	if err != nil {
		return false, fmt.Errorf("insert import payload: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// HasImportPayload reports whether an export with this hash was already
// imported into table.
func (s *Store) HasImportPayload(ctx context.Context, table, hash string) (bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(`
		SELECT id FROM import_payloads WHERE table_name = ? AND payload_hash = ?
	`), table, hash).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ImportPayload returns the decompressed export archived for an import run.
func (s *Store) ImportPayload(ctx context.Context, runID int64) ([]byte, error) {
	var compressed []byte
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(`
		SELECT payload_compressed FROM import_payloads WHERE import_run_id = ?
	`), runID).Scan(&compressed)
	if err != nil {
		return nil, err
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gz.Close()

	return io.ReadAll(gz)
}

// CleanupImportPayloads deletes archived exports fetched before cutoff.
func (s *Store) CleanupImportPayloads(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(`
		DELETE FROM import_payloads WHERE fetched_at < ?
	`), cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
