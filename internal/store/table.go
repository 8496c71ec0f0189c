package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/lox/climadash/internal/models"
)

// Executor runs parameterized read-only queries. Parameters are always
// bound positionally with ? placeholders.
type Executor interface {
	Execute(ctx context.Context, query string, args ...any) (*Table, error)
}

var ErrMissingColumn = errors.New("missing column")

// Table is a materialized query result. Tables returned from a cache are
// shared between callers and must be treated as read-only.
type Table struct {
	Columns []string
	Rows    [][]any
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Index returns the position of the named column.
func (t *Table) Index(name string) (int, error) {
	for i, c := range t.Columns {
		if strings.EqualFold(c, name) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %s", ErrMissingColumn, name)
}

// Float coerces a cell to float64. NULL becomes NaN.
func (t *Table) Float(row, col int) (float64, error) {
	switch v := t.Rows[row][col].(type) {
	case nil:
		return math.NaN(), nil
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("column %s row %d: %w", t.Columns[col], row, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("column %s row %d: cannot convert %T to float", t.Columns[col], row, v)
	}
}

func (t *Table) String(row, col int) (string, error) {
	switch v := t.Rows[row][col].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	default:
		return fmt.Sprint(v), nil
	}
}

// Time parses a date cell. Drivers return either a time.Time or text that
// starts with a YYYY-MM-DD date.
func (t *Table) Time(row, col int) (time.Time, error) {
	switch v := t.Rows[row][col].(type) {
	case time.Time:
		y, m, d := v.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	case string:
		if len(v) < len(models.DateLayout) {
			return time.Time{}, fmt.Errorf("column %s row %d: invalid date %q", t.Columns[col], row, v)
		}
		d, err := time.Parse(models.DateLayout, v[:len(models.DateLayout)])
		if err != nil {
			return time.Time{}, fmt.Errorf("column %s row %d: %w", t.Columns[col], row, err)
		}
		return d, nil
	default:
		return time.Time{}, fmt.Errorf("column %s row %d: cannot convert %T to date", t.Columns[col], row, v)
	}
}

// Int coerces a cell to an int.
func (t *Table) Int(row, col int) (int, error) {
	f, err := t.Float(row, col)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) {
		return 0, fmt.Errorf("column %s row %d: unexpected NULL", t.Columns[col], row)
	}
	return int(f), nil
}
