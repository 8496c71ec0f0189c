package store

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// Dialect captures the SQL differences between the supported backends.
type Dialect struct {
	Name   string
	Driver string
}

var (
	SQLite   = Dialect{Name: "sqlite", Driver: "sqlite"}
	Postgres = Dialect{Name: "postgres", Driver: "postgres"}
)

func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case SQLite.Name, "sqlite3":
		return SQLite, nil
	case Postgres.Name, "postgresql":
		return Postgres, nil
	}
	return Dialect{}, fmt.Errorf("unsupported database driver %q", name)
}

// Rebind rewrites ? placeholders into the dialect's positional form.
// Question marks inside single-quoted literals are left alone.
func (d Dialect) Rebind(query string) string {
	if d.Name != Postgres.Name {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for _, r := range query {
		switch {
		case r == '\'':
			inQuote = !inQuote
			b.WriteRune(r)
		case r == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (d Dialect) DayOfYear(col string) string {
	if d.Name == Postgres.Name {
		return fmt.Sprintf("CAST(EXTRACT(DOY FROM %s) AS INTEGER)", col)
	}
	return fmt.Sprintf("CAST(strftime('%%j', %s) AS INTEGER)", col)
}

func (d Dialect) Year(col string) string {
	if d.Name == Postgres.Name {
		return fmt.Sprintf("CAST(EXTRACT(YEAR FROM %s) AS INTEGER)", col)
	}
	return fmt.Sprintf("CAST(strftime('%%Y', %s) AS INTEGER)", col)
}

func (d Dialect) Month(col string) string {
	if d.Name == Postgres.Name {
		return fmt.Sprintf("CAST(EXTRACT(MONTH FROM %s) AS INTEGER)", col)
	}
	return fmt.Sprintf("CAST(strftime('%%m', %s) AS INTEGER)", col)
}

// InList returns a membership predicate for col with every value bound as a
// parameter: an array bind on Postgres, an expanded IN list elsewhere.
func (d Dialect) InList(col string, values []string) (string, []any) {
	if len(values) == 0 {
		return "1 = 0", nil
	}
	if d.Name == Postgres.Name {
		return col + " = ANY(?)", []any{pq.Array(values)}
	}
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return col + " IN (?" + strings.Repeat(", ?", len(values)-1) + ")", args
}
