package dialect

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect captures the SQL differences between the supported engines.
type Dialect struct {
	Name string
	// ForUpdate is appended to row reads that must lock the row for the
	// rest of the transaction.
	ForUpdate string
	numbered  bool
}

var (
	Postgres = Dialect{Name: "postgres", ForUpdate: " FOR UPDATE", numbered: true}
	// SQLite has no row locks; stores open it with immediate transactions so
	// the write lock is taken at BEGIN.
	SQLite = Dialect{Name: "sqlite", ForUpdate: ""}
)

// ByName returns the dialect for an engine name.
func ByName(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported sql dialect %q", name)
	}
}

// Rebind rewrites ? placeholders to the dialect's placeholder style.
func (d Dialect) Rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Placeholders returns n comma-separated ? placeholders.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
