package db

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// dialect hides the few places where Postgres and SQLite disagree.
type dialect string

const (
	dialectPostgres dialect = "pgx"
	dialectSQLite   dialect = "sqlite"
)

// sqliteTimeLayout is fixed width so that text ordering matches time ordering.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func (d dialect) schemaScript() string {
	if d == dialectSQLite {
		return "scripts/initdb_sqlite.sql"
	}
	return "scripts/initdb.sql"
}

func (d dialect) metaExistsQuery() string {
	if d == dialectSQLite {
		return `SELECT EXISTS (SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = 'samurai_meta')`
	}
	return `
		SELECT EXISTS (
		  SELECT 1 FROM information_schema.tables
		  WHERE table_name = 'samurai_meta'
		)`
}

// rebind rewrites ? placeholders into $N for Postgres.
func (d dialect) rebind(q string) string {
	if d != dialectPostgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
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

// ts converts a timestamp into the value bound for the dialect.
func (d dialect) ts(t time.Time) any {
	t = t.UTC()
	if d == dialectSQLite {
		return t.Format(sqliteTimeLayout)
	}
	return t
}

type constraint int

const (
	constraintNone constraint = iota
	constraintForeignKey
	constraintUnique
	constraintCheck
)

func classify(err error) constraint {
	if err == nil {
		return constraintNone
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503":
			return constraintForeignKey
		case "23505":
			return constraintUnique
		case "23514":
			return constraintCheck
		}
		return constraintNone
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return constraintForeignKey
	case strings.Contains(msg, "UNIQUE constraint failed"), strings.Contains(msg, "PRIMARY KEY constraint failed"):
		return constraintUnique
	case strings.Contains(msg, "CHECK constraint failed"):
		return constraintCheck
	}
	return constraintNone
}

// dbTime scans timestamps regardless of how the driver hands them back.
type dbTime struct {
	t *time.Time
}

var timeLayouts = []string{
	sqliteTimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (s dbTime) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*s.t = v.UTC()
		return nil
	case int64:
		*s.t = time.Unix(v, 0).UTC()
		return nil
	case []byte:
		return s.parse(string(v))
	case string:
		return s.parse(v)
	case nil:
		*s.t = time.Time{}
		return nil
	}
	return fmt.Errorf("unsupported timestamp type %T", src)
}

func (s dbTime) parse(v string) error {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			*s.t = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", v)
}
