package db

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
)

// DBTX is the common interface satisfied by both *sql.DB and *sql.Tx.
// Repository implementations depend on this interface instead of the
// concrete *sql.DB, enabling transactional composition.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Compile-time verification that *sql.DB and *sql.Tx satisfy DBTX.
var (
	_ DBTX = (*sql.DB)(nil)
	_ DBTX = (*sql.Tx)(nil)
)

// Bind adapts conn to the placeholder style of d. Repositories write
// queries with "?" placeholders; postgres needs "$n".
func Bind(d Dialect, conn DBTX) DBTX {
	if d != DialectPostgres {
		return conn
	}
	if r, ok := conn.(*rebinder); ok {
		return r
	}
	return &rebinder{conn: conn}
}

type rebinder struct {
	conn DBTX
}

func (r *rebinder) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return r.conn.ExecContext(ctx, Rebind(query), args...)
}

func (r *rebinder) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return r.conn.QueryContext(ctx, Rebind(query), args...)
}

func (r *rebinder) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return r.conn.QueryRowContext(ctx, Rebind(query), args...)
}

// Rebind rewrites "?" placeholders as "$1", "$2", ... Question marks inside
// single-quoted literals are left alone.
func Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
