package dbx

import (
	"context"
	"database/sql"
	"strings"
)

// Rebind rewrites PostgreSQL style $N placeholders into plain ? markers.
// Repositories write $1..$N in the order the arguments are passed, so the
// positional binding stays the same.
func Rebind(query string) string {
	if !strings.Contains(query, "$") {
		return query
	}

	var b strings.Builder
	b.Grow(len(query))

	for i := 0; i < len(query); i++ {
		c := query[i]
		if c == '$' && i+1 < len(query) && isDigit(query[i+1]) {
			b.WriteByte('?')
			for i+1 < len(query) && isDigit(query[i+1]) {
				i++
			}
			continue
		}
		b.WriteByte(c)
	}

	return b.String()
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// rebindDBTX forwards every call to the wrapped handle with rebound SQL.
type rebindDBTX struct {
	db DBTX
}

// NewRebindDBTX decorates db so that $N placeholders work with drivers that
// only bind positional ? markers.
func NewRebindDBTX(db DBTX) DBTX {
	if r, ok := db.(*rebindDBTX); ok {
		return r
	}
	return &rebindDBTX{db: db}
}

func (r *rebindDBTX) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return r.db.ExecContext(ctx, Rebind(query), args...)
}

func (r *rebindDBTX) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return r.db.QueryContext(ctx, Rebind(query), args...)
}

func (r *rebindDBTX) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return r.db.QueryRowContext(ctx, Rebind(query), args...)
}
