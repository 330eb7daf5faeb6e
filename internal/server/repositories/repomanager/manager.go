// Package repomanager vends repository implementations for one SQL dialect
// and owns the schema migrations (via goose) for it.
package repomanager

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/usertokens/internal/dbx"
	"github.com/dmitrijs2005/usertokens/internal/server/repositories/users"
	"github.com/dmitrijs2005/usertokens/internal/server/repositories/usertokens"
	"github.com/pressly/goose/v3"
)

// Driver names as registered with database/sql.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	UserTokens(db dbx.DBTX) usertokens.Repository
	// Driver is the database/sql driver name the manager expects.
	Driver() string
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// NewRepositoryManager returns the manager for the given driver name.
// "postgres" and "postgresql" are accepted as aliases of "pgx".
func NewRepositoryManager(driver string) (RepositoryManager, error) {
	switch strings.ToLower(driver) {
	case DriverPostgres, "postgres", "postgresql":
		return &PostgresRepositoryManager{}, nil
	case DriverSQLite, "sqlite3":
		return &SQLiteRepositoryManager{}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Open connects to the database, verifies the connection and returns the
// matching manager. Migrations are not run here.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, RepositoryManager, error) {
	m, err := NewRepositoryManager(driver)
	if err != nil {
		return nil, nil, err
	}

	if m.Driver() == DriverSQLite {
		dsn = SQLiteDSN(dsn)
	}

	db, err := sql.Open(m.Driver(), dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	return db, m, nil
}

// sqlitePragmas are required for correct behaviour: foreign keys enable the
// cascade, busy_timeout makes writers wait instead of failing, and WAL keeps
// readers unblocked while the reaper deletes.
var sqlitePragmas = []struct{ name, value string }{
	{"foreign_keys", "foreign_keys(1)"},
	{"busy_timeout", "busy_timeout(5000)"},
	{"journal_mode", "journal_mode(WAL)"},
}

// SQLiteDSN adds the pragmas the schema relies on to dsn unless the caller
// already set them.
func SQLiteDSN(dsn string) string {
	base, rawQuery, _ := strings.Cut(dsn, "?")

	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return dsn
	}

	existing := strings.Join(q["_pragma"], ",")
	for _, p := range sqlitePragmas {
		if !strings.Contains(existing, p.name) {
			q.Add("_pragma", p.value)
		}
	}
	if q.Get("_time_format") == "" {
		q.Set("_time_format", "sqlite")
	}

	return base + "?" + q.Encode()
}
