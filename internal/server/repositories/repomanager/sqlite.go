package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/usertokens/internal/dbx"
	"github.com/dmitrijs2005/usertokens/internal/server/migrations"
	"github.com/dmitrijs2005/usertokens/internal/server/repositories/users"
	"github.com/dmitrijs2005/usertokens/internal/server/repositories/usertokens"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// SQLiteRepositoryManager vends repositories backed by modernc SQLite.
// Handles are wrapped so the shared $N queries bind as ? markers.
type SQLiteRepositoryManager struct{}

func (m *SQLiteRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewSQLRepository(dbx.NewRebindDBTX(db))
}

func (m *SQLiteRepositoryManager) UserTokens(db dbx.DBTX) usertokens.Repository {
	return usertokens.NewSQLRepository(dbx.NewRebindDBTX(db))
}

func (m *SQLiteRepositoryManager) Driver() string { return DriverSQLite }

func (m *SQLiteRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, migrations.SQLiteDir)
}
