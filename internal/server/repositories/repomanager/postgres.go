package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/usertokens/internal/dbx"
	"github.com/dmitrijs2005/usertokens/internal/server/migrations"
	"github.com/dmitrijs2005/usertokens/internal/server/repositories/users"
	"github.com/dmitrijs2005/usertokens/internal/server/repositories/usertokens"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repositories
// (pgx through database/sql).
type PostgresRepositoryManager struct{}

// Users returns a users.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewSQLRepository(db)
}

// UserTokens returns a usertokens.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) UserTokens(db dbx.DBTX) usertokens.Repository {
	return usertokens.NewSQLRepository(db)
}

func (m *PostgresRepositoryManager) Driver() string { return DriverPostgres }

// RunMigrations applies the embedded postgres migrations.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, migrations.PostgresDir)
}
