package services

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/usertokens/internal/dbx"
	"github.com/dmitrijs2005/usertokens/internal/server/models"
	"github.com/dmitrijs2005/usertokens/internal/server/repositories/repomanager"
	usersrepo "github.com/dmitrijs2005/usertokens/internal/server/repositories/users"
	"github.com/dmitrijs2005/usertokens/internal/server/repositories/usertokens"
	"github.com/stretchr/testify/require"
)

// --- clock ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fastRetry keeps retry tests quick.
var fastRetry = dbx.RetryPolicy{Retries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

// --- real SQLite store ---

func newSQLiteStore(t *testing.T) (*sql.DB, repomanager.RepositoryManager) {
	t.Helper()
	ctx := context.Background()

	dsn := "file:" + filepath.Join(t.TempDir(), "services.db")
	db, m, err := repomanager.Open(ctx, repomanager.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, m.RunMigrations(ctx, db))
	return db, m
}

// --- sqlmock ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

// --- fakes ---

type fakeUsersRepo struct {
	upsertID  int64
	upsertErr error
	upserted  []*models.User

	getOut   *models.User
	getErr   error
	getErrs  []error
	getCalls int

	listOut []models.User
	listErr error

	deleteErr error
}

func (f *fakeUsersRepo) Upsert(ctx context.Context, u *models.User) (int64, error) {
	f.upserted = append(f.upserted, u)
	return f.upsertID, f.upsertErr
}

func (f *fakeUsersRepo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	f.getCalls++
	if len(f.getErrs) > 0 {
		err := f.getErrs[0]
		f.getErrs = f.getErrs[1:]
		return nil, err
	}
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.getOut, nil
}

func (f *fakeUsersRepo) List(ctx context.Context) ([]models.User, error) {
	return f.listOut, f.listErr
}

func (f *fakeUsersRepo) Delete(ctx context.Context, id int64) error {
	return f.deleteErr
}

type fakeTokensRepo struct {
	// createErrs are returned by consecutive Create calls; once exhausted
	// Create succeeds.
	createErrs []error
	created    []models.UserToken
	nextID     int64

	findOut  *models.User
	findErrs []error
	findNow  time.Time

	listOut []models.UserToken
	listErr error
	listNow time.Time

	deleteErr error

	purgeOut  int64
	purgeErr  error
	purgeAsOf time.Time
}

func (f *fakeTokensRepo) Create(ctx context.Context, t *models.UserToken) (int64, error) {
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		return 0, err
	}
	f.nextID++
	f.created = append(f.created, *t)
	return f.nextID, nil
}

func (f *fakeTokensRepo) FindOwner(ctx context.Context, value string, now time.Time) (*models.User, error) {
	f.findNow = now
	if len(f.findErrs) > 0 {
		err := f.findErrs[0]
		f.findErrs = f.findErrs[1:]
		return nil, err
	}
	return f.findOut, nil
}

func (f *fakeTokensRepo) ListActive(ctx context.Context, userID int64, now time.Time) ([]models.UserToken, error) {
	f.listNow = now
	return f.listOut, f.listErr
}

func (f *fakeTokensRepo) Delete(ctx context.Context, userID, id int64) error {
	return f.deleteErr
}

func (f *fakeTokensRepo) PurgeExpired(ctx context.Context, asOf time.Time) (int64, error) {
	f.purgeAsOf = asOf
	return f.purgeOut, f.purgeErr
}

type fakeRepoManager struct {
	u *fakeUsersRepo
	t *fakeTokensRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository       { return m.u }
func (m *fakeRepoManager) UserTokens(db dbx.DBTX) usertokens.Repository { return m.t }
func (m *fakeRepoManager) Driver() string                               { return "fake" }
