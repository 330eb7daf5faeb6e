package services

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/usertokens/internal/common"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ttlOf(d time.Duration) *time.Duration { return &d }

// sequenceGenerator hands out the given values in order, then unique ones.
func sequenceGenerator(values ...string) TokenGenerator {
	var (
		mu sync.Mutex
		n  int
	)
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		if n <= len(values) {
			return values[n-1], nil
		}
		return fmt.Sprintf("generated-%d", n), nil
	}
}

func TestIssue_WithTTL(t *testing.T) {
	clock := newFakeClock()
	repo := &fakeTokensRepo{}
	s := NewTokenService(nil, &fakeRepoManager{t: repo}, WithClock(clock.Now), WithTokenGenerator(sequenceGenerator("v1")))

	tok, err := s.Issue(context.Background(), 7, "  ci-token ", ttlOf(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, int64(1), tok.ID)
	assert.Equal(t, "v1", tok.Token)
	assert.Equal(t, "ci-token", tok.Name)
	assert.True(t, tok.CreatedAt.Equal(clock.Now()))
	require.NotNil(t, tok.ExpiresAt)
	assert.True(t, tok.ExpiresAt.Equal(clock.Now().Add(time.Hour)))
}

func TestIssue_WithoutTTL(t *testing.T) {
	repo := &fakeTokensRepo{}
	s := NewTokenService(nil, &fakeRepoManager{t: repo})

	tok, err := s.Issue(context.Background(), 7, "forever", nil)
	require.NoError(t, err)
	assert.Nil(t, tok.ExpiresAt)
	assert.Len(t, tok.Token, 2*common.TokenValueBytes)
}

func TestIssue_Validation(t *testing.T) {
	s := NewTokenService(nil, &fakeRepoManager{t: &fakeTokensRepo{}})
	ctx := context.Background()

	tests := []struct {
		name  string
		token string
		ttl   *time.Duration
	}{
		{name: "empty name", token: "", ttl: nil},
		{name: "blank name", token: "   ", ttl: nil},
		{name: "long name", token: strings.Repeat("x", common.MaxTokenNameLength+1), ttl: nil},
		{name: "zero ttl", token: "ok", ttl: ttlOf(0)},
		{name: "negative ttl", token: "ok", ttl: ttlOf(-time.Second)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Issue(ctx, 1, tt.token, tt.ttl)
			assert.ErrorIs(t, err, common.ErrorValidation)
		})
	}
}

func TestIssue_UnknownOwner(t *testing.T) {
	repo := &fakeTokensRepo{createErrs: []error{fmt.Errorf("db error: %w", &pgconn.PgError{Code: "23503"})}}
	s := NewTokenService(nil, &fakeRepoManager{t: repo})

	_, err := s.Issue(context.Background(), 404, "n", nil)
	assert.ErrorIs(t, err, common.ErrUnknownOwner)
}

func TestIssue_RegeneratesOnCollision(t *testing.T) {
	dup := fmt.Errorf("db error: %w", &pgconn.PgError{Code: "23505"})
	repo := &fakeTokensRepo{createErrs: []error{dup, dup}}
	s := NewTokenService(nil, &fakeRepoManager{t: repo}, WithTokenGenerator(sequenceGenerator("a", "b", "c")))

	tok, err := s.Issue(context.Background(), 1, "n", nil)
	require.NoError(t, err)
	assert.Equal(t, "c", tok.Token)
}

func TestIssue_CollisionAttemptsExhausted(t *testing.T) {
	dup := fmt.Errorf("db error: %w", &pgconn.PgError{Code: "23505"})
	repo := &fakeTokensRepo{createErrs: []error{dup, dup, dup}}
	s := NewTokenService(nil, &fakeRepoManager{t: repo}, WithIssueAttempts(3))

	_, err := s.Issue(context.Background(), 1, "n", nil)
	assert.ErrorIs(t, err, common.ErrStorageUnavailable)
	assert.Empty(t, repo.created)
}

func TestIssue_GeneratorFailure(t *testing.T) {
	s := NewTokenService(nil, &fakeRepoManager{t: &fakeTokensRepo{}},
		WithTokenGenerator(func() (string, error) { return "", errors.New("entropy") }))

	_, err := s.Issue(context.Background(), 1, "n", nil)
	assert.ErrorIs(t, err, common.ErrorInternal)
}

func TestIssue_TransientRetriedThenUnavailable(t *testing.T) {
	repo := &fakeTokensRepo{createErrs: []error{driver.ErrBadConn, driver.ErrBadConn, driver.ErrBadConn}}
	s := NewTokenService(nil, &fakeRepoManager{t: repo}, WithRetryPolicy(fastRetry))

	_, err := s.Issue(context.Background(), 1, "n", nil)
	assert.ErrorIs(t, err, common.ErrStorageUnavailable)
}

func TestIssueUntil(t *testing.T) {
	clock := newFakeClock()
	s := NewTokenService(nil, &fakeRepoManager{t: &fakeTokensRepo{}}, WithClock(clock.Now))

	tok, err := s.IssueUntil(context.Background(), 1, "n", clock.Now().Add(90*time.Second))
	require.NoError(t, err)
	require.NotNil(t, tok.ExpiresAt)
	assert.True(t, tok.ExpiresAt.Equal(clock.Now().Add(90*time.Second)))

	_, err = s.IssueUntil(context.Background(), 1, "n", clock.Now())
	assert.ErrorIs(t, err, common.ErrorValidation)
}

func TestIssueUntil_StoresRequestedExpiry(t *testing.T) {
	// each clock reading moves time forward
	clock := newFakeClock()
	tick := func() time.Time {
		clock.Advance(time.Millisecond)
		return clock.Now()
	}
	repo := &fakeTokensRepo{}
	s := NewTokenService(nil, &fakeRepoManager{t: repo}, WithClock(tick))

	want := time.Date(2024, 1, 1, 13, 0, 0, 123456000, time.UTC)
	tok, err := s.IssueUntil(context.Background(), 1, "n", want)
	require.NoError(t, err)
	require.NotNil(t, tok.ExpiresAt)
	assert.True(t, tok.ExpiresAt.Equal(want), "stored %v, requested %v", tok.ExpiresAt, want)

	_, err = s.IssueUntil(context.Background(), 1, "  ", want)
	assert.ErrorIs(t, err, common.ErrorValidation)
}

func TestRevoke(t *testing.T) {
	repo := &fakeTokensRepo{}
	s := NewTokenService(nil, &fakeRepoManager{t: repo})

	assert.NoError(t, s.Revoke(context.Background(), 1, 2))

	repo.deleteErr = common.ErrorNotFound
	assert.ErrorIs(t, s.Revoke(context.Background(), 1, 2), common.ErrorNotFound)

	repo.deleteErr = errors.New("boom")
	err := s.Revoke(context.Background(), 1, 2)
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrorNotFound)
}

func TestList_PassesClock(t *testing.T) {
	clock := newFakeClock()
	repo := &fakeTokensRepo{}
	s := NewTokenService(nil, &fakeRepoManager{t: repo}, WithClock(clock.Now))

	_, err := s.List(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, repo.listNow.Equal(clock.Now()))
}

func TestPurgeExpired_Service(t *testing.T) {
	repo := &fakeTokensRepo{purgeOut: 3}
	s := NewTokenService(nil, &fakeRepoManager{t: repo})

	asOf := time.Date(2024, 1, 1, 0, 0, 0, 1500, time.FixedZone("x", 3600))
	n, err := s.PurgeExpired(context.Background(), asOf)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, time.UTC, repo.purgeAsOf.Location())
	assert.Equal(t, 1000, repo.purgeAsOf.Nanosecond())

	repo.purgeErr = errors.New("boom")
	_, err = s.PurgeExpired(context.Background(), asOf)
	assert.Error(t, err)
}

// --- SQLite backed ---

func newSQLiteServices(t *testing.T, opts ...Option) (*IdentityService, *TokenService, *Validator) {
	t.Helper()
	db, m := newSQLiteStore(t)
	return NewIdentityService(db, m, opts...), NewTokenService(db, m, opts...), NewValidator(db, m, opts...)
}

func TestIssue_SQLiteUnknownOwner(t *testing.T) {
	_, tokens, _ := newSQLiteServices(t)

	_, err := tokens.Issue(context.Background(), 999, "n", nil)
	assert.ErrorIs(t, err, common.ErrUnknownOwner)
}

func TestIssue_SQLiteConcurrentCollision(t *testing.T) {
	gen := sequenceGenerator("dup", "dup")
	ids, tokens, validator := newSQLiteServices(t, WithTokenGenerator(gen))
	ctx := context.Background()

	alice, err := ids.Upsert(ctx, "disc-1", "alice", "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	values := make([]string, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := tokens.Issue(ctx, alice.ID, fmt.Sprintf("t%d", i), nil)
			errs[i] = err
			if err == nil {
				values[i] = tok.Token
			}
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.NotEqual(t, values[0], values[1])
	assert.Contains(t, values, "dup")

	for _, v := range values {
		u, err := validator.Validate(ctx, v)
		require.NoError(t, err)
		assert.Equal(t, alice.ID, u.ID)
	}
}

func TestIssue_SQLiteCollisionExhausted(t *testing.T) {
	always := func() (string, error) { return "same-value", nil }
	ids, tokens, _ := newSQLiteServices(t, WithTokenGenerator(always))
	ctx := context.Background()

	alice, err := ids.Upsert(ctx, "disc-1", "alice", "")
	require.NoError(t, err)

	_, err = tokens.Issue(ctx, alice.ID, "first", nil)
	require.NoError(t, err)

	_, err = tokens.Issue(ctx, alice.ID, "second", nil)
	assert.ErrorIs(t, err, common.ErrStorageUnavailable)

	list, err := tokens.List(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestList_SQLiteOrderAndExpiry(t *testing.T) {
	clock := newFakeClock()
	ids, tokens, _ := newSQLiteServices(t, WithClock(clock.Now))
	ctx := context.Background()

	alice, err := ids.Upsert(ctx, "disc-1", "alice", "")
	require.NoError(t, err)

	_, err = tokens.Issue(ctx, alice.ID, "short", ttlOf(time.Minute))
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = tokens.Issue(ctx, alice.ID, "forever", nil)
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = tokens.Issue(ctx, alice.ID, "long", ttlOf(time.Hour))
	require.NoError(t, err)

	list, err := tokens.List(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"short", "forever", "long"}, []string{list[0].Name, list[1].Name, list[2].Name})
	for _, tok := range list {
		assert.Empty(t, tok.Token)
	}

	clock.Advance(2 * time.Minute)
	list, err = tokens.List(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "forever", list[0].Name)
	assert.Nil(t, list[0].ExpiresAt)

	// Expired rows stay in storage until purged.
	n, err := tokens.PurgeExpired(ctx, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRevoke_SQLiteCrossOwner(t *testing.T) {
	ids, tokens, validator := newSQLiteServices(t)
	ctx := context.Background()

	alice, err := ids.Upsert(ctx, "disc-a", "alice", "")
	require.NoError(t, err)
	bob, err := ids.Upsert(ctx, "disc-b", "bob", "")
	require.NoError(t, err)

	tok, err := tokens.Issue(ctx, alice.ID, "n", nil)
	require.NoError(t, err)

	assert.ErrorIs(t, tokens.Revoke(ctx, bob.ID, tok.ID), common.ErrorNotFound)
	assert.ErrorIs(t, tokens.Revoke(ctx, alice.ID, tok.ID+1000), common.ErrorNotFound)

	_, err = validator.Validate(ctx, tok.Token)
	require.NoError(t, err)

	require.NoError(t, tokens.Revoke(ctx, alice.ID, tok.ID))
	_, err = validator.Validate(ctx, tok.Token)
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	assert.ErrorIs(t, tokens.Revoke(ctx, alice.ID, tok.ID), common.ErrorNotFound)
}

func TestPurgeExpired_SQLiteIdempotent(t *testing.T) {
	clock := newFakeClock()
	ids, tokens, validator := newSQLiteServices(t, WithClock(clock.Now))
	ctx := context.Background()

	alice, err := ids.Upsert(ctx, "disc-1", "alice", "")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := tokens.Issue(ctx, alice.ID, fmt.Sprintf("exp-%d", i), ttlOf(time.Minute))
		require.NoError(t, err)
	}
	keep, err := tokens.Issue(ctx, alice.ID, "keep", nil)
	require.NoError(t, err)

	// Boundary: expires_at <= asOf is purged.
	n, err := tokens.PurgeExpired(ctx, clock.Now().Add(time.Minute-time.Microsecond))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	clock.Advance(time.Minute)
	n, err = tokens.PurgeExpired(ctx, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = tokens.PurgeExpired(ctx, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	_, err = validator.Validate(ctx, keep.Token)
	assert.NoError(t, err)
}

func TestDeleteUser_SQLiteCascade(t *testing.T) {
	ids, tokens, validator := newSQLiteServices(t)
	ctx := context.Background()

	alice, err := ids.Upsert(ctx, "disc-a", "alice", "")
	require.NoError(t, err)
	bob, err := ids.Upsert(ctx, "disc-b", "bob", "")
	require.NoError(t, err)

	var aliceValues []string
	for i := 0; i < 3; i++ {
		tok, err := tokens.Issue(ctx, alice.ID, fmt.Sprintf("t%d", i), nil)
		require.NoError(t, err)
		aliceValues = append(aliceValues, tok.Token)
	}
	bobTok, err := tokens.Issue(ctx, bob.ID, "b", nil)
	require.NoError(t, err)

	require.NoError(t, ids.Delete(ctx, alice.ID))
	assert.ErrorIs(t, ids.Delete(ctx, alice.ID), common.ErrorNotFound)

	for _, v := range aliceValues {
		_, err := validator.Validate(ctx, v)
		assert.ErrorIs(t, err, common.ErrInvalidToken)
	}

	var left int
	require.NoError(t, tokens.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_tokens WHERE user_id = ?`, alice.ID).Scan(&left))
	assert.Equal(t, 0, left)

	u, err := validator.Validate(ctx, bobTok.Token)
	require.NoError(t, err)
	assert.Equal(t, bob.ID, u.ID)
}
