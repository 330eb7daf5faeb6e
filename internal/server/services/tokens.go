package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/usertokens/internal/common"
	"github.com/dmitrijs2005/usertokens/internal/dbx"
	"github.com/dmitrijs2005/usertokens/internal/server/models"
	"github.com/dmitrijs2005/usertokens/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/usertokens/internal/timex"
)

// TokenService issues, lists, revokes and purges user tokens.
type TokenService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	settings
}

func NewTokenService(db *sql.DB, m repomanager.RepositoryManager, opts ...Option) *TokenService {
	return &TokenService{db: db, repomanager: m, settings: newSettings(opts)}
}

// Now is the service clock, normalized to storage precision.
func (s *TokenService) Now() time.Time {
	return s.now()
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: token name is required", common.ErrorValidation)
	}
	if utf8.RuneCountInString(name) > common.MaxTokenNameLength {
		return "", fmt.Errorf("%w: token name longer than %d characters", common.ErrorValidation, common.MaxTokenNameLength)
	}
	return name, nil
}

// Issue creates a token for ownerID. A nil ttl means the token never
// expires. The returned token is the only place the value is exposed.
func (s *TokenService) Issue(ctx context.Context, ownerID int64, name string, ttl *time.Duration) (*models.UserToken, error) {
	name, err := validateName(name)
	if err != nil {
		return nil, err
	}
	if ttl != nil && *ttl <= 0 {
		return nil, fmt.Errorf("%w: ttl must be positive", common.ErrorValidation)
	}

	now := s.now()
	var expiresAt *time.Time
	if ttl != nil {
		e := timex.Normalize(now.Add(*ttl))
		expiresAt = &e
	}

	return s.issue(ctx, ownerID, name, now, expiresAt)
}

// IssueUntil is Issue with an absolute expiry instead of a ttl. The stored
// expiry is expiresAt itself, normalized to storage precision.
func (s *TokenService) IssueUntil(ctx context.Context, ownerID int64, name string, expiresAt time.Time) (*models.UserToken, error) {
	name, err := validateName(name)
	if err != nil {
		return nil, err
	}

	now := s.now()
	at := timex.Normalize(expiresAt)
	if !at.After(now) {
		return nil, fmt.Errorf("%w: expiry must be in the future", common.ErrorValidation)
	}

	return s.issue(ctx, ownerID, name, now, &at)
}

func (s *TokenService) issue(ctx context.Context, ownerID int64, name string, now time.Time, expiresAt *time.Time) (*models.UserToken, error) {
	repo := s.repomanager.UserTokens(s.db)

	for attempt := 1; attempt <= s.issueAttempts; attempt++ {
		value, err := s.generate()
		if err != nil {
			return nil, fmt.Errorf("%w: generate token value: %w", common.ErrorInternal, err)
		}
		if value == "" || len(value) > common.MaxTokenValueLength {
			return nil, fmt.Errorf("%w: generated token value has invalid length %d", common.ErrorInternal, len(value))
		}

		token := &models.UserToken{
			UserID:    ownerID,
			Name:      name,
			Token:     value,
			CreatedAt: now,
			ExpiresAt: expiresAt,
		}

		err = dbx.Retry(ctx, s.retry, func(ctx context.Context) error {
			id, err := repo.Create(ctx, token)
			token.ID = id
			return err
		})

		switch {
		case err == nil:
			s.logger.Info(ctx, "token issued", "user_id", ownerID, "token_id", token.ID)
			return token, nil
		case dbx.IsForeignKeyViolation(err):
			return nil, fmt.Errorf("%w: user %d", common.ErrUnknownOwner, ownerID)
		case dbx.IsUniqueViolation(err):
			s.logger.Warn(ctx, "token value collision, regenerating", "user_id", ownerID, "attempt", attempt)
			continue
		default:
			return nil, fmt.Errorf("error creating token: %w", err)
		}
	}

	return nil, fmt.Errorf("%w: no unique token value after %d attempts", common.ErrStorageUnavailable, s.issueAttempts)
}

// Revoke deletes the token if ownerID owns it. A token of another owner is
// reported as common.ErrorNotFound, same as a missing one.
func (s *TokenService) Revoke(ctx context.Context, ownerID, tokenID int64) error {
	err := dbx.Retry(ctx, s.retry, func(ctx context.Context) error {
		return s.repomanager.UserTokens(s.db).Delete(ctx, ownerID, tokenID)
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("error revoking token: %w", err)
	}

	s.logger.Info(ctx, "token revoked", "user_id", ownerID, "token_id", tokenID)
	return nil
}

// List returns the owner's unexpired tokens, oldest first. Values are never
// included.
func (s *TokenService) List(ctx context.Context, ownerID int64) ([]models.UserToken, error) {
	now := s.now()

	var list []models.UserToken
	err := dbx.Retry(ctx, s.retry, func(ctx context.Context) error {
		l, err := s.repomanager.UserTokens(s.db).ListActive(ctx, ownerID, now)
		list = l
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("error listing tokens: %w", err)
	}
	return list, nil
}

// PurgeExpired deletes every token whose expiry is at or before asOf and
// returns how many rows went away.
func (s *TokenService) PurgeExpired(ctx context.Context, asOf time.Time) (int64, error) {
	asOf = timex.Normalize(asOf)

	var n int64
	err := dbx.Retry(ctx, s.retry, func(ctx context.Context) error {
		var err error
		n, err = s.repomanager.UserTokens(s.db).PurgeExpired(ctx, asOf)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("error purging expired tokens: %w", err)
	}

	if n > 0 {
		s.logger.Info(ctx, "expired tokens purged", "count", n)
	}
	return n, nil
}
