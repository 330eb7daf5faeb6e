package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/usertokens/internal/common"
	"github.com/dmitrijs2005/usertokens/internal/dbx"
	"github.com/dmitrijs2005/usertokens/internal/server/models"
	"github.com/dmitrijs2005/usertokens/internal/server/repositories/repomanager"
)

// Validator resolves presented token values to accounts. It never writes.
type Validator struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	settings
}

func NewValidator(db *sql.DB, m repomanager.RepositoryManager, opts ...Option) *Validator {
	return &Validator{db: db, repomanager: m, settings: newSettings(opts)}
}

// Validate returns the owner of presented if the token exists and has not
// expired. Every negative outcome is common.ErrInvalidToken; storage
// problems are common.ErrStorageUnavailable.
func (v *Validator) Validate(ctx context.Context, presented string) (*models.User, error) {
	if presented == "" || len(presented) > common.MaxTokenValueLength {
		return nil, common.ErrInvalidToken
	}

	now := v.now()

	var user *models.User
	err := dbx.Retry(ctx, v.retry, func(ctx context.Context) error {
		u, err := v.repomanager.UserTokens(v.db).FindOwner(ctx, presented, now)
		user = u
		return err
	})

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, common.ErrorNotFound):
		return nil, common.ErrInvalidToken
	case errors.Is(err, common.ErrStorageUnavailable):
		return nil, err
	default:
		v.logger.Error(ctx, "token lookup failed", "error", err)
		return nil, fmt.Errorf("%w: %w", common.ErrStorageUnavailable, err)
	}
}
