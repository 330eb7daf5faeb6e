package usertokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/usertokens/internal/server/models"
)

type Repository interface {
	// Create inserts a token row and returns its id.
	Create(ctx context.Context, token *models.UserToken) (int64, error)
	// FindOwner resolves a token value to its owner if the token is still
	// valid at now. Any miss is common.ErrorNotFound.
	FindOwner(ctx context.Context, value string, now time.Time) (*models.User, error)
	// ListActive returns the owner's tokens valid at now, without values.
	ListActive(ctx context.Context, userID int64, now time.Time) ([]models.UserToken, error)
	Delete(ctx context.Context, userID, id int64) error
	PurgeExpired(ctx context.Context, asOf time.Time) (int64, error)
}
