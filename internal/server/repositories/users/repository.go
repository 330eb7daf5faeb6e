package users

import (
	"context"

	"github.com/dmitrijs2005/usertokens/internal/server/models"
)

type Repository interface {
	// Upsert inserts the account or refreshes its profile fields when the
	// Discord id is already known, returning the account id.
	Upsert(ctx context.Context, user *models.User) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
	Delete(ctx context.Context, id int64) error
}
