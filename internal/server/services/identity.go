package services

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/usertokens/internal/common"
	"github.com/dmitrijs2005/usertokens/internal/dbx"
	"github.com/dmitrijs2005/usertokens/internal/server/models"
	"github.com/dmitrijs2005/usertokens/internal/server/repositories/repomanager"
)

const discordAvatarBase = "https://cdn.discordapp.com/avatars/"

// IdentityService maps verified Discord identities onto local accounts.
type IdentityService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	settings
}

func NewIdentityService(db *sql.DB, m repomanager.RepositoryManager, opts ...Option) *IdentityService {
	return &IdentityService{db: db, repomanager: m, settings: newSettings(opts)}
}

// Upsert resolves the Discord identity to its account, creating it on first
// sight and refreshing username and avatar otherwise. The insert-or-update is
// a single statement, so concurrent first sign-ins end up on the same row.
func (s *IdentityService) Upsert(ctx context.Context, discordID, username, avatarRef string) (*models.User, error) {
	discordID = strings.TrimSpace(discordID)
	username = strings.TrimSpace(username)
	if discordID == "" || username == "" {
		return nil, fmt.Errorf("%w: discord id and username are required", common.ErrorValidation)
	}

	in := &models.User{
		DiscordID: discordID,
		Username:  username,
		AvatarURL: avatarRef,
		CreatedAt: s.now(),
	}

	var user *models.User
	err := dbx.Retry(ctx, s.retry, func(ctx context.Context) error {
		return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			repo := s.repomanager.Users(tx)

			id, err := repo.Upsert(ctx, in)
			if err != nil {
				return err
			}

			user, err = repo.GetByID(ctx, id)
			return err
		})
	})

	if err != nil {
		if dbx.IsConstraintViolation(err) {
			return nil, fmt.Errorf("%w: %w", common.ErrConstraintViolation, err)
		}
		return nil, fmt.Errorf("error upserting user: %w", err)
	}

	s.logger.Debug(ctx, "user resolved", "user_id", user.ID)
	return user, nil
}

func (s *IdentityService) Get(ctx context.Context, id int64) (*models.User, error) {
	var user *models.User
	err := dbx.Retry(ctx, s.retry, func(ctx context.Context) error {
		u, err := s.repomanager.Users(s.db).GetByID(ctx, id)
		user = u
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *IdentityService) List(ctx context.Context) ([]models.User, error) {
	var list []models.User
	err := dbx.Retry(ctx, s.retry, func(ctx context.Context) error {
		l, err := s.repomanager.Users(s.db).List(ctx)
		list = l
		return err
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

// Delete removes the account and, through the cascade, every token it owns.
func (s *IdentityService) Delete(ctx context.Context, id int64) error {
	err := dbx.Retry(ctx, s.retry, func(ctx context.Context) error {
		return s.repomanager.Users(s.db).Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "user deleted", "user_id", id)
	return nil
}

// AvatarURL renders a stored avatar reference. Discord hands out bare hashes
// which live under the CDN path of the user; absolute URLs pass through.
func AvatarURL(discordID, avatarRef string) string {
	if avatarRef == "" {
		return ""
	}
	if u, err := url.Parse(avatarRef); err == nil && u.IsAbs() {
		return avatarRef
	}
	return discordAvatarBase + url.PathEscape(discordID) + "/" + url.PathEscape(avatarRef) + ".png"
}
