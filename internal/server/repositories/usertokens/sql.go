package usertokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/usertokens/internal/common"
	"github.com/dmitrijs2005/usertokens/internal/dbx"
	"github.com/dmitrijs2005/usertokens/internal/server/models"
)

type SQLRepository struct {
	db dbx.DBTX
}

func NewSQLRepository(db dbx.DBTX) *SQLRepository {
	return &SQLRepository{db: db}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func (r *SQLRepository) Create(ctx context.Context, token *models.UserToken) (int64, error) {
	query :=
		`INSERT INTO user_tokens (user_id, token, name, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id
		 `

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		token.UserID, token.Token, token.Name, token.CreatedAt, nullTime(token.ExpiresAt)).Scan(&id)

	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return id, nil
}

func (r *SQLRepository) FindOwner(ctx context.Context, value string, now time.Time) (*models.User, error) {
	query :=
		`SELECT u.id, u.discord_id, u.username, u.avatar_url, u.created_at
		 FROM user_tokens t
		 JOIN users u ON u.id = t.user_id
		 WHERE t.token = $1 AND (t.expires_at IS NULL OR t.expires_at > $2)
		 `

	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, value, now).Scan(
		&user.ID, &user.DiscordID, &user.Username, &user.AvatarURL, &user.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *SQLRepository) ListActive(ctx context.Context, userID int64, now time.Time) ([]models.UserToken, error) {
	query :=
		`SELECT id, user_id, name, created_at, expires_at FROM user_tokens
		 WHERE user_id = $1 AND (expires_at IS NULL OR expires_at > $2)
		 ORDER BY created_at ASC, id ASC
		 `

	rows, err := r.db.QueryContext(ctx, query, userID, now)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := []models.UserToken{}
	for rows.Next() {
		var (
			t       models.UserToken
			expires sql.NullTime
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.Name, &t.CreatedAt, &expires); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if expires.Valid {
			e := expires.Time
			t.ExpiresAt = &e
		}
		result = append(result, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

// Delete removes token id only if it belongs to userID. A foreign token is
// reported exactly like a missing one.
func (r *SQLRepository) Delete(ctx context.Context, userID, id int64) error {
	query := `DELETE FROM user_tokens WHERE id = $1 AND user_id = $2`

	res, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}

	return nil
}

func (r *SQLRepository) PurgeExpired(ctx context.Context, asOf time.Time) (int64, error) {
	query := `DELETE FROM user_tokens WHERE expires_at IS NOT NULL AND expires_at <= $1`

	res, err := r.db.ExecContext(ctx, query, asOf)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return n, nil
}
