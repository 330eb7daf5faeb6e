package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/usertokens/internal/common"
	"github.com/dmitrijs2005/usertokens/internal/dbx"
	"github.com/dmitrijs2005/usertokens/internal/server/models"
)

// SQLRepository works on both PostgreSQL and SQLite. Queries use $N
// placeholders; the SQLite manager hands in a rebinding DBTX.
type SQLRepository struct {
	db dbx.DBTX
}

func NewSQLRepository(db dbx.DBTX) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) Upsert(ctx context.Context, user *models.User) (int64, error) {
	query :=
		`INSERT INTO users (discord_id, username, avatar_url, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (discord_id) DO UPDATE
		 SET username = EXCLUDED.username, avatar_url = EXCLUDED.avatar_url
		 RETURNING id
		 `

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		user.DiscordID, user.Username, user.AvatarURL, user.CreatedAt).Scan(&id)

	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return id, nil
}

func (r *SQLRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query :=
		`SELECT id, discord_id, username, avatar_url, created_at FROM users
		 WHERE id = $1
		 `

	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID, &user.DiscordID, &user.Username, &user.AvatarURL, &user.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *SQLRepository) List(ctx context.Context) ([]models.User, error) {
	query :=
		`SELECT id, discord_id, username, avatar_url, created_at FROM users
		 ORDER BY id
		 `

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := []models.User{}
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.DiscordID, &u.Username, &u.AvatarURL, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

// Delete removes the account; its tokens go with it through ON DELETE CASCADE.
func (r *SQLRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM users WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id)
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
