package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/usertokens/internal/common"
	"github.com/dmitrijs2005/usertokens/internal/server/models"
	"github.com/dmitrijs2005/usertokens/internal/server/services"
)

type ErrorPayload struct {
	Message string `json:"message"`
}

type UserPayload struct {
	ID        int64     `json:"id"`
	DiscordID string    `json:"discord_id"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
}

type TokenPayload struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Token     string     `json:"token,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func newUserPayload(u *models.User) UserPayload {
	return UserPayload{
		ID:        u.ID,
		DiscordID: u.DiscordID,
		Username:  u.Username,
		AvatarURL: services.AvatarURL(u.DiscordID, u.AvatarURL),
		CreatedAt: u.CreatedAt,
	}
}

func newTokenPayload(t *models.UserToken) TokenPayload {
	return TokenPayload{
		ID:        t.ID,
		Name:      t.Name,
		Token:     t.Token,
		CreatedAt: t.CreatedAt,
		ExpiresAt: t.ExpiresAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorPayload{Message: msg})
}

// statusFor maps service errors onto HTTP statuses and client safe messages.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrorValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrorUnauthorized):
		return http.StatusUnauthorized, "Invalid or missing token"
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, common.ErrUnknownOwner):
		return http.StatusNotFound, "Account not found"
	case errors.Is(err, common.ErrConstraintViolation):
		return http.StatusConflict, "Conflicting change"
	case errors.Is(err, common.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "Storage temporarily unavailable"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}
