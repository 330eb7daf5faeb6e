package httpapi

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/usertokens/internal/server/models"
	"github.com/go-chi/chi"
)

type createTokenRequest struct {
	Name string `json:"name"`
	// TTLSeconds and ExpiresAt (unix seconds) are mutually exclusive; with
	// neither the token never expires.
	TTLSeconds *int64 `json:"ttl_seconds"`
	ExpiresAt  *int64 `json:"expires_at"`
}

// maxTTLSeconds is the largest ttl_seconds that fits in a time.Duration.
const maxTTLSeconds = math.MaxInt64 / int64(time.Second)

type upsertUserRequest struct {
	DiscordID string `json:"discord_id"`
	Username  string `json:"username"`
	Avatar    string `json:"avatar"`
}

type purgeResponse struct {
	Deleted int64 `json:"deleted"`
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, status, msg)
}

func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (a *API) getMe(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, newUserPayload(user))
}

func (a *API) listTokens(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	list, err := a.tokens.List(r.Context(), user.ID)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	out := make([]TokenPayload, 0, len(list))
	for i := range list {
		out = append(out, newTokenPayload(&list[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) createToken(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	var body createTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Failed to parse JSON payload")
		return
	}

	if body.TTLSeconds != nil && body.ExpiresAt != nil {
		writeError(w, http.StatusBadRequest, "Use either ttl_seconds or expires_at")
		return
	}

	ctx := r.Context()

	var (
		token *models.UserToken
		err   error
	)
	if body.ExpiresAt != nil {
		token, err = a.tokens.IssueUntil(ctx, user.ID, body.Name, time.Unix(*body.ExpiresAt, 0))
	} else {
		var ttl *time.Duration
		if body.TTLSeconds != nil {
			if *body.TTLSeconds > maxTTLSeconds {
				writeError(w, http.StatusBadRequest, "ttl_seconds is out of range")
				return
			}
			d := time.Duration(*body.TTLSeconds) * time.Second
			ttl = &d
		}
		token, err = a.tokens.Issue(ctx, user.ID, body.Name, ttl)
	}

	if err != nil {
		a.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, newTokenPayload(token))
}

func (a *API) revokeToken(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	id, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid token id")
		return
	}

	if err := a.tokens.Revoke(r.Context(), user.ID, id); err != nil {
		a.fail(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) upsertUser(w http.ResponseWriter, r *http.Request) {
	var body upsertUserRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Failed to parse JSON payload")
		return
	}

	user, err := a.identities.Upsert(r.Context(), body.DiscordID, body.Username, body.Avatar)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newUserPayload(user))
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	list, err := a.identities.List(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}

	out := make([]UserPayload, 0, len(list))
	for i := range list {
		out = append(out, newUserPayload(&list[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	user, err := a.identities.Get(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newUserPayload(user))
}

func (a *API) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	if err := a.identities.Delete(r.Context(), id); err != nil {
		a.fail(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) purgeExpired(w http.ResponseWriter, r *http.Request) {
	n, err := a.tokens.PurgeExpired(r.Context(), a.tokens.Now())
	if err != nil {
		a.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, purgeResponse{Deleted: n})
}
