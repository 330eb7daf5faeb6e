package httpapi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/middleware"

	"github.com/dmitrijs2005/usertokens/internal/common"
	"github.com/dmitrijs2005/usertokens/internal/server/models"
)

type ctxKey string

const userKey ctxKey = "user"

// UserFromContext returns the account attached by the auth middleware.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	u, ok := ctx.Value(userKey).(*models.User)
	return u, ok && u != nil
}

// presentedToken reads X-Auth-Token first, then a Bearer authorization.
func presentedToken(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(common.AuthTokenHeaderName)); v != "" {
		return v
	}

	scheme, value, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(value)
	}
	return ""
}

// Authenticated resolves the presented token to an account or rejects the
// request. Storage problems answer 503 so clients do not drop good tokens.
func (a *API) Authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		value := presentedToken(r)
		if value == "" {
			writeError(w, http.StatusUnauthorized, "Invalid or missing token")
			return
		}

		user, err := a.validator.Validate(r.Context(), value)
		if err != nil {
			status, msg := statusFor(err)
			if status >= http.StatusInternalServerError {
				a.logger.Error(r.Context(), "token validation failed", "error", err)
			}
			writeError(w, status, msg)
			return
		}

		ctx := context.WithValue(r.Context(), userKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AdminOnly guards routes with the configured admin key. Without a key every
// admin request is refused.
func (a *API) AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.adminKey == "" {
			writeError(w, http.StatusForbidden, "Admin API disabled")
			return
		}

		got := r.Header.Get(common.AdminKeyHeaderName)
		if subtle.ConstantTimeCompare([]byte(got), []byte(a.adminKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "Invalid admin key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// rateKeyByUser keys rate limits on the authenticated account.
func rateKeyByUser(r *http.Request) (string, error) {
	if u, ok := UserFromContext(r.Context()); ok {
		return strconv.FormatInt(u.ID, 10), nil
	}
	return "anonymous", nil
}

// accessLog writes one structured line per request through the API logger.
func (a *API) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		a.logger.Info(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}
