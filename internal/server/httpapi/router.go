package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrijs2005/usertokens/internal/logging"
	"github.com/dmitrijs2005/usertokens/internal/server/models"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"
)

type Validator interface {
	Validate(ctx context.Context, presented string) (*models.User, error)
}

type TokenService interface {
	Issue(ctx context.Context, ownerID int64, name string, ttl *time.Duration) (*models.UserToken, error)
	IssueUntil(ctx context.Context, ownerID int64, name string, expiresAt time.Time) (*models.UserToken, error)
	Revoke(ctx context.Context, ownerID, tokenID int64) error
	List(ctx context.Context, ownerID int64) ([]models.UserToken, error)
	PurgeExpired(ctx context.Context, asOf time.Time) (int64, error)
	Now() time.Time
}

type IdentityService interface {
	Upsert(ctx context.Context, discordID, username, avatarRef string) (*models.User, error)
	Get(ctx context.Context, id int64) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
	Delete(ctx context.Context, id int64) error
}

type Options struct {
	// AdminKey enables the /admin routes when not empty.
	AdminKey string
	// IssueRateLimit is the number of tokens one account may create per
	// IssueRateWindow. Zero disables the limit.
	IssueRateLimit  int
	IssueRateWindow time.Duration
}

type API struct {
	validator  Validator
	tokens     TokenService
	identities IdentityService
	logger     logging.Logger
	adminKey   string
	opts       Options
}

func NewAPI(l logging.Logger, v Validator, ts TokenService, is IdentityService, opts Options) *API {
	if opts.IssueRateWindow <= 0 {
		opts.IssueRateWindow = time.Minute
	}
	return &API{
		validator:  v,
		tokens:     ts,
		identities: is,
		logger:     l.With("module", "http_api"),
		adminKey:   opts.AdminKey,
		opts:       opts,
	}
}

// Routes builds the full handler tree.
func (a *API) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(a.accessLog)
	r.Use(middleware.Recoverer)

	r.Mount("/api", a.apiRoutes())
	r.Mount("/admin", a.adminRoutes())

	return r
}

func (a *API) apiRoutes() chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("OK"))
	})

	r.Group(func(r chi.Router) {
		r.Use(a.Authenticated)

		r.Get("/me", a.getMe)
		r.Get("/user_tokens", a.listTokens)
		r.Delete("/user_token/{id}", a.revokeToken)

		r.Group(func(r chi.Router) {
			if a.opts.IssueRateLimit > 0 {
				r.Use(httprate.Limit(a.opts.IssueRateLimit, a.opts.IssueRateWindow,
					httprate.WithKeyFuncs(httprate.KeyByEndpoint, rateKeyByUser),
					httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
						writeError(w, http.StatusTooManyRequests, "Too many tokens created, slow down")
					}),
				))
			}

			r.Post("/user_token", a.createToken)
		})
	})

	return r
}

func (a *API) adminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(a.AdminOnly)

	r.Post("/users", a.upsertUser)
	r.Get("/users", a.listUsers)
	r.Get("/users/{id}", a.getUser)
	r.Delete("/users/{id}", a.deleteUser)
	r.Post("/purge", a.purgeExpired)

	return r
}
