package router

import (
	"net/http"

	"finlern/internal/apierror"
	"finlern/internal/auth"
	"finlern/internal/csrf"
	"finlern/internal/http/handlers"
	"finlern/internal/http/middleware"
	"finlern/internal/logging"
	"finlern/internal/ratelimit"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

type Config struct {
	Handlers *handlers.Handlers
	Limiter  middleware.Consumer
	CSRF     *csrf.Validator
	// Identity resolves callers of public and protected routes. Admin routes
	// authenticate with the admin key only.
	Identity auth.Provider
	// Sessions may be nil.
	Sessions     *auth.Sessions
	AdminKey     *auth.AdminKey
	TrustProxy   bool
	MaxBodyBytes int64
	Logger       logging.Logger
}

// NewRouter wires the routes. Every pipeline runs rate limiting first, then
// the body size cap, origin checks, content checks, authentication and
// finally the handler.
func NewRouter(cfg Config) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	identity := cfg.Identity
	if identity == nil {
		identity = auth.NoneProvider{}
	}
	h := cfg.Handlers
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 64 << 10
	}
	secLog := logger.WithComponent("security")

	csrfOpts := middleware.CSRFOptions{MaxTokenBody: maxBody}
	if cfg.Sessions != nil {
		csrfOpts.Sessions = cfg.Sessions
	}
	adminCSRF := csrfOpts
	adminCSRF.EnforceSafe = true

	limit := func(tier ratelimit.Tier) func(http.Handler) http.Handler {
		return middleware.RateLimit(cfg.Limiter, tier, secLog)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.ClientAddress(cfg.TrustProxy))
	r.Use(middleware.AccessLog(logger))
	r.Use(middleware.SecureHeaders)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		apierror.WriteJSON(w, http.StatusNotFound, map[string]string{"message": "Not found."})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		apierror.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"message": "Method not allowed."})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Identify(identity))

			r.With(
				limit(ratelimit.TierSensitive),
				middleware.LimitBody(maxBody),
				middleware.CSRF(cfg.CSRF, csrfOpts, secLog),
				middleware.RejectNUL,
			).Post("/enrollment-email", h.SubmitEnrollment)

			r.With(limit(ratelimit.TierStandard), middleware.RequireIdentity(secLog)).
				Get("/protected/user-info", h.UserInfo)

			r.With(limit(ratelimit.TierStandard)).Get("/auth/error", h.AuthError)
			r.With(limit(ratelimit.TierStandard)).Get("/csrf-token", h.CSRFToken)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(limit(ratelimit.TierAuth))
			r.Use(middleware.CSRF(cfg.CSRF, adminCSRF, secLog))
			r.Use(middleware.RequireAdminKey(cfg.AdminKey, secLog))

			r.Get("/enrollments-export", h.ExportEnrollments)
			r.Get("/enrollments", h.ListEnrollments)
		})
	})

	return r
}
