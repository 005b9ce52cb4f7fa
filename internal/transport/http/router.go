package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/federicoroldos/sofull-site/internal/application/notify"
	"github.com/federicoroldos/sofull-site/internal/config"
	"github.com/federicoroldos/sofull-site/internal/transport/http/handler"
	appmiddleware "github.com/federicoroldos/sofull-site/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	// The guard rejects disallowed origins with 403 (including preflight);
	// the CORS handler then echoes allowed origins and answers OPTIONS 204.
	r.Use(appmiddleware.OriginGuard(cfg.AllowedOrigins))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Accept-Language", "X-Client-Timezone", "X-Attempt-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Outer burst throttle, then the documented fixed-window quota.
	burstRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)
	windowRL := appmiddleware.NewFixedWindowLimiter(cfg.RateLimitMax, cfg.RateLimitWindow)

	notifySvc := notify.NewService(notify.ServiceDeps{
		States:        deps.States,
		Mailer:        deps.Mailer,
		Templates:     deps.Templates,
		Outcomes:      deps.Outcomes,
		LoginCooldown: cfg.LoginEmailCooldown,
	})

	healthH := handler.NewHealthHandler()
	authEventH := handler.NewAuthEventHandler(notifySvc, deps.Assertions, deps.Captcha)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health-check", healthH.Ping)
		r.With(burstRL.Limit, windowRL.Limit).Post("/auth-events", authEventH.Dispatch)
	})

	return r
}
