package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authcore "github.com/vidyalay/authcore"
	enginemetrics "github.com/vidyalay/authcore/metrics/export/prometheus"
	"github.com/vidyalay/authcore/middleware"
)

// NewRouter creates a chi router with the auth routes registered. Guarded
// application routes can be mounted by the caller through mount; it receives
// a sub-router already wrapped in the access-token guard.
func NewRouter(
	engine *authcore.Engine,
	cfg authcore.Config,
	logger *slog.Logger,
	mount func(r chi.Router),
) http.Handler {
	r := chi.NewRouter()

	if logger == nil {
		logger = slog.Default()
	}

	r.Use(Recovery(logger))
	r.Use(RequestLogging(logger))
	r.Use(PrometheusMetrics("authcore"))

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/metrics/engine", enginemetrics.NewPrometheusExporter(engine).Handler().ServeHTTP)

	handler := NewHandler(engine, cfg, logger)
	r.Route("/api/auth", func(r chi.Router) {
		r.With(ContentTypeJSON).Post("/login", handler.Login)
		r.With(ContentTypeJSON).Post("/register", handler.Register)
		r.Get("/refresh", handler.Refresh)
		r.Get("/logout", handler.Logout)
		r.Get("/me", handler.Me)
	})

	if mount != nil {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Guard(engine, cfg.Cookies.AccessName))
			mount(r)
		})
	}

	return r
}
