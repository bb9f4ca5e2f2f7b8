package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/standupbot/report-server-go/internal/config"
	"github.com/standupbot/report-server-go/internal/middleware"
)

// RouterConfig carries everything NewRouter mounts.
type RouterConfig struct {
	AllowedOrigins []string

	Auth            *middleware.AuthMiddleware
	UserRateLimit   *middleware.UserRateLimitMiddleware
	AuthRateLimit   *middleware.IPRateLimitMiddleware
	DebugGuard      *middleware.DebugGuard
	BodyLimit       *middleware.BodyLimitMiddleware
	SecurityHeaders *middleware.SecurityHeadersMiddleware

	Socket  *SocketHandler
	Service *ServiceHandler
	Debug   *DebugHandler
	Reports *ReportHandler
	Users   *UserHandler
	Health  http.Handler
}

func NewRouter(c RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   c.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.DebugPasswordHeader},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Login sockets stay open for minutes, so they bypass the request timeout.
	r.Get("/ws/login", c.Socket.ServeHTTP)
	r.Get("/ws/login/", c.Socket.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
		r.Use(c.BodyLimit.Handler)
		r.Use(c.SecurityHeaders.Handler)

		r.Get("/health", c.Health.ServeHTTP)

		r.Route("/service", func(r chi.Router) {
			r.Post("/confirm-code", c.Service.ConfirmCode)
			r.With(c.AuthRateLimit.Handler).Post("/auth", c.Service.Auth)

			r.Route("/debug", func(r chi.Router) {
				r.Use(c.DebugGuard.Handler)
				r.Mount("/", c.Debug.Routes())
			})
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Use(c.Auth.Handler)
			r.Use(c.UserRateLimit.Handler)
			r.Mount("/", c.Reports.Routes())
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(c.Auth.Handler)
			r.Use(c.UserRateLimit.Handler)
			r.Mount("/", c.Users.Routes())
		})
	})

	return r
}
