package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-auth-service/internal/config"
	"go-auth-service/internal/handler"
	"go-auth-service/internal/middleware"
)

type Handlers struct {
	Auth   *handler.AuthHandler
	Health *handler.HealthHandler
}

func New(cfg *config.Config, authMiddleware *middleware.AuthMiddleware, handlers Handlers) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimitMiddleware.Handler)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", handlers.Health.Health)

	r.Route("/auth", func(auth chi.Router) {
		auth.Post("/signup", handlers.Auth.Signup)
		auth.Post("/login", handlers.Auth.Login)
		auth.Post("/refresh", handlers.Auth.Refresh)
		auth.Post("/logout", handlers.Auth.Logout)
		auth.With(authMiddleware.RequireAuth).Get("/me", handlers.Auth.Me)
	})

	return r
}
