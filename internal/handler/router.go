package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/flowchat/internal/auth"
	"github.com/capitalize-ai/flowchat/internal/middleware"
	"github.com/capitalize-ai/flowchat/internal/model"
	"github.com/capitalize-ai/flowchat/pkg/logger"
)

// RouterConfig holds everything the API router is built from.
type RouterConfig struct {
	Health     *HealthHandler
	Auth       *AuthHandler
	Chats      *ChatHandler
	Prediction *PredictionHandler

	Issuer            *auth.Issuer
	Logger            *logger.Logger
	CORSOrigins       []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// NewRouter builds the API routes.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = logger.Global()
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	r.Get("/health", cfg.Health.Health)
	r.Get("/ready", cfg.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if cfg.RateLimitRequests > 0 {
			r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}

		r.Route("/user", func(r chi.Router) {
			r.Post("/register", cfg.Auth.Register)
			r.Post("/login", cfg.Auth.Login)
		})

		// Chat routes are keyed by the email in the path or body, as the web
		// client expects; they do not require a token.
		r.Route("/chats", func(r chi.Router) {
			r.Post("/", cfg.Chats.Create)
			r.Post("/bulk-save", cfg.Chats.BulkSave)
			r.Get("/{userEmail}", cfg.Chats.List)

			r.Route("/{userEmail}/{chatId}", func(r chi.Router) {
				r.Put("/", cfg.Chats.Update)
				r.Delete("/", cfg.Chats.Delete)
				r.Get("/messages", cfg.Chats.Messages)
				r.Post("/messages", cfg.Chats.AddMessage)
			})
		})

		if cfg.Prediction != nil {
			r.Post("/prediction", cfg.Prediction.Predict)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Auth(cfg.Issuer))
				r.Use(middleware.RequireRole(model.RoleAdmin))
				r.Post("/documents/upload", cfg.Prediction.Upload)
			})
		}
	})

	return r
}
