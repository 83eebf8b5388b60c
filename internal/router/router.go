package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"tradechat-backend/internal/handlers"
	"tradechat-backend/internal/middleware"
	"tradechat-backend/internal/websocket"
)

type Options struct {
	FrontendURL string
	// AuthRequired makes every chat and conversation route require a token.
	AuthRequired bool
}

// New builds the HTTP routes. wsHub may be nil when Redis is not configured.
func New(
	log *zap.Logger,
	jwtAuth *middleware.JWTAuth,
	authHandler *handlers.AuthHandler,
	chatHandler *handlers.ChatHandler,
	conversationHandler *handlers.ConversationHandler,
	wsHub *websocket.Hub,
	authLimiter *middleware.RateLimiter,
	opts Options,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(opts.FrontendURL))

	scope := jwtAuth.Optional
	if opts.AuthRequired {
		scope = jwtAuth.Middleware
	}

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {

		// ──── Auth Routes (public) ────
		r.Route("/auth", func(r chi.Router) {
			if authLimiter != nil {
				r.Use(authLimiter.Middleware)
			}
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)

			r.Group(func(r chi.Router) {
				r.Use(jwtAuth.Middleware)
				r.Post("/logout", authHandler.Logout)
				r.Put("/password", authHandler.ChangePassword)
				r.Get("/me", authHandler.Me)
			})
		})

		// ──── Chat Routes ────
		r.Route("/chats", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(scope)
				r.Post("/", chatHandler.Create)
				r.Get("/", chatHandler.List)
				r.Post("/ask", chatHandler.Ask)
				r.Post("/regenerate", chatHandler.Regenerate)
			})

			// Single-message edits always need an owner
			r.Group(func(r chi.Router) {
				r.Use(jwtAuth.Middleware)
				r.Put("/", chatHandler.Update)
				r.Delete("/{id}", chatHandler.Delete)
			})
		})

		// ──── Conversation Routes ────
		r.Route("/conversations", func(r chi.Router) {
			r.Use(scope)
			r.Get("/", conversationHandler.List)
			r.Delete("/{conversationId}", conversationHandler.Delete)
		})

		// ──── WebSocket ────
		if wsHub != nil {
			r.Get("/ws", wsHub.HandleWebSocket)
		}
	})

	return r
}

// NewAuthLimiter is the limiter applied to /api/auth (10 req/min per IP).
func NewAuthLimiter() *middleware.RateLimiter {
	return middleware.NewRateLimiter(10, time.Minute)
}
