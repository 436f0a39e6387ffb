package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"flashcard-backend/internal/handlers"
	"flashcard-backend/internal/metrics"
	"flashcard-backend/internal/middleware"
	"flashcard-backend/internal/websocket"
)

func New(
	jwtAuth *middleware.JWTAuth,
	authHandler *handlers.AuthHandler,
	sessionHandler *handlers.SessionHandler,
	flashcardHandler *handlers.FlashcardHandler,
	catalogHandler *handlers.CatalogHandler,
	wsHub *websocket.Hub,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))
	r.Use(metrics.Middleware)

	// Auth rate limiter (10 req/min per IP)
	authLimiter := middleware.NewRateLimiter(10, time.Minute)
	// Generation calls out to the model, so it gets its own budget
	generateLimiter := middleware.NewRateLimiter(30, time.Minute)

	r.Get("/", handlers.Welcome)
	r.Get("/health", handlers.Health)
	r.Handle("/metrics", metrics.Handler())

	r.With(generateLimiter.Middleware).Post("/generate_flashcard", flashcardHandler.GeneratePublic)

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Auth Routes (public) ────
		r.Route("/auth", func(r chi.Router) {
			r.Use(authLimiter.Middleware)
			r.Post("/signup", authHandler.SignUp)
			r.Post("/login", authHandler.Login)
			r.Post("/google", authHandler.GoogleLogin)
			r.Post("/refresh", authHandler.Refresh)

			r.Group(func(r chi.Router) {
				r.Use(jwtAuth.Middleware)
				r.Post("/logout", authHandler.Logout)
			})
		})

		// ──── Catalog ────
		r.Get("/exams", catalogHandler.ListExams)

		// ──── Flashcard Routes ────
		r.Route("/flashcards", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.With(generateLimiter.Middleware).Post("/generate", flashcardHandler.Generate)
		})

		// ──── Session Routes ────
		r.Route("/sessions", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/", sessionHandler.Start)
			r.Get("/{id}", sessionHandler.Get)
			r.Post("/{id}/answers", sessionHandler.Answer)
			r.Post("/{id}/interactions", sessionHandler.RecordInteraction)
			r.Post("/{id}/end", sessionHandler.End)
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
