package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"cardforge-backend/internal/handlers"
	"cardforge-backend/internal/middleware"
	"cardforge-backend/internal/websocket"
)

func New(
	jwtAuth *middleware.JWTAuth,
	generationHandler *handlers.GenerationHandler,
	reviewHandler *handlers.ReviewHandler,
	flashcardHandler *handlers.FlashcardHandler,
	extractHandler *handlers.ExtractHandler,
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

	// Generation rate limiter (10 req/min per IP): every request costs an
	// upstream model call
	generateLimiter := middleware.NewRateLimiter(10, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Generation Routes ────
		r.Route("/ai-sessions", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)

			r.Group(func(r chi.Router) {
				r.Use(generateLimiter.Middleware)
				r.Post("/", generationHandler.Generate)
			})

			r.Get("/{sessionID}", reviewHandler.GetSession)
			r.Get("/{sessionID}/candidates", reviewHandler.ListCandidates)
			r.Post("/{sessionID}/candidates/actions", reviewHandler.ApplyActions)
			r.Get("/{sessionID}/events", reviewHandler.SessionEvents)
		})

		// ──── Cross-Session Candidate Routes ────
		r.Route("/candidates", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/other-pending", reviewHandler.ListOtherPending)
			r.Get("/orphaned", reviewHandler.ListOrphaned)
		})

		// ──── Model Catalog ────
		r.Group(func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/models", generationHandler.Models)
		})

		// ──── Flashcard Routes ────
		r.Route("/flashcards", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/", flashcardHandler.Create)
			r.Get("/", flashcardHandler.List)
			r.Get("/{id}", flashcardHandler.Get)
			r.Put("/{id}", flashcardHandler.Update)
			r.Delete("/{id}", flashcardHandler.Delete)
		})

		// ──── Text Extraction ────
		r.Group(func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/extract", extractHandler.Extract)
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
