package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cardforge-backend/internal/config"
	"cardforge-backend/internal/database"
	"cardforge-backend/internal/handlers"
	"cardforge-backend/internal/llm"
	"cardforge-backend/internal/middleware"
	"cardforge-backend/internal/repository"
	"cardforge-backend/internal/router"
	"cardforge-backend/internal/services"
	"cardforge-backend/internal/websocket"
)

func main() {
	log.Println("🚀 Starting CardForge Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Client ────
	redisClient, err := database.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClient.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations"); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Repositories ────
	sessionRepo := repository.NewSessionRepo(pool)
	flashcardRepo := repository.NewFlashcardRepo(pool)
	eventRepo := repository.NewEventRepo(pool)

	// ──── Step 5: Initialize LLM Gateway Client ────
	llmClient, err := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMMaxAttempts)
	if err != nil {
		log.Fatalf("✗ LLM client initialization failed: %v", err)
	}
	log.Println("✓ LLM gateway client initialized")

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	generationService := services.NewGenerationService(llmClient, sessionRepo, flashcardRepo, eventRepo, redisClient)
	reviewService := services.NewReviewService(sessionRepo, flashcardRepo, eventRepo, redisClient)
	extractService := services.NewExtractService()

	// ──── Initialize Handlers ────
	generationHandler := handlers.NewGenerationHandler(generationService)
	reviewHandler := handlers.NewReviewHandler(reviewService)
	flashcardHandler := handlers.NewFlashcardHandler(flashcardRepo)
	extractHandler := handlers.NewExtractHandler(extractService)

	// ──── Step 6: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClient, jwtAuth)
	log.Println("✓ WebSocket hub started")

	// ──── Step 7: Start HTTP Server ────
	r := router.New(
		jwtAuth,
		generationHandler,
		reviewHandler,
		flashcardHandler,
		extractHandler,
		wsHub,
		cfg.FrontendURL,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second, // generation calls wait on the upstream model
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ CardForge Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
