package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"flashcard-backend/internal/catalog"
	"flashcard-backend/internal/config"
	"flashcard-backend/internal/database"
	"flashcard-backend/internal/docstore"
	"flashcard-backend/internal/handlers"
	"flashcard-backend/internal/logger"
	"flashcard-backend/internal/metrics"
	"flashcard-backend/internal/middleware"
	"flashcard-backend/internal/repository"
	"flashcard-backend/internal/router"
	"flashcard-backend/internal/services"
	"flashcard-backend/internal/websocket"
)

// Card history outlives any realistic study session.
const cardHistoryTTL = 24 * time.Hour

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	logger.Init(cfg)
	metrics.Init()
	logrus.Info("🚀 Starting Flashcard Backend...")
	logrus.Info("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		logrus.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	logrus.Info("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		logrus.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	logrus.Info("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations"); err != nil {
		logrus.Fatalf("✗ Database migration failed: %v", err)
	}
	logrus.Info("✓ Database migrations applied")

	// ──── Step 5: Open Document Store ────
	store, err := openDocumentStore(cfg, pool)
	if err != nil {
		logrus.Fatalf("✗ Document store initialization failed: %v", err)
	}
	logrus.WithField("backend", cfg.DocumentStore).Info("✓ Document store ready")

	// ──── Step 6: Initialize Flashcard Generator ────
	generator, closeGenerator, err := newGenerator(cfg)
	if err != nil {
		logrus.Fatalf("✗ Flashcard generator initialization failed: %v", err)
	}
	defer closeGenerator()

	// ──── Step 7: Load Exam Catalog ────
	cat, err := catalog.Load(cfg.ExamTopicsPath)
	if err != nil {
		logrus.Fatalf("✗ Exam catalog failed to load: %v", err)
	}
	logrus.WithField("exams", len(cat.Exams())).Info("✓ Exam catalog loaded")

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	publisher := services.NewRedisPublisher(redisClients.PubSub)
	authEvents := services.NewAuthEvents()

	userRepo := repository.NewUserRepo(pool)
	authService := services.NewAuthService(
		userRepo,
		services.NewRedisTokenStore(redisClients.Data),
		jwtAuth,
		authEvents,
		publisher,
		cfg.GoogleClientID,
	)

	recorder := services.NewSessionRecorder(store)
	studyService := services.NewStudyService(
		recorder,
		generator,
		services.NewRedisCardHistory(redisClients.Data, cardHistoryTTL),
		cat,
		publisher,
	)

	audit := authEvents.Subscribe(16)
	go logAuthChanges(audit)

	// ──── Initialize Handlers ────
	authHandler := handlers.NewAuthHandler(authService)
	sessionHandler := handlers.NewSessionHandler(studyService)
	flashcardHandler := handlers.NewFlashcardHandler(studyService, generator)
	catalogHandler := handlers.NewCatalogHandler(cat)

	// ──── Step 8: Start WebSocket Hub ────
	wsHub := websocket.NewHub(websocket.NewRedisUpdates(redisClients.PubSub), jwtAuth)
	logrus.Info("✓ WebSocket hub started")

	// ──── Step 9: Start HTTP Server ────
	r := router.New(
		jwtAuth,
		authHandler,
		sessionHandler,
		flashcardHandler,
		catalogHandler,
		wsHub,
		cfg.FrontendURL,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: time.Duration(cfg.GenerationTimeoutSeconds+15) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logrus.Info("Shutting down...")
		audit.Unsubscribe()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logrus.WithError(err).Warn("HTTP server shutdown incomplete")
		}
		if err := store.Close(ctx); err != nil {
			logrus.WithError(err).Warn("Document store close failed")
		}
		close(done)
	}()

	logrus.Infof("✓ Flashcard Backend ready on http://localhost:%s", cfg.Port)
	logrus.Infof("  API: http://localhost:%s/api/v1", cfg.Port)
	logrus.Infof("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logrus.Fatalf("Server error: %v", err)
	}
	<-done
}

func openDocumentStore(cfg *config.Config, pool *pgxpool.Pool) (docstore.Store, error) {
	switch cfg.DocumentStore {
	case "postgres":
		return docstore.NewPostgresStore(pool), nil
	case "mongo":
		client, err := database.NewMongoClient(cfg.MongoURL)
		if err != nil {
			return nil, err
		}
		return docstore.NewMongoStore(client, cfg.MongoDatabase), nil
	case "memory":
		logrus.Warn("Using in-memory document store; sessions are lost on restart")
		return docstore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown DOCUMENT_STORE %q", cfg.DocumentStore)
	}
}

func newGenerator(cfg *config.Config) (services.FlashcardGenerator, func(), error) {
	if cfg.UsesRemoteGenerator() {
		timeout := time.Duration(cfg.GenerationTimeoutSeconds) * time.Second
		logrus.WithField("endpoint", cfg.GenerationEndpoint).Info("✓ Remote flashcard generator configured")
		return services.NewGenerationClient(cfg.GenerationEndpoint, timeout), func() {}, nil
	}

	gemini, err := services.NewGeminiService(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiConcurrentReqs)
	if err != nil {
		return nil, nil, err
	}
	logrus.WithField("model", cfg.GeminiModel).Info("✓ Gemini client initialized")
	return gemini, gemini.Close, nil
}

func logAuthChanges(sub *services.Subscription) {
	for change := range sub.C {
		entry := logrus.WithFields(logrus.Fields{
			"user_id": change.UserID,
			"at":      change.At,
		})
		if change.User == nil {
			entry.Info("User signed out")
			continue
		}
		entry.WithField("provider", change.User.AuthProvider).Info("User signed in")
	}
}
