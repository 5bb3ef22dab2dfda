package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/wareflow/wareflow-backend/internal/stockin/allocation"
	"github.com/wareflow/wareflow-backend/internal/stockin/barcode"
	"github.com/wareflow/wareflow-backend/internal/stockin/commit"
	"github.com/wareflow/wareflow-backend/internal/stockin/consumers"
	"github.com/wareflow/wareflow-backend/internal/stockin/events"
	"github.com/wareflow/wareflow-backend/internal/stockin/handler"
	"github.com/wareflow/wareflow-backend/internal/stockin/repository"
	"github.com/wareflow/wareflow-backend/internal/stockin/service"
	"github.com/wareflow/wareflow-backend/internal/stockin/session"
	"github.com/wareflow/wareflow-backend/internal/stockin/status"
	"github.com/wareflow/wareflow-backend/pkg/cache"
	"github.com/wareflow/wareflow-backend/pkg/config"
	"github.com/wareflow/wareflow-backend/pkg/database"
	"github.com/wareflow/wareflow-backend/pkg/httputil"
	"github.com/wareflow/wareflow-backend/pkg/logger"
	"github.com/wareflow/wareflow-backend/pkg/messaging"
)

const serviceName = "stockin-service"

func main() {
	// A missing .env is fine; the environment is used as is
	_ = godotenv.Load()

	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(serviceName, cfg.Server.Environment)
	log.Info().Msg("starting Stock-In Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.MigrateUp(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to apply migrations")
	}

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()
	go rmq.Watch(ctx)

	// Shared cache for sessions, barcode claims and the status board
	var kv cache.Client
	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer rc.Close()
		kv = rc
	} else {
		log.Warn().Msg("no Redis address configured, using in-process cache")
		kv = cache.NewMemoryClient()
	}

	// Initialize event publisher
	publisher, err := events.NewStockInEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	store := repository.NewStore(db)
	board := status.NewBoard(kv, cfg.StockIn.SessionTTL)

	claimer := barcode.NewCacheClaimer(kv, cfg.StockIn.ClaimTTL)
	generator := barcode.NewGenerator(
		store,
		claimer,
		barcode.WithMaxAttempts(cfg.StockIn.IdentifierMaxAttempts),
		barcode.WithLogger(log),
	)

	var remote commit.Strategy
	if cfg.StockIn.CommitEndpointURL != "" {
		remote = commit.NewRemoteStrategy(cfg.StockIn.CommitEndpointURL, cfg.StockIn.RemoteTimeout, log)
	} else {
		log.Info().Msg("no commit endpoint configured, commits run locally")
	}
	processor := commit.NewProcessor(store, remote, commit.NewLocalStrategy(store, publisher, log), publisher, log)

	// Initialize service
	stockInService := service.NewStockInService(
		store,
		session.NewCacheStore(kv, cfg.StockIn.SessionTTL),
		allocation.New(generator, log),
		processor,
		board,
		log,
		service.WithClaimRefresher(claimer),
	)

	// Initialize handlers
	sessionHandler := handler.NewSessionHandler(stockInService, log)
	processHandler := handler.NewProcessHandler(commit.NewAtomicExecutor(store, publisher, log), log)

	// Start status board consumer
	statusConsumer, err := consumers.NewStatusEventConsumer(rmq, board, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create status event consumer")
	}
	if err := statusConsumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start status event consumer")
	}

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", "X-User-ID", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(httputil.UserContext) // Extract acting user from headers

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  serviceName,
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
			"cache":    cache.Health(r.Context(), kv),
		})
	})

	// API routes
	r.Route("/api/v1/stock-in", func(r chi.Router) {
		handler.Routes(r, sessionHandler, processHandler)
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Cancel context to stop consumers
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
