// brieflab research brief server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/brieflab/internal/api"
	"github.com/ashureev/brieflab/internal/app"
	"github.com/ashureev/brieflab/internal/config"
	"github.com/ashureev/brieflab/internal/healthcheck"
	"github.com/ashureev/brieflab/internal/identity"
	"github.com/ashureev/brieflab/internal/middleware"
	"github.com/ashureev/brieflab/internal/store"
	"github.com/ashureev/brieflab/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	if err := cfg.LLM.Validate(); err != nil {
		slog.Error("Invalid LLM configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "store", cfg.Store.Backend, "search", cfg.Search.Provider)

	// Initialize dependencies.
	stores, err := app.OpenStores(cfg, logger)
	if err != nil {
		slog.Error("Failed to initialize stores", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := stores.Close(); closeErr != nil {
			slog.Error("Failed to close stores", "error", closeErr)
		}
	}()

	if err := stores.Conversations.Ping(context.Background()); err != nil {
		slog.Error("Conversation store health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Stores ready", "backend", cfg.Store.Backend)

	pipeline, err := app.NewPipeline(cfg, stores.Conversations, logger)
	if err != nil {
		slog.Error("Failed to initialize research pipeline", "error", err)
		os.Exit(1)
	}

	checker := healthcheck.NewChecker(3*time.Second, logger)
	checker.Add("conversations", stores.Conversations)
	checker.Add("accounts", stores.Accounts)

	// Initialize handlers.
	baseHandler := api.NewHandler(pipeline, stores.Conversations, logger)
	researchHandler := api.NewResearchHandler(baseHandler)
	accountHandler := api.NewAccountHandler(stores.Accounts, logger)
	healthHandler := api.NewHealthHandler(checker)
	streamHandler := api.NewStreamHandler(baseHandler, cfg.FrontendURL, cfg.IsDevelopment())

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute)
	limitKey := func(r *http.Request) string {
		if owner := identity.OwnerFromContext(r.Context()); owner != "" && cfg.MultiTenant {
			return owner
		}
		return identity.IPFromRequest(r)
	}

	allowedOrigins := []string{"*"}
	if cfg.FrontendURL != "" && !cfg.IsDevelopment() {
		allowedOrigins = []string{cfg.FrontendURL}
	}

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(allowedOrigins))
	r.Use(identity.Middleware(cfg.MultiTenant, cfg.IsDevelopment()))

	// Public routes.
	healthHandler.RegisterHealth(r)
	accountHandler.RegisterRoutes(r)

	// Pipeline routes are rate limited per owner or client IP.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(limiter, limitKey))
		researchHandler.RegisterRoutes(r)
		r.Get("/ws/research", streamHandler.ServeHTTP)
	})

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Research requests can run for the pipeline timeout, so the write
	// timeout leaves room for it.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Research.Timeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limiter.StartEviction(ctx)

	// Start temp file janitor.
	if stores.Files != nil {
		store.StartJanitor(ctx, stores.Files, cfg.JanitorInterval, store.DefaultTempMaxAge)
		slog.Info("Janitor started", "interval", cfg.JanitorInterval, "dir", stores.Files.Root())
	}

	// Start gRPC health server (optional).
	if cfg.GRPCHealthPort != "" {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCHealthPort)
		if err != nil {
			slog.Error("Failed to listen for gRPC health", "error", err)
			os.Exit(1)
		}
		grpcHealth := healthcheck.NewGRPCServer(checker, 15*time.Second)
		go func() {
			slog.Info("gRPC health server listening", "addr", lis.Addr().String())
			if err := grpcHealth.Serve(ctx, lis); err != nil {
				slog.Error("gRPC health server failed", "error", err)
			}
		}()
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
