package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alertflow/alertflow/internal/api"
	"github.com/alertflow/alertflow/internal/config"
	"github.com/alertflow/alertflow/internal/dispatch"
	"github.com/alertflow/alertflow/internal/logging"
	"github.com/alertflow/alertflow/internal/normalize"
	"github.com/alertflow/alertflow/internal/observability"
	"github.com/alertflow/alertflow/internal/pipeline"
	"github.com/alertflow/alertflow/internal/push"
	"github.com/alertflow/alertflow/internal/repository"
	"github.com/alertflow/alertflow/internal/sweeper"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	metrics := observability.NewMetrics()
	transport := push.NewLogTransport(logging.Component("push"))
	dispatcher := dispatch.NewDispatcher(transport, cfg.Push.MaxTokensPerBatch, cfg.Push.ChunkWorkers, cfg.Push.TopicPrefix)

	pipe := pipeline.New(
		normalize.NewNormalizer(clockwork.NewRealClock()),
		db,
		db,
		dispatcher,
		logging.Component("pipeline"),
		metrics,
	)

	// Background expiry sweep; the pipeline also sweeps after every run.
	swp := sweeper.New(db, metrics, cfg.Sweep.Schedule)
	if err := swp.Start(); err != nil {
		logging.Fatalf("Failed to start expiry sweeper: %v", err)
	}

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.RateLimitMiddleware(cfg.Server.RateLimit))

	handler := api.NewHandler(pipe, db, db)
	handler.RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	swp.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}
