package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/yourusername/jobradar-api/internal/config"
	"github.com/yourusername/jobradar-api/internal/handler"
	"github.com/yourusername/jobradar-api/internal/ingest"
	"github.com/yourusername/jobradar-api/internal/middleware"
	"github.com/yourusername/jobradar-api/internal/repository"
	"github.com/yourusername/jobradar-api/internal/review"
	"github.com/yourusername/jobradar-api/internal/service"
)

func main() {
	// ── Logging ──────────────────────────────────────────
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// ── Config ───────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	log.Info().Str("env", cfg.Env).Str("port", cfg.Port).Msg("Starting JobRadar API")

	// ── Database ─────────────────────────────────────────
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Msg("Database connected")

	// ── Redis ────────────────────────────────────────────
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid REDIS_URL")
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping Redis")
	}
	log.Info().Msg("Redis connected")

	// ── Repositories ─────────────────────────────────────
	jobRepo := repository.NewJobRepo(pool)
	reviewRepo := repository.NewReviewRepo(pool)
	runRepo := repository.NewRunRepo(pool)

	// ── Pipeline ─────────────────────────────────────────
	queue := review.NewRedisQueue(rdb, cfg.QueueKey)
	evaluator := service.NewClaudeEvaluator(cfg.ClaudeAPIKey, cfg.ClaudeBaseURL, cfg.ClaudeModel)

	poller := review.NewPoller(jobRepo, queue, cfg.PollIntervalSeconds, cfg.PollBatch)
	workers := review.NewPool(jobRepo, queue, evaluator, review.PoolConfig{
		Workers:     cfg.ReviewWorkers,
		MaxRetries:  cfg.MaxRetries,
		BackoffBase: time.Duration(cfg.RetryBackoffSeconds) * time.Second,
		EvalTimeout: time.Duration(cfg.EvalTimeoutSeconds) * time.Second,
	})
	overrides := review.NewOverrideService(reviewRepo)

	ingestSvc := ingest.NewService(jobRepo)
	scrapeSvc := service.NewScrapeService([]service.Source{
		service.NewRemotiveClient(),
		service.NewAdzunaClient(cfg.AdzunaAppID, cfg.AdzunaAppKey, "us"),
		service.NewJSearchClient(cfg.RapidAPIKey),
	}, ingestSvc, runRepo, cfg.ScrapeCheckMinutes)

	if err := poller.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start review poller")
	}
	workers.Start(ctx)
	if err := scrapeSvc.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scrape scheduler")
	}

	// ── Handlers ─────────────────────────────────────────
	jobHandler := handler.NewJobHandler(jobRepo)
	reviewHandler := handler.NewReviewHandler(reviewRepo, overrides)
	statusHandler := handler.NewStatusHandler(jobRepo, queue)
	scrapeHandler := handler.NewScrapeHandler(scrapeSvc, runRepo)

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitRPS)

	// ── Router ───────────────────────────────────────────
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())

	// CORS
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type", "X-API-Key"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Health check (unauthenticated)
	r.GET("/health", handler.Health)

	// ── Operator Routes ──────────────────────────────────
	api := r.Group("/", middleware.APIKeyAuth(cfg.APIKey), rateLimiter.Limit())
	{
		// Jobs
		api.GET("/jobs", jobHandler.ListJobs)
		api.GET("/jobs/:id", jobHandler.GetJob)
		api.GET("/jobs/:id/group", jobHandler.GetGroup)
		api.POST("/jobs/:id/archive", jobHandler.ArchiveJob)
		api.POST("/jobs/:id/requeue", jobHandler.RequeueJob)

		// Reviews
		api.GET("/jobs/:id/review", reviewHandler.GetReview)
		api.POST("/jobs/:id/override", reviewHandler.OverrideReview)
		api.GET("/reviews", reviewHandler.ListRecommended)

		// Pipeline
		api.GET("/status", statusHandler.GetStatus)

		// Scraping
		api.POST("/scrape/:site", scrapeHandler.TriggerScrape)
		api.GET("/runs", scrapeHandler.ListRuns)
		api.GET("/schedules", scrapeHandler.ListSchedules)
		api.PUT("/schedules/:id", scrapeHandler.UpdateSchedule)
	}

	// ── Server ───────────────────────────────────────────
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	log.Info().Str("port", cfg.Port).Msg("JobRadar API server running")

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	// Drain the pipeline after the HTTP surface is closed.
	scrapeSvc.Stop()
	poller.Stop()
	workers.Stop()

	log.Info().Msg("Server stopped")
}

// requestLogger logs every request with zerolog
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= 400 {
			event = log.Warn()
		}
		if status >= 500 {
			event = log.Error()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", latency).
			Str("ip", c.ClientIP()).
			Msg(fmt.Sprintf("%s %s", c.Request.Method, path))
	}
}
