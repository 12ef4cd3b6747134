package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/provisioning-gateway/internal/config"
	"github.com/openclaw/provisioning-gateway/internal/database"
	"github.com/openclaw/provisioning-gateway/internal/events"
	"github.com/openclaw/provisioning-gateway/internal/handler"
	"github.com/openclaw/provisioning-gateway/internal/httputil"
	"github.com/openclaw/provisioning-gateway/internal/jobs"
	"github.com/openclaw/provisioning-gateway/internal/metrics"
	"github.com/openclaw/provisioning-gateway/internal/middleware"
	"github.com/openclaw/provisioning-gateway/internal/model"
	"github.com/openclaw/provisioning-gateway/internal/redis"
	"github.com/openclaw/provisioning-gateway/internal/repository"
	"github.com/openclaw/provisioning-gateway/internal/service"
	"github.com/openclaw/provisioning-gateway/internal/telegram"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	m := metrics.New(prometheus.DefaultRegisterer)

	userRepo := repository.NewUserRepository(db.DB)

	tgClient := telegram.NewClient(cfg.TelegramWorkerURL, cfg.TelegramWorkerToken, cfg.RemoteCallTimeout())
	newRemote := func(mxid model.UserID) service.RemoteSession {
		return tgClient.Session(mxid)
	}

	whitelist := service.NewWhitelist(cfg.PuppetWhitelist)
	directory := service.NewSessionDirectory(userRepo, newRemote, whitelist, m)
	defer directory.Close()

	publisher := events.NewPublisher(redisClient.Client)
	phaseLimiter := redis.NewRateLimiter(redisClient.Client, cfg.PhaseRateLimitPerMin)
	loginService := service.NewLoginService(userRepo, publisher, phaseLimiter, m, cfg.RemoteCallTimeout())

	authMiddleware := middleware.NewSharedSecretAuth(cfg.SharedSecret, m)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	provisioningHandler := handler.NewProvisioningHandler(directory, whitelist, loginService)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(securityHeadersMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Mount(cfg.Prefix, provisioningHandler.Routes(authMiddleware.Handler, bodyLimitMiddleware.Handler))

	cleanupJob := jobs.NewCleanupJob(userRepo, directory, cfg.SessionIdleTTL(), config.CleanupJobInterval)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Str("prefix", cfg.Prefix).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
