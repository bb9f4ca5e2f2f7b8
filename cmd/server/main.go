package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/standupbot/report-server-go/internal/config"
	"github.com/standupbot/report-server-go/internal/database"
	"github.com/standupbot/report-server-go/internal/handler"
	"github.com/standupbot/report-server-go/internal/jobs"
	"github.com/standupbot/report-server-go/internal/middleware"
	"github.com/standupbot/report-server-go/internal/redis"
	"github.com/standupbot/report-server-go/internal/repository"
	"github.com/standupbot/report-server-go/internal/service"
	"github.com/standupbot/report-server-go/internal/token"
	"github.com/standupbot/report-server-go/internal/util"
	"github.com/standupbot/report-server-go/internal/ws"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setupLogger(cfg.LogFormat, cfg.LogLevel)

	if err := cfg.Validate(cfg.IsProduction()); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("database connected")

	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to apply schema")
	}

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	issuer, err := token.NewIssuer(cfg.JWTSecret, cfg.JWTAlgorithm)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create token issuer")
	}

	sealer, err := util.NewSealer(cfg.EncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid ENCRYPTION_KEY")
	}

	userRepo := repository.NewUserRepository(db.DB)
	reportRepo := repository.NewReportRepository(db.DB)

	registry := ws.NewRegistry()

	userService := service.NewUserService(userRepo)
	reportService := service.NewReportService(reportRepo)
	authService := service.NewAuthService(
		cfg.BotToken, cfg.SignSignatureField, userService, issuer, cfg.JWTTTL(),
	)
	pairingService := service.NewPairingService(
		registry, redis.NewSessionStore(redisClient), userService, issuer, sealer,
		service.PairingConfig{
			BotURL:          cfg.BotURL,
			SessionTTL:      cfg.SessionTTL(),
			TokenTTL:        cfg.ConfirmTokenTTL(),
			SingleUseClaims: cfg.SingleUseClaims,
		},
	)
	rateLimiter := service.NewRateLimiter(redisClient.Client)
	socketHandler := handler.NewSocketHandler(pairingService, cfg.CORSAllowedOrigins)

	router := handler.NewRouter(handler.RouterConfig{
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		Auth:            middleware.NewAuthMiddleware(issuer),
		UserRateLimit:   middleware.NewUserRateLimitMiddleware(rateLimiter, config.DefaultRateLimitPerMin),
		AuthRateLimit:   middleware.NewIPRateLimitMiddleware(rateLimiter, config.AuthRateLimitPerMin, time.Minute, "auth"),
		DebugGuard:      middleware.NewDebugGuard(cfg.Debug, cfg.DebugPasswordHash),
		BodyLimit:       middleware.NewBodyLimitMiddleware(0),
		SecurityHeaders: middleware.NewSecurityHeadersMiddleware(cfg.IsProduction()),
		Socket:          socketHandler,
		Service:         handler.NewServiceHandler(pairingService, authService),
		Debug:           handler.NewDebugHandler(userService, authService, pairingService, cfg.BotToken),
		Reports:         handler.NewReportHandler(reportService),
		Users:           handler.NewUserHandler(userService, reportService),
		Health: handler.NewHealthHandler(map[string]handler.Check{
			"database": db.Ping,
			"redis": func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		}, pairingService.LiveCount),
	})

	sweepJob := jobs.NewSweepJob(registry, pairingService, config.SweepJobInterval)
	sweepJob.Start()
	defer sweepJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().
			Str("addr", cfg.Addr()).
			Str("env", cfg.AppEnv).
			Bool("debug", cfg.Debug).
			Msg("starting server")
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

	// Hijacked login sockets are not tracked by Shutdown.
	registry.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	if err := socketHandler.Wait(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("login sockets still closing")
	}

	log.Info().Msg("server stopped")
}

func setupLogger(format, level string) {
	if format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	// audit events go through log.Ctx and must not be dropped when a
	// context carries no logger of its own.
	zerolog.DefaultContextLogger = &log.Logger

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
