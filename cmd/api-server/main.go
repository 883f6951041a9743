package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/opd-token-allocation/internal/allocation"
	"github.com/hackgods/opd-token-allocation/internal/api"
	"github.com/hackgods/opd-token-allocation/internal/config"
	"github.com/hackgods/opd-token-allocation/internal/db"
	"github.com/hackgods/opd-token-allocation/internal/doctor"
	"github.com/hackgods/opd-token-allocation/internal/kafkax"
	"github.com/hackgods/opd-token-allocation/internal/logging"
	"github.com/hackgods/opd-token-allocation/internal/opd"
	"github.com/hackgods/opd-token-allocation/internal/ratelimit"
	redisclient "github.com/hackgods/opd-token-allocation/internal/redis"
	"github.com/hackgods/opd-token-allocation/internal/telemetry"
)

const (
	serviceName = "opd-api"
	version     = "1.0.0"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New(serviceName, "prod", "info")
		bootLog.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(serviceName, cfg.Env, cfg.LogLevel)
	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(rootCtx, telemetry.Config{
		Enabled:      cfg.OTelEnabled,
		ServiceName:  serviceName,
		OTLPEndpoint: cfg.OTelEndpoint,
		SampleRatio:  cfg.OTelSamplingRate,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("telemetry setup error")
	}
	metrics, err := telemetry.NewMetrics()
	if err != nil {
		logger.Fatal().Err(err).Msg("metrics setup error")
	}

	opts := []opd.Option{
		opd.WithLogger(logger.With().Str("component", "opd").Logger()),
		opd.WithMetrics(metrics),
	}

	// Connect Postgres
	var pgPool *pgxpool.Pool
	if cfg.PostgresDSN != "" {
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err = db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		if err == nil {
			err = db.NewEventRepository(pgPool).EnsureSchema(pgCtx)
		}
		cancelPg()
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection error")
		}
		defer pgPool.Close()

		repo := db.NewEventRepository(pgPool)
		opts = append(opts, opd.WithSinks(repo), opd.WithStore(repo))
		logger.Info().Msg("connected to Postgres")
	}

	// Connect Redis
	var rdb *redis.Client
	var limiter ratelimit.Limiter
	if cfg.RedisEnabled() {
		rdb, err = redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection error")
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error().Err(err).Msg("error closing redis")
			}
		}()

		opts = append(opts, opd.WithSinks(redisclient.NewEventPublisher(rdb, cfg.RedisEventChannel)))
		limiter = redisclient.NewRateLimiter(rdb, cfg.RateLimitMaxRequests, cfg.RateLimitWindow, "")
		logger.Info().Msg("connected to Redis")
	} else {
		store := ratelimit.NewStore(cfg.RateLimitMaxRequests, cfg.RateLimitWindow)
		store.StartJanitor(rootCtx)
		limiter = store
	}

	if cfg.KafkaEnabled() {
		pub := kafkax.NewEventPublisher(kafkax.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic))
		defer func() {
			if err := pub.Close(); err != nil {
				logger.Error().Err(err).Msg("error closing kafka writer")
			}
		}()
		opts = append(opts, opd.WithSinks(pub))
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("kafka event publisher enabled")
	}

	svc := opd.NewService(allocation.NewEngine(), doctor.NewRegistry(), opts...)

	router := api.NewRouter(api.RouterConfig{
		Service:        svc,
		PgPool:         pgPool,
		Redis:          rdb,
		Logger:         logger,
		Limiter:        limiter,
		Env:            cfg.Env,
		Version:        version,
		AllowedOrigins: cfg.AllowedOrigins,
		BodyLimit:      cfg.BodyLimitBytes,
		RequestTimeout: cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
	case err := <-errCh:
		logger.Error().Err(err).Msg("http server error")
	}

	logger.Info().Dur("timeout", cfg.ShutdownTimeout).Msg("shutting down api-server")
	shutdown(srv, cfg.ShutdownTimeout, shutdownTracing, logger)
}

func shutdown(srv *http.Server, timeout time.Duration, tracing func(context.Context) error, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown error")
	}
	if err := tracing(ctx); err != nil {
		logger.Error().Err(err).Msg("tracer shutdown error")
	}
}
