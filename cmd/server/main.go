package main

import (
	"context"
	"log"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/fastygo/soup/api/handler"
	"github.com/fastygo/soup/domain"
	"github.com/fastygo/soup/internal/config"
	"github.com/fastygo/soup/internal/infrastructure/breaker"
	"github.com/fastygo/soup/internal/infrastructure/buffer"
	"github.com/fastygo/soup/internal/infrastructure/monitor"
	pgInfra "github.com/fastygo/soup/internal/infrastructure/postgres"
	redisInfra "github.com/fastygo/soup/internal/infrastructure/redis"
	"github.com/fastygo/soup/internal/middleware"
	"github.com/fastygo/soup/internal/router"
	"github.com/fastygo/soup/internal/services"
	"github.com/fastygo/soup/internal/services/lifecycle"
	"github.com/fastygo/soup/pkg/httpcontext"
	"github.com/fastygo/soup/pkg/logger"
	"github.com/fastygo/soup/repository/postgres"
	redisRepo "github.com/fastygo/soup/repository/redis"
	frecencyUC "github.com/fastygo/soup/usecase/frecency"
	soupUC "github.com/fastygo/soup/usecase/soup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
		Service:  cfg.AppName,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := lifecycle.New(cfg.Context.ShutdownTimeout, zapLogger)
	manager.Listen(cancel)

	if err := pgInfra.RunMigrations(cfg, zapLogger); err != nil {
		zapLogger.Fatal("migrations failed", zap.Error(err))
	}

	pool, err := pgInfra.NewPool(appCtx, cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("postgres connection failed", zap.Error(err))
	}
	manager.Register("postgres", func(ctx context.Context) error {
		pgInfra.Close(pool, zapLogger)
		return nil
	})

	redisClient, err := redisInfra.NewClient(appCtx, cfg.Redis)
	if err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	manager.Closer("redis", redisClient.Close)

	bufferStore, err := buffer.Open(cfg.Buffer.Path, "tracking", cfg.Buffer.MaxSize)
	if err != nil {
		zapLogger.Fatal("failed to open tracking buffer", zap.Error(err))
	}
	manager.Closer("buffer", bufferStore.Close)

	mon := monitor.New(pool, redisClient, bufferStore, 10*time.Second, zapLogger)
	mon.Start()
	manager.Register("monitor", func(ctx context.Context) error {
		mon.Stop()
		return nil
	})

	frecencyRepo := postgres.NewFrecencyRepository(pool, cfg.Frecency.UpsertAttempts)
	soupRepo := postgres.NewSoupRepository(pool)
	rankingCache := redisRepo.NewRankingCache(redisClient, cfg.Frecency.CacheTTL)

	bufferProcessor := services.NewBufferProcessor(
		bufferStore,
		mon,
		frecencyRepo,
		rankingCache,
		zapLogger,
		services.ProcessorConfig{
			Interval:   cfg.Buffer.SyncInterval,
			BatchSize:  cfg.Buffer.BatchSize,
			MaxRetries: cfg.Buffer.MaxRetry,
			Retention:  time.Duration(cfg.Buffer.RetentionHours) * time.Hour,
		},
	)
	bufferProcessor.Start()
	manager.Register("buffer_processor", func(ctx context.Context) error {
		bufferProcessor.Stop(ctx)
		return nil
	})

	storageBreaker := breaker.New[[]domain.AggregateFrecency]("frecency-storage", cfg.Breaker, zapLogger)
	ranker := frecencyUC.NewRanker(frecencyRepo, soupRepo, rankingCache, storageBreaker, zapLogger)
	tracker := frecencyUC.NewTracker(frecencyRepo, rankingCache, services.NewBufferBridge(bufferProcessor), zapLogger)
	soupUseCase := soupUC.New(soupRepo, ranker, soupUC.Config{
		DefaultLimit: cfg.Soup.DefaultLimit,
		MaxLimit:     cfg.Soup.MaxLimit,
	}, zapLogger)

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout)

	handlers := router.Handlers{
		Soup:   apiHandler.NewSoupHandler(soupUseCase, ctxAdapter, zapLogger),
		Track:  apiHandler.NewTrackHandler(tracker, ctxAdapter, zapLogger),
		Health: apiHandler.NewHealthHandler(mon, ctxAdapter, zapLogger),
	}

	r := router.New(handlers, router.Options{
		Auth:          middleware.JWTAuth(cfg.JWT.Secret, zapLogger),
		TrackLimiter:  middleware.NewUserRateLimiter(cfg.RateLimit, zapLogger).Middleware,
		EnableMetrics: cfg.HTTP.EnableMetrics,
		EnablePprof:   cfg.HTTP.EnablePprof,
	})

	server := &fasthttp.Server{
		Handler:      r.Handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Concurrency:  cfg.HTTP.MaxConn,
		Name:         cfg.AppName,
	}

	manager.Go(appCtx, "http_server", func(context.Context) error {
		zapLogger.Info("server started", zap.String("address", cfg.Address()))
		return server.ListenAndServe(cfg.Address())
	}, cancel)
	manager.Register("http_server", func(ctx context.Context) error {
		return server.ShutdownWithContext(ctx)
	})

	<-appCtx.Done()

	if err := manager.Shutdown(context.Background()); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
}
