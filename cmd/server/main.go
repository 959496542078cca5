package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olyamironova/exchange-sim/internal/adapter/cache"
	"github.com/olyamironova/exchange-sim/internal/adapter/in_memory"
	"github.com/olyamironova/exchange-sim/internal/adapter/pg"
	grpcapi "github.com/olyamironova/exchange-sim/internal/api/grpc"
	"github.com/olyamironova/exchange-sim/internal/api/http"
	"github.com/olyamironova/exchange-sim/internal/config"
	"github.com/olyamironova/exchange-sim/internal/core"
	"github.com/olyamironova/exchange-sim/internal/logger"
	"github.com/olyamironova/exchange-sim/internal/port"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logr, err := logger.FromPath(cfg.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logr.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var repo port.InstrumentRepository = in_memory.NewMemoryRepo()
	if cfg.Storage.PostgresURL != "" {
		pgRepo, err := pg.NewPgRepo(ctx, cfg.Storage.PostgresURL)
		if err != nil {
			logr.Fatal("failed to connect to Postgres", zap.Error(err))
		}
		defer pgRepo.Close(ctx)
		if err := pgRepo.EnsureSchema(ctx); err != nil {
			logr.Fatal("failed to prepare schema", zap.Error(err))
		}
		repo = pgRepo
	}

	var depthCache port.DepthCache = in_memory.NewCache()
	if cfg.Storage.RedisAddr != "" {
		redisCache := cache.NewRedisCache(
			cfg.Storage.RedisAddr,
			cfg.Storage.RedisPassword,
			cfg.Storage.RedisDB,
			cfg.Storage.CacheTTL,
		)
		defer redisCache.Close()
		if err := redisCache.Ping(ctx); err != nil {
			logr.Warn("redis unreachable, depth reads fall back to the live book", zap.Error(err))
		}
		depthCache = redisCache
	}

	retention, err := core.ParseRetention(cfg.Book.Retention)
	if err != nil {
		logr.Fatal("invalid book retention", zap.Error(err))
	}
	engine := core.NewEngine(repo, depthCache,
		core.WithLogger(logr),
		core.WithBookRetention(retention),
		core.WithDepthLevels(cfg.Book.DepthLevels),
	)
	if err := engine.LoadInstruments(ctx); err != nil {
		logr.Fatal("failed to load instruments", zap.Error(err))
	}
	if err := engine.SeedInstruments(ctx, cfg.Instruments); err != nil {
		logr.Fatal("failed to seed instruments", zap.Error(err))
	}

	httpServer := http.NewHTTPServer(engine, logr, cfg.Server.RateLimit)
	go func() {
		if err := httpServer.Run(cfg.Server.HTTPAddr); err != nil {
			logr.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logr.Fatal("failed to listen for gRPC", zap.String("addr", cfg.Server.GRPCAddr), zap.Error(err))
	}
	grpcServer := grpcapi.NewGRPCServer(engine, logr).NewServer()
	go func() {
		logr.Info("gRPC server listening", zap.String("addr", cfg.Server.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logr.Error("gRPC server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logr.Warn("HTTP shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()
}
