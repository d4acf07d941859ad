package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/walletflow/walletflow/internal/audit"
	"github.com/walletflow/walletflow/internal/config"
	"github.com/walletflow/walletflow/internal/infra"
	"github.com/walletflow/walletflow/internal/logging"
	"github.com/walletflow/walletflow/internal/routes"
	"github.com/walletflow/walletflow/internal/server"
)

func main() {
	cfg, err := config.Load("wallet-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.AppName)

	ctx := context.Background()

	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		db, err = infra.NewPostgresPool(ctx, infra.PostgresOptions{URL: cfg.DatabaseURL, Schema: infra.SchemaWallet})
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
	} else {
		logger.Warn("DATABASE_URL not set, balances are kept in memory")
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	}

	deps := routes.Deps{Cfg: cfg, DB: db, Cache: cache, Logger: logger}
	if cfg.AuditAMQPURL != "" {
		conn, err := infra.NewAMQPConnection(cfg.AuditAMQPURL)
		if err != nil {
			logger.Error("connect amqp", "error", err)
			os.Exit(1)
		}
		defer conn.Close()
		publisher, err := audit.NewAMQPPublisher(conn, cfg.AuditExchange)
		if err != nil {
			logger.Error("open ledger entry publisher", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		deps.Audit = publisher
	}
	srv, err := server.New(cfg, logger, func(app *fiber.App) error {
		return routes.SetupWallet(app, deps)
	})
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}
