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

	"github.com/joseph-ayodele/acuvera/internal/app"
	"github.com/joseph-ayodele/acuvera/internal/common"
	"github.com/joseph-ayodele/acuvera/internal/repository"
	"github.com/joseph-ayodele/acuvera/internal/server"
)

func main() {
	cfg := common.LoadConfig()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := cfg.Validate(true); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := app.OpenDB(ctx, cfg, false, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	if err := repository.HealthCheck(ctx, db, 5*time.Second, logger); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	if err := db.Migrate(ctx, logger); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	a, err := app.New(ctx, cfg, db, false, logger)
	if err != nil {
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}
	a.Start(ctx)

	health := func(ctx context.Context) error {
		return repository.HealthCheck(ctx, db, 2*time.Second, logger)
	}
	api := server.NewAPI(server.Deps{
		Auth:           server.NewHeaderAuthenticator(a.Users),
		Bills:          a.Bills,
		Dashboard:      a.Dashboard,
		Mobile:         a.Mobile,
		Export:         a.Export,
		Analysis:       a.Orchestrator,
		Seed:           func(ctx context.Context) (any, error) { return a.Seed(ctx) },
		Health:         health,
		MaxUploadBytes: int64(cfg.Upload.MaxFileSizeMB) * 1024 * 1024,
	}, logger)
	routes := api.Routes()
	api.LogRoutes(routes)
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           routes,
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer, hs := server.NewGRPCServer(logger)
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}
	go server.WatchHealth(ctx, hs, health, 15*time.Second, logger)

	go func() {
		logger.Info("grpc health listening", "addr", cfg.Server.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC serve error", "error", err)
			stop()
		}
	}()
	go func() {
		logger.Info("acuvera listening", "addr", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	grpcServer.GracefulStop()
	a.Shutdown(shutdownCtx)
	logger.Info("stopped")
}
