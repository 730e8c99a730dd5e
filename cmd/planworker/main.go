package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/plan-intel/internal/app"
	"github.com/joseph-ayodele/plan-intel/internal/common"
	"github.com/joseph-ayodele/plan-intel/internal/server"
	"github.com/joseph-ayodele/plan-intel/internal/worker"
)

func main() {
	cfg := common.LoadConfig()
	logger := common.NewLogger(cfg.Log)

	if err := run(cfg, logger); err != nil {
		logger.Error("planworker.exit", "error", err, "code", common.ErrorCode(err))
		os.Exit(1)
	}
}

func run(cfg *common.Config, logger *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.DB.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	proc, err := a.NewProcessor()
	if err != nil {
		return err
	}

	grpcSrv := server.NewGRPCServer(logger)
	httpSrv := a.NewHTTPServer()
	w := worker.New(a.Jobs, proc, logger,
		worker.WithPollInterval(cfg.Worker.PollInterval),
		worker.WithJobTimeout(cfg.Worker.JobTimeout),
		worker.WithConcurrency(cfg.Worker.Concurrency),
		worker.WithMetrics(a.Metrics),
		worker.WithHealth(grpcSrv.Health()),
	)

	logger.Info("planworker.start",
		"model", cfg.LLM.Model,
		"storage", cfg.Storage.Backend,
		"grpc_addr", cfg.Server.GRPCAddr,
		"http_addr", cfg.Server.HTTPAddr,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(gctx) })
	g.Go(func() error { return grpcSrv.ListenAndServe(gctx, cfg.Server.GRPCAddr) })
	g.Go(func() error { return httpSrv.ListenAndServe(gctx, cfg.Server.HTTPAddr) })
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("planworker.stopped")
	return nil
}
