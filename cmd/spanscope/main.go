// Package main provides the entry point for the spanscope web viewer.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"spanscope/internal/clients"
	"spanscope/internal/config"
	"spanscope/internal/metrics"
	"spanscope/internal/server"
	"spanscope/internal/telemetry"
	"spanscope/internal/viewmodel"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.App.SlogLevel()}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("spanscope exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry.Endpoint, cfg.Telemetry.ServiceName, version, cfg.Telemetry.Insecure)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("Failed to flush traces", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	backend, err := clients.New(cfg.Backend, m, logger)
	if err != nil {
		return err
	}
	logger.Info("Using trace backend", "kind", cfg.Backend.KindName(), "url", cfg.Backend.URL)

	list := viewmodel.NewTraceList(backend,
		viewmodel.WithLimit(cfg.Backend.GetSearchLimit()),
		viewmodel.WithInterval(cfg.Viewer.GetRefreshIntervalDuration()),
		viewmodel.WithLogger(logger),
		viewmodel.WithMetrics(m),
	)

	sessions, err := server.NewSessions(cfg.Viewer.GetMaxSessions(), func() *viewmodel.DetailView {
		return viewmodel.NewDetailView(backend, logger).WithMetrics(m)
	})
	if err != nil {
		return err
	}
	defer sessions.Close()

	srv := server.New(cfg, server.NewHandler(list, sessions, reg, logger), logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list.Run(gctx)
		return nil
	})
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		list.Stop()
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}
