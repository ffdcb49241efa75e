package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/bjaus/lcservice"
	"github.com/bjaus/lcservice/internal/logging"
	"github.com/bjaus/lcservice/metrics"
	"github.com/bjaus/lcservice/natsrpc"
	"github.com/bjaus/lcservice/platform"
	"github.com/bjaus/lcservice/server"
)

const statusInterval = time.Minute

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Answer envelopes over HTTP (and NATS when enabled)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	slog.SetDefault(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	opts := append(m.Options(),
		lcservice.WithTraceComms(cfg.Service.TraceComms),
		lcservice.WithPlatformFactory(lcservice.RESTPlatform(platform.WithBaseURL(cfg.Platform.APIURL))),
	)
	svc, err := newInventory(cfg.Service.Name, cfg.Service.Secret, logger, opts...)
	if err != nil {
		return fmt.Errorf("build service: %w", err)
	}
	if err := m.Watch(svc); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	svc.Scheduler().Schedule(statusInterval, func(ctx context.Context) error {
		logger.InfoContext(ctx, "status", "calls_in_progress", svc.InFlight())
		return nil
	})

	var responder *natsrpc.Responder
	if cfg.NATS.Enabled {
		ncfg := natsrpc.DefaultConfig()
		ncfg.URL = cfg.NATS.URL
		ncfg.Name = cfg.Service.Name
		conn, err := natsrpc.Connect(ncfg, logger)
		if err != nil {
			return err
		}
		defer conn.Close()
		responder, err = natsrpc.Subscribe(conn, cfg.NATS.Subject, cfg.NATS.Queue, svc, logger)
		if err != nil {
			return err
		}
	}

	srv := server.New(svc, server.Config{
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}, server.WithLogger(logger), server.WithMetrics(reg))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()

	var natsErr error
	if responder != nil {
		natsErr = responder.Close()
	}
	err = errors.Join(serveErr, natsErr, srv.Shutdown(shutdownCtx, cfg.Service.ShutdownGrace))
	if err == nil {
		logger.Info("server stopped gracefully")
	}
	return err
}
