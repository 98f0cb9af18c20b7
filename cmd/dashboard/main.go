package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/larrabee/ceph/internal/accountcli"
	"github.com/larrabee/ceph/internal/app"
	"github.com/larrabee/ceph/internal/observability"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	command := "serve"
	if len(args) > 0 {
		command = args[0]
	}
	if command != "serve" && !accountcli.IsCommand(command) {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", command)
		accountcli.Usage(os.Stderr)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		return 1
	}

	logger := app.NewLogger(cfg)

	backends, err := app.OpenBackends(ctx, cfg, logger)
	if err != nil {
		logger.Error("open backends", slog.Any("error", err))
		return 1
	}
	defer backends.Close()

	metrics := observability.NewMetrics()
	components := app.Assemble(cfg, backends.Stores(), metrics, logger)
	if err := components.Bootstrap(ctx, cfg, logger); err != nil {
		logger.Error("bootstrap administrator", slog.Any("error", err))
		return 1
	}

	if command != "serve" {
		cli := accountcli.New(components.Users, components.Roles, os.Stdout, os.Stderr)
		return cli.Run(ctx, args)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:     logger,
		Config:     cfg,
		Components: components,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		return 1
	}
	return 0
}
