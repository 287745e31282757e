package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"pms/internal/app/server"
	"pms/internal/platform/config"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := server.New(ctx, cfg)
	if err != nil {
		slog.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := app.Run(ctx); err != nil {
		slog.Error("server failed", "err", err)
		stop()
		app.Close()
		os.Exit(1)
	}
	slog.Info("server stopped")
}
