package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"fileportal/internal/app"
)

func main() {
	_ = godotenv.Load()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cfg, err := app.LoadServerConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handle, err := app.RunServer(ctx, cfg)
	if err != nil {
		log.Fatalf("server error: %v", err)
	}
	slog.Info("fileportal server listening", "addr", handle.Addr(), "ttl", cfg.RoomTTL, "notify", cfg.NotifyMode)

	if err := handle.Wait(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
