// cmd/signald serves signals over HTTP, publishes them to Redis and sends
// periodic notifications for the configured watch list.
//
// Configuration comes from the environment (see config.Load) and the YAML
// universe file named by UNIVERSE_FILE.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"signal-engine/config"
	"signal-engine/internal/app"
	"signal-engine/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.Init("signald", cfg.LogLevel)

	file, err := config.LoadFile(cfg.UniverseFile)
	if err != nil {
		log.Error("universe file", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		log.Info("signal received", slog.String("signal", s.String()))
		cancel()
	}()

	d, err := app.NewDaemon(ctx, cfg, file, log)
	if err != nil {
		log.Error("init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer d.Close()

	log.Info("starting",
		slog.String("api", cfg.APIAddr),
		slog.String("metrics", cfg.MetricsAddr),
		slog.Int("watch", len(file.Watch)))
	if err := d.Run(ctx); err != nil {
		log.Error("fatal", slog.String("error", err.Error()))
		d.Close()
		os.Exit(1)
	}
	log.Info("stopped")
}
