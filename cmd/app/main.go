package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"booksrare_go/internal/app"
	"booksrare_go/internal/infra"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config")
	pprofAddr := flag.String("pprof", "localhost:6060", "pprof listen address, empty to disable")
	flag.Parse()

	// 1. Pprof Server (for performance profiling)
	if *pprofAddr != "" {
		go func() {
			slog.Info("Pprof server started", slog.String("addr", *pprofAddr))
			if err := http.ListenAndServe(*pprofAddr, nil); err != nil {
				slog.Error("Pprof server failed", slog.Any("error", err))
			}
		}()
	}

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		slog.Error("Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Sequencer (hot path) and settlement feed
	bootstrap.Start(ctx)

	// 5. Periodic metrics
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				snap := infra.GlobalMetrics.Snapshot()
				slog.Info("Metrics",
					slog.Uint64("commands", snap.CommandsProcessed),
					slog.Uint64("settlements", snap.Settlements),
					slog.Uint64("rejections", snap.Rejections),
					slog.Int64("avg_latency_ns", snap.AvgLatencyNs),
					slog.Int("subscribers", int(snap.FeedSubscribers)),
				)
			}
		}
	}()

	slog.InfoContext(ctx, "BooksRare exchange fully operational. Press Ctrl+C to exit.")

	<-ctx.Done()

	slog.Info("Shutting down gracefully...")
	if err := bootstrap.Shutdown(); err != nil {
		slog.Error("Shutdown failed", slog.Any("error", err))
		os.Exit(1)
	}
}
