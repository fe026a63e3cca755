// Retador — a surebet pick bot. It polls a surebets feed, validates and
// deduplicates arbitrage records against a sharp reference bookmaker,
// and delivers formatted picks to per-bookmaker Telegram channels.
//
// Architecture:
//
//	main.go              — entry point: loads config, starts engine, waits for SIGINT/SIGTERM
//	engine/engine.go     — orchestrator: poll loop, bounded fan-out, per-record pipeline
//	feed/client.go       — cursor-paginated feed client under an adaptive rate limiter
//	pick/dto.go          — record → pick: sharp/soft identification, pairing rules
//	rules/               — fail-fast validation chain (odds, profit, time, rules, duplicate)
//	dedupe/              — canonical dedup keys, opposite-market map, Redis store
//	calc/                — per-sharp stake tier and min-odds calculators
//	telegram/            — HTML formatter, bot clients, priority-queue gateway
//	cache/               — shared LRU+TTL cache (presence hits, rendered blocks)
//
// Exit codes: 0 clean shutdown, 1 configuration error, 2 unrecoverable
// infrastructure error at startup.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"retador/internal/config"
	"retador/internal/engine"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	books := config.DefaultBookmakers()
	if err := books.Validate(); err != nil {
		slog.Error("invalid bookmaker tables", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	eng := engine.New(cfg, books, logger)

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = eng.CheckBackends(pingCtx)
	cancel()
	if err != nil {
		logger.Error("backend check failed", "error", err)
		os.Exit(2)
	}

	eng.Start()
	logger.Info("retador started",
		"targets", books.Targets,
		"sharps", books.SharpHierarchy,
		"bots", len(cfg.Telegram.BotTokens),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	eng.Stop()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
