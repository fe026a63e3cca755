// Package engine is the central orchestrator of the pick pipeline.
//
// It wires together all subsystems:
//
//  1. The feed client polls the surebets API under the adaptive limiter.
//  2. Each record of a batch is processed by a bounded pool of workers:
//     DTO construction → validation chain → calculation → formatting →
//     gateway enqueue.
//  3. The Telegram gateway delivers queued messages independently; every
//     confirmed send marks the dedup keys in the store.
//
// Lifecycle: New() → Start() → [runs until SIGINT] → Stop()
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"retador/internal/cache"
	"retador/internal/calc"
	"retador/internal/config"
	"retador/internal/dedupe"
	"retador/internal/feed"
	"retador/internal/pick"
	"retador/internal/rules"
	"retador/internal/telegram"
	"retador/pkg/types"
)

// batchStats counts per-batch outcomes for the summary log line.
type batchStats struct {
	total     atomic.Int64
	validated atomic.Int64
	queued    atomic.Int64
	failed    atomic.Int64
}

// Engine orchestrates the poll loop and owns the lifecycle of every
// background goroutine.
type Engine struct {
	cfg       *config.Config
	books     *config.BookmakerConfig
	limiter   *feed.AdaptiveLimiter
	feed      *feed.Client
	store     *dedupe.Store
	chain     *rules.Chain
	calcs     *calc.Factory
	formatter *telegram.Formatter
	gateway   *telegram.Gateway
	local     *cache.Cache
	logger    *slog.Logger

	// sem bounds concurrent per-record workers within a batch.
	sem chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates and wires all pipeline components.
func New(cfg *config.Config, books *config.BookmakerConfig, logger *slog.Logger) *Engine {
	local := cache.New(cfg.Cache.MaxSize)
	store := dedupe.New(cfg.Redis, local, logger)
	limiter := feed.NewAdaptiveLimiter(cfg.Polling.BaseInterval, cfg.Polling.MaxInterval)

	e := &Engine{
		cfg:       cfg,
		books:     books,
		limiter:   limiter,
		feed:      feed.NewClient(cfg, books, limiter, store, logger),
		store:     store,
		chain:     rules.Default(cfg.Validation, store),
		calcs:     calc.NewFactory(cfg.Validation.MinProfit, cfg.Validation.MaxProfit),
		formatter: telegram.NewFormatter(local),
		local:     local,
		logger:    logger.With("component", "engine"),
		sem:       make(chan struct{}, cfg.Concurrency.ConcurrentPicks),
	}

	bots := make([]telegram.Sender, 0, len(cfg.Telegram.BotTokens))
	for i, token := range cfg.Telegram.BotTokens {
		bots = append(bots, telegram.NewBot(token, fmt.Sprintf("bot-%d", i)))
	}
	e.gateway = telegram.NewGateway(cfg.Telegram, bots, e.markSent, logger)

	e.ctx, e.cancel = context.WithCancel(context.Background())
	return e
}

// CheckBackends verifies the dedupe store connection. A failure here is
// an unrecoverable infrastructure error at startup.
func (e *Engine) CheckBackends(ctx context.Context) error {
	if err := e.store.Ping(ctx); err != nil {
		return fmt.Errorf("dedupe store: %w", err)
	}
	return nil
}

// Start launches the gateway consumer, the cache sweeper and the poll
// loop.
func (e *Engine) Start() {
	// The gateway outlives e.ctx so Stop can drain it after the poll
	// loop is cancelled.
	e.gateway.Start(context.Background())

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.local.Run(e.ctx, time.Minute)
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.pollLoop()
	}()
}

// Stop shuts down gracefully: the poll loop stops, the gateway drains
// for up to the maximum polling interval, then every session closes.
func (e *Engine) Stop() {
	e.logger.Info("shutting down...")

	e.cancel()
	e.wg.Wait()

	e.gateway.Stop(e.cfg.Polling.MaxInterval)
	e.feed.Close()
	if err := e.store.Close(); err != nil {
		e.logger.Error("store close failed", "error", err)
	}

	e.logger.Info("shutdown complete")
}

// pollLoop fetches batches strictly serially; only one poll is in
// flight at a time. A per-batch error never ends the loop.
func (e *Engine) pollLoop() {
	e.feed.RecoverCursor(e.ctx)

	for {
		if err := e.limiter.Acquire(e.ctx); err != nil {
			return
		}
		records, err := e.feed.Fetch(e.ctx)
		if err != nil {
			if e.ctx.Err() != nil {
				return
			}
			e.logger.Error("poll failed", "error", err)
			continue
		}
		if len(records) == 0 {
			continue
		}
		e.processBatch(records)
	}
}

// processBatch fans records out to bounded concurrent workers and logs
// the batch summary once all of them finish.
func (e *Engine) processBatch(records []types.Record) {
	start := time.Now()
	var stats batchStats
	var batch sync.WaitGroup

	for _, rec := range records {
		stats.total.Add(1)
		if len(rec.Prongs) != 2 {
			stats.failed.Add(1)
			continue
		}

		select {
		case e.sem <- struct{}{}:
		case <-e.ctx.Done():
			batch.Wait()
			return
		}

		batch.Add(1)
		go func(rec types.Record) {
			defer batch.Done()
			defer func() { <-e.sem }()
			e.processRecord(rec, &stats)
		}(rec)
	}
	batch.Wait()

	e.logger.Info("batch processed",
		"total", stats.total.Load(),
		"validated", stats.validated.Load(),
		"queued", stats.queued.Load(),
		"failed", stats.failed.Load(),
		"took", time.Since(start).Round(time.Millisecond),
	)
}

// processRecord runs one record through the pipeline. Rejections at any
// stage are normal outcomes, counted and dropped.
func (e *Engine) processRecord(rec types.Record, stats *batchStats) {
	p, err := pick.Build(rec, e.books)
	if err != nil {
		stats.failed.Add(1)
		e.logger.Debug("record dropped", "id", rec.ID, "error", err)
		return
	}

	if res := e.chain.Validate(e.ctx, p); !res.OK {
		stats.failed.Add(1)
		e.logger.Debug("pick rejected",
			"id", rec.ID, "validator", res.Validator, "reason", res.Reason)
		return
	}
	stats.validated.Add(1)

	calculator := e.calcs.For(p.SharpBookmaker)
	stake, ok := calculator.Stake(p.Profit)
	if !ok {
		stats.failed.Add(1)
		e.logger.Debug("pick outside stake range", "id", rec.ID, "profit", p.Profit)
		return
	}
	p.Stake = stake
	p.MinOdds = calculator.MinOdds(decimal.NewFromFloat(p.Sharp.Value))

	message := e.formatter.Format(p)
	if !e.gateway.Enqueue(p, message) {
		stats.failed.Add(1)
		return
	}
	stats.queued.Add(1)
}

// markSent persists the dedup keys after a confirmed Telegram send.
func (e *Engine) markSent(ctx context.Context, p *types.Pick) {
	if !e.store.Mark(ctx, p) {
		e.logger.Warn("dedup mark failed, pick may repeat",
			"key", dedupe.Key(p))
	}
}
