package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"retador/internal/config"
	"retador/pkg/types"
)

type fakeSender struct {
	mu    sync.Mutex
	errs  []error // scripted returns, in order; nil after the script
	sent  []string
	calls int
}

func (f *fakeSender) SendMessage(_ context.Context, _ int64, html string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return err
		}
	}
	f.sent = append(f.sent, html)
	return nil
}

func (f *fakeSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func gwConfig() config.TelegramConfig {
	return config.TelegramConfig{
		MaxQueueSize: 10,
		MaxRetries:   3,
		MaxWait:      2 * time.Second,
		SendsPerSec:  30,
	}
}

func gwPick(profit float64) *types.Pick {
	return &types.Pick{Profit: profit, ChannelID: -100111}
}

func newTestGateway(cfg config.TelegramConfig, onSent func(context.Context, *types.Pick), bots ...Sender) *Gateway {
	logger := slog.New(slog.NewTextHandler(discard{}, nil))
	return NewGateway(cfg, bots, onSent, logger)
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestQueuePopsHighestProfitFirst(t *testing.T) {
	t.Parallel()
	g := newTestGateway(gwConfig(), nil, &fakeSender{})

	g.Enqueue(gwPick(1.0), "low")
	g.Enqueue(gwPick(5.0), "high")
	g.Enqueue(gwPick(3.0), "mid")

	want := []string{"high", "mid", "low"}
	for _, msg := range want {
		env := g.pop()
		if env == nil || env.message != msg {
			t.Fatalf("pop = %+v, want message %q", env, msg)
		}
	}
}

func TestQueueFIFOWithinEqualProfit(t *testing.T) {
	t.Parallel()
	g := newTestGateway(gwConfig(), nil, &fakeSender{})

	g.Enqueue(gwPick(2.0), "first")
	g.Enqueue(gwPick(2.0), "second")
	g.Enqueue(gwPick(2.0), "third")

	for _, msg := range []string{"first", "second", "third"} {
		if env := g.pop(); env.message != msg {
			t.Fatalf("pop = %q, want %q", env.message, msg)
		}
	}
}

func TestEnqueueAtCapacity(t *testing.T) {
	t.Parallel()
	cfg := gwConfig()
	cfg.MaxQueueSize = 2
	g := newTestGateway(cfg, nil, &fakeSender{})

	g.Enqueue(gwPick(2.0), "a")
	g.Enqueue(gwPick(3.0), "b")

	// Equal profit to the worst queued: rejected, queue untouched.
	if g.Enqueue(gwPick(2.0), "tie") {
		t.Error("tie with worst queued pick should be rejected")
	}
	if g.QueueLen() != 2 {
		t.Fatalf("QueueLen = %d, want 2", g.QueueLen())
	}

	// Strictly better: worst is evicted.
	if !g.Enqueue(gwPick(2.5), "better") {
		t.Error("strictly better pick should be accepted")
	}
	if g.QueueLen() != 2 {
		t.Fatalf("QueueLen = %d after eviction, want 2", g.QueueLen())
	}
	if env := g.pop(); env.message != "b" {
		t.Errorf("pop = %q, want b", env.message)
	}
	if env := g.pop(); env.message != "better" {
		t.Errorf("pop = %q, want better (a evicted)", env.message)
	}
	if drops := g.DropStats(); drops.Capacity != 2 {
		t.Errorf("Capacity drops = %d, want 2 (one rejection, one eviction)", drops.Capacity)
	}
}

func TestDeliverySuccessInvokesOnSent(t *testing.T) {
	t.Parallel()
	bot := &fakeSender{}
	var mu sync.Mutex
	var sentPicks []*types.Pick
	g := newTestGateway(gwConfig(), func(_ context.Context, p *types.Pick) {
		mu.Lock()
		sentPicks = append(sentPicks, p)
		mu.Unlock()
	}, bot)

	g.Start(context.Background())
	defer g.Stop(time.Second)

	p := gwPick(2.5)
	g.Enqueue(p, "msg")

	waitFor(t, "delivery", func() bool { return bot.sentCount() == 1 })
	mu.Lock()
	defer mu.Unlock()
	if len(sentPicks) != 1 || sentPicks[0] != p {
		t.Errorf("onSent called with %v, want the enqueued pick once", sentPicks)
	}
}

func TestBadRequestDropsWithoutOnSent(t *testing.T) {
	t.Parallel()
	bot := &fakeSender{errs: []error{fmt.Errorf("%w: bad html", ErrBadRequest)}}
	onSentCalled := false
	g := newTestGateway(gwConfig(), func(context.Context, *types.Pick) {
		onSentCalled = true
	}, bot)

	g.Start(context.Background())
	defer g.Stop(time.Second)

	g.Enqueue(gwPick(2.5), "msg")

	waitFor(t, "bad-request drop", func() bool { return g.DropStats().BadFormat == 1 })
	if onSentCalled {
		t.Error("onSent must not run for a rejected message")
	}
	if bot.calls != 1 {
		t.Errorf("bot called %d times, want 1 (no retry on bad request)", bot.calls)
	}
}

func TestForbiddenRotatesToNextBot(t *testing.T) {
	t.Parallel()
	dead := &fakeSender{errs: []error{fmt.Errorf("%w: kicked", ErrForbidden)}}
	alive := &fakeSender{}
	g := newTestGateway(gwConfig(), nil, dead, alive)

	g.Start(context.Background())
	defer g.Stop(time.Second)

	g.Enqueue(gwPick(2.5), "msg")

	waitFor(t, "rotation to second bot", func() bool {
		return dead.sentCount()+alive.sentCount() == 1
	})
	if g.DropStats().Delivery != 0 {
		t.Error("message dropped despite a working bot")
	}
}

func TestFloodWaitBeyondMaxWaitDrops(t *testing.T) {
	t.Parallel()
	cfg := gwConfig()
	cfg.MaxWait = 100 * time.Millisecond
	bot := &fakeSender{errs: []error{&RetryAfterError{Seconds: 60}}}
	g := newTestGateway(cfg, nil, bot)

	g.Start(context.Background())
	defer g.Stop(time.Second)

	g.Enqueue(gwPick(2.5), "msg")

	waitFor(t, "flood-wait drop", func() bool { return g.DropStats().Delivery == 1 })
	if bot.sentCount() != 0 {
		t.Error("message should not have been delivered")
	}
}

func TestTransientErrorsExhaustRetries(t *testing.T) {
	t.Parallel()
	cfg := gwConfig()
	cfg.MaxRetries = 1
	bot := &fakeSender{errs: []error{
		fmt.Errorf("connection reset"),
		fmt.Errorf("connection reset"),
	}}
	g := newTestGateway(cfg, nil, bot, bot)

	g.Start(context.Background())
	defer g.Stop(2 * time.Second)

	g.Enqueue(gwPick(2.5), "msg")

	waitFor(t, "retry exhaustion", func() bool { return g.DropStats().Delivery == 1 })
}

func TestSendRateBounded(t *testing.T) {
	t.Parallel()
	cfg := gwConfig()
	cfg.SendsPerSec = 3
	bot := &fakeSender{}
	g := newTestGateway(cfg, nil, bot)

	g.Start(context.Background())
	defer g.Stop(3 * time.Second)

	start := time.Now()
	for i := 0; i < 4; i++ {
		g.Enqueue(gwPick(float64(i)), fmt.Sprintf("msg-%d", i))
	}
	waitFor(t, "all sends", func() bool { return bot.sentCount() == 4 })

	// The fourth send has to wait for the window to slide.
	if elapsed := time.Since(start); elapsed < 500*time.Millisecond {
		t.Errorf("4 sends at 3/s finished in %v, window not enforced", elapsed)
	}
}
