package telegram

import (
	"container/heap"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"retador/internal/config"
	"retador/pkg/types"
)

// Sender is the bot surface the gateway drives. *Bot implements it;
// tests substitute fakes.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, html string) error
}

// envelope is one queued message. priority is the negated profit, so
// the min-heap pops the most profitable pick first; seq breaks ties in
// enqueue order.
type envelope struct {
	priority float64
	seq      uint64
	pick     *types.Pick
	chatID   int64
	message  string
}

type messageQueue []*envelope

func (q messageQueue) Len() int { return len(q) }
func (q messageQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority < q[j].priority
	}
	return q[i].seq < q[j].seq
}
func (q messageQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *messageQueue) Push(x any) { *q = append(*q, x.(*envelope)) }
func (q *messageQueue) Pop() any {
	old := *q
	n := len(old)
	env := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return env
}

// Drops counts messages the gateway gave up on.
type Drops struct {
	Capacity  uint64 // rejected at enqueue, queue full of better picks
	Delivery  uint64 // all bots tried or deadline exceeded
	BadFormat uint64 // Telegram rejected the message body
}

// Gateway owns the bot pool and the delivery queue. Enqueue is
// non-blocking; one background consumer drains the heap in profit
// order, rotating bots on flood waits and membership errors, and keeps
// the global send rate at or under SendsPerSec in any sliding
// one-second window.
type Gateway struct {
	cfg    config.TelegramConfig
	bots   []Sender
	onSent func(ctx context.Context, p *types.Pick)
	logger *slog.Logger

	mu        sync.Mutex
	queue     messageQueue
	seq       uint64
	botIdx    int
	sendTimes []time.Time
	drops     Drops

	signal chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewGateway creates a gateway over the given bots. onSent runs after
// each confirmed delivery and may be nil.
func NewGateway(cfg config.TelegramConfig, bots []Sender, onSent func(ctx context.Context, p *types.Pick), logger *slog.Logger) *Gateway {
	if onSent == nil {
		onSent = func(context.Context, *types.Pick) {}
	}
	return &Gateway{
		cfg:    cfg,
		bots:   bots,
		onSent: onSent,
		logger: logger.With("component", "gateway"),
		signal: make(chan struct{}, 1),
	}
}

// Start launches the consumer. The gateway runs until Stop.
func (g *Gateway) Start(ctx context.Context) {
	ctx, g.cancel = context.WithCancel(ctx)
	g.wg.Add(1)
	go g.consume(ctx)
}

// Stop lets the consumer drain the queue for up to drainFor, then
// cancels it and waits for exit.
func (g *Gateway) Stop(drainFor time.Duration) {
	deadline := time.Now().Add(drainFor)
	for time.Now().Before(deadline) && g.QueueLen() > 0 {
		time.Sleep(50 * time.Millisecond)
	}
	if g.cancel != nil {
		g.cancel()
	}
	g.wg.Wait()
}

// Enqueue offers a rendered message. At capacity the candidate must
// beat the worst queued pick strictly on profit; equal profit is
// rejected, so a full queue of equally good picks stays stable.
func (g *Gateway) Enqueue(p *types.Pick, message string) bool {
	g.mu.Lock()
	if len(g.queue) >= g.cfg.MaxQueueSize {
		worst := g.worstIndexLocked()
		if -p.Profit >= g.queue[worst].priority {
			g.drops.Capacity++
			g.mu.Unlock()
			g.logger.Warn("queue full, pick rejected", "profit", p.Profit)
			return false
		}
		evicted := g.queue[worst]
		heap.Remove(&g.queue, worst)
		g.drops.Capacity++
		g.logger.Warn("queue full, worst pick evicted", "evicted_profit", evicted.pick.Profit)
	}
	g.seq++
	heap.Push(&g.queue, &envelope{
		priority: -p.Profit,
		seq:      g.seq,
		pick:     p,
		chatID:   p.ChannelID,
		message:  message,
	})
	g.mu.Unlock()

	select {
	case g.signal <- struct{}{}:
	default:
	}
	return true
}

// QueueLen returns the number of queued messages.
func (g *Gateway) QueueLen() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queue)
}

// DropStats returns a snapshot of the drop counters.
func (g *Gateway) DropStats() Drops {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.drops
}

func (g *Gateway) worstIndexLocked() int {
	worst := 0
	for i := 1; i < len(g.queue); i++ {
		w, c := g.queue[worst], g.queue[i]
		if c.priority > w.priority || (c.priority == w.priority && c.seq > w.seq) {
			worst = i
		}
	}
	return worst
}

func (g *Gateway) pop() *envelope {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.queue) == 0 {
		return nil
	}
	return heap.Pop(&g.queue).(*envelope)
}

func (g *Gateway) consume(ctx context.Context) {
	defer g.wg.Done()
	for {
		env := g.pop()
		if env == nil {
			select {
			case <-ctx.Done():
				return
			case <-g.signal:
				continue
			}
		}
		if ctx.Err() != nil {
			return
		}
		g.deliver(ctx, env)
	}
}

// deliver pushes one message out, rotating through bots. A message is
// dropped, never re-queued, once every bot was tried, the per-message
// deadline passed, or Telegram rejected the body.
func (g *Gateway) deliver(ctx context.Context, env *envelope) {
	tried := make(map[int]bool, len(g.bots))
	deadline := time.Now().Add(g.cfg.MaxWait)
	transient := 0

	for {
		if ctx.Err() != nil {
			return
		}
		if time.Now().After(deadline) {
			g.dropDelivery(env, "delivery deadline exceeded")
			return
		}
		idx, bot := g.nextBot(tried)
		if bot == nil {
			g.dropDelivery(env, "all bots exhausted")
			return
		}

		if err := g.waitSendSlot(ctx); err != nil {
			return
		}
		err := bot.SendMessage(ctx, env.chatID, env.message)
		g.recordSend()

		var retryAfter *RetryAfterError
		switch {
		case err == nil:
			g.onSent(ctx, env.pick)
			return

		case errors.As(err, &retryAfter):
			tried[idx] = true
			wait := time.Duration(retryAfter.Seconds) * time.Second
			if wait > g.cfg.MaxWait {
				g.dropDelivery(env, "flood wait exceeds max wait")
				return
			}
			g.logger.Warn("flood wait, rotating bot", "bot", idx, "wait", wait)
			if sleepCtx(ctx, wait) != nil {
				return
			}

		case errors.Is(err, ErrForbidden):
			tried[idx] = true
			g.logger.Warn("bot forbidden in channel", "bot", idx, "chat", env.chatID)

		case errors.Is(err, ErrBadRequest):
			g.mu.Lock()
			g.drops.BadFormat++
			g.mu.Unlock()
			g.logger.Error("message rejected by telegram", "chat", env.chatID, "error", err)
			return

		default:
			tried[idx] = true
			transient++
			if transient > g.cfg.MaxRetries {
				g.dropDelivery(env, "retries exhausted")
				return
			}
			backoff := time.Second
			for i := 1; i < transient; i++ {
				backoff *= 2
			}
			g.logger.Warn("send failed, backing off", "bot", idx, "attempt", transient, "error", err)
			if sleepCtx(ctx, backoff) != nil {
				return
			}
		}
	}
}

// nextBot returns the next untried bot round-robin, or (-1, nil) when
// every bot was tried for this message.
func (g *Gateway) nextBot(tried map[int]bool) (int, Sender) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for range g.bots {
		idx := g.botIdx % len(g.bots)
		g.botIdx++
		if !tried[idx] {
			return idx, g.bots[idx]
		}
	}
	return -1, nil
}

// waitSendSlot blocks until a send fits inside the sliding one-second
// window shared by all bots.
func (g *Gateway) waitSendSlot(ctx context.Context) error {
	for {
		g.mu.Lock()
		now := time.Now()
		cutoff := now.Add(-time.Second)
		keep := g.sendTimes[:0]
		for _, t := range g.sendTimes {
			if t.After(cutoff) {
				keep = append(keep, t)
			}
		}
		g.sendTimes = keep

		if len(g.sendTimes) < g.cfg.SendsPerSec {
			g.mu.Unlock()
			return nil
		}
		wait := time.Second - now.Sub(g.sendTimes[0])
		g.mu.Unlock()

		if wait <= 0 {
			wait = time.Millisecond
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
}

func (g *Gateway) recordSend() {
	g.mu.Lock()
	g.sendTimes = append(g.sendTimes, time.Now())
	g.mu.Unlock()
}

func (g *Gateway) dropDelivery(env *envelope, reason string) {
	g.mu.Lock()
	g.drops.Delivery++
	g.mu.Unlock()
	g.logger.Error("message dropped", "chat", env.chatID, "profit", env.pick.Profit, "reason", reason)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
