package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"retador/internal/config"
	"retador/pkg/types"
)

// Fixed query parameters of the surebets feed. Only source, sport and
// cursor vary per deployment.
const (
	paramProduct     = "surebets"
	paramOrder       = "created_at_desc"
	paramLimit       = "5000"
	paramMinProfit   = "-1"
	paramOutcomes    = "2"
	paramStartAge    = "PT10M"
	paramOddsFormat  = "eu"
	paramHideRules   = "true"
	retryAfterHeader = "Retry-After"

	// cursorSortField is the sort-field token the feed expects in the
	// cursor, matching the created_at_desc ordering.
	cursorSortField = "created_at"
)

// CursorStore persists the pagination cursor across restarts.
// Implemented by the dedupe store.
type CursorStore interface {
	Cursor(ctx context.Context) (string, error)
	SetCursor(ctx context.Context, cursor string) error
}

// Client is the cursor-paginated poller of the surebets feed.
//
// Records arrive newest-first; the cursor is taken from the oldest
// (last) record of a non-empty batch so the next call pulls the page
// adjacent to it. The cursor only advances on a successful non-empty
// batch, never on 429 or transport failure.
type Client struct {
	cfg     config.APIConfig
	maxIdle int // total idle-connection bound, from CONCURRENT_REQUESTS
	books   *config.BookmakerConfig
	limiter *AdaptiveLimiter
	cursors CursorStore
	logger  *slog.Logger

	mu          sync.Mutex
	http        *resty.Client
	sessionBorn time.Time
	sessionErrs int
	cursor      string
}

// NewClient creates a feed client with a fresh HTTP session.
func NewClient(cfg *config.Config, books *config.BookmakerConfig, limiter *AdaptiveLimiter, cursors CursorStore, logger *slog.Logger) *Client {
	c := &Client{
		cfg:     cfg.API,
		maxIdle: cfg.Concurrency.ConcurrentRequests,
		books:   books,
		limiter: limiter,
		cursors: cursors,
		logger:  logger.With("component", "feed"),
	}
	c.http = c.newSession()
	c.sessionBorn = time.Now()
	return c
}

// newSession builds a resty client with bearer auth and bounded
// per-host connections. Called again when the session is recycled.
func (c *Client) newSession() *resty.Client {
	transport := &http.Transport{
		MaxConnsPerHost:     c.cfg.ConnectionsPerHost,
		MaxIdleConnsPerHost: c.cfg.ConnectionsPerHost,
		MaxIdleConns:        c.maxIdle,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout: c.cfg.ConnectTimeout,
		}).DialContext,
	}
	return resty.New().
		SetBaseURL(c.cfg.URL).
		SetTimeout(c.cfg.Timeout).
		SetTransport(transport).
		SetHeader("Authorization", "Bearer "+c.cfg.Token).
		SetHeader("Accept", "application/json")
}

// RecoverCursor loads the persisted cursor, if any. Called once at
// startup; a load error is not fatal, polling just starts from the
// newest records.
func (c *Client) RecoverCursor(ctx context.Context) {
	cursor, err := c.cursors.Cursor(ctx)
	if err != nil {
		c.logger.Warn("cursor recovery failed, starting fresh", "error", err)
		return
	}
	if cursor != "" {
		c.mu.Lock()
		c.cursor = cursor
		c.mu.Unlock()
		c.logger.Info("cursor recovered", "cursor", cursor)
	}
}

// Fetch returns the next batch of records. A rate-limited or exhausted
// poll returns an empty batch; only the final transport failure after
// all retries surfaces as an error, and the caller is expected to log
// it and keep polling.
func (c *Client) Fetch(ctx context.Context) ([]types.Record, error) {
	var lastErr error
	for attempt := 0; attempt < c.cfg.Retries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, c.backoff(attempt)); err != nil {
				return nil, err
			}
		}

		records, retry, err := c.fetchOnce(ctx)
		if err == nil {
			return records, nil
		}
		lastErr = err
		if !retry {
			return nil, err
		}
		c.recordSessionError()
	}
	return nil, fmt.Errorf("fetch records: %w", lastErr)
}

// fetchOnce performs a single GET. The second return reports whether
// the failure is worth retrying within this poll.
func (c *Client) fetchOnce(ctx context.Context) ([]types.Record, bool, error) {
	c.maybeRecycleSession()

	var result types.FeedResponse
	req := c.session().R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"product":              paramProduct,
			"order":                paramOrder,
			"limit":                paramLimit,
			"min-profit":           paramMinProfit,
			"outcomes":             paramOutcomes,
			"hide-different-rules": paramHideRules,
			"start-age":            paramStartAge,
			"odds-format":          paramOddsFormat,
			"source":               c.books.SourceParam(),
			"sport":                c.books.SportParam(),
		}).
		SetResult(&result)
	if cursor := c.currentCursor(); cursor != "" {
		req.SetQueryParam("cursor", cursor)
	}

	resp, err := req.Get("")
	if err != nil {
		return nil, true, fmt.Errorf("feed request: %w", err)
	}

	switch {
	case resp.StatusCode() == http.StatusTooManyRequests:
		c.limiter.OnRateLimit()
		c.honorRetryAfter(ctx, resp.Header().Get(retryAfterHeader))
		return nil, false, nil

	case resp.StatusCode() == http.StatusOK:
		c.limiter.OnSuccess()
		if len(result.Records) > 0 {
			c.advanceCursor(ctx, result.Records[len(result.Records)-1])
		}
		return result.Records, false, nil

	default:
		return nil, true, fmt.Errorf("feed status %d: %s", resp.StatusCode(), resp.String())
	}
}

// advanceCursor derives the "{sort_by}:{id}" cursor from the oldest
// record of the batch and persists it. A persistence failure only costs
// replay after a crash, so it is logged and ignored.
func (c *Client) advanceCursor(ctx context.Context, oldest types.Record) {
	cursor := fmt.Sprintf("%s:%s", cursorSortField, oldest.ID.String())

	c.mu.Lock()
	c.cursor = cursor
	c.mu.Unlock()

	if err := c.cursors.SetCursor(ctx, cursor); err != nil {
		c.logger.Warn("cursor persist failed", "cursor", cursor, "error", err)
	}
}

func (c *Client) currentCursor() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

func (c *Client) honorRetryAfter(ctx context.Context, header string) {
	secs, err := strconv.Atoi(header)
	if err != nil || secs <= 0 {
		return
	}
	c.logger.Warn("feed rate limited", "retry_after_s", secs)
	_ = sleepCtx(ctx, time.Duration(secs)*time.Second)
}

func (c *Client) backoff(attempt int) time.Duration {
	d := 500 * time.Millisecond
	for i := 0; i < attempt; i++ {
		d *= 2
	}
	return d
}

func (c *Client) session() *resty.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.http
}

func (c *Client) recordSessionError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionErrs++
}

// maybeRecycleSession replaces the HTTP client when it has aged out or
// accumulated too many transport errors. Long-lived keep-alive sessions
// against the feed go stale in practice.
func (c *Client) maybeRecycleSession() {
	c.mu.Lock()
	defer c.mu.Unlock()

	aged := time.Since(c.sessionBorn) > c.cfg.SessionMaxAge
	errored := c.sessionErrs >= c.cfg.MaxSessionErrors
	if !aged && !errored {
		return
	}

	c.logger.Info("recycling feed session",
		"age", time.Since(c.sessionBorn).Round(time.Second),
		"errors", c.sessionErrs)
	c.http = c.newSession()
	c.sessionBorn = time.Now()
	c.sessionErrs = 0
}

// Close releases idle connections.
func (c *Client) Close() {
	c.session().GetClient().CloseIdleConnections()
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
