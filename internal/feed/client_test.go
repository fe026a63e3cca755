package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"retador/internal/config"
)

type memCursorStore struct {
	mu     sync.Mutex
	cursor string
}

func (m *memCursorStore) Cursor(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor, nil
}

func (m *memCursorStore) SetCursor(_ context.Context, cursor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursor = cursor
	return nil
}

func (m *memCursorStore) get() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor
}

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, *AdaptiveLimiter, *memCursorStore) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		API: config.APIConfig{
			URL:                srv.URL,
			Token:              "test-token",
			Timeout:            2 * time.Second,
			ConnectTimeout:     time.Second,
			Retries:            3,
			SessionMaxAge:      time.Hour,
			MaxSessionErrors:   10,
			ConnectionsPerHost: 2,
		},
		Concurrency: config.ConcurrencyConfig{ConcurrentRequests: 4},
	}
	limiter := NewAdaptiveLimiter(10*time.Millisecond, 100*time.Millisecond)
	store := &memCursorStore{}
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	return NewClient(cfg, config.DefaultBookmakers(), limiter, store, logger), limiter, store
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func writeRecords(w http.ResponseWriter, ids ...int) {
	w.Header().Set("Content-Type", "application/json")
	body := `{"records":[`
	for i, id := range ids {
		if i > 0 {
			body += ","
		}
		body += fmt.Sprintf(`{"id":%d,"profit":2.5,"created":%d,"prongs":[]}`, id, 1700000000+id)
	}
	fmt.Fprint(w, body+`]}`)
}

func TestFetchReturnsRecordsAndAdvancesCursor(t *testing.T) {
	t.Parallel()
	var gotAuth, gotProduct, gotCursor string
	c, _, store := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotProduct = r.URL.Query().Get("product")
		gotCursor = r.URL.Query().Get("cursor")
		writeRecords(w, 5, 4, 3)
	})

	records, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotProduct != "surebets" {
		t.Errorf("product = %q, want surebets", gotProduct)
	}
	if gotCursor != "" {
		t.Errorf("first poll sent cursor %q, want none", gotCursor)
	}

	// "{sort_by}:{id}" from the oldest (last) record.
	want := "created_at:3"
	if got := store.get(); got != want {
		t.Errorf("persisted cursor = %q, want %q", got, want)
	}
}

func TestFetchSendsRecoveredCursor(t *testing.T) {
	t.Parallel()
	var gotCursor string
	c, _, store := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotCursor = r.URL.Query().Get("cursor")
		writeRecords(w)
	})

	store.SetCursor(context.Background(), "created_at:42")
	c.RecoverCursor(context.Background())

	if _, err := c.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotCursor != "created_at:42" {
		t.Errorf("cursor param = %q, want recovered value", gotCursor)
	}
}

func TestFetchEmptyBatchDoesNotAdvanceCursor(t *testing.T) {
	t.Parallel()
	c, _, store := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeRecords(w)
	})

	records, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("got %d records, want 0", len(records))
	}
	if got := store.get(); got != "" {
		t.Errorf("cursor advanced to %q on empty batch", got)
	}
}

func TestFetchRateLimited(t *testing.T) {
	t.Parallel()
	c, limiter, store := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	records, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch on 429 should not error, got %v", err)
	}
	if len(records) != 0 {
		t.Errorf("got %d records on 429, want 0", len(records))
	}
	if iv := limiter.Interval(); iv != 20*time.Millisecond {
		t.Errorf("limiter interval = %v after 429, want doubled 20ms", iv)
	}
	if got := store.get(); got != "" {
		t.Errorf("cursor advanced to %q on 429", got)
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	t.Parallel()
	var calls int
	var mu sync.Mutex
	c, _, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeRecords(w, 7)
	})

	records, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("got %d records, want 1", len(records))
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 3 {
		t.Errorf("server saw %d calls, want 3", calls)
	}
}

func TestNewClientBoundsConnections(t *testing.T) {
	t.Parallel()
	c, _, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeRecords(w)
	})

	transport, ok := c.session().GetClient().Transport.(*http.Transport)
	if !ok {
		t.Fatalf("transport is %T, want *http.Transport", c.session().GetClient().Transport)
	}
	if transport.MaxConnsPerHost != 2 {
		t.Errorf("MaxConnsPerHost = %d, want 2", transport.MaxConnsPerHost)
	}
	if transport.MaxIdleConns != 4 {
		t.Errorf("MaxIdleConns = %d, want 4", transport.MaxIdleConns)
	}
}

func TestFetchExhaustsRetries(t *testing.T) {
	t.Parallel()
	c, _, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	if _, err := c.Fetch(context.Background()); err == nil {
		t.Error("expected error after exhausting retries")
	}
}
