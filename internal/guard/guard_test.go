package guard

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/steemit/commentd/internal/cache"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type errStore struct{ err error }

func (s errStore) TouchIfIdle(context.Context, string, time.Time, time.Duration, time.Duration) (time.Duration, error) {
	return 0, s.err
}

type blockingStore struct{}

func (blockingStore) TouchIfIdle(ctx context.Context, _ string, _ time.Time, _, _ time.Duration) (time.Duration, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func stores(t *testing.T) map[string]Store {
	t.Helper()

	mem := NewMemoryStore(0)
	t.Cleanup(mem.Close)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return map[string]Store{
		"memory": mem,
		"redis":  cache.NewWithClient(client, "test"),
	}
}

func TestGuard_Window(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
			g := New(store, WithClock(clock.Now))
			ctx := context.Background()
			key := CommentKey("203.0.113.7", "hello-world")
			window := 30 * time.Second

			if d := g.CheckAndTouch(ctx, key, window); !d.Allowed {
				t.Fatalf("first action should be allowed, got %+v", d)
			}

			clock.Advance(5 * time.Second)
			d := g.CheckAndTouch(ctx, key, window)
			if d.Allowed || d.RetryAfter != 25*time.Second {
				t.Errorf("action 5s later = %+v, want denied with 25s", d)
			}

			clock.Advance(25*time.Second - time.Millisecond)
			d = g.CheckAndTouch(ctx, key, window)
			if d.Allowed || d.RetryAfter != time.Millisecond {
				t.Errorf("action at window-1ms = %+v, want denied with 1ms", d)
			}

			clock.Advance(time.Millisecond)
			if d := g.CheckAndTouch(ctx, key, window); !d.Allowed {
				t.Errorf("action at window should be allowed, got %+v", d)
			}

			// the accepted action restarts the window
			if d := g.CheckAndTouch(ctx, key, window); d.Allowed || d.RetryAfter != window {
				t.Errorf("immediate retry = %+v, want denied with full window", d)
			}
		})
	}
}

func TestGuard_DeniedDoesNotExtendWindow(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			clock := &fakeClock{now: time.UnixMilli(1_000_000)}
			g := New(store, WithClock(clock.Now))
			ctx := context.Background()
			key := PreviewKey("198.51.100.1")

			g.CheckAndTouch(ctx, key, time.Second)
			for i := 0; i < 5; i++ {
				clock.Advance(100 * time.Millisecond)
				g.CheckAndTouch(ctx, key, time.Second)
			}
			clock.Advance(500 * time.Millisecond)
			if d := g.CheckAndTouch(ctx, key, time.Second); !d.Allowed {
				t.Errorf("denied attempts should not move the window, got %+v", d)
			}
		})
	}
}

func TestGuard_KeyIsolation(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			g := New(store)
			ctx := context.Background()

			keys := []string{
				CommentKey("203.0.113.7", "a"),
				CommentKey("203.0.113.7", "b"),
				CommentKey("203.0.113.8", "a"),
				PreviewKey("203.0.113.7"),
			}
			for _, key := range keys {
				if d := g.CheckAndTouch(ctx, key, time.Minute); !d.Allowed {
					t.Errorf("first action on %s should be allowed", key)
				}
			}
		})
	}
}

func TestGuard_FailClosed(t *testing.T) {
	t.Run("store error", func(t *testing.T) {
		g := New(errStore{err: errors.New("connection refused")})
		d := g.CheckAndTouch(context.Background(), PreviewKey("x"), time.Second)
		if d.Allowed || d.RetryAfter != FailClosedRetry {
			t.Errorf("got %+v, want denied with %s", d, FailClosedRetry)
		}
	})

	t.Run("store timeout", func(t *testing.T) {
		g := New(blockingStore{}, WithStoreTimeout(10*time.Millisecond))
		d := g.CheckAndTouch(context.Background(), CommentKey("x", "y"), time.Second)
		if d.Allowed || d.RetryAfter != FailClosedRetry {
			t.Errorf("got %+v, want denied with %s", d, FailClosedRetry)
		}
	})
}

func TestGuard_ConcurrentSingleWinner(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			g := New(store)
			key := CommentKey("203.0.113.9", "race")

			var allowed int32
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if g.CheckAndTouch(context.Background(), key, time.Minute).Allowed {
						atomic.AddInt32(&allowed, 1)
					}
				}()
			}
			wg.Wait()

			if allowed != 1 {
				t.Errorf("expected exactly one allowed action, got %d", allowed)
			}
		})
	}
}

func TestKeys(t *testing.T) {
	pk := PreviewKey("203.0.113.7")
	if !strings.HasPrefix(pk, "rate-limit:render:") || len(pk) != len("rate-limit:render:")+64 {
		t.Errorf("unexpected preview key %q", pk)
	}
	if strings.Contains(pk, "203.0.113.7") {
		t.Error("preview key must not contain the raw address")
	}

	ck := CommentKey("203.0.113.7", "slug")
	if ck != "rate-limit:comment:"+cache.HashKey("203.0.113.7|slug") {
		t.Errorf("unexpected comment key %q", ck)
	}

	if classOf(pk) != ClassRender || classOf(ck) != ClassComment {
		t.Errorf("classOf mismatch: %s %s", classOf(pk), classOf(ck))
	}
}

func TestTTL(t *testing.T) {
	tests := []struct {
		interval time.Duration
		expected time.Duration
	}{
		{time.Second, MinTTL},
		{30 * time.Second, MinTTL},
		{90 * time.Second, 90 * time.Second},
		{90*time.Second + time.Millisecond, 91 * time.Second},
	}

	for _, tt := range tests {
		if got := TTL(tt.interval); got != tt.expected {
			t.Errorf("TTL(%s) = %s, want %s", tt.interval, got, tt.expected)
		}
	}
}

func TestMemoryStore_Sweep(t *testing.T) {
	m := NewMemoryStore(0)
	defer m.Close()

	now := time.Unix(1000, 0)
	ctx := context.Background()
	m.TouchIfIdle(ctx, "a", now, time.Second, time.Minute)
	m.TouchIfIdle(ctx, "b", now.Add(30*time.Second), time.Second, time.Minute)

	m.sweep(now.Add(time.Minute))
	if m.Len() != 1 {
		t.Errorf("expected one record after sweep, got %d", m.Len())
	}

	// an expired record behaves as absent even before the sweep
	wait, err := m.TouchIfIdle(ctx, "b", now.Add(2*time.Minute), 10*time.Minute, time.Minute)
	if err != nil || wait != 0 {
		t.Errorf("expired record should allow, got wait=%s err=%v", wait, err)
	}
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	m := NewMemoryStore(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := m.TouchIfIdle(ctx, "a", time.Now(), time.Second, time.Minute); err == nil {
		t.Error("expected error for canceled context")
	}
}
