package guard

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/steemit/commentd/internal/cache"
	"github.com/steemit/commentd/pkg/logging"
	"github.com/steemit/commentd/pkg/telemetry"
)

// Action classes
const (
	ClassRender  = "render"
	ClassComment = "comment"
)

const (
	// MinTTL is the shortest lifetime of a rate-limit record
	MinTTL = 60 * time.Second
	// FailClosedRetry is reported when the store cannot be consulted
	FailClosedRetry = 60 * time.Second

	keyPrefix = "rate-limit:"
)

var decisions = telemetry.NewCounter("guard_decisions_total", "Abuse guard decisions by action class and outcome")

// Store records the last accepted action per key. TouchIfIdle must be atomic: it stores now
// and returns zero when the previous record is absent or at least interval old, otherwise it
// returns the remaining wait without writing.
type Store interface {
	TouchIfIdle(ctx context.Context, key string, now time.Time, interval, ttl time.Duration) (time.Duration, error)
}

// Decision is the outcome of a guard check
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Guard enforces a minimum interval between actions sharing a key
type Guard struct {
	store   Store
	timeout time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// Option configures a Guard
type Option func(*Guard)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// WithStoreTimeout bounds each store call
func WithStoreTimeout(d time.Duration) Option {
	return func(g *Guard) { g.timeout = d }
}

// New creates a guard over store
func New(store Store, opts ...Option) *Guard {
	g := &Guard{
		store:   store,
		timeout: 2 * time.Second,
		now:     time.Now,
		logger:  logging.WithComponent("guard"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// PreviewKey is the guard key for markdown previews from ip
func PreviewKey(ip string) string {
	return keyPrefix + ClassRender + ":" + cache.HashKey(ip)
}

// CommentKey is the guard key for submissions from ip on slug
func CommentKey(ip, slug string) string {
	return keyPrefix + ClassComment + ":" + cache.HashKey(ip, slug)
}

// TTL is the record lifetime for interval: whole seconds rounded up, never below MinTTL
func TTL(interval time.Duration) time.Duration {
	ttl := interval.Truncate(time.Second)
	if ttl < interval {
		ttl += time.Second
	}
	if ttl < MinTTL {
		return MinTTL
	}
	return ttl
}

// CheckAndTouch allows the action and records it when the key has been idle for at least
// minInterval. Store failures deny with FailClosedRetry.
func (g *Guard) CheckAndTouch(ctx context.Context, key string, minInterval time.Duration) Decision {
	class := classOf(key)

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	wait, err := g.store.TouchIfIdle(ctx, key, g.now(), minInterval, TTL(minInterval))
	if err != nil {
		g.logger.Warn("Guard store unavailable, denying",
			zap.String("class", class),
			zap.Error(err),
		)
		decisions.Inc(ctx, "class", class, "outcome", "error")
		return Decision{RetryAfter: FailClosedRetry}
	}

	if wait > 0 {
		decisions.Inc(ctx, "class", class, "outcome", "denied")
		return Decision{RetryAfter: wait}
	}

	decisions.Inc(ctx, "class", class, "outcome", "allowed")
	return Decision{Allowed: true}
}

func classOf(key string) string {
	rest := strings.TrimPrefix(key, keyPrefix)
	if i := strings.IndexByte(rest, ':'); i >= 0 {
		return rest[:i]
	}
	return "unknown"
}
