package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"finlern/internal/logging"
)

// ErrRateLimited is returned (wrapped in *LimitError) when a quota is exceeded.
var ErrRateLimited = errors.New("rate limited")

// LimitError carries the retry delay for a rejected request.
type LimitError struct {
	Tier       Tier
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limited on tier %s, retry after %s", e.Tier, e.RetryAfter)
}

func (e *LimitError) Unwrap() error { return ErrRateLimited }

// ClientKey identifies a caller: an optional authenticated subject plus the
// network address.
type ClientKey struct {
	Subject string
	Address string
}

func (k ClientKey) String() string {
	addr := strings.ToLower(strings.TrimSpace(k.Address))
	if sub := strings.TrimSpace(k.Subject); sub != "" {
		return "sub:" + sub + "|ip:" + addr
	}
	return "ip:" + addr
}

// Health statuses.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// Health reports whether the limiter is enforcing quotas.
type Health struct {
	Status    string    `json:"status"`
	LastError string    `json:"lastError,omitempty"`
	Since     time.Time `json:"since,omitempty"`
}

// Limiter applies tier quotas through a Store. It fails open: a store or
// configuration error lets the request through, logs a warning and marks
// the limiter degraded until the store succeeds again.
type Limiter struct {
	store  Store
	tiers  map[Tier]TierConfig
	logger logging.Logger
	now    func() time.Time

	mu        sync.RWMutex
	health    Health
	permanent bool
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a limiter over store with the given tiers.
func New(store Store, tiers map[Tier]TierConfig, logger logging.Logger, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if err := ValidateTiers(tiers); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Nop()
	}

	copied := make(map[Tier]TierConfig, len(tiers))
	for k, v := range tiers {
		copied[k] = v
	}

	l := &Limiter{
		store:  store,
		tiers:  copied,
		logger: logger.WithComponent("ratelimit"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.health = Health{Status: StatusOK, Since: l.now()}
	return l, nil
}

// NewFailOpen returns a limiter that allows every request and reports itself
// degraded with cause. It is used when the real limiter cannot be built.
func NewFailOpen(cause error, tiers map[Tier]TierConfig, logger logging.Logger) *Limiter {
	if logger == nil {
		logger = logging.Nop()
	}
	l := &Limiter{
		tiers:     tiers,
		logger:    logger.WithComponent("ratelimit"),
		now:       time.Now,
		permanent: true,
	}
	l.health = Health{Status: StatusDegraded, LastError: errString(cause), Since: l.now()}
	l.logger.Warn(context.Background(), cause, "rate limiter unavailable, allowing all requests")
	return l
}

// Consume takes one point from the bucket for (key, tier). It returns a
// *LimitError when the quota is exhausted. The Result is always populated so
// callers can emit rate limit headers.
func (l *Limiter) Consume(ctx context.Context, key ClientKey, tier Tier) (Result, error) {
	now := l.now()
	cfg, ok := l.tiers[tier]
	if l.permanent {
		return openResult(cfg, now), nil
	}

	if l.store == nil || !ok {
		var cause error
		if !ok {
			cause = fmt.Errorf("unknown tier %q", tier)
		} else {
			cause = errors.New("no store configured")
		}
		l.degrade(ctx, cause, tier)
		return openResult(cfg, now), nil
	}

	res, err := l.store.Consume(ctx, string(tier)+":"+key.String(), cfg, now)
	if err != nil {
		l.degrade(ctx, err, tier)
		return openResult(cfg, now), nil
	}
	l.recover(ctx)

	if !res.Allowed {
		return res, &LimitError{Tier: tier, RetryAfter: res.RetryAfter}
	}
	return res, nil
}

// Tier returns the configuration for tier.
func (l *Limiter) Tier(tier Tier) (TierConfig, bool) {
	cfg, ok := l.tiers[tier]
	return cfg, ok
}

// Health returns the current enforcement status.
func (l *Limiter) Health() Health {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.health
}

func (l *Limiter) degrade(ctx context.Context, err error, tier Tier) {
	l.mu.Lock()
	wasOK := l.health.Status == StatusOK
	l.health.Status = StatusDegraded
	l.health.LastError = errString(err)
	if wasOK {
		l.health.Since = l.now()
	}
	l.mu.Unlock()

	l.logger.Warn(ctx, err, "rate limiter failed, allowing request", "tier", string(tier))
}

func (l *Limiter) recover(ctx context.Context) {
	l.mu.RLock()
	degraded := l.health.Status == StatusDegraded
	l.mu.RUnlock()
	if !degraded {
		return
	}

	l.mu.Lock()
	l.health = Health{Status: StatusOK, Since: l.now()}
	l.mu.Unlock()
	l.logger.Info(ctx, "rate limiter recovered")
}

func openResult(cfg TierConfig, now time.Time) Result {
	return Result{
		Allowed:   true,
		Limit:     cfg.Points,
		Remaining: cfg.Points,
		ResetAt:   now.Add(cfg.Window),
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
