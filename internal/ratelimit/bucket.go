package ratelimit

import "time"

// Bucket is the counter state for one key and tier.
type Bucket struct {
	Consumed     int
	WindowStart  time.Time
	BlockedUntil time.Time
}

// Result describes the outcome of a consume call. Limit, Remaining and
// ResetAt are reported on both the success and the failure path.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// consume applies one request to the bucket. Callers must hold whatever
// lock protects b.
func (b *Bucket) consume(cfg TierConfig, now time.Time) Result {
	if !b.BlockedUntil.IsZero() {
		if now.Before(b.BlockedUntil) {
			return Result{
				Limit:      cfg.Points,
				ResetAt:    b.BlockedUntil,
				RetryAfter: b.BlockedUntil.Sub(now),
			}
		}
		// block served; start over
		b.reset(now)
	}

	if b.WindowStart.IsZero() || !now.Before(b.WindowStart.Add(cfg.Window)) {
		b.reset(now)
	}

	windowEnd := b.WindowStart.Add(cfg.Window)
	if b.Consumed >= cfg.Points {
		if cfg.Block > 0 {
			b.BlockedUntil = now.Add(cfg.Block)
			return Result{
				Limit:      cfg.Points,
				ResetAt:    b.BlockedUntil,
				RetryAfter: cfg.Block,
			}
		}
		return Result{
			Limit:      cfg.Points,
			ResetAt:    windowEnd,
			RetryAfter: windowEnd.Sub(now),
		}
	}

	b.Consumed++
	return Result{
		Allowed:   true,
		Limit:     cfg.Points,
		Remaining: cfg.Points - b.Consumed,
		ResetAt:   windowEnd,
	}
}

func (b *Bucket) reset(now time.Time) {
	b.Consumed = 0
	b.WindowStart = now
	b.BlockedUntil = time.Time{}
}
