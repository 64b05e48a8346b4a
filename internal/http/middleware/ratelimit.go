package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"finlern/internal/apierror"
	"finlern/internal/auth"
	"finlern/internal/logging"
	"finlern/internal/ratelimit"
)

// Consumer is the part of ratelimit.Limiter the middleware needs.
type Consumer interface {
	Consume(ctx context.Context, key ratelimit.ClientKey, tier ratelimit.Tier) (ratelimit.Result, error)
}

// RateLimit consumes one point of tier per request. The X-RateLimit-*
// headers are written on every response; rejected requests get 429 with
// Retry-After.
func RateLimit(limiter Consumer, tier ratelimit.Tier, logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ratelimit.ClientKey{Address: ClientIP(r)}
			if id, ok := auth.IdentityFromContext(r.Context()); ok {
				key.Subject = id.Subject
			}

			res, err := limiter.Consume(r.Context(), key, tier)
			writeRateHeaders(w, res)

			var limitErr *ratelimit.LimitError
			if errors.As(err, &limitErr) {
				logging.LogSecurityEvent(r.Context(), logger, "rate_limited",
					"tier", string(tier),
					"client", key.String(),
					"path", r.URL.Path,
					"retry_after_s", apierror.RetryAfterSeconds(limitErr.RetryAfter),
				)
				apierror.RateLimited(limitErr.RetryAfter).WriteJSON(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeRateHeaders(w http.ResponseWriter, res ratelimit.Result) {
	h := w.Header()
	remaining := res.Remaining
	if remaining < 0 {
		remaining = 0
	}
	h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
}
