package ratelimit

import (
	"fmt"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/backend-pgi/internal/common"
)

// Fixed is an API-wide fixed-window limiter keyed by client IP.
type Fixed struct {
	Limiter *limiter.Limiter
	OnError func(error)
}

// NewFixed builds a Redis-backed limiter from a formatted rate such as "300-M".
func NewFixed(rdb *redis.Client, formatted string) (*Fixed, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, fmt.Errorf("parse rate %q: %w", formatted, err)
	}
	store, err := limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: "pgi:limiter"})
	if err != nil {
		return nil, fmt.Errorf("limiter store: %w", err)
	}
	return &Fixed{Limiter: limiter.New(store, rate)}, nil
}

// Middleware rejects requests over the configured rate with 429.
func (f *Fixed) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f == nil || f.Limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		lctx, err := f.Limiter.Get(r.Context(), common.ClientIP(r))
		if err != nil {
			if f.OnError != nil {
				f.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}
		resetAt := time.Unix(lctx.Reset, 0)
		writeHeaders(w, lctx.Limit, lctx.Remaining, resetAt)
		if lctx.Reached {
			tooMany(w, resetAt)
			return
		}
		next.ServeHTTP(w, r)
	})
}
