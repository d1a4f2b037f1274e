// Package ratelimit throttles WebSocket connection establishment, the one
// place an unauthenticated caller can cheaply exhaust worker-pool capacity
// by opening connections (§2 AMBIENT STACK). It does not rate-limit
// individual signaling messages once a connection is accepted — the worker
// placement formula and per-room capacity gate (§3 Room) already bound the
// cost of an established session.
package ratelimit

import (
	"context"
	"fmt"

	"github.com/brightloop-video/sfu-core/internal/logging"
	"github.com/brightloop-video/sfu-core/internal/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
)

// Limiter gates new WebSocket connections by source IP (AllowIP, checked by
// the hub before upgrade). It also holds a per-user limit (AllowUser), which
// the hub and the signaling dispatcher do not call.
type Limiter struct {
	byIP   *limiter.Limiter
	byUser *limiter.Limiter
}

// New builds a Limiter. perIP/perUser are ulule/limiter formatted rates
// (e.g. "20-M" for 20 per minute). redisClient may be nil, in which case an
// in-process memory store is used — fine for a single instance, but distinct
// instances behind a load balancer will then each enforce the limit
// independently rather than sharing a counter.
func New(perIP, perUser string, redisClient *redis.Client) (*Limiter, error) {
	ipRate, err := limiter.NewRateFromFormatted(perIP)
	if err != nil {
		return nil, fmt.Errorf("invalid WS per-IP rate %q: %w", perIP, err)
	}
	userRate, err := limiter.NewRateFromFormatted(perUser)
	if err != nil {
		return nil, fmt.Errorf("invalid WS per-user rate %q: %w", perUser, err)
	}

	var store limiter.Store
	if redisClient != nil {
		store, err = sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{Prefix: "sfu:ratelimit:"})
		if err != nil {
			return nil, fmt.Errorf("create redis rate limit store: %w", err)
		}
		logging.Info(nil, "websocket rate limiter using redis store")
	} else {
		store = memory.NewStore()
		logging.Warn(nil, "websocket rate limiter using in-process memory store (no REDIS_ADDR configured); limits are per-instance, not shared")
	}

	return &Limiter{
		byIP:   limiter.New(store, ipRate),
		byUser: limiter.New(store, userRate),
	}, nil
}

// AllowIP checks the per-IP limit before the connection's token has even
// been read off the wire. Fails open (allows the connection, logs) if the
// store itself errors, since a store outage must not become a global outage.
func (l *Limiter) AllowIP(ctx context.Context, ip string) bool {
	if l == nil {
		return true
	}
	ctxResult, err := l.byIP.Get(ctx, ip)
	if err != nil {
		logging.Error(ctx, "ws rate limiter store failed (ip)", zap.Error(err))
		return true
	}
	if ctxResult.Reached {
		metrics.RateLimitExceeded.WithLabelValues("ip").Inc()
		return false
	}
	return true
}

// AllowUser checks the per-user limit for userID. Nothing in the hub or the
// signaling dispatcher calls it, so accepted connections are limited by IP
// only.
func (l *Limiter) AllowUser(ctx context.Context, userID string) bool {
	if l == nil {
		return true
	}
	ctxResult, err := l.byUser.Get(ctx, userID)
	if err != nil {
		logging.Error(ctx, "ws rate limiter store failed (user)", zap.Error(err))
		return true
	}
	if ctxResult.Reached {
		metrics.RateLimitExceeded.WithLabelValues("user").Inc()
		return false
	}
	return true
}
