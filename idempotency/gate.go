// Package idempotency deduplicates retried mutating requests with a
// single-owner reservation held in Redis. A reservation is an atomic
// create-if-absent with a TTL, so replay detection is guaranteed only
// within the configured window, not forever.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "idem:"

var (
	// ErrReplay indicates the token is already reserved: the same logical
	// request is in flight or completed within the TTL window.
	ErrReplay = errors.New("idempotency: duplicate request")
	// ErrUnavailable indicates the reservation store could not be reached.
	// The gate fails closed rather than skip deduplication.
	ErrUnavailable = errors.New("idempotency: reservation store unavailable")
)

// Gate reserves client-supplied idempotency tokens.
type Gate struct {
	client *redis.Client
	ttl    time.Duration
}

// NewGate constructs a gate with the supplied reservation TTL.
func NewGate(client *redis.Client, ttl time.Duration) *Gate {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Gate{client: client, ttl: ttl}
}

// Reserve claims the token atomically. ErrReplay is returned when the token
// is already held; ErrUnavailable when the store cannot be reached.
func (g *Gate) Reserve(ctx context.Context, token string) error {
	ok, err := g.client.SetNX(ctx, keyPrefix+token, "1", g.ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ok {
		return ErrReplay
	}
	return nil
}

// Release frees the token so the client can retry after a non-committal
// failure. Successful operations leave the reservation to expire naturally.
func (g *Gate) Release(ctx context.Context, token string) error {
	if err := g.client.Del(ctx, keyPrefix+token).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
