package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultLeaseTTL is how long a lease survives without a refresh.
const DefaultLeaseTTL = 30 * time.Second

var (
	// ErrLeaseHeld is returned when another instance owns the lease.
	ErrLeaseHeld = errors.New("lease held by another instance")

	// ErrLeaseLost is returned when the lease expired or was taken over.
	ErrLeaseLost = errors.New("lease lost")
)

// Only the owner may extend or drop the key.
var (
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// Lease makes sure a single bot instance spends from a funder account.
type Lease struct {
	rdb   *redis.Client
	key   string
	token string
	ttl   time.Duration
	log   *slog.Logger
}

// NewLease creates a lease on the given funder address.
func (c *Client) NewLease(funder string, ttl time.Duration) *Lease {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	key := leaseKey(funder)
	return &Lease{
		rdb:   c.rdb,
		key:   key,
		token: uuid.NewString(),
		ttl:   ttl,
		log:   slog.Default().With("component", "lease", "key", key),
	}
}

func leaseKey(funder string) string {
	return fmt.Sprintf("blessbot:lease:%s", strings.ToLower(funder))
}

// refreshInterval is a third of the TTL so two refreshes can fail before expiry.
func refreshInterval(ttl time.Duration) time.Duration {
	return ttl / 3
}

// Key returns the Redis key of the lease.
func (l *Lease) Key() string {
	return l.key
}

// Acquire takes the lease or returns ErrLeaseHeld.
func (l *Lease) Acquire(ctx context.Context) error {
	ok, err := l.rdb.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("setnx failed: %w", err)
	}
	if !ok {
		owner, _ := l.rdb.Get(ctx, l.key).Result()
		return fmt.Errorf("%w: %s", ErrLeaseHeld, owner)
	}
	l.log.Info("Lease acquired", "ttl", l.ttl)
	return nil
}

// Keep refreshes the lease until ctx is done. It returns ErrLeaseLost when
// the key no longer belongs to this instance.
func (l *Lease) Keep(ctx context.Context) error {
	ticker := time.NewTicker(refreshInterval(l.ttl))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := refreshScript.Run(ctx, l.rdb, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
			if err != nil {
				l.log.Warn("Lease refresh failed", "error", err)
				continue
			}
			if n == 0 {
				l.log.Error("Lease lost")
				return ErrLeaseLost
			}
		}
	}
}

// Release drops the lease if this instance still owns it.
func (l *Lease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	l.log.Info("Lease released")
	return nil
}
