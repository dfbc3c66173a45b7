package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// compare-and-delete: only the holder's token may drop the lease
const leaseReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var (
	ErrLockNotConfigured = errors.New("lock_not_configured")
	ErrLeaseHeld         = errors.New("lease_held")
)

// Locker hands out redis leases so that one process at a time works on a
// rotation boundary. A nil Locker is valid and reports itself disabled.
type Locker struct {
	client  *redis.Client
	release *redis.Script
	owner   string
}

// Lease is a held lock. Its token names the owning process.
type Lease struct {
	locker *Locker
	Key    string
	Token  string
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	owner, err := os.Hostname()
	if err != nil || owner == "" {
		owner = "worldpulse"
	}
	return &Locker{
		client:  client,
		release: redis.NewScript(leaseReleaseScript),
		owner:   fmt.Sprintf("%s/%d", owner, os.Getpid()),
	}
}

// Enabled reports whether the locker is backed by redis.
func (l *Locker) Enabled() bool {
	return l != nil && l.client != nil
}

// BoundaryKey scopes a lease to the UTC day of boundary.
func BoundaryKey(prefix string, boundary time.Time) string {
	return prefix + ":" + boundary.UTC().Format("2006-01-02")
}

// Acquire takes the lease for key or returns ErrLeaseHeld when another
// process holds it. The lease expires after ttl even if never released.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if !l.Enabled() {
		return nil, ErrLockNotConfigured
	}
	if key == "" || ttl <= 0 {
		return nil, fmt.Errorf("lease %q ttl %s: invalid", key, ttl)
	}

	token := l.owner + "/" + uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLeaseHeld
	}
	return &Lease{locker: l, Key: key, Token: token}, nil
}

// Holder returns the token currently stored under key, or "" when free.
func (l *Locker) Holder(ctx context.Context, key string) (string, error) {
	if !l.Enabled() {
		return "", ErrLockNotConfigured
	}
	token, err := l.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return token, err
}

// Release drops the lease if it is still ours. An expired lease that someone
// else has since taken is left alone.
func (le *Lease) Release(ctx context.Context) error {
	if le == nil || !le.locker.Enabled() {
		return nil
	}
	return le.locker.release.Run(ctx, le.locker.client, []string{le.Key}, le.Token).Err()
}
