// Package runlock keeps two engine runs from overlapping when several
// replicas share a schedule.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"ncbot/pkg/logging"
)

// DefaultKey is the Redis key guarding engine runs.
const DefaultKey = "ncbot:run-lock"

var (
	// ErrLocked means another holder owns the lock.
	ErrLocked = errors.New("runlock: another run holds the lock")
	// ErrLeaseLost means the lease expired and the key no longer holds our token.
	ErrLeaseLost = errors.New("runlock: lease lost")
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript resets the TTL only while the key still holds our token.
var extendScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Client is the subset of the Redis API the lock needs.
type Client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.BoolCmd
	goredis.Scripter
}

// Locker is a Redis lock with a TTL: if a holder dies, the lock frees itself.
// Do keeps the lease alive while its callback runs, so a run longer than the
// TTL still excludes other replicas.
type Locker struct {
	client Client
	key    string
	ttl    time.Duration
	logger logging.Logger
}

func New(client Client, key string, ttl time.Duration, logger logging.Logger) *Locker {
	if key == "" {
		key = DefaultKey
	}
	return &Locker{client: client, key: key, ttl: ttl, logger: logger}
}

// Lease is a held lock.
type Lease struct {
	locker *Locker
	token  string
}

// Acquire takes the lock or returns ErrLocked.
func (l *Locker) Acquire(ctx context.Context) (*Lease, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if !ok {
		return nil, ErrLocked
	}
	l.logger.WithFields(logging.Fields{"key": l.key, "ttl": l.ttl}).Debug("Acquired run lock")
	return &Lease{locker: l, token: token}, nil
}

// Release frees the lock if it is still ours. A lease that already expired
// and was taken by someone else is left alone.
func (ls *Lease) Release(ctx context.Context) error {
	l := ls.locker
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, ls.token).Int64()
	if err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	if n == 0 {
		l.logger.WithField("key", l.key).Warn("Run lock expired before release")
	}
	return nil
}

// Extend resets the lease TTL. It returns ErrLeaseLost once the key has
// expired or changed hands.
func (ls *Lease) Extend(ctx context.Context) error {
	l := ls.locker
	n, err := extendScript.Run(ctx, l.client, []string{l.key}, ls.token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("extend %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

// keepAlive extends the lease every interval until stop is closed or the
// lease is lost.
func (ls *Lease) keepAlive(ctx context.Context, interval time.Duration, stop <-chan struct{}) {
	l := ls.locker
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			err := ls.Extend(ctx)
			if err == nil {
				continue
			}
			l.logger.WithError(err).WithField("key", l.key).Warn("Failed to extend run lock")
			if errors.Is(err, ErrLeaseLost) {
				return
			}
		}
	}
}

// Do runs fn while holding the lock, extending the lease every third of its
// TTL until fn returns.
func (l *Locker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	lease, err := l.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			l.logger.WithError(err).Warn("Failed to release run lock")
		}
	}()

	if interval := l.ttl / 3; interval > 0 {
		stop := make(chan struct{})
		done := make(chan struct{})
		go func() {
			defer close(done)
			lease.keepAlive(context.WithoutCancel(ctx), interval, stop)
		}()
		defer func() {
			close(stop)
			<-done
		}()
	}
	return fn(ctx)
}
