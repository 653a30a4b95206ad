package lock

import (
	"context"
	"errors"
	"time"

	"kixikila/internal/config"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrHeld = errors.New("lock held by another owner")

func NewClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
}

// releaseScript deletes the key only when the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Locker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewLocker(client redis.UniversalClient, prefix string, ttl time.Duration) *Locker {
	return &Locker{client: client, prefix: prefix, ttl: ttl}
}

// Acquire takes the lock for name and returns its release func, or ErrHeld.
// The TTL bounds how long a crashed holder can block others.
func (l *Locker) Acquire(ctx context.Context, name string) (func(), error) {
	key := l.prefix + name
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrHeld
	}
	return func() {
		// the request context may already be cancelled
		_ = releaseScript.Run(context.Background(), l.client, []string{key}, token).Err()
	}, nil
}

// Throttle is a set of expiring Redis flags keyed by subject, used for
// resend cooldowns and lockouts.
type Throttle struct {
	client redis.UniversalClient
	prefix string
}

func NewThrottle(client redis.UniversalClient, prefix string) *Throttle {
	return &Throttle{client: client, prefix: prefix}
}

// Claim sets the flag for d. When it is already set it returns false and the
// remaining wait.
func (t *Throttle) Claim(ctx context.Context, subject string, d time.Duration) (bool, time.Duration, error) {
	key := t.prefix + subject
	ok, err := t.client.SetNX(ctx, key, 1, d).Result()
	if err != nil || ok {
		return ok, 0, err
	}
	ttl, err := t.client.TTL(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	if ttl < 0 {
		ttl = d
	}
	return false, ttl, nil
}

// Set raises the flag unconditionally.
func (t *Throttle) Set(ctx context.Context, subject string, d time.Duration) error {
	return t.client.Set(ctx, t.prefix+subject, 1, d).Err()
}

// Active reports whether the flag is raised and for how much longer.
func (t *Throttle) Active(ctx context.Context, subject string) (bool, time.Duration, error) {
	ttl, err := t.client.TTL(ctx, t.prefix+subject).Result()
	if err != nil {
		return false, 0, err
	}
	if ttl <= 0 && ttl != -1 {
		return false, 0, nil
	}
	return true, ttl, nil
}

func (t *Throttle) Clear(ctx context.Context, subject string) error {
	return t.client.Del(ctx, t.prefix+subject).Err()
}
