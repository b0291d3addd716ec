package support

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultLeadershipTTL = 45 * time.Second
	leadershipRetryDelay = time.Second
	lockOpTimeout        = 5 * time.Second
	minRenewInterval     = time.Second
)

var (
	holderCounter atomic.Uint64

	// Both scripts only touch the key while we still own it.
	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	errLockLost = errors.New("leader lock lost")
)

// RunWithLeader blocks until this instance holds the Redis lock at key, then
// calls run with a context that is cancelled once the lock is lost. After run
// returns the lock is released and acquisition starts over, until ctx is done.
func RunWithLeader(ctx context.Context, key string, ttl time.Duration, run func(context.Context)) error {
	if run == nil {
		return errors.New("support: leader run function cannot be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if ttl <= 0 {
		ttl = DefaultLeadershipTTL
	}

	client, err := GetRedisClient()
	if err != nil {
		return fmt.Errorf("support: leader lock redis client: %w", err)
	}

	for {
		lock, err := acquireLock(ctx, client, key, ttl)
		if err != nil {
			return err
		}

		log.Debug("leader lock: acquired", "key", key)
		run(lock.ctx)
		lock.release()
		log.Debug("leader lock: released", "key", key)

		if err := sleepCtx(ctx, leadershipRetryDelay); err != nil {
			return err
		}
	}
}

type leaderLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// acquireLock polls SETNX until it wins or ctx ends.
func acquireLock(ctx context.Context, client *redis.Client, key string, ttl time.Duration) (*leaderLock, error) {
	token := newHolderToken()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ok, err := client.SetNX(ctx, key, token, ttl).Result()
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			log.Warn("leader lock: setnx failed", "key", key, "error", err)
		case ok:
			lockCtx, cancel := context.WithCancel(ctx)
			lock := &leaderLock{
				client: client,
				key:    key,
				token:  token,
				ttl:    ttl,
				ctx:    lockCtx,
				cancel: cancel,
				done:   make(chan struct{}),
			}
			go lock.keepAlive()
			return lock, nil
		}

		if err := sleepCtx(ctx, leadershipRetryDelay); err != nil {
			return nil, err
		}
	}
}

func (l *leaderLock) keepAlive() {
	interval := l.ttl / 3
	if interval < minRenewInterval {
		interval = minRenewInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			if err := l.extend(); err != nil {
				log.Warn("leader lock: renewal failed", "key", l.key, "error", err)
				l.cancel()
				return
			}
		}
	}
}

func (l *leaderLock) extend() error {
	ctx, cancel := context.WithTimeout(context.Background(), lockOpTimeout)
	defer cancel()

	res, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Result()
	if err != nil {
		return err
	}
	if n, ok := res.(int64); ok && n == 0 {
		return errLockLost
	}
	return nil
}

func (l *leaderLock) release() {
	l.once.Do(func() {
		close(l.done)
		l.cancel()

		ctx, cancel := context.WithTimeout(context.Background(), lockOpTimeout)
		defer cancel()
		if err := unlockScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			log.Warn("leader lock: release failed", "key", l.key, "error", err)
		}
	})
}

func newHolderToken() string {
	host, _ := os.Hostname()
	return fmt.Sprintf("%s-%d-%d-%d", host, os.Getpid(), time.Now().UnixNano(), holderCounter.Add(1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
