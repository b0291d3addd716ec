package runtime

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"greenweb/internal/app/version"
	"greenweb/internal/config"
)

const (
	presenceOpTimeout = 5 * time.Second
	presenceScanCount = 100
)

// Presence announces a running instance with an expiring Redis key. The key
// lives for two heartbeat intervals, so one missed beat is tolerated.
type Presence struct {
	client   redis.UniversalClient
	key      string
	interval func() time.Duration
}

func NewPresence(client redis.UniversalClient) *Presence {
	return &Presence{
		client:   client,
		key:      config.GetInstanceKeyPrefix() + uuid.NewString(),
		interval: config.GetHeartbeatInterval,
	}
}

func (p *Presence) Key() string {
	return p.key
}

// Beat refreshes the presence key once.
func (p *Presence) Beat(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, presenceOpTimeout)
	defer cancel()
	return p.client.Set(opCtx, p.key, version.Get().Version, 2*p.interval()).Err()
}

// Run beats until ctx is cancelled, then removes the key. The interval is
// re-read after every beat so settings changes apply without a restart.
func (p *Presence) Run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.leave()
			return
		case <-timer.C:
			if err := p.Beat(ctx); err != nil && ctx.Err() == nil {
				log.Error("Failed to refresh instance presence", "key", p.key, "error", err)
			}
			timer.Reset(p.interval())
		}
	}
}

func (p *Presence) leave() {
	ctx, cancel := context.WithTimeout(context.Background(), presenceOpTimeout)
	defer cancel()
	if err := p.client.Del(ctx, p.key).Err(); err != nil {
		log.Warn("Failed to remove instance presence", "key", p.key, "error", err)
	}
}

// CountInstances counts live presence keys under prefix. SCAN keeps Redis
// responsive when the keyspace is large.
func CountInstances(ctx context.Context, client redis.UniversalClient, prefix string) (int, error) {
	if prefix == "" {
		prefix = config.GetInstanceKeyPrefix()
	}

	var (
		cursor uint64
		count  int
	)
	for {
		keys, next, err := client.Scan(ctx, cursor, prefix+"*", presenceScanCount).Result()
		if err != nil {
			return 0, err
		}
		for _, key := range keys {
			if strings.HasPrefix(key, prefix) {
				count++
			}
		}
		cursor = next
		if cursor == 0 {
			return count, nil
		}
	}
}
