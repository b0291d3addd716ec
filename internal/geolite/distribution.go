package geolite

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	redisFileKey   = "greenweb:geolite:file:" + ASNFileName
	redisChannel   = "greenweb:geolite:updates"
	redisOpTimeout = 30 * time.Second
)

type updateNotice struct {
	UpdatedAt string `json:"updated_at,omitempty"`
}

// Distributor replicates the ASN database through Redis so only the leader
// has to download it from MaxMind.
type Distributor struct {
	client redis.UniversalClient
	reader *Reader
}

func NewDistributor(client redis.UniversalClient, reader *Reader) *Distributor {
	return &Distributor{client: client, reader: reader}
}

// Start pulls the current copy from Redis and follows later updates until ctx ends.
func (d *Distributor) Start(ctx context.Context) {
	if d == nil || d.client == nil {
		log.Warn("GeoLite redis distribution disabled: redis client is nil")
		return
	}

	go func() {
		if updated, err := d.Sync(ctx); err != nil {
			log.Error("geolite redis sync: initial load failed", "error", err)
		} else if updated {
			log.Info("geolite redis sync: loaded database from redis")
		}
	}()

	go d.subscribe(ctx)
}

// Publish uploads the local database and notifies other instances.
func (d *Distributor) Publish(ctx context.Context) error {
	if d == nil || d.client == nil {
		return nil
	}

	data, err := os.ReadFile(d.reader.FilePath())
	if err != nil {
		return fmt.Errorf("geolite redis sync: read %s: %w", ASNFileName, err)
	}
	if len(data) == 0 {
		return nil
	}

	payload, err := json.Marshal(updateNotice{UpdatedAt: time.Now().UTC().Format(time.RFC3339)})
	if err != nil {
		return fmt.Errorf("geolite redis sync: serialize notice: %w", err)
	}

	opCtx, cancel := timeoutCtx(ctx)
	defer cancel()

	if err := d.client.Set(opCtx, redisFileKey, data, 0).Err(); err != nil {
		return fmt.Errorf("geolite redis sync: store %s: %w", ASNFileName, err)
	}
	return d.client.Publish(opCtx, redisChannel, payload).Err()
}

// Sync writes the Redis copy to disk and reloads the reader. It reports whether
// anything was loaded.
func (d *Distributor) Sync(ctx context.Context) (bool, error) {
	opCtx, cancel := timeoutCtx(ctx)
	defer cancel()

	data, err := d.client.Get(opCtx, redisFileKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}

	if err := writeToFile(d.reader.FilePath(), bytes.NewReader(data)); err != nil {
		return false, fmt.Errorf("geolite redis sync: write %s: %w", ASNFileName, err)
	}
	if err := d.reader.Reload(); err != nil {
		return false, fmt.Errorf("geolite redis sync: reload: %w", err)
	}
	return true, nil
}

func (d *Distributor) subscribe(ctx context.Context) {
	pubsub := d.client.Subscribe(ctx, redisChannel)
	defer pubsub.Close()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) || ctx.Err() != nil {
				return
			}
			log.Error("geolite redis sync: subscription error", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		var notice updateNotice
		if err := json.Unmarshal([]byte(msg.Payload), &notice); err != nil {
			log.Error("geolite redis sync: invalid payload", "error", err)
			continue
		}

		if updated, err := d.Sync(ctx); err != nil {
			log.Error("geolite redis sync: failed to apply update", "error", err)
		} else if updated {
			log.Info("geolite redis sync: applied update", "published_at", notice.UpdatedAt)
		}
	}
}

func timeoutCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil || ctx.Err() != nil {
		ctx = context.Background()
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= redisOpTimeout {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, redisOpTimeout)
}
