package runtime

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestPresenceBeatExpiresAfterTwoIntervals(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()

	p := &Presence{client: client, key: "test:instance:a", interval: func() time.Duration { return 10 * time.Second }}
	if err := p.Beat(ctx); err != nil {
		t.Fatalf("beat: %v", err)
	}
	if ttl := mr.TTL(p.Key()); ttl != 20*time.Second {
		t.Fatalf("ttl = %v, want 20s", ttl)
	}

	count, err := CountInstances(ctx, client, "test:instance:")
	if err != nil || count != 1 {
		t.Fatalf("count = %d, %v; want 1", count, err)
	}

	mr.FastForward(21 * time.Second)
	count, err = CountInstances(ctx, client, "test:instance:")
	if err != nil || count != 0 {
		t.Fatalf("count after expiry = %d, %v; want 0", count, err)
	}
}

func TestCountInstancesScansPastOneBatch(t *testing.T) {
	mr, client := newTestRedis(t)

	for i := 0; i < presenceScanCount*2+5; i++ {
		mr.Set("test:instance:"+time.Duration(i).String(), "v")
	}
	mr.Set("other:key", "v")

	count, err := CountInstances(context.Background(), client, "test:instance:")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != presenceScanCount*2+5 {
		t.Fatalf("count = %d, want %d", count, presenceScanCount*2+5)
	}
}

func TestPresenceRunRemovesKeyOnShutdown(t *testing.T) {
	mr, client := newTestRedis(t)

	p := &Presence{client: client, key: "test:instance:b", interval: func() time.Duration { return time.Hour }}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !mr.Exists(p.Key()) {
		if time.Now().After(deadline) {
			t.Fatal("presence key was never written")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	<-done
	if mr.Exists(p.Key()) {
		t.Fatal("presence key should be removed on shutdown")
	}
}

func TestNewPresenceUsesConfiguredPrefix(t *testing.T) {
	_, client := newTestRedis(t)
	p := NewPresence(client)
	if !strings.HasPrefix(p.Key(), "greenweb:instance:") || p.Key() == "greenweb:instance:" {
		t.Fatalf("key %q does not use the default prefix", p.Key())
	}
}
