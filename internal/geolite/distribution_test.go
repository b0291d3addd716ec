package geolite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newDistributors(t *testing.T) (*miniredis.Miniredis, *Distributor, *Distributor) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	leaderReader, _ := Open(filepath.Join(t.TempDir(), "leader"))
	replicaReader, _ := Open(filepath.Join(t.TempDir(), "replica"))
	return mr, NewDistributor(client, leaderReader), NewDistributor(client, replicaReader)
}

func TestSyncWithoutPublishedCopy(t *testing.T) {
	_, _, replica := newDistributors(t)

	updated, err := replica.Sync(context.Background())
	if err != nil || updated {
		t.Fatalf("Sync = %v, %v; want false, nil", updated, err)
	}
	if _, err := os.Stat(replica.reader.FilePath()); !os.IsNotExist(err) {
		t.Fatalf("replica file should not exist, stat err = %v", err)
	}
}

func TestPublishStoresDatabaseAndReplicaWritesIt(t *testing.T) {
	mr, leader, replica := newDistributors(t)

	if err := leader.reader.EnsureDir(); err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}
	if err := os.WriteFile(leader.reader.FilePath(), []byte("asn-database"), 0o644); err != nil {
		t.Fatalf("write leader file: %v", err)
	}

	if err := leader.Publish(context.Background()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	stored, err := mr.Get(redisFileKey)
	if err != nil || stored != "asn-database" {
		t.Fatalf("redis copy = %q, %v", stored, err)
	}

	// The bytes are not a real MaxMind database, so only the reload fails.
	if _, err := replica.Sync(context.Background()); err == nil {
		t.Fatal("expected reload error for a non-mmdb payload")
	}
	data, err := os.ReadFile(replica.reader.FilePath())
	if err != nil {
		t.Fatalf("read replica file: %v", err)
	}
	if string(data) != "asn-database" {
		t.Fatalf("replica file = %q, want asn-database", data)
	}
}

func TestPublishWithoutLocalFile(t *testing.T) {
	_, leader, _ := newDistributors(t)
	if err := leader.Publish(context.Background()); err == nil {
		t.Fatal("expected error when the local database is missing")
	}
}

func TestStartFollowsPublishedUpdates(t *testing.T) {
	mr, leader, replica := newDistributors(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	replica.Start(ctx)

	if err := leader.reader.EnsureDir(); err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}
	if err := os.WriteFile(leader.reader.FilePath(), []byte("fresh-copy"), 0o644); err != nil {
		t.Fatalf("write leader file: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		// Re-publish until the subscriber is attached.
		if err := leader.Publish(ctx); err != nil {
			t.Fatalf("Publish: %v", err)
		}
		if data, err := os.ReadFile(replica.reader.FilePath()); err == nil && string(data) == "fresh-copy" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("replica never received the update, redis has %d keys", len(mr.Keys()))
		}
		time.Sleep(20 * time.Millisecond)
	}
}
