package dedupe

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreWithClient(client)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestSeen_FirstDeliveryIsNew(t *testing.T) {
	store, _ := newTestStore(t)

	seen, err := store.Seen(context.Background(), "guid-1")
	if err != nil {
		t.Fatalf("Seen: %v", err)
	}
	if seen {
		t.Error("first delivery must not be seen")
	}

	seen, err = store.Seen(context.Background(), "guid-1")
	if err != nil {
		t.Fatalf("Seen: %v", err)
	}
	if !seen {
		t.Error("replayed delivery must be seen")
	}
}

func TestSeen_DistinctGUIDs(t *testing.T) {
	store, _ := newTestStore(t)

	if seen, _ := store.Seen(context.Background(), "guid-a"); seen {
		t.Error("guid-a is new")
	}
	if seen, _ := store.Seen(context.Background(), "guid-b"); seen {
		t.Error("guid-b is new")
	}
}

func TestSeen_EmptyGUID(t *testing.T) {
	store, _ := newTestStore(t)

	for i := 0; i < 2; i++ {
		seen, err := store.Seen(context.Background(), "")
		if err != nil {
			t.Fatalf("Seen: %v", err)
		}
		if seen {
			t.Error("empty GUIDs are never deduped")
		}
	}
}

func TestSeen_ExpiryReopensGUID(t *testing.T) {
	store, mr := newTestStore(t)

	if _, err := store.Seen(context.Background(), "guid-ttl"); err != nil {
		t.Fatalf("Seen: %v", err)
	}
	mr.FastForward(defaultDeliveryTTL + 1)

	seen, err := store.Seen(context.Background(), "guid-ttl")
	if err != nil {
		t.Fatalf("Seen: %v", err)
	}
	if seen {
		t.Error("expired GUID should be treated as new again")
	}
}

func TestPing(t *testing.T) {
	store, mr := newTestStore(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	mr.Close()
	if err := store.Ping(context.Background()); err == nil {
		t.Error("expected ping failure after redis goes away")
	}
}
