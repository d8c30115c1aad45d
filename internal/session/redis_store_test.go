package session

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisStoreLifecycle(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()
	store := RedisStore{Client: client, Prefix: "test:sess:", TTL: time.Minute}
	ctx := context.Background()

	if _, found, err := store.Load(ctx, "a"); err != nil || found {
		t.Fatalf("expected empty store, found=%v err=%v", found, err)
	}

	rec := Record{SessionID: "a", PaymentID: "pay_1", OrderID: "order_1", Signature: "sig", Amount: 500}
	if err := store.Save(ctx, "a", rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	if ttl := mr.TTL("test:sess:a"); ttl != time.Minute {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	if err := store.Move(ctx, "a", "b"); err != nil {
		t.Fatalf("move: %v", err)
	}
	if _, found, _ := store.Load(ctx, "a"); found {
		t.Fatal("expected source key to be gone after move")
	}
	got, found, err := store.Load(ctx, "b")
	if err != nil || !found {
		t.Fatalf("load moved record: found=%v err=%v", found, err)
	}
	if got != rec {
		t.Fatalf("unexpected record %#v", got)
	}

	if err := store.Move(ctx, "missing", "c"); err != nil {
		t.Fatalf("move of missing key should be a no-op: %v", err)
	}

	if err := store.Delete(ctx, "b"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, found, _ := store.Load(ctx, "b"); found {
		t.Fatal("expected record to be deleted")
	}

	mr.Set("test:sess:bad", "{not json")
	if _, _, err := store.Load(ctx, "bad"); err == nil {
		t.Fatal("expected decode error")
	}
}
