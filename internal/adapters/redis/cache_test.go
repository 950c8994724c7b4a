package redisad_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	redisad "reviewsync/internal/adapters/redis"
)

func newCache(t *testing.T) (*redisad.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := redisad.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

type payload struct {
	Count int    `json:"count"`
	Value string `json:"value"`
}

func TestCache_SetGetMiss(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()

	var got payload
	if ok, err := c.Get(ctx, "reviews:stats", &got); ok || err != nil {
		t.Fatalf("want miss, got ok=%v err=%v", ok, err)
	}
	if err := c.Set(ctx, "reviews:stats", payload{Count: 3, Value: "4.3"}, 60); err != nil {
		t.Fatal(err)
	}
	if ok, err := c.Get(ctx, "reviews:stats", &got); !ok || err != nil || got.Count != 3 {
		t.Fatalf("want hit, got ok=%v err=%v v=%+v", ok, err, got)
	}

	mr.FastForward(61 * time.Second)
	if ok, _ := c.Get(ctx, "reviews:stats", &got); ok {
		t.Fatal("entry should expire with its ttl")
	}
}

func TestCache_DelPrefix(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()
	for _, k := range []string{"reviews:list:a", "reviews:list:b", "reviews:stats", "other:key"} {
		_ = c.Set(ctx, k, payload{}, 60)
	}
	if err := c.DelPrefix(ctx, "reviews:"); err != nil {
		t.Fatal(err)
	}
	keys := mr.Keys()
	if len(keys) != 1 || keys[0] != "other:key" {
		t.Fatalf("unexpected keys left: %v", keys)
	}
}

func TestLock_ExclusiveAndTokenChecked(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()

	release, ok, err := c.Acquire(ctx, "lock:refresh", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := c.Acquire(ctx, "lock:refresh", time.Minute); ok {
		t.Fatal("second acquire must fail while held")
	}

	// lock expired and was taken by someone else: our release must not drop theirs
	mr.FastForward(2 * time.Minute)
	release2, ok, _ := c.Acquire(ctx, "lock:refresh", time.Minute)
	if !ok {
		t.Fatal("acquire after expiry should succeed")
	}
	release()
	if !mr.Exists("lock:refresh") {
		t.Fatal("stale release removed another holder's lock")
	}
	release2()
	if mr.Exists("lock:refresh") {
		t.Fatal("own release should delete the lock")
	}
}
