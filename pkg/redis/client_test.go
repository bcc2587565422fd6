package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	return NewFromExisting(raw), mr
}

func TestSetGetDel(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)

	key := client.RevocationKey("lic-1")
	if err := client.Set(ctx, key, "1", 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := client.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "1" {
		t.Fatalf("unexpected value %q", got)
	}

	if err := client.Del(ctx, key); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := client.Get(ctx, key); !errors.Is(err, Nil) {
		t.Fatalf("expected Nil after delete, got %v", err)
	}
}

func TestSetNXIsFirstWriterWins(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)

	key := client.IdempotencyKey("issue", "req-42")
	ok, err := client.SetNX(ctx, key, "a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first setnx: ok=%v err=%v", ok, err)
	}
	ok, err = client.SetNX(ctx, key, "b", time.Minute)
	if err != nil {
		t.Fatalf("second setnx: %v", err)
	}
	if ok {
		t.Fatal("second setnx should not win")
	}
	if got, _ := client.Get(ctx, key); got != "a" {
		t.Fatalf("first write lost: %q", got)
	}
}

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)

	for i := 0; i < 3; i++ {
		allowed, _, err := client.FixedWindowAllow(ctx, "validate:1.2.3.4", 3, time.Minute)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	allowed, count, err := client.FixedWindowAllow(ctx, "validate:1.2.3.4", 3, time.Minute)
	if err != nil {
		t.Fatalf("allow over limit: %v", err)
	}
	if allowed || count != 4 {
		t.Fatalf("expected rejection at count 4, got allowed=%v count=%d", allowed, count)
	}

	// Window expiry resets the counter.
	mr.FastForward(2 * time.Minute)
	allowed, count, err = client.FixedWindowAllow(ctx, "validate:1.2.3.4", 3, time.Minute)
	if err != nil || !allowed || count != 1 {
		t.Fatalf("expected fresh window, got allowed=%v count=%d err=%v", allowed, count, err)
	}
}

func TestKeyNamespacing(t *testing.T) {
	client, _ := newTestClient(t)

	if got := client.RevocationKey("abc"); got != "rflex:revoked:abc" {
		t.Fatalf("revocation key: %q", got)
	}
	if got := client.IdempotencyKey("issue", "req"); got != "rflex:idempotency:issue:req" {
		t.Fatalf("idempotency key: %q", got)
	}
	if got := client.RateLimitKey("validate"); got != "rflex:rate_limit:validate" {
		t.Fatalf("rate limit key: %q", got)
	}
}

func TestUninitializedClient(t *testing.T) {
	var c Client
	ctx := context.Background()
	if err := c.Ping(ctx); err == nil {
		t.Fatal("expected error from zero-value client")
	}
	if _, err := c.Get(ctx, "k"); err == nil {
		t.Fatal("expected error from zero-value client")
	}
}
