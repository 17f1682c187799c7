package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestAllowPerKey(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	ctx := context.Background()
	l := New(cache, 2)

	const alice = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	const bob = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"

	for i := 0; i < 2; i++ {
		if ok, err := l.Allow(ctx, alice); !ok || err != nil {
			t.Fatalf("attempt %d: expected allowed, got %v %v", i+1, ok, err)
		}
	}
	if ok, _ := l.Allow(ctx, alice); ok {
		t.Fatal("third attempt within a minute should be refused")
	}
	if ok, _ := l.Allow(ctx, bob); !ok {
		t.Fatal("other keys must not be limited")
	}
	if !mr.Exists("topframe:rl:authorize:0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266") {
		t.Fatal("expected lowercased counter key")
	}

	mr.FastForward(time.Minute)
	if ok, _ := l.Allow(ctx, alice); !ok {
		t.Fatal("limit should reset after a minute")
	}
}

func TestAllowWithoutRedis(t *testing.T) {
	l := New(nil, 1)
	for i := 0; i < 3; i++ {
		if ok, err := l.Allow(context.Background(), "k"); !ok || err != nil {
			t.Fatalf("expected pass-through, got %v %v", ok, err)
		}
	}
}

func TestAllowFailsOpenOnCacheError(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()
	mr.Close()

	ok, err := New(cache, 1).Allow(context.Background(), "k")
	if !ok || err == nil {
		t.Fatalf("expected allowed with error, got %v %v", ok, err)
	}
}
