package credstore

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/fifire/topframe/internal/keys"
)

var primary = common.HexToAddress("0x1111111111111111111111111111111111111111")

func newRedisRepo(t *testing.T) (*RedisRepository, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		cache.Close()
		mr.Close()
	})
	return NewRedisRepository(cache), mr
}

func generate(t *testing.T) keys.Credential {
	t.Helper()
	cred, err := keys.BIP39Generator{}.Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	return cred
}

func TestStoreRoundTrip(t *testing.T) {
	redisRepo, _ := newRedisRepo(t)
	sealedRepo, _ := newRedisRepo(t)
	sealer, err := NewAEADSealer(bytes.Repeat([]byte{7}, 32))
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}

	backends := map[string]*Store{
		"memory":       New(NewMemoryRepository()),
		"redis":        New(redisRepo),
		"redis-sealed": New(sealedRepo, WithSealer(sealer)),
	}

	for name, store := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			cred := generate(t)

			if _, err := store.Get(ctx, primary); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected not found before put, got %v", err)
			}
			if err := store.Put(ctx, cred.Address, cred.Mnemonic); err != nil {
				t.Fatalf("put: %v", err)
			}
			// The mnemonic alone does not authorize the primary address.
			if _, err := store.Get(ctx, primary); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected not found before association, got %v", err)
			}
			if err := store.Associate(ctx, primary, cred.Address); err != nil {
				t.Fatalf("associate: %v", err)
			}

			got, err := store.Get(ctx, primary)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Address != cred.Address {
				t.Fatalf("expected %s got %s", cred.Address.Hex(), got.Address.Hex())
			}
			derived, err := keys.Derive(got.Mnemonic)
			if err != nil {
				t.Fatalf("derive: %v", err)
			}
			if derived.Address != cred.Address {
				t.Fatalf("stored mnemonic derives %s, want %s", derived.Address.Hex(), cred.Address.Hex())
			}
		})
	}
}

func TestStoreLastWriterWins(t *testing.T) {
	store := New(NewMemoryRepository())
	ctx := context.Background()
	first, second := generate(t), generate(t)

	for _, c := range []keys.Credential{first, second} {
		if err := store.Put(ctx, c.Address, c.Mnemonic); err != nil {
			t.Fatalf("put: %v", err)
		}
		if err := store.Associate(ctx, primary, c.Address); err != nil {
			t.Fatalf("associate: %v", err)
		}
	}

	got, err := store.Get(ctx, primary)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Address != second.Address {
		t.Fatalf("expected latest association %s, got %s", second.Address.Hex(), got.Address.Hex())
	}
}

func TestStorePutRejectsMismatchedAddress(t *testing.T) {
	store := New(NewMemoryRepository())
	cred := generate(t)

	if err := store.Put(context.Background(), primary, cred.Mnemonic); !errors.Is(err, ErrAddressMismatch) {
		t.Fatalf("expected ErrAddressMismatch, got %v", err)
	}
}

func TestStoreAssociateRequiresMnemonic(t *testing.T) {
	store := New(NewMemoryRepository())
	cred := generate(t)

	if err := store.Associate(context.Background(), primary, cred.Address); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreRedisTTLExpires(t *testing.T) {
	repo, mr := newRedisRepo(t)
	store := New(repo, WithTTL(time.Minute))
	ctx := context.Background()
	cred := generate(t)

	if err := store.Put(ctx, cred.Address, cred.Mnemonic); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Associate(ctx, primary, cred.Address); err != nil {
		t.Fatalf("associate: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := store.Get(ctx, primary); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestStoreRedisKeepsMnemonicSealed(t *testing.T) {
	repo, mr := newRedisRepo(t)
	sealer, err := NewAEADSealer(bytes.Repeat([]byte{1}, 32))
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}
	store := New(repo, WithSealer(sealer))
	cred := generate(t)

	if err := store.Put(context.Background(), cred.Address, cred.Mnemonic); err != nil {
		t.Fatalf("put: %v", err)
	}

	raw, err := mr.Get(mnemonicPrefix + key(cred.Address))
	if err != nil {
		t.Fatalf("raw get: %v", err)
	}
	if bytes.Contains([]byte(raw), []byte(cred.Mnemonic.Phrase())) {
		t.Fatal("mnemonic stored in clear text")
	}
}

func TestAEADSealerBindsAAD(t *testing.T) {
	sealer, err := NewAEADSealer(bytes.Repeat([]byte{9}, 32))
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}
	sealed, err := sealer.Seal("phrase", []byte("a"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := sealer.Open(sealed, []byte("b")); !errors.Is(err, ErrSealed) {
		t.Fatalf("expected ErrSealed for wrong aad, got %v", err)
	}
	got, err := sealer.Open(sealed, []byte("a"))
	if err != nil || got != "phrase" {
		t.Fatalf("open: %q %v", got, err)
	}

	plain, _ := PlainSealer{}.Seal("legacy", nil)
	if got, err := sealer.Open(plain, nil); err != nil || got != "legacy" {
		t.Fatalf("expected plain record readable, got %q %v", got, err)
	}
}
