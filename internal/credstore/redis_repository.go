package credstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	mnemonicPrefix    = "topframe:mnemonic:v1:"
	associationPrefix = "topframe:delegated:v1:"
)

// RedisRepository stores credentials in Redis string keys.
type RedisRepository struct {
	cache *redis.Client
}

// NewRedisRepository builds a Redis-backed credential repository.
func NewRedisRepository(cache *redis.Client) *RedisRepository {
	return &RedisRepository{cache: cache}
}

// PutMnemonic overwrites the sealed mnemonic for delegated.
func (r *RedisRepository) PutMnemonic(ctx context.Context, delegated string, sealed []byte, ttl time.Duration) error {
	return r.cache.Set(ctx, mnemonicPrefix+delegated, sealed, ttl).Err()
}

// GetMnemonic reads the sealed mnemonic for delegated.
func (r *RedisRepository) GetMnemonic(ctx context.Context, delegated string) ([]byte, error) {
	val, err := r.cache.Get(ctx, mnemonicPrefix+delegated).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return val, err
}

// PutAssociation overwrites the delegated address linked to primary.
func (r *RedisRepository) PutAssociation(ctx context.Context, primary, delegated string, ttl time.Duration) error {
	return r.cache.Set(ctx, associationPrefix+primary, delegated, ttl).Err()
}

// GetAssociation reads the delegated address linked to primary.
func (r *RedisRepository) GetAssociation(ctx context.Context, primary string) (string, error) {
	val, err := r.cache.Get(ctx, associationPrefix+primary).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return val, err
}
