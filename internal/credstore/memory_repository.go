package credstore

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

type memoryRepository struct {
	mu           sync.RWMutex
	mnemonics    map[string]memoryEntry
	associations map[string]memoryEntry
	now          func() time.Time
}

// NewMemoryRepository builds an in-memory credential store for development and tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		mnemonics:    make(map[string]memoryEntry),
		associations: make(map[string]memoryEntry),
		now:          time.Now,
	}
}

func (r *memoryRepository) PutMnemonic(_ context.Context, delegated string, sealed []byte, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mnemonics[delegated] = r.entry(sealed, ttl)
	return nil
}

func (r *memoryRepository) GetMnemonic(_ context.Context, delegated string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.mnemonics[delegated]
	if !ok || e.expired(r.now()) {
		return nil, ErrNotFound
	}
	return append([]byte(nil), e.value...), nil
}

func (r *memoryRepository) PutAssociation(_ context.Context, primary, delegated string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.associations[primary] = r.entry([]byte(delegated), ttl)
	return nil
}

func (r *memoryRepository) GetAssociation(_ context.Context, primary string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.associations[primary]
	if !ok || e.expired(r.now()) {
		return "", ErrNotFound
	}
	return string(e.value), nil
}

func (r *memoryRepository) entry(value []byte, ttl time.Duration) memoryEntry {
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = r.now().Add(ttl)
	}
	return e
}
