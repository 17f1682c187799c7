// Package credstore persists delegated credentials.
//
// Two records are kept: the sealed mnemonic keyed by the delegated address,
// and the association from a primary address to the delegated address it
// authorized. Get follows the association, so a primary address only
// resolves to a credential once the authorization service has linked it.
// Writes are last-writer-wins.
package credstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fifire/topframe/internal/keys"
)

var (
	// ErrNotFound means no record exists or it expired.
	ErrNotFound = errors.New("credential not found")

	// ErrAddressMismatch is returned when a mnemonic does not derive the address it is stored under.
	ErrAddressMismatch = errors.New("mnemonic does not match delegated address")
)

// Repository is the raw storage behind Store. Addresses are lower-case hex.
type Repository interface {
	PutMnemonic(ctx context.Context, delegated string, sealed []byte, ttl time.Duration) error
	GetMnemonic(ctx context.Context, delegated string) ([]byte, error)
	PutAssociation(ctx context.Context, primary, delegated string, ttl time.Duration) error
	GetAssociation(ctx context.Context, primary string) (string, error)
}

// Store maps primary addresses to delegated credentials.
type Store struct {
	repo   Repository
	sealer Sealer
	ttl    time.Duration
}

// Option customises a Store.
type Option func(*Store)

// WithSealer encrypts mnemonics at rest.
func WithSealer(s Sealer) Option {
	return func(st *Store) { st.sealer = s }
}

// WithTTL expires records after ttl. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(st *Store) { st.ttl = ttl }
}

// New builds a Store on top of repo.
func New(repo Repository, opts ...Option) *Store {
	st := &Store{repo: repo, sealer: PlainSealer{}}
	for _, opt := range opts {
		opt(st)
	}
	return st
}

// Get returns the credential last associated with primary.
func (s *Store) Get(ctx context.Context, primary common.Address) (keys.Credential, error) {
	delegated, err := s.repo.GetAssociation(ctx, key(primary))
	if err != nil {
		return keys.Credential{}, err
	}
	sealed, err := s.repo.GetMnemonic(ctx, delegated)
	if err != nil {
		return keys.Credential{}, err
	}

	addr := common.HexToAddress(delegated)
	phrase, err := s.sealer.Open(sealed, addr.Bytes())
	if err != nil {
		return keys.Credential{}, fmt.Errorf("open mnemonic: %w", err)
	}
	m, err := keys.NewMnemonic(phrase)
	if err != nil {
		return keys.Credential{}, err
	}
	cred, err := keys.Derive(m)
	if err != nil {
		return keys.Credential{}, err
	}
	if cred.Address != addr {
		return keys.Credential{}, ErrAddressMismatch
	}
	return cred, nil
}

// Put stores m under delegated, replacing any previous record.
func (s *Store) Put(ctx context.Context, delegated common.Address, m keys.Mnemonic) error {
	cred, err := keys.Derive(m)
	if err != nil {
		return err
	}
	if cred.Address != delegated {
		return ErrAddressMismatch
	}
	sealed, err := s.sealer.Seal(m.Phrase(), delegated.Bytes())
	if err != nil {
		return fmt.Errorf("seal mnemonic: %w", err)
	}
	return s.repo.PutMnemonic(ctx, key(delegated), sealed, s.ttl)
}

// Has reports whether a mnemonic is stored for delegated.
func (s *Store) Has(ctx context.Context, delegated common.Address) (bool, error) {
	_, err := s.repo.GetMnemonic(ctx, key(delegated))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Associate links primary to a delegated address whose mnemonic is already stored.
func (s *Store) Associate(ctx context.Context, primary, delegated common.Address) error {
	ok, err := s.Has(ctx, delegated)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return s.repo.PutAssociation(ctx, key(primary), key(delegated), s.ttl)
}

func key(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}
