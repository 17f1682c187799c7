package credstore

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	versionPlain   byte = 0
	versionXChaCha byte = 1
)

// ErrSealed is returned when a record cannot be opened with the configured sealer.
var ErrSealed = errors.New("sealed record cannot be opened")

// Sealer protects mnemonics at rest. aad binds the record to its key.
type Sealer interface {
	Seal(phrase string, aad []byte) ([]byte, error)
	Open(sealed, aad []byte) (string, error)
}

// PlainSealer stores the phrase unencrypted behind a version byte.
type PlainSealer struct{}

func (PlainSealer) Seal(phrase string, _ []byte) ([]byte, error) {
	return append([]byte{versionPlain}, phrase...), nil
}

func (PlainSealer) Open(sealed, _ []byte) (string, error) {
	if len(sealed) == 0 || sealed[0] != versionPlain {
		return "", ErrSealed
	}
	return string(sealed[1:]), nil
}

// AEADSealer encrypts with XChaCha20-Poly1305. Plain records written before a
// key was configured remain readable.
type AEADSealer struct {
	aead cipher.AEAD
}

// NewAEADSealer builds a sealer from a 32 byte key.
func NewAEADSealer(key []byte) (*AEADSealer, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init xchacha20poly1305: %w", err)
	}
	return &AEADSealer{aead: aead}, nil
}

func (s *AEADSealer) Seal(phrase string, aad []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	out := append([]byte{versionXChaCha}, nonce...)
	return s.aead.Seal(out, nonce, []byte(phrase), aad), nil
}

func (s *AEADSealer) Open(sealed, aad []byte) (string, error) {
	if len(sealed) > 0 && sealed[0] == versionPlain {
		return PlainSealer{}.Open(sealed, aad)
	}
	ns := s.aead.NonceSize()
	if len(sealed) < 1+ns || sealed[0] != versionXChaCha {
		return "", ErrSealed
	}
	nonce, ct := sealed[1:1+ns], sealed[1+ns:]
	plain, err := s.aead.Open(nil, nonce, ct, aad)
	if err != nil {
		return "", ErrSealed
	}
	return string(plain), nil
}
