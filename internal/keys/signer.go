package keys

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrInvalidSignature is returned by Recover for malformed signatures.
var ErrInvalidSignature = errors.New("invalid signature")

// Signer signs messages with personal_sign (EIP-191) semantics.
type Signer interface {
	Address() common.Address
	SignMessage(msg []byte) ([]byte, error)
}

type ecdsaSigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

// SignerFromHex builds a signer from a hex private key, with or without 0x.
func SignerFromHex(hexKey string) (Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &ecdsaSigner{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// SignerFromMnemonic builds the delegated signer for m.
func SignerFromMnemonic(m Mnemonic) (Signer, error) {
	key, err := privateKey(m)
	if err != nil {
		return nil, err
	}
	return &ecdsaSigner{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

func (s *ecdsaSigner) Address() common.Address { return s.addr }

// SignMessage returns a 65 byte [R || S || V] signature with V in {27, 28}.
func (s *ecdsaSigner) SignMessage(msg []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(msg), s.key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// Recover returns the address that produced sig over msg.
func Recover(msg, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, ErrInvalidSignature
	}
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(msg), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Digest is keccak256 over the concatenated parts. Request and callback
// signatures are computed over a digest rather than the raw payload.
func Digest(parts ...[]byte) []byte {
	return crypto.Keccak256(parts...)
}
