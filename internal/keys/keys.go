// Package keys generates the delegated keypairs the app uses to act on a
// user's behalf and builds EIP-191 signers from them.
//
// A mnemonic only leaves a Mnemonic value through Derive, SignerFromMnemonic
// and Phrase; the latter exists for the credential store's sealing step.
package keys

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

// EntropyBits yields a 12-word English mnemonic.
const EntropyBits = 128

const redacted = "[REDACTED]"

var (
	// ErrInvalidMnemonic is returned when a phrase fails the BIP-39 checksum.
	ErrInvalidMnemonic = errors.New("invalid mnemonic")

	derivationPath = accounts.DefaultBaseDerivationPath
)

// Mnemonic is an opaque BIP-39 phrase. Its formatting methods never print the phrase.
type Mnemonic struct {
	phrase string
}

// NewMnemonic wraps phrase after validating its checksum.
func NewMnemonic(phrase string) (Mnemonic, error) {
	if !bip39.IsMnemonicValid(phrase) {
		return Mnemonic{}, ErrInvalidMnemonic
	}
	return Mnemonic{phrase: phrase}, nil
}

// Phrase exposes the raw words. Callers must not log or render the result.
func (m Mnemonic) Phrase() string { return m.phrase }

// IsZero reports whether m holds no phrase.
func (m Mnemonic) IsZero() bool { return m.phrase == "" }

func (m Mnemonic) String() string {
	return redacted
}

func (m Mnemonic) GoString() string {
	return redacted
}

func (m Mnemonic) LogValue() slog.Value {
	return slog.StringValue(redacted)
}

func (m Mnemonic) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

// MarshalText keeps the phrase out of text encoders such as encoding/xml.
func (m Mnemonic) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}

// Credential is a delegated address together with the mnemonic it derives from.
type Credential struct {
	Address  common.Address
	Mnemonic Mnemonic
}

// Generator produces fresh delegated credentials.
type Generator interface {
	Generate() (Credential, error)
}

// BIP39Generator draws entropy from crypto/rand through go-bip39.
type BIP39Generator struct{}

// Generate returns a new credential. Entropy failures are returned as-is.
func (BIP39Generator) Generate() (Credential, error) {
	entropy, err := bip39.NewEntropy(EntropyBits)
	if err != nil {
		return Credential{}, fmt.Errorf("read entropy: %w", err)
	}
	phrase, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return Credential{}, fmt.Errorf("encode mnemonic: %w", err)
	}
	return Derive(Mnemonic{phrase: phrase})
}

// Derive computes the first account (m/44'/60'/0'/0/0) of m.
func Derive(m Mnemonic) (Credential, error) {
	key, err := privateKey(m)
	if err != nil {
		return Credential{}, err
	}
	return Credential{Address: crypto.PubkeyToAddress(key.PublicKey), Mnemonic: m}, nil
}

func privateKey(m Mnemonic) (*ecdsa.PrivateKey, error) {
	seed, err := bip39.NewSeedWithErrorChecking(m.phrase, "")
	if err != nil {
		return nil, ErrInvalidMnemonic
	}
	node, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}
	for _, idx := range derivationPath {
		if node, err = node.Derive(idx); err != nil {
			return nil, fmt.Errorf("derive child %d: %w", idx, err)
		}
	}
	priv, err := node.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("child private key: %w", err)
	}
	return priv.ToECDSA(), nil
}
