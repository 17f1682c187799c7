package identity

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrMissingAddress is returned when the interaction carries no primary address.
	ErrMissingAddress = errors.New("primary address is required")
	// ErrInvalidAddress is returned for values that are not 20-byte hex addresses.
	ErrInvalidAddress = errors.New("primary address is not a valid address")
)

// ParseAddress validates a user's primary address.
func ParseAddress(raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return common.Address{}, ErrMissingAddress
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, ErrInvalidAddress
	}
	addr := common.HexToAddress(raw)
	if addr == (common.Address{}) {
		return common.Address{}, ErrInvalidAddress
	}
	return addr, nil
}
