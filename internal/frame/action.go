package frame

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidAction is wrapped by every ParseAction failure.
var ErrInvalidAction = errors.New("invalid frame action")

var validate = validator.New()

// CastID identifies the cast a frame was embedded in.
type CastID struct {
	FID  uint64 `json:"fid"`
	Hash string `json:"hash"`
}

// UntrustedData is the client-reported part of a frame action.
type UntrustedData struct {
	FID         uint64 `json:"fid" validate:"required"`
	URL         string `json:"url"`
	MessageHash string `json:"messageHash" validate:"required"`
	Timestamp   int64  `json:"timestamp"`
	Network     int    `json:"network"`
	ButtonIndex int    `json:"buttonIndex" validate:"min=1,max=4"`
	InputText   string `json:"inputText,omitempty"`
	State       string `json:"state,omitempty"`
	// Address is the user's connected primary address.
	Address string `json:"address,omitempty" validate:"omitempty,eth_addr"`
	CastID  CastID `json:"castId"`
}

// TrustedData carries the signed protocol message.
type TrustedData struct {
	MessageBytes string `json:"messageBytes" validate:"required,hexadecimal"`
}

// Action is the body a client posts when a button is pressed.
type Action struct {
	UntrustedData UntrustedData `json:"untrustedData"`
	TrustedData   TrustedData   `json:"trustedData"`
}

// ParseAction decodes and validates a frame action body.
func ParseAction(body []byte) (Action, error) {
	var a Action
	if err := json.Unmarshal(body, &a); err != nil {
		return Action{}, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}
	if err := validate.Struct(a); err != nil {
		return Action{}, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}
	return a, nil
}

// MessageBytes returns the decoded signed message.
func (a Action) MessageBytes() ([]byte, error) {
	raw := strings.TrimPrefix(strings.TrimPrefix(a.TrustedData.MessageBytes, "0x"), "0X")
	b, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: message bytes: %v", ErrInvalidAction, err)
	}
	return b, nil
}
