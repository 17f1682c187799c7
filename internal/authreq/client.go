// Package authreq submits delegated-key authorization requests to the
// external authorization service.
package authreq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/fifire/topframe/internal/infra"
	"github.com/fifire/topframe/internal/keys"
)

const (
	// StatusOK is the only status the service uses for an accepted request.
	StatusOK = "ok"

	requestPath = "/v1/authorization/request"
)

// ErrEmptyAnswer is returned when the service accepts a request without a confirmation code.
var ErrEmptyAnswer = errors.New("auth response has no answer")

// Request is one authorization attempt. It is never persisted.
type Request struct {
	// Message is the signed frame message bytes proving the user's interaction.
	Message          []byte
	DelegatedAddress common.Address
	Signer           keys.Signer
}

// Response is the service's reply. Answer is shown to the user, who enters it
// on the authorization page.
type Response struct {
	Status    string `json:"status"`
	Answer    string `json:"answer"`
	RequestID string `json:"requestId,omitempty"`
}

// StatusError is returned when the service answers with a status other than StatusOK.
type StatusError struct {
	Status string
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("invalid auth response status. %s", strings.TrimSpace(string(e.Body)))
}

type wireRequest struct {
	Message              string `json:"message"`
	UserDelegatedAddress string `json:"userDelegatedAddress"`
	AppAddress           string `json:"appAddress"`
	ServiceSignature     string `json:"serviceSignature"`
}

// wireResponse accepts the answer as either a JSON string or number.
type wireResponse struct {
	Status    string          `json:"status"`
	Answer    json.RawMessage `json:"answer"`
	RequestID string          `json:"requestId"`
}

func answerText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if text := strings.TrimSpace(string(raw)); text != "null" {
		return text
	}
	return ""
}

// Client talks to the authorization service over HTTP.
type Client struct {
	baseURL string
	timeout time.Duration
}

// NewClient builds a client for the service rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), timeout: timeout}
}

// Submit signs and sends req. Transport failures, non-2xx replies, bad
// statuses and empty answers are all returned as errors.
func (c *Client) Submit(ctx context.Context, req Request) (Response, error) {
	if req.Signer == nil {
		return Response{}, fmt.Errorf("app signer is required")
	}
	if len(req.Message) == 0 {
		return Response{}, fmt.Errorf("challenge message is required")
	}

	sig, err := req.Signer.SignMessage(keys.Digest(req.Message, req.DelegatedAddress.Bytes()))
	if err != nil {
		return Response{}, fmt.Errorf("sign auth request: %w", err)
	}

	payload := wireRequest{
		Message:              hexutil.Encode(req.Message),
		UserDelegatedAddress: req.DelegatedAddress.Hex(),
		AppAddress:           req.Signer.Address().Hex(),
		ServiceSignature:     hexutil.Encode(sig),
	}

	code, body, err := infra.PostJSON(ctx, c.baseURL+requestPath, payload, c.timeout)
	if err != nil {
		return Response{}, fmt.Errorf("submit auth request: %w", err)
	}
	if code < 200 || code > 299 {
		return Response{}, fmt.Errorf("auth service returned HTTP %d: %s", code, strings.TrimSpace(string(body)))
	}

	var wire wireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return Response{}, fmt.Errorf("decode auth response: %w", err)
	}
	resp := Response{Status: wire.Status, Answer: answerText(wire.Answer), RequestID: wire.RequestID}
	if resp.Status != StatusOK {
		return Response{}, &StatusError{Status: resp.Status, Body: body}
	}
	if resp.Answer == "" {
		return Response{}, ErrEmptyAnswer
	}
	return resp, nil
}
