package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/fifire/topframe/internal/infra"
	"github.com/fifire/topframe/internal/keys"
)

type saveRequest struct {
	AppAddress       string `json:"appAddress"`
	UserAddress      string `json:"userAddress"`
	DelegatedAddress string `json:"delegatedAddress"`
	Data             string `json:"data"`
	Signature        string `json:"signature"`
}

// SaveNotifier posts messages to the downstream save endpoint, signed by the
// user's delegated key.
type SaveNotifier struct {
	endpoint   string
	appAddress common.Address
	timeout    time.Duration
}

// NewSaveNotifier builds a notifier for endpoint on behalf of appAddress.
func NewSaveNotifier(endpoint string, appAddress common.Address, timeout time.Duration) *SaveNotifier {
	return &SaveNotifier{endpoint: endpoint, appAddress: appAddress, timeout: timeout}
}

// Send signs and delivers message.
func (n *SaveNotifier) Send(ctx context.Context, message Message) error {
	if message.Signer == nil {
		return fmt.Errorf("save requires a delegated signer")
	}
	user := common.HexToAddress(message.Destination)
	sig, err := message.Signer.SignMessage(keys.Digest(n.appAddress.Bytes(), user.Bytes(), []byte(message.Body)))
	if err != nil {
		return fmt.Errorf("sign save request: %w", err)
	}

	code, body, err := infra.PostJSON(ctx, n.endpoint, saveRequest{
		AppAddress:       n.appAddress.Hex(),
		UserAddress:      user.Hex(),
		DelegatedAddress: message.Signer.Address().Hex(),
		Data:             message.Body,
		Signature:        hexutil.Encode(sig),
	}, n.timeout)
	if err != nil {
		return fmt.Errorf("post save request: %w", err)
	}
	if code < 200 || code > 299 {
		return fmt.Errorf("save endpoint returned HTTP %d: %s", code, body)
	}
	return nil
}
