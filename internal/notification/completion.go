package notification

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fifire/topframe/internal/keys"
)

// SnapshotSource provides the data saved on completion.
type SnapshotSource interface {
	Snapshot(ctx context.Context, count int) ([]byte, error)
}

// CompletionNotifier saves a leaderboard snapshot each time an authorized
// user interacts. It is best effort: nothing it does reaches the caller.
type CompletionNotifier struct {
	source   SnapshotSource
	notifier Notifier
	count    int
	logger   *slog.Logger
}

// NewCompletionNotifier wires a snapshot source to a notifier.
func NewCompletionNotifier(source SnapshotSource, notifier Notifier, count int, logger *slog.Logger) *CompletionNotifier {
	return &CompletionNotifier{source: source, notifier: notifier, count: count, logger: logger}
}

// Notify fetches the snapshot and sends it on behalf of primary. Failures are logged and dropped.
func (c *CompletionNotifier) Notify(ctx context.Context, primary common.Address, cred keys.Credential) {
	if c == nil || c.notifier == nil {
		return
	}
	log := c.logger.With("primary", primary.Hex(), "delegated", cred.Address.Hex())

	data, err := c.source.Snapshot(ctx, c.count)
	if err != nil {
		log.Warn("completion snapshot failed", "error", err)
		return
	}
	signer, err := keys.SignerFromMnemonic(cred.Mnemonic)
	if err != nil {
		log.Warn("completion signer failed", "error", err)
		return
	}
	err = c.notifier.Send(ctx, Message{
		Kind:        KindLeaderboardSnapshot,
		Destination: primary.Hex(),
		Body:        string(data),
		Signer:      signer,
	})
	if err != nil {
		log.Warn("completion notification failed", "error", err)
	}
}
