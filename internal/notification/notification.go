package notification

import (
	"context"
	"log/slog"

	"github.com/fifire/topframe/internal/keys"
)

const (
	// KindLeaderboardSnapshot carries a leaderboard snapshot saved for an authorized user.
	KindLeaderboardSnapshot = "leaderboard_snapshot"
)

// Message describes a notification payload.
type Message struct {
	Kind string
	// Destination is the primary address the data is saved for.
	Destination string
	Body        string
	// Signer acts for Destination. Nil for notifiers that do not sign.
	Signer keys.Signer
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the logger instead of delivering them.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send logs the message metadata. The body is not logged.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "destination", message.Destination, "body_bytes", len(message.Body))
	return nil
}
