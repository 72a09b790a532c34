package notify

import (
	"context"

	"github.com/safar/storefront/internal/observability"
	"go.uber.org/zap"
)

// LogNotifier writes messages to the log instead of sending them. It is the
// transport used when no mail provider is configured.
type LogNotifier struct {
	from   string
	logger *zap.Logger
}

func NewLogNotifier(from string, logger *zap.Logger) *LogNotifier {
	return &LogNotifier{from: from, logger: observability.OrNop(logger)}
}

func (n *LogNotifier) Send(_ context.Context, msg Message) error {
	n.logger.Info("notification",
		zap.String("from", n.from),
		zap.String("recipient", msg.Recipient),
		zap.String("subject", msg.Subject),
		zap.String("reference", msg.Reference),
		zap.Int("body_bytes", len(msg.Body)))
	return nil
}
