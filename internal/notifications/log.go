package notifications

import (
	"context"
	"log/slog"

	"scholarwatch/internal/types"
)

// LogDispatcher writes notifications to the log instead of sending them. It
// backs NOTIFICATION_TRANSPORT=log for local runs.
type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Dispatch(ctx context.Context, msg types.NotificationMessage) error {
	d.logger.InfoContext(ctx, "notification (log transport)",
		"alert_id", msg.AlertID,
		"kind", string(msg.Kind),
		"job", string(msg.Job),
		"recipient", redactEmail(msg.Recipient.Email),
		"payload", msg.Payload,
	)
	return nil
}
