// Package notify holds the notification dispatch adapter. Delivery itself
// is an external collaborator; the engine only hands completed transitions
// over, fire-and-forget, outside the mutating transaction.
package notify

import (
	"context"

	"github.com/provfund/benefits-engine/internal/application/port"
	"go.uber.org/zap"
)

// LogNotifier records dispatched events in the structured log. It stands
// in for the real dispatcher in deployments without one configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier that logs each event
func NewLogNotifier(logger *zap.Logger) port.Notifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the event. Never returns an error: a failed notification
// must not affect the committed state change.
func (n *LogNotifier) Notify(_ context.Context, event port.NotificationEvent) {
	n.logger.Info("Notification dispatched",
		zap.Int64("request_id", event.RequestID),
		zap.String("kind", string(event.Kind)),
		zap.String("action", string(event.Action)),
		zap.String("status", string(event.Status)),
		zap.String("subject_user_id", event.SubjectUserID),
		zap.String("performed_by", event.PerformedBy),
	)
}

// Verify interface compliance
var _ port.Notifier = (*LogNotifier)(nil)
