package port

import (
	"context"

	"github.com/provfund/benefits-engine/internal/domain/entity"
)

// NotificationEvent describes a completed transition for downstream
// dispatch.
type NotificationEvent struct {
	RequestID     int64
	Kind          entity.RequestKind
	Action        entity.Action
	Status        entity.Status
	SubjectUserID string
	PerformedBy   string
}

// Notifier dispatches notifications after successful transitions.
// Fire-and-forget: called outside the transaction, failures are logged
// and never roll back the state change.
type Notifier interface {
	Notify(ctx context.Context, event NotificationEvent)
}
