package entity

import "time"

// Action is a lifecycle event recorded in the audit trail. The vocabulary
// is closed so downstream reporting can rely on it.
type Action string

const (
	ActionCreated           Action = "CREATED"
	ActionMarkedReady       Action = "MARKED_READY"
	ActionMarkedIncomplete  Action = "MARKED_INCOMPLETE"
	ActionMovedToReview     Action = "MOVED_TO_REVIEW"
	ActionApproversAssigned Action = "APPROVERS_ASSIGNED"
	ActionStepApproved      Action = "STEP_APPROVED"
	ActionApproved          Action = "APPROVED"
	ActionRejected          Action = "REJECTED"
	ActionReleased          Action = "RELEASED"
	ActionCancelled         Action = "CANCELLED"
)

// HistoryEntry is an append-only audit record. Write-once; no entity ever
// updates or removes one. History is the only source of truth for who did
// what, when.
type HistoryEntry struct {
	ID          int64     `json:"id"`
	RequestID   int64     `json:"request_id"`
	Action      Action    `json:"action"`
	PerformedBy string    `json:"performed_by"`
	Remarks     string    `json:"remarks,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
