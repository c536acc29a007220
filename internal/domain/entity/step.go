package entity

import "time"

// Decision is the outcome recorded on an approval step.
type Decision string

const (
	DecisionPending  Decision = "PENDING"
	DecisionApproved Decision = "APPROVED"
	DecisionRejected Decision = "REJECTED"
)

// ApprovalStep is one row per (request, approver) pair in the sequential
// chain. For a given request at most one step has IsCurrent set, and the
// current step is always the lowest pending sequence order. Steps are
// created in bulk by chain assignment and mutated one row at a time by
// review; never deleted individually.
type ApprovalStep struct {
	ID            int64      `json:"id"`
	RequestID     int64      `json:"request_id"`
	ApproverID    string     `json:"approver_id"`
	SequenceOrder int        `json:"sequence_order"`
	IsCurrent     bool       `json:"is_current"`
	Decision      Decision   `json:"decision"`
	ReviewedAt    *time.Time `json:"reviewed_at,omitempty"`
	Comments      string     `json:"comments,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
