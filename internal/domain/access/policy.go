// Package access derives the capability set visible to an actor for a
// request. It is a pure, read-only projection over the same transition
// tables the lifecycle machine enforces, so "what can I do next" is
// answered without attempting and failing a mutation, and authorization
// logic has a single source of truth.
package access

import (
	"github.com/provfund/benefits-engine/internal/domain/entity"
	"github.com/provfund/benefits-engine/internal/domain/lifecycle"
)

// Input is everything the projection needs. CurrentApproverID is empty
// when the request has no active approval step.
type Input struct {
	ActorID           string
	Role              entity.Role
	Kind              entity.RequestKind
	Status            entity.Status
	SubjectUserID     string
	AssistantID       string
	OfficerID         string
	ReadyForReview    bool
	CurrentApproverID string
}

// Capabilities is the boolean capability set exposed to UI/API callers.
// Terminal statuses yield an all-false set.
type Capabilities struct {
	CanMarkReady       bool `json:"can_mark_ready"`
	CanMarkIncomplete  bool `json:"can_mark_incomplete"`
	CanMoveToReview    bool `json:"can_move_to_review"`
	CanAssignApprovers bool `json:"can_assign_approvers"`
	CanApprove         bool `json:"can_approve"`
	CanReject          bool `json:"can_reject"`
	CanRelease         bool `json:"can_release"`
	CanCancel          bool `json:"can_cancel"`
}

// Evaluate computes the capability set for the given actor and request.
func Evaluate(in Input) Capabilities {
	if in.Status.IsTerminal() {
		return Capabilities{}
	}

	m := lifecycle.ForKind(in.Kind)
	tc := lifecycle.Context{
		Actor: lifecycle.Actor{ID: in.ActorID, Role: in.Role},
		View: lifecycle.View{
			SubjectUserID:     in.SubjectUserID,
			AssistantID:       in.AssistantID,
			OfficerID:         in.OfficerID,
			ReadyForReview:    in.ReadyForReview,
			CurrentApproverID: in.CurrentApproverID,
		},
	}

	return Capabilities{
		CanMarkReady:       m.Can(in.Status, lifecycle.TriggerMarkReady, tc),
		CanMarkIncomplete:  m.Can(in.Status, lifecycle.TriggerMarkIncomplete, tc),
		CanMoveToReview:    m.Can(in.Status, lifecycle.TriggerMoveToReview, tc),
		CanAssignApprovers: m.Can(in.Status, lifecycle.TriggerAssignApprovers, tc),
		CanApprove:         m.Can(in.Status, lifecycle.TriggerApprove, tc),
		CanReject:          m.Can(in.Status, lifecycle.TriggerReject, tc),
		CanRelease:         m.Can(in.Status, lifecycle.TriggerRelease, tc),
		CanCancel:          m.Can(in.Status, lifecycle.TriggerCancel, tc),
	}
}
