package lifecycle

// Trigger represents an operation that can cause a status transition.
type Trigger string

const (
	TriggerMarkReady       Trigger = "MARK_READY"
	TriggerMarkIncomplete  Trigger = "MARK_INCOMPLETE"
	TriggerMoveToReview    Trigger = "MOVE_TO_REVIEW"
	TriggerAssignApprovers Trigger = "ASSIGN_APPROVERS"
	TriggerApprove         Trigger = "APPROVE"
	TriggerReject          Trigger = "REJECT"
	TriggerRelease         Trigger = "RELEASE"
	TriggerCancel          Trigger = "CANCEL"
)

// String returns the string representation of the trigger.
func (t Trigger) String() string {
	return string(t)
}
