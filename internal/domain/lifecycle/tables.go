package lifecycle

import "github.com/provfund/benefits-engine/internal/domain/entity"

// Actor guards. A transition passes if any of its guards passes.

// isOfficer permits any actor holding the officer role. Used for the first
// review assignment, before an officer is bound to the request.
func isOfficer(tc Context) bool {
	return tc.Actor.Role == entity.RoleOfficer
}

// isAssignedOfficer permits only the officer bound to the request.
func isAssignedOfficer(tc Context) bool {
	return tc.View.OfficerID != "" && tc.Actor.ID == tc.View.OfficerID
}

// isAssistantFor permits an assistant; once an assistant is bound to the
// request, only that assistant.
func isAssistantFor(tc Context) bool {
	if tc.Actor.Role != entity.RoleAssistant {
		return false
	}
	return tc.View.AssistantID == "" || tc.Actor.ID == tc.View.AssistantID
}

// isCurrentApprover permits only the approver whose step is current.
func isCurrentApprover(tc Context) bool {
	return tc.View.CurrentApproverID != "" && tc.Actor.ID == tc.View.CurrentApproverID
}

// isSubjectOwner permits the employee who owns the request.
func isSubjectOwner(tc Context) bool {
	return tc.Actor.Role == entity.RoleEmployee && tc.Actor.ID == tc.View.SubjectUserID
}

// isHR permits any HR actor regardless of assignment.
func isHR(tc Context) bool {
	return tc.Actor.Role == entity.RoleHR
}

func readyForReview(v View) bool {
	return v.ReadyForReview
}

var loanMachine = NewBuilder(entity.KindLoan).
	Permit(entity.StatusPending, TriggerMoveToReview, entity.StatusUnderReview, isOfficer).
	Permit(entity.StatusPending, TriggerCancel, entity.StatusCancelled, isSubjectOwner, isHR).
	Permit(entity.StatusUnderReview, TriggerAssignApprovers, entity.StatusAwaitingApprovals, isAssignedOfficer).
	Permit(entity.StatusUnderReview, TriggerCancel, entity.StatusCancelled, isSubjectOwner, isHR).
	Permit(entity.StatusAwaitingApprovals, TriggerAssignApprovers, entity.StatusAwaitingApprovals, isAssignedOfficer).
	Permit(entity.StatusAwaitingApprovals, TriggerApprove, entity.StatusApproved, isCurrentApprover).
	Permit(entity.StatusAwaitingApprovals, TriggerReject, entity.StatusRejected, isCurrentApprover).
	Permit(entity.StatusAwaitingApprovals, TriggerCancel, entity.StatusCancelled, isSubjectOwner, isHR).
	Permit(entity.StatusApproved, TriggerRelease, entity.StatusActive, isAssignedOfficer).
	Permit(entity.StatusApproved, TriggerCancel, entity.StatusCancelled, isHR).
	Build()

var withdrawalMachine = NewBuilder(entity.KindWithdrawal).
	Permit(entity.StatusPending, TriggerMarkReady, entity.StatusPending, isAssistantFor).
	Permit(entity.StatusPending, TriggerMarkIncomplete, entity.StatusIncomplete, isAssistantFor).
	PermitWhen(entity.StatusPending, TriggerMoveToReview, entity.StatusUnderReview, readyForReview, isOfficer).
	Permit(entity.StatusPending, TriggerCancel, entity.StatusCancelled, isSubjectOwner, isHR).
	Permit(entity.StatusIncomplete, TriggerMarkReady, entity.StatusPending, isAssistantFor).
	Permit(entity.StatusIncomplete, TriggerCancel, entity.StatusCancelled, isSubjectOwner, isHR).
	Permit(entity.StatusUnderReview, TriggerApprove, entity.StatusApproved, isAssignedOfficer).
	Permit(entity.StatusUnderReview, TriggerReject, entity.StatusRejected, isAssignedOfficer).
	Permit(entity.StatusUnderReview, TriggerCancel, entity.StatusCancelled, isSubjectOwner, isHR).
	Permit(entity.StatusApproved, TriggerRelease, entity.StatusReleased, isAssignedOfficer).
	Permit(entity.StatusApproved, TriggerCancel, entity.StatusCancelled, isHR).
	Build()

// ForKind returns the transition table for the given request kind.
func ForKind(kind entity.RequestKind) *Machine {
	if kind == entity.KindWithdrawal {
		return withdrawalMachine
	}
	return loanMachine
}

// ViewOf projects the request fields the machine needs. currentApproverID
// is supplied by the caller because only the approval chain knows it.
func ViewOf(req *entity.BenefitRequest, currentApproverID string) View {
	return View{
		SubjectUserID:     req.SubjectUserID,
		AssistantID:       req.AssistantID,
		OfficerID:         req.OfficerID,
		ReadyForReview:    req.ReadyForReview,
		CurrentApproverID: currentApproverID,
	}
}
