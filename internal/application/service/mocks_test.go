package service

import (
	"context"
	"time"

	"github.com/provfund/benefits-engine/internal/application/port"
	"github.com/provfund/benefits-engine/internal/domain/eligibility"
	"github.com/provfund/benefits-engine/internal/domain/entity"
)

type mockRequestRepo struct {
	createFunc        func(ctx context.Context, req *entity.BenefitRequest) error
	getByIDFunc       func(ctx context.Context, id int64) (*entity.BenefitRequest, error)
	listBySubjectFunc func(ctx context.Context, subjectUserID string) ([]*entity.BenefitRequest, error)
	hasOpenFunc       func(ctx context.Context, subjectUserID string, kind entity.RequestKind) (bool, error)
	updateStatusFunc  func(ctx context.Context, id int64, from, to entity.Status) error
	assignOfficerFunc func(ctx context.Context, id int64, officerID string, from, to entity.Status) error
	setReadinessFunc  func(ctx context.Context, id int64, assistantID string, ready bool, from, to entity.Status) error
	setReleasedFunc   func(ctx context.Context, id int64, reference string, from, to entity.Status) error
}

func (m *mockRequestRepo) Create(ctx context.Context, req *entity.BenefitRequest) error {
	return m.createFunc(ctx, req)
}

func (m *mockRequestRepo) GetByID(ctx context.Context, id int64) (*entity.BenefitRequest, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockRequestRepo) ListBySubject(ctx context.Context, subjectUserID string) ([]*entity.BenefitRequest, error) {
	return m.listBySubjectFunc(ctx, subjectUserID)
}

func (m *mockRequestRepo) HasOpenForSubject(ctx context.Context, subjectUserID string, kind entity.RequestKind) (bool, error) {
	return m.hasOpenFunc(ctx, subjectUserID, kind)
}

func (m *mockRequestRepo) UpdateStatus(ctx context.Context, id int64, from, to entity.Status) error {
	return m.updateStatusFunc(ctx, id, from, to)
}

func (m *mockRequestRepo) AssignOfficer(ctx context.Context, id int64, officerID string, from, to entity.Status) error {
	return m.assignOfficerFunc(ctx, id, officerID, from, to)
}

func (m *mockRequestRepo) SetReadiness(ctx context.Context, id int64, assistantID string, ready bool, from, to entity.Status) error {
	return m.setReadinessFunc(ctx, id, assistantID, ready, from, to)
}

func (m *mockRequestRepo) SetReleased(ctx context.Context, id int64, reference string, from, to entity.Status) error {
	return m.setReleasedFunc(ctx, id, reference, from, to)
}

type mockStepRepo struct {
	replaceChainFunc          func(ctx context.Context, requestID int64, steps []*entity.ApprovalStep) error
	getByRequestIDFunc        func(ctx context.Context, requestID int64) ([]*entity.ApprovalStep, error)
	getCurrentFunc            func(ctx context.Context, requestID int64) (*entity.ApprovalStep, error)
	getCurrentForApproverFunc func(ctx context.Context, requestID int64, approverID string) (*entity.ApprovalStep, error)
	completeCurrentFunc       func(ctx context.Context, stepID int64, approverID string, decision entity.Decision, comments string, reviewedAt time.Time) error
	nextPendingFunc           func(ctx context.Context, requestID int64, afterOrder int) (*entity.ApprovalStep, error)
	activateFunc              func(ctx context.Context, stepID int64) error
}

func (m *mockStepRepo) ReplaceChain(ctx context.Context, requestID int64, steps []*entity.ApprovalStep) error {
	return m.replaceChainFunc(ctx, requestID, steps)
}

func (m *mockStepRepo) GetByRequestID(ctx context.Context, requestID int64) ([]*entity.ApprovalStep, error) {
	return m.getByRequestIDFunc(ctx, requestID)
}

func (m *mockStepRepo) GetCurrent(ctx context.Context, requestID int64) (*entity.ApprovalStep, error) {
	return m.getCurrentFunc(ctx, requestID)
}

func (m *mockStepRepo) GetCurrentForApprover(ctx context.Context, requestID int64, approverID string) (*entity.ApprovalStep, error) {
	return m.getCurrentForApproverFunc(ctx, requestID, approverID)
}

func (m *mockStepRepo) CompleteCurrent(ctx context.Context, stepID int64, approverID string, decision entity.Decision, comments string, reviewedAt time.Time) error {
	return m.completeCurrentFunc(ctx, stepID, approverID, decision, comments, reviewedAt)
}

func (m *mockStepRepo) NextPending(ctx context.Context, requestID int64, afterOrder int) (*entity.ApprovalStep, error) {
	return m.nextPendingFunc(ctx, requestID, afterOrder)
}

func (m *mockStepRepo) Activate(ctx context.Context, stepID int64) error {
	return m.activateFunc(ctx, stepID)
}

type mockHistoryRepo struct {
	appended []*entity.HistoryEntry
	listFunc func(ctx context.Context, requestID int64) ([]*entity.HistoryEntry, error)
}

func (m *mockHistoryRepo) Append(_ context.Context, entry *entity.HistoryEntry) error {
	m.appended = append(m.appended, entry)
	return nil
}

func (m *mockHistoryRepo) ListByRequestID(ctx context.Context, requestID int64) ([]*entity.HistoryEntry, error) {
	return m.listFunc(ctx, requestID)
}

type mockLedger struct {
	getProfileFunc func(ctx context.Context, subjectUserID string) (*eligibility.MemberProfile, error)
}

func (m *mockLedger) GetMemberProfile(ctx context.Context, subjectUserID string) (*eligibility.MemberProfile, error) {
	return m.getProfileFunc(ctx, subjectUserID)
}

// mockTxManager runs the function directly; the mocked repositories ignore
// transaction scope anyway.
type mockTxManager struct{}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockNotifier struct {
	events []port.NotificationEvent
}

func (m *mockNotifier) Notify(_ context.Context, event port.NotificationEvent) {
	m.events = append(m.events, event)
}
