package service_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/provfund/benefits-engine/internal/apperr"
	"github.com/provfund/benefits-engine/internal/application/service"
	"github.com/provfund/benefits-engine/internal/domain/eligibility"
	"github.com/provfund/benefits-engine/internal/domain/entity"
	"github.com/provfund/benefits-engine/internal/infrastructure/notify"
	"github.com/provfund/benefits-engine/internal/infrastructure/persistence/repository"
	"github.com/provfund/benefits-engine/internal/infrastructure/persistence/sqlite"
	"github.com/provfund/benefits-engine/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// engine wires real repositories against a throwaway sqlite database, so
// these tests drive the full lifecycle end to end: guarded SQL updates,
// transactions and audit appends included.
type engine struct {
	requests  service.RequestService
	approvals service.ApprovalService
	sqlDB     *sql.DB
}

func newEngine(t *testing.T) *engine {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on",
		filepath.Join(t.TempDir(), "engine_test.db"))
	sqlDB, err := sql.Open("sqlite3", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	logger := zap.NewNop()
	require.NoError(t, database.NewMigrator(sqlDB, logger).Run())

	db := sqlite.NewDB(sqlDB, logger)
	requestRepo := repository.NewRequestRepository(db, logger)
	stepRepo := repository.NewStepRepository(db, logger)
	historyRepo := repository.NewHistoryRepository(db, logger)
	ledger := repository.NewLedgerRepository(db, logger)
	notifier := notify.NewLogNotifier(logger)
	policy := eligibility.LoanPolicy{MinAmountCents: 50_000, MaxTermMonths: 60}

	return &engine{
		requests:  service.NewRequestService(requestRepo, stepRepo, historyRepo, ledger, db, notifier, policy, logger),
		approvals: service.NewApprovalService(requestRepo, stepRepo, historyRepo, db, notifier, logger),
		sqlDB:     sqlDB,
	}
}

// seedMember inserts a member hired the given number of months ago with
// equal employee and employer contributions.
func (e *engine) seedMember(t *testing.T, subjectUserID string, monthsEmployed int, perSourceCents int64) {
	t.Helper()

	hireDate := time.Now().UTC().AddDate(0, -monthsEmployed, 0)
	_, err := e.sqlDB.Exec(
		"INSERT INTO members (subject_user_id, full_name, hire_date, employment_status) VALUES (?, ?, ?, 'ACTIVE')",
		subjectUserID, "Test Member", hireDate)
	require.NoError(t, err)

	for _, source := range []string{"EMPLOYEE", "EMPLOYER"} {
		_, err := e.sqlDB.Exec(
			"INSERT INTO contributions (subject_user_id, source, amount_cents) VALUES (?, ?, ?)",
			subjectUserID, source, perSourceCents)
		require.NoError(t, err)
	}
}

func (e *engine) createLoan(t *testing.T, subjectUserID string) *entity.BenefitRequest {
	t.Helper()
	req, err := e.requests.Create(context.Background(), service.CreateInput{
		SubjectUserID:       subjectUserID,
		Kind:                entity.KindLoan,
		AmountCents:         100_000,
		TermMonths:          12,
		ConsentAcknowledged: true,
	})
	require.NoError(t, err)
	return req
}

func TestLifecycle_LoanFullChain(t *testing.T) {
	e := newEngine(t)
	e.seedMember(t, "emp-1", 36, 300_000)
	ctx := context.Background()

	req := e.createLoan(t, "emp-1")
	assert.Equal(t, entity.StatusPending, req.Status)

	req, err := e.requests.MoveToReview(ctx, req.ID, "off-1", entity.RoleOfficer)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusUnderReview, req.Status)
	assert.Equal(t, "off-1", req.OfficerID)

	_, err = e.approvals.AssignApprovers(ctx, req.ID, "off-1", []service.Assignment{
		{ApproverID: "appr-1", SequenceOrder: 1},
		{ApproverID: "appr-2", SequenceOrder: 2},
		{ApproverID: "appr-3", SequenceOrder: 3},
	})
	require.NoError(t, err)

	for _, approver := range []string{"appr-1", "appr-2"} {
		result, err := e.approvals.ReviewApproval(ctx, req.ID, approver, true, "ok")
		require.NoError(t, err)
		assert.False(t, result.ChainComplete)
		assert.Equal(t, entity.StatusAwaitingApprovals, result.Request.Status)
	}

	result, err := e.approvals.ReviewApproval(ctx, req.ID, "appr-3", true, "final ok")
	require.NoError(t, err)
	assert.True(t, result.ChainComplete)
	assert.Equal(t, entity.StatusApproved, result.Request.Status)

	req, err = e.requests.Release(ctx, req.ID, "off-1", "PAY-2026-001")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusActive, req.Status)
	assert.Equal(t, "PAY-2026-001", req.ReleaseReference)

	history, err := e.requests.GetHistory(ctx, req.ID)
	require.NoError(t, err)
	actions := make([]entity.Action, 0, len(history))
	for _, h := range history {
		actions = append(actions, h.Action)
	}
	assert.Equal(t, []entity.Action{
		entity.ActionCreated,
		entity.ActionMovedToReview,
		entity.ActionApproversAssigned,
		entity.ActionStepApproved,
		entity.ActionStepApproved,
		entity.ActionApproved,
		entity.ActionReleased,
	}, actions)
}

func TestLifecycle_RejectionClosesChain(t *testing.T) {
	e := newEngine(t)
	e.seedMember(t, "emp-1", 36, 300_000)
	ctx := context.Background()

	req := e.createLoan(t, "emp-1")
	_, err := e.requests.MoveToReview(ctx, req.ID, "off-1", entity.RoleOfficer)
	require.NoError(t, err)
	_, err = e.approvals.AssignApprovers(ctx, req.ID, "off-1", []service.Assignment{
		{ApproverID: "appr-1", SequenceOrder: 1},
		{ApproverID: "appr-2", SequenceOrder: 2},
	})
	require.NoError(t, err)

	_, err = e.approvals.ReviewApproval(ctx, req.ID, "appr-1", true, "")
	require.NoError(t, err)

	result, err := e.approvals.ReviewApproval(ctx, req.ID, "appr-2", false, "no")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusRejected, result.Request.Status)

	// A later approver acting on the closed chain is told it is not their
	// turn, not that the transition is invalid.
	_, err = e.approvals.ReviewApproval(ctx, req.ID, "appr-1", true, "")
	assert.ErrorIs(t, err, apperr.ErrNotAuthorized)
}

func TestLifecycle_OutOfOrderApproval(t *testing.T) {
	e := newEngine(t)
	e.seedMember(t, "emp-1", 36, 300_000)
	ctx := context.Background()

	req := e.createLoan(t, "emp-1")
	_, err := e.requests.MoveToReview(ctx, req.ID, "off-1", entity.RoleOfficer)
	require.NoError(t, err)
	_, err = e.approvals.AssignApprovers(ctx, req.ID, "off-1", []service.Assignment{
		{ApproverID: "appr-1", SequenceOrder: 1},
		{ApproverID: "appr-2", SequenceOrder: 2},
	})
	require.NoError(t, err)

	_, err = e.approvals.ReviewApproval(ctx, req.ID, "appr-2", true, "")
	assert.ErrorIs(t, err, apperr.ErrNotAuthorized)

	// The chain is untouched: the first approver can still proceed.
	_, err = e.approvals.ReviewApproval(ctx, req.ID, "appr-1", true, "")
	require.NoError(t, err)
}

func TestLifecycle_WithdrawalReadyGate(t *testing.T) {
	e := newEngine(t)
	e.seedMember(t, "emp-1", 36, 300_000)
	ctx := context.Background()

	req, err := e.requests.Create(ctx, service.CreateInput{
		SubjectUserID:       "emp-1",
		Kind:                entity.KindWithdrawal,
		AmountCents:         200_000,
		Category:            entity.CategoryGeneral,
		ConsentAcknowledged: true,
	})
	require.NoError(t, err)

	// Not marked ready yet: review pickup is not an available transition
	// for anyone, so this is invalid rather than unauthorized.
	_, err = e.requests.MoveToReview(ctx, req.ID, "off-1", entity.RoleOfficer)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	req, err = e.requests.MarkIncomplete(ctx, req.ID, "asst-1", entity.RoleAssistant, "missing bank letter")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusIncomplete, req.Status)

	// A different assistant cannot take over a bound request.
	_, err = e.requests.MarkReady(ctx, req.ID, "asst-2", entity.RoleAssistant)
	assert.ErrorIs(t, err, apperr.ErrNotAuthorized)

	req, err = e.requests.MarkReady(ctx, req.ID, "asst-1", entity.RoleAssistant)
	require.NoError(t, err)
	assert.True(t, req.ReadyForReview)

	req, err = e.requests.MoveToReview(ctx, req.ID, "off-1", entity.RoleOfficer)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusUnderReview, req.Status)

	req, err = e.approvals.DecideReview(ctx, req.ID, "off-1", true, "verified")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusApproved, req.Status)

	req, err = e.requests.Release(ctx, req.ID, "off-1", "PAY-2026-002")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusReleased, req.Status)
}

func TestLifecycle_CancelAuthority(t *testing.T) {
	e := newEngine(t)
	e.seedMember(t, "emp-1", 36, 300_000)
	ctx := context.Background()

	// The subject may cancel before approval.
	req := e.createLoan(t, "emp-1")
	req, err := e.requests.Cancel(ctx, req.ID, "emp-1", entity.RoleEmployee, "changed plans")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCancelled, req.Status)

	// Post approval only HR may cancel.
	req2 := e.createLoan(t, "emp-1")
	_, err = e.requests.MoveToReview(ctx, req2.ID, "off-1", entity.RoleOfficer)
	require.NoError(t, err)
	_, err = e.approvals.AssignApprovers(ctx, req2.ID, "off-1", []service.Assignment{
		{ApproverID: "appr-1", SequenceOrder: 1},
	})
	require.NoError(t, err)
	_, err = e.approvals.ReviewApproval(ctx, req2.ID, "appr-1", true, "")
	require.NoError(t, err)

	_, err = e.requests.Cancel(ctx, req2.ID, "emp-1", entity.RoleEmployee, "")
	assert.ErrorIs(t, err, apperr.ErrNotAuthorized)

	req2, err = e.requests.Cancel(ctx, req2.ID, "hr-1", entity.RoleHR, "policy breach")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCancelled, req2.Status)

	// Cancelling a terminal request is invalid.
	_, err = e.requests.Cancel(ctx, req2.ID, "hr-1", entity.RoleHR, "")
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestLifecycle_OneOpenRequestPerKind(t *testing.T) {
	e := newEngine(t)
	e.seedMember(t, "emp-1", 36, 300_000)
	ctx := context.Background()

	e.createLoan(t, "emp-1")

	_, err := e.requests.Create(ctx, service.CreateInput{
		SubjectUserID:       "emp-1",
		Kind:                entity.KindLoan,
		AmountCents:         100_000,
		TermMonths:          12,
		ConsentAcknowledged: true,
	})
	var ierr *apperr.IneligibleError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, "existing active loan", ierr.Reason)

	// A withdrawal is a separate kind and remains allowed.
	_, err = e.requests.Create(ctx, service.CreateInput{
		SubjectUserID:       "emp-1",
		Kind:                entity.KindWithdrawal,
		AmountCents:         100_000,
		Category:            entity.CategoryGeneral,
		ConsentAcknowledged: true,
	})
	require.NoError(t, err)
}

func TestLifecycle_ChainReassignmentResetsProgress(t *testing.T) {
	e := newEngine(t)
	e.seedMember(t, "emp-1", 36, 300_000)
	ctx := context.Background()

	req := e.createLoan(t, "emp-1")
	_, err := e.requests.MoveToReview(ctx, req.ID, "off-1", entity.RoleOfficer)
	require.NoError(t, err)
	_, err = e.approvals.AssignApprovers(ctx, req.ID, "off-1", []service.Assignment{
		{ApproverID: "appr-1", SequenceOrder: 1},
		{ApproverID: "appr-2", SequenceOrder: 2},
	})
	require.NoError(t, err)
	_, err = e.approvals.ReviewApproval(ctx, req.ID, "appr-1", true, "")
	require.NoError(t, err)

	// Reassignment replaces the whole chain; earlier progress is gone.
	_, err = e.approvals.AssignApprovers(ctx, req.ID, "off-1", []service.Assignment{
		{ApproverID: "appr-9", SequenceOrder: 1},
	})
	require.NoError(t, err)

	_, err = e.approvals.ReviewApproval(ctx, req.ID, "appr-2", true, "")
	assert.ErrorIs(t, err, apperr.ErrNotAuthorized)

	result, err := e.approvals.ReviewApproval(ctx, req.ID, "appr-9", true, "")
	require.NoError(t, err)
	assert.True(t, result.ChainComplete)
	assert.Equal(t, entity.StatusApproved, result.Request.Status)

	chain, err := e.approvals.GetChain(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, chain, 1)
	assert.Equal(t, "appr-9", chain[0].ApproverID)
}

func TestLifecycle_SubjectCannotMoveOwnRequestToReview(t *testing.T) {
	e := newEngine(t)
	e.seedMember(t, "emp-1", 36, 300_000)
	ctx := context.Background()

	req := e.createLoan(t, "emp-1")

	// The capability projection and the transition must agree: an employee
	// gets no review capability on their own request, and presenting an
	// officer-shaped call with an employee identity is refused.
	caps, err := e.requests.GetAccess(ctx, req.ID, "emp-1", entity.RoleEmployee)
	require.NoError(t, err)
	assert.False(t, caps.CanMoveToReview)

	_, err = e.requests.MoveToReview(ctx, req.ID, "emp-1", entity.RoleEmployee)
	assert.ErrorIs(t, err, apperr.ErrNotAuthorized)

	got, err := e.requests.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, got.Status)
	assert.Empty(t, got.OfficerID)

	// A real officer still gets through.
	got, err = e.requests.MoveToReview(ctx, req.ID, "off-1", entity.RoleOfficer)
	require.NoError(t, err)
	assert.Equal(t, "off-1", got.OfficerID)
}

func TestLifecycle_ConcurrentReviewSingleWinner(t *testing.T) {
	e := newEngine(t)
	e.seedMember(t, "emp-1", 36, 300_000)
	ctx := context.Background()

	req := e.createLoan(t, "emp-1")
	_, err := e.requests.MoveToReview(ctx, req.ID, "off-1", entity.RoleOfficer)
	require.NoError(t, err)
	_, err = e.approvals.AssignApprovers(ctx, req.ID, "off-1", []service.Assignment{
		{ApproverID: "appr-1", SequenceOrder: 1},
		{ApproverID: "appr-2", SequenceOrder: 2},
	})
	require.NoError(t, err)

	// Two racing submissions from the same approver: exactly one may
	// complete the step, the other must fail with a typed error.
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.approvals.ReviewApproval(ctx, req.ID, "appr-1", true, "")
		}(i)
	}
	wg.Wait()

	var okCount int
	for _, err := range errs {
		if err == nil {
			okCount++
			continue
		}
		if !errors.Is(err, apperr.ErrTransitionConflict) && !errors.Is(err, apperr.ErrNotAuthorized) {
			t.Fatalf("loser error = %v, want transition conflict or not authorized", err)
		}
	}
	assert.Equal(t, 1, okCount)

	// The chain advanced exactly one step.
	chain, err := e.approvals.GetChain(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, entity.DecisionApproved, chain[0].Decision)
	assert.True(t, chain[1].IsCurrent)

	got, err := e.requests.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusAwaitingApprovals, got.Status)

	history, err := e.requests.GetHistory(ctx, req.ID)
	require.NoError(t, err)
	var stepApprovals int
	for _, entry := range history {
		if entry.Action == entity.ActionStepApproved {
			stepApprovals++
		}
	}
	assert.Equal(t, 1, stepApprovals)
}
