// Package eligibility computes vesting snapshots and eligibility verdicts.
// Pure functions, no side effects: contribution totals and employment data
// come in, a verdict comes out. The open-request check is performed by the
// caller and passed in, and re-checked inside the creating transaction to
// close the race window between check and insert.
package eligibility

import (
	"time"

	"github.com/provfund/benefits-engine/internal/domain/entity"
)

// vesting cliff: the employer share vests in full at the 24-month
// anniversary of hire, and not at all before it.
const cliffMonths = 24

// MemberProfile is the read-only input from the contributions ledger.
type MemberProfile struct {
	SubjectUserID      string
	HireDate           time.Time
	Active             bool
	EmployeeTotalCents int64
	EmployerTotalCents int64
}

// Snapshot is the balance/vesting picture at evaluation time.
type Snapshot struct {
	EmployeeTotalCents int64 `json:"employee_total_cents"`
	EmployerTotalCents int64 `json:"employer_total_cents"`
	VestedCents        int64 `json:"vested_cents"`
	FullyVested        bool  `json:"fully_vested"`
}

// LoanPolicy holds the configured bounds applied to loan applications.
type LoanPolicy struct {
	MinAmountCents int64
	MaxTermMonths  int
}

// LoanVerdict is the evaluation result for a loan application.
type LoanVerdict struct {
	Eligible       bool     `json:"eligible"`
	Reason         string   `json:"reason,omitempty"`
	Snapshot       Snapshot `json:"snapshot"`
	MaxAmountCents int64    `json:"max_amount_cents"`
	MinAmountCents int64    `json:"min_amount_cents"`
	MaxTermMonths  int      `json:"max_term_months"`
}

// WithdrawalVerdict is the evaluation result for a withdrawal application.
type WithdrawalVerdict struct {
	Eligible           bool                        `json:"eligible"`
	Reason             string                      `json:"reason,omitempty"`
	Snapshot           Snapshot                    `json:"snapshot"`
	EligibleCategories []entity.WithdrawalCategory `json:"eligible_categories"`
}

// Vested returns true once now is at or past the cliff anniversary.
// Exactly at the anniversary counts as vested.
func Vested(hireDate, now time.Time) bool {
	return !now.Before(hireDate.AddDate(0, cliffMonths, 0))
}

// SnapshotOf computes the balance snapshot for a member. bypassCliff vests
// the employer share regardless of tenure (retirement, disability, death,
// redundancy withdrawals).
func SnapshotOf(p MemberProfile, now time.Time, bypassCliff bool) Snapshot {
	vested := p.EmployeeTotalCents
	fullyVested := bypassCliff || Vested(p.HireDate, now)
	if fullyVested {
		vested += p.EmployerTotalCents
	}
	return Snapshot{
		EmployeeTotalCents: p.EmployeeTotalCents,
		EmployerTotalCents: p.EmployerTotalCents,
		VestedCents:        vested,
		FullyVested:        fullyVested,
	}
}

// EvaluateLoan renders the eligibility verdict for a new loan application.
// hasOpen is true when the subject already has a loan in a non-terminal
// status.
func EvaluateLoan(p MemberProfile, policy LoanPolicy, hasOpen bool, now time.Time) LoanVerdict {
	snapshot := SnapshotOf(p, now, false)
	verdict := LoanVerdict{
		Snapshot:       snapshot,
		MaxAmountCents: snapshot.VestedCents,
		MinAmountCents: policy.MinAmountCents,
		MaxTermMonths:  policy.MaxTermMonths,
	}

	switch {
	case !p.Active:
		verdict.Reason = "employment not active"
	case hasOpen:
		verdict.Reason = "existing active loan"
	case snapshot.VestedCents < policy.MinAmountCents:
		verdict.Reason = "vested balance below minimum loan amount"
	default:
		verdict.Eligible = true
	}
	return verdict
}

// EvaluateWithdrawal renders the eligibility verdict for a new withdrawal
// application of the given category.
func EvaluateWithdrawal(p MemberProfile, category entity.WithdrawalCategory, hasOpen bool, now time.Time) WithdrawalVerdict {
	snapshot := SnapshotOf(p, now, category.BypassesCliff())
	verdict := WithdrawalVerdict{
		Snapshot:           snapshot,
		EligibleCategories: eligibleCategories(p, now),
	}

	switch {
	case hasOpen:
		verdict.Reason = "existing active withdrawal"
	case !category.BypassesCliff() && !Vested(p.HireDate, now):
		verdict.Reason = "vesting cliff not reached"
	case snapshot.VestedCents <= 0:
		verdict.Reason = "no vested balance"
	default:
		verdict.Eligible = true
	}
	return verdict
}

func eligibleCategories(p MemberProfile, now time.Time) []entity.WithdrawalCategory {
	categories := []entity.WithdrawalCategory{
		entity.CategoryRetirement,
		entity.CategoryDisability,
		entity.CategoryDeath,
		entity.CategoryRedundancy,
	}
	if Vested(p.HireDate, now) {
		categories = append([]entity.WithdrawalCategory{entity.CategoryGeneral}, categories...)
	}
	return categories
}
