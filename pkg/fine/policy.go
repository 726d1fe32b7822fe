// Package fine computes late fees for returned loans.
package fine

import (
	"fmt"
	"math"
	"time"

	"librarydesk/pkg/domain"
)

const (
	DefaultLoanDays       = 15
	DefaultPerDay   int64 = 10
)

// Policy is the lending rule set: how long a loan may run and what each late day costs.
type Policy struct {
	LoanDays int
	PerDay   int64
}

// NewPolicy fills zero values with defaults.
func NewPolicy(loanDays int, perDay int64) Policy {
	if loanDays <= 0 {
		loanDays = DefaultLoanDays
	}
	if perDay < 0 {
		perDay = 0
	}
	return Policy{LoanDays: loanDays, PerDay: perDay}
}

// DueDate returns the calendar date a loan issued at issuedAt must be back by.
// loanDays <= 0 falls back to the policy loan period.
func (p Policy) DueDate(issuedAt time.Time, loanDays int) time.Time {
	if loanDays <= 0 {
		loanDays = p.LoanDays
	}
	if loanDays <= 0 {
		loanDays = DefaultLoanDays
	}
	return midnight(issuedAt).AddDate(0, 0, loanDays)
}

// OverdueDays counts calendar days from due to returnedAt. A return on the due date
// itself is on time. Never negative.
func OverdueDays(due, returnedAt time.Time) int64 {
	late := midnight(returnedAt.In(due.Location())).Sub(midnight(due))
	if late <= 0 {
		return 0
	}
	return int64(math.Round(late.Hours() / 24))
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Assess returns the fine owed for tx when it comes back at returnedAt.
func (p Policy) Assess(tx domain.Transaction, returnedAt time.Time) int64 {
	due := tx.DueDate
	if due.IsZero() {
		due = p.DueDate(tx.IssueDate, 0)
	}
	return OverdueDays(due, returnedAt) * p.PerDay
}

// Format renders a fine for display. Zero reads as "No fine".
func Format(amount int64, currency string) string {
	if amount <= 0 {
		return "No fine"
	}
	return fmt.Sprintf("Late fee: %s%d", currency, amount)
}
