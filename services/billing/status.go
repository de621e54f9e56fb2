package billing

import (
	"time"

	"shortstacks/models"

	"github.com/shopspring/decimal"
)

// PaymentState is one student's position against a bill.
type PaymentState struct {
	Amount     decimal.Decimal
	PaidAmount decimal.Decimal
	IsPaid     bool
}

// ClassifyStatus derives the display status of a bill. It is pure: the
// result depends only on its arguments. The due date is a calendar date and
// is compared against today in now's location.
func ClassifyStatus(dueDate time.Time, cancelled bool, states []PaymentState, now time.Time) models.BillStatus {
	if cancelled {
		return models.BillStatusCancelled
	}

	allPaid := len(states) > 0
	anyPaid := false
	for _, s := range states {
		if !s.IsPaid {
			allPaid = false
		}
		if s.PaidAmount.IsPositive() {
			anyPaid = true
		}
	}
	if allPaid {
		return models.BillStatusPaid
	}

	y, m, d := dueDate.Date()
	due := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	today := dateOnly(now)
	switch {
	case due.Before(today):
		return models.BillStatusLate
	case anyPaid:
		return models.BillStatusPartial
	case due.Equal(today):
		return models.BillStatusDue
	}
	return models.BillStatusActive
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
