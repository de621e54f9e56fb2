package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shortstacks/models"
	"shortstacks/services/access"
	"shortstacks/services/banking"
	"shortstacks/services/notifications"
	"shortstacks/utils"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PayBillInput is the payload of POST /api/bills/:id/pay.
type PayBillInput struct {
	BillID    uint            `json:"-"`
	AccountID uint            `json:"accountId" validate:"required"`
	Amount    decimal.Decimal `json:"amount"`
}

// PaymentResult reports the state after a successful payment.
type PaymentResult struct {
	StudentBill models.StudentBill `json:"student_bill"`
	Transaction models.Transaction `json:"transaction"`
	Balance     decimal.Decimal    `json:"balance"`
	Remaining   decimal.Decimal    `json:"remaining"`
	BillStatus  models.BillStatus  `json:"bill_status"`
}

// PayBill debits the student's account, records the payment against the
// student's share of the bill and writes one WITHDRAWAL ledger row. The three
// writes share one database transaction.
func (s *Service) PayBill(ctx context.Context, p access.Principal, in PayBillInput) (*PaymentResult, error) {
	if err := access.RequireRole(p, models.RoleStudent); err != nil {
		return nil, err
	}
	if err := utils.PositiveAmount(in.Amount, "Payment amount"); err != nil {
		return nil, err
	}

	var (
		bill   models.Bill
		result PaymentResult
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&bill, in.BillID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NotFound("Bill not found")
			}
			return utils.Internal(err, "Failed to load bill")
		}
		if bill.Status == models.BillStatusCancelled {
			return utils.InvalidAmount("Bill has been cancelled")
		}

		var assigned int64
		if err := tx.Model(&models.Enrollment{}).
			Joins("JOIN bill_classes ON bill_classes.class_id = enrollments.class_id").
			Where("bill_classes.bill_id = ? AND enrollments.student_id = ?", bill.ID, p.UserID).
			Count(&assigned).Error; err != nil {
			return utils.Internal(err, "Failed to check bill assignment")
		}
		if assigned == 0 {
			return utils.NotFound("Bill not found")
		}

		var account models.BankAccount
		if err := tx.Where("id = ? AND student_id = ?", in.AccountID, p.UserID).First(&account).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NotFound("Account not found")
			}
			return utils.Internal(err, "Failed to load account")
		}
		if account.Balance.LessThan(in.Amount) {
			return utils.InsufficientFunds("Insufficient funds")
		}

		var sb models.StudentBill
		found := true
		if err := tx.Where("bill_id = ? AND student_id = ?", bill.ID, p.UserID).First(&sb).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.Internal(err, "Failed to load bill payment")
			}
			found = false
			sb = models.StudentBill{BillID: bill.ID, StudentID: p.UserID, Amount: bill.Amount, PaidAmount: decimal.Zero}
		}
		if remaining := sb.Remaining(); in.Amount.GreaterThan(remaining) {
			return exceedsRemaining(remaining)
		}

		if err := banking.Debit(tx, account.ID, in.Amount); err != nil {
			return err
		}

		if err := recordPayment(tx, &sb, found, in.Amount, s.now()); err != nil {
			return err
		}

		billID := bill.ID
		ledger := models.Transaction{
			AccountID:       account.ID,
			BillID:          &billID,
			TransactionType: models.TxWithdrawal,
			Amount:          in.Amount,
			Description:     "Bill payment: " + bill.Title,
		}
		if err := tx.Create(&ledger).Error; err != nil {
			return utils.Internal(err, "Failed to record transaction")
		}

		if err := tx.Select("balance").First(&account, account.ID).Error; err != nil {
			return utils.Internal(err, "Failed to reload account")
		}

		result.StudentBill = sb
		result.Transaction = ledger
		result.Balance = account.Balance
		result.Remaining = sb.Remaining()
		return nil
	})
	if err != nil {
		var appErr *utils.AppError
		if !errors.As(err, &appErr) {
			err = utils.Internal(err, "Payment failed")
		}
		logrus.WithError(err).WithFields(logrus.Fields{
			"bill_id": in.BillID, "account_id": in.AccountID, "student_id": p.UserID, "amount": in.Amount.StringFixed(2),
		}).Warn("Bill payment rejected")
		return nil, err
	}

	status, err := s.RefreshStatus(ctx, bill.ID)
	if err != nil {
		logrus.WithError(err).WithField("bill_id", bill.ID).Error("Failed to refresh bill status after payment")
		status = bill.Status
	}
	result.BillStatus = status

	logrus.WithFields(logrus.Fields{
		"bill_id": bill.ID, "student_id": p.UserID, "amount": in.Amount.StringFixed(2), "paid": result.StudentBill.IsPaid,
	}).Info("Bill payment recorded")

	if s.notifier != nil {
		msg := notifications.Message{
			Title:   "Payment received",
			Message: fmt.Sprintf("You paid %s toward %s. Remaining: %s", in.Amount.StringFixed(2), bill.Title, result.Remaining.StringFixed(2)),
			Type:    notifications.TypeSuccess,
			Data:    map[string]interface{}{"bill_id": bill.ID},
		}
		if err := s.notifier.Notify(ctx, []uint{p.UserID}, msg); err != nil {
			logrus.WithError(err).WithField("bill_id", bill.ID).Warn("Payment notification failed")
		}
	}
	return &result, nil
}

// recordPayment creates the StudentBill on first payment or adds to it,
// refusing to push paid_amount past the owed amount.
func recordPayment(tx *gorm.DB, sb *models.StudentBill, exists bool, amount decimal.Decimal, now time.Time) error {
	if !exists {
		sb.PaidAmount = amount
		sb.IsPaid = !sb.PaidAmount.LessThan(sb.Amount)
		if sb.IsPaid {
			sb.PaidAt = &now
		}
		if err := tx.Create(sb).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return utils.Conflict("A payment for this bill is already in progress")
			}
			return utils.Internal(err, "Failed to record bill payment")
		}
		return nil
	}

	res := tx.Model(&models.StudentBill{}).
		Where("id = ? AND paid_amount + ? <= amount", sb.ID, amount).
		Update("paid_amount", gorm.Expr("paid_amount + ?", amount))
	if res.Error != nil {
		return utils.Internal(res.Error, "Failed to update bill payment")
	}
	if res.RowsAffected == 0 {
		var current models.StudentBill
		if err := tx.First(&current, sb.ID).Error; err != nil {
			return utils.Internal(err, "Failed to reload bill payment")
		}
		return exceedsRemaining(current.Remaining())
	}

	if err := tx.First(sb, sb.ID).Error; err != nil {
		return utils.Internal(err, "Failed to reload bill payment")
	}
	if !sb.PaidAmount.LessThan(sb.Amount) && !sb.IsPaid {
		sb.IsPaid = true
		sb.PaidAt = &now
		if err := tx.Model(&models.StudentBill{}).Where("id = ?", sb.ID).
			Updates(map[string]interface{}{"is_paid": true, "paid_at": now}).Error; err != nil {
			return utils.Internal(err, "Failed to update bill payment")
		}
	}
	return nil
}

func exceedsRemaining(remaining decimal.Decimal) error {
	return utils.InvalidAmount(fmt.Sprintf("Payment amount exceeds remaining bill amount of %s", remaining.StringFixed(2)))
}
