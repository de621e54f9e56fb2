package banking

import (
	"context"
	"errors"
	"fmt"

	"shortstacks/models"
	"shortstacks/services/access"
	"shortstacks/utils"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// TransferInput is the payload of POST /api/accounts/transfer.
type TransferInput struct {
	FromAccountID uint            `json:"fromAccountId" validate:"required"`
	ToAccountID   uint            `json:"toAccountId" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description" validate:"max=200"`
}

// TransferResult carries both ledger rows and the resulting balances.
type TransferResult struct {
	Out         models.Transaction `json:"transfer_out"`
	In          models.Transaction `json:"transfer_in"`
	FromBalance decimal.Decimal    `json:"from_balance"`
	ToBalance   decimal.Decimal    `json:"to_balance"`
}

// Transfer moves money between two accounts of the same student. Each side
// gets its own ledger row pointing at the other account.
func (s *Service) Transfer(ctx context.Context, p access.Principal, in TransferInput) (*TransferResult, error) {
	if err := access.RequireRole(p, models.RoleStudent); err != nil {
		return nil, err
	}
	if err := utils.PositiveAmount(in.Amount, "Transfer amount"); err != nil {
		return nil, err
	}

	var result TransferResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		from, err := ownedAccount(tx, in.FromAccountID, p.UserID)
		if err != nil {
			return err
		}
		to, err := ownedAccount(tx, in.ToAccountID, p.UserID)
		if err != nil {
			return err
		}
		if from.ID == to.ID {
			return utils.InvalidAmount("Cannot transfer to the same account")
		}
		if from.Balance.LessThan(in.Amount) {
			return utils.InsufficientFunds("Insufficient funds")
		}

		if err := Debit(tx, from.ID, in.Amount); err != nil {
			return err
		}
		if err := Credit(tx, to.ID, in.Amount); err != nil {
			return err
		}

		desc := in.Description
		if desc == "" {
			desc = fmt.Sprintf("Transfer %s -> %s", from.AccountType, to.AccountType)
		}
		fromID, toID := from.ID, to.ID
		result.Out = models.Transaction{
			AccountID:          from.ID,
			ReceivingAccountID: &toID,
			TransactionType:    models.TxTransferOut,
			Amount:             in.Amount,
			Description:        desc,
		}
		result.In = models.Transaction{
			AccountID:          to.ID,
			ReceivingAccountID: &fromID,
			TransactionType:    models.TxTransferIn,
			Amount:             in.Amount,
			Description:        desc,
		}
		if err := tx.Create(&result.Out).Error; err != nil {
			return utils.Internal(err, "Failed to record transfer")
		}
		if err := tx.Create(&result.In).Error; err != nil {
			return utils.Internal(err, "Failed to record transfer")
		}

		var after []models.BankAccount
		if err := tx.Select("id", "balance").Where("id IN ?", []uint{from.ID, to.ID}).Find(&after).Error; err != nil {
			return utils.Internal(err, "Failed to reload accounts")
		}
		for _, a := range after {
			if a.ID == from.ID {
				result.FromBalance = a.Balance
			} else {
				result.ToBalance = a.Balance
			}
		}
		return nil
	})
	if err != nil {
		var appErr *utils.AppError
		if !errors.As(err, &appErr) {
			err = utils.Internal(err, "Transfer failed")
		}
		logrus.WithError(err).WithFields(logrus.Fields{
			"from": in.FromAccountID, "to": in.ToAccountID, "student_id": p.UserID, "amount": in.Amount.StringFixed(2),
		}).Warn("Transfer rejected")
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"from": in.FromAccountID, "to": in.ToAccountID, "student_id": p.UserID, "amount": in.Amount.StringFixed(2),
	}).Info("Transfer completed")
	return &result, nil
}
