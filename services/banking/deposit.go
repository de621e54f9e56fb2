package banking

import (
	"context"
	"errors"
	"fmt"

	"shortstacks/models"
	"shortstacks/services/access"
	"shortstacks/services/notifications"
	"shortstacks/utils"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DepositInput funds the CHECKING accounts of students in one class.
// An empty StudentIDs means every enrolled student.
type DepositInput struct {
	ClassID     uint            `json:"class_id" validate:"required"`
	StudentIDs  []uint          `json:"student_ids"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"max=200"`
}

type DepositResult struct {
	Credited     int                  `json:"credited"`
	Total        decimal.Decimal      `json:"total"`
	Transactions []models.Transaction `json:"transactions"`
}

// Deposit credits every selected student or none of them.
func (s *Service) Deposit(ctx context.Context, p access.Principal, in DepositInput) (*DepositResult, error) {
	if err := access.RequireRole(p, models.RoleTeacher, models.RoleSuperAdmin); err != nil {
		return nil, err
	}
	if err := utils.PositiveAmount(in.Amount, "Deposit amount"); err != nil {
		return nil, err
	}
	if err := access.TeacherOwnsClasses(ctx, s.db, p, []uint{in.ClassID}); err != nil {
		return nil, err
	}

	var enrolled []uint
	if err := s.db.WithContext(ctx).Model(&models.Enrollment{}).
		Where("class_id = ?", in.ClassID).Order("student_id").
		Pluck("student_id", &enrolled).Error; err != nil {
		return nil, utils.Internal(err, "Failed to load class roster")
	}

	targets := enrolled
	if len(in.StudentIDs) > 0 {
		inClass := make(map[uint]bool, len(enrolled))
		for _, id := range enrolled {
			inClass[id] = true
		}
		targets = targets[:0:0]
		seen := make(map[uint]bool, len(in.StudentIDs))
		for _, id := range in.StudentIDs {
			if !inClass[id] {
				return nil, utils.NotFound(fmt.Sprintf("Student %d is not enrolled in this class", id))
			}
			if !seen[id] {
				seen[id] = true
				targets = append(targets, id)
			}
		}
	}
	if len(targets) == 0 {
		return nil, utils.Validation("No students to deposit to")
	}

	desc := in.Description
	if desc == "" {
		desc = "Deposit"
	}

	result := DepositResult{Total: decimal.Zero}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, studentID := range targets {
			accounts, err := ProvisionAccounts(tx, studentID)
			if err != nil {
				return err
			}
			var checking *models.BankAccount
			for i := range accounts {
				if accounts[i].AccountType == models.AccountChecking {
					checking = &accounts[i]
				}
			}
			if checking == nil {
				return fmt.Errorf("student %d has no checking account", studentID)
			}
			if err := Credit(tx, checking.ID, in.Amount); err != nil {
				return err
			}
			row := models.Transaction{
				AccountID:       checking.ID,
				TransactionType: models.TxDeposit,
				Amount:          in.Amount,
				Description:     desc,
			}
			if err := tx.Create(&row).Error; err != nil {
				return utils.Internal(err, "Failed to record deposit")
			}
			result.Transactions = append(result.Transactions, row)
			result.Credited++
			result.Total = result.Total.Add(in.Amount)
		}
		return nil
	})
	if err != nil {
		var appErr *utils.AppError
		if !errors.As(err, &appErr) {
			err = utils.Internal(err, "Deposit failed")
		}
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"class_id": in.ClassID, "teacher_id": p.UserID, "students": result.Credited, "amount": in.Amount.StringFixed(2),
	}).Info("Deposit completed")

	if s.notifier != nil {
		msg := notifications.Message{
			Title:   "Money deposited",
			Message: fmt.Sprintf("%s was deposited to your checking account: %s", in.Amount.StringFixed(2), desc),
			Type:    notifications.TypeSuccess,
		}
		if err := s.notifier.Notify(ctx, targets, msg); err != nil {
			logrus.WithError(err).Warn("Deposit notification failed")
		}
	}
	return &result, nil
}
