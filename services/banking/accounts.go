package banking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"shortstacks/models"
	"shortstacks/services/access"
	"shortstacks/services/notifications"
	"shortstacks/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service owns bank accounts, their ledger and statements.
type Service struct {
	db       *gorm.DB
	notifier notifications.Notifier
	store    ObjectStore
	now      func() time.Time
}

// NewService wires the banking service. store may be nil when statements are disabled.
func NewService(db *gorm.DB, notifier notifications.Notifier, store ObjectStore) *Service {
	return &Service{db: db, notifier: notifier, store: store, now: time.Now}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ProvisionAccounts makes sure the student has a CHECKING and a SAVINGS account.
// It runs on the caller's transaction.
func ProvisionAccounts(tx *gorm.DB, studentID uint) ([]models.BankAccount, error) {
	var existing []models.BankAccount
	if err := tx.Where("student_id = ?", studentID).Find(&existing).Error; err != nil {
		return nil, fmt.Errorf("load accounts for student %d: %w", studentID, err)
	}
	have := make(map[models.AccountType]bool, len(existing))
	for _, a := range existing {
		have[a.AccountType] = true
	}

	for _, t := range []models.AccountType{models.AccountChecking, models.AccountSavings} {
		if have[t] {
			continue
		}
		acc := models.BankAccount{StudentID: studentID, AccountType: t, AccountNumber: NewAccountNumber()}
		if err := tx.Create(&acc).Error; err != nil {
			return nil, fmt.Errorf("create %s account for student %d: %w", t, studentID, err)
		}
		existing = append(existing, acc)
	}
	return existing, nil
}

// NewAccountNumber returns "SS-" followed by 10 uppercase hex characters.
func NewAccountNumber() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "SS-" + strings.ToUpper(raw[:10])
}

// ListAccounts returns the accounts of a student. Students may only list their own.
func (s *Service) ListAccounts(ctx context.Context, p access.Principal, studentID uint) ([]models.BankAccount, error) {
	if studentID == 0 {
		studentID = p.UserID
	}
	if err := access.TeacherCanViewStudent(ctx, s.db, p, studentID); err != nil {
		return nil, err
	}
	var accounts []models.BankAccount
	if err := s.db.WithContext(ctx).Where("student_id = ?", studentID).
		Order("account_type ASC").Find(&accounts).Error; err != nil {
		return nil, utils.Internal(err, "Failed to fetch accounts")
	}
	return accounts, nil
}

// GetAccount loads an account the caller may see.
func (s *Service) GetAccount(ctx context.Context, p access.Principal, accountID uint) (*models.BankAccount, error) {
	var acc models.BankAccount
	if err := s.db.WithContext(ctx).First(&acc, accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NotFound("Account not found")
		}
		return nil, utils.Internal(err, "Failed to load account")
	}
	if err := access.TeacherCanViewStudent(ctx, s.db, p, acc.StudentID); err != nil {
		return nil, utils.NotFound("Account not found")
	}
	return &acc, nil
}

// ListTransactions returns a page of an account's ledger, newest first.
func (s *Service) ListTransactions(ctx context.Context, p access.Principal, accountID uint, page, pageSize int) ([]models.Transaction, int64, error) {
	if _, err := s.GetAccount(ctx, p, accountID); err != nil {
		return nil, 0, err
	}
	q := s.db.WithContext(ctx).Model(&models.Transaction{}).Where("account_id = ?", accountID)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, utils.Internal(err, "Failed to count transactions")
	}
	var rows []models.Transaction
	if err := q.Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, utils.Internal(err, "Failed to fetch transactions")
	}
	return rows, total, nil
}

// ownedAccount loads an account inside tx and checks it belongs to the student.
func ownedAccount(tx *gorm.DB, accountID, studentID uint) (*models.BankAccount, error) {
	var acc models.BankAccount
	if err := tx.Where("id = ? AND student_id = ?", accountID, studentID).First(&acc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NotFound("Account not found")
		}
		return nil, utils.Internal(err, "Failed to load account")
	}
	return &acc, nil
}

// Debit subtracts amount only when the balance covers it. Callers run it
// inside their transaction so the ledger row commits with the balance change.
func Debit(tx *gorm.DB, accountID uint, amount decimal.Decimal) error {
	res := tx.Model(&models.BankAccount{}).
		Where("id = ? AND balance >= ?", accountID, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return utils.Internal(res.Error, "Failed to debit account")
	}
	if res.RowsAffected == 0 {
		return utils.InsufficientFunds("Insufficient funds")
	}
	return nil
}

// Credit adds amount to the account. It never takes a balance past utils.MaxAmount.
func Credit(tx *gorm.DB, accountID uint, amount decimal.Decimal) error {
	res := tx.Model(&models.BankAccount{}).
		Where("id = ? AND balance <= ?", accountID, utils.MaxAmount.Sub(amount)).
		Update("balance", gorm.Expr("balance + ?", amount))
	if res.Error != nil {
		return utils.Internal(res.Error, "Failed to credit account")
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var n int64
	if err := tx.Model(&models.BankAccount{}).Where("id = ?", accountID).Count(&n).Error; err != nil {
		return utils.Internal(err, "Failed to load account")
	}
	if n == 0 {
		return utils.NotFound("Account not found")
	}
	return utils.InvalidAmount("Balance would exceed the maximum of " + utils.MaxAmount.StringFixed(2))
}
