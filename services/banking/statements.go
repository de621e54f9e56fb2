package banking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shortstacks/models"
	"shortstacks/services/access"
	"shortstacks/storage"
	"shortstacks/utils"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// StatementLinkTTL is how long a presigned statement download link stays valid.
const StatementLinkTTL = 15 * time.Minute

// ObjectStore is where rendered statements are kept.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	PresignGet(ctx context.Context, key string, expires time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// StatementData is one account's activity over a calendar month.
type StatementData struct {
	Account     models.BankAccount
	PeriodStart time.Time
	PeriodEnd   time.Time
	Opening     decimal.Decimal
	Closing     decimal.Decimal
	Rows        []models.Transaction
}

// MonthBounds returns [first day of month, first day of next month) in t's location.
func MonthBounds(t time.Time) (time.Time, time.Time) {
	y, m, _ := t.Date()
	start := time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 1, 0)
}

// signedAmount is the effect of a ledger row on its own account balance.
func signedAmount(t models.Transaction) decimal.Decimal {
	if t.TransactionType.IsCredit() {
		return t.Amount
	}
	return t.Amount.Neg()
}

// ComputeBalances works backwards from the current balance: closing is the
// current balance minus everything after the period, opening is closing minus
// the period's own rows.
func ComputeBalances(current decimal.Decimal, periodRows, laterRows []models.Transaction) (opening, closing decimal.Decimal) {
	closing = current
	for _, t := range laterRows {
		closing = closing.Sub(signedAmount(t))
	}
	opening = closing
	for _, t := range periodRows {
		opening = opening.Sub(signedAmount(t))
	}
	return opening, closing
}

// BuildStatement gathers the rows and balances of an account for the month containing month.
func (s *Service) BuildStatement(ctx context.Context, accountID uint, month time.Time) (*StatementData, error) {
	var acc models.BankAccount
	if err := s.db.WithContext(ctx).First(&acc, accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NotFound("Account not found")
		}
		return nil, utils.Internal(err, "Failed to load account")
	}
	start, end := MonthBounds(month)

	var rows []models.Transaction
	if err := s.db.WithContext(ctx).
		Where("account_id = ? AND created_at >= ?", accountID, start).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, utils.Internal(err, "Failed to load transactions")
	}

	var period, later []models.Transaction
	for _, r := range rows {
		if r.CreatedAt.Before(end) {
			period = append(period, r)
		} else {
			later = append(later, r)
		}
	}
	opening, closing := ComputeBalances(acc.Balance, period, later)
	return &StatementData{
		Account:     acc,
		PeriodStart: start,
		PeriodEnd:   end,
		Opening:     opening,
		Closing:     closing,
		Rows:        period,
	}, nil
}

// RenderStatementXLSX writes the statement as a single sheet workbook.
func RenderStatementXLSX(d *StatementData) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Statement"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	header := [][]interface{}{
		{"Account", d.Account.AccountNumber},
		{"Type", string(d.Account.AccountType)},
		{"Period", d.PeriodStart.Format("2006-01-02") + " to " + d.PeriodEnd.AddDate(0, 0, -1).Format("2006-01-02")},
		{"Opening balance", d.Opening.InexactFloat64()},
	}
	for i, row := range header {
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+1), &row); err != nil {
			return nil, err
		}
	}

	const tableRow = 6
	if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", tableRow), &[]interface{}{"Date", "Type", "Description", "Amount", "Balance"}); err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	_ = f.SetCellStyle(sheet, "A1", "A4", bold)
	_ = f.SetCellStyle(sheet, fmt.Sprintf("A%d", tableRow), fmt.Sprintf("E%d", tableRow), bold)

	running := d.Opening
	for i, t := range d.Rows {
		running = running.Add(signedAmount(t))
		r := tableRow + 1 + i
		values := []interface{}{
			t.CreatedAt.Format("2006-01-02 15:04"),
			string(t.TransactionType),
			t.Description,
		}
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", r), &values); err != nil {
			return nil, err
		}
		if err := f.SetCellFloat(sheet, fmt.Sprintf("D%d", r), signedAmount(t).InexactFloat64(), 2, 64); err != nil {
			return nil, err
		}
		if err := f.SetCellFloat(sheet, fmt.Sprintf("E%d", r), running.InexactFloat64(), 2, 64); err != nil {
			return nil, err
		}
	}

	last := tableRow + len(d.Rows) + 2
	if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", last), &[]interface{}{"Closing balance", d.Closing.InexactFloat64()}); err != nil {
		return nil, err
	}
	_ = f.SetCellStyle(sheet, fmt.Sprintf("A%d", last), fmt.Sprintf("A%d", last), bold)
	_ = f.SetColWidth(sheet, "A", "A", 18)
	_ = f.SetColWidth(sheet, "C", "C", 40)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GenerateStatement renders and stores the statement of one account for the month containing month.
func (s *Service) GenerateStatement(ctx context.Context, p access.Principal, accountID uint, month time.Time) (*models.Statement, error) {
	if _, err := s.GetAccount(ctx, p, accountID); err != nil {
		return nil, err
	}
	start, _ := MonthBounds(month)
	if !start.Before(s.now()) {
		return nil, utils.Validation("Statement month has not started yet")
	}
	return s.generate(ctx, accountID, month)
}

func (s *Service) generate(ctx context.Context, accountID uint, month time.Time) (*models.Statement, error) {
	if s.store == nil {
		return nil, utils.Internal(errors.New("object store not configured"), "Statements are not available")
	}
	data, err := s.BuildStatement(ctx, accountID, month)
	if err != nil {
		return nil, err
	}
	body, err := RenderStatementXLSX(data)
	if err != nil {
		return nil, utils.Internal(err, "Failed to render statement")
	}
	key := storage.ObjectKey("statements", accountID, data.PeriodStart, "xlsx")
	if err := s.store.Put(ctx, key, body, storage.ContentType("xlsx")); err != nil {
		return nil, utils.Internal(err, "Failed to upload statement")
	}

	stmt := models.Statement{
		AccountID:        accountID,
		PeriodStart:      data.PeriodStart,
		PeriodEnd:        data.PeriodEnd,
		OpeningBalance:   data.Opening,
		ClosingBalance:   data.Closing,
		TransactionCount: len(data.Rows),
		S3Key:            key,
	}
	var existing models.Statement
	err = s.db.WithContext(ctx).Where("account_id = ? AND period_start = ?", accountID, data.PeriodStart).First(&existing).Error
	switch {
	case err == nil:
		stmt.ID = existing.ID
		stmt.CreatedAt = existing.CreatedAt
		if err := s.db.WithContext(ctx).Save(&stmt).Error; err != nil {
			return nil, utils.Internal(err, "Failed to save statement")
		}
		if existing.S3Key != "" && existing.S3Key != key {
			if err := s.store.Delete(ctx, existing.S3Key); err != nil {
				logrus.WithError(err).WithField("key", existing.S3Key).Warn("Failed to delete replaced statement")
			}
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := s.db.WithContext(ctx).Create(&stmt).Error; err != nil {
			return nil, utils.Internal(err, "Failed to save statement")
		}
	default:
		return nil, utils.Internal(err, "Failed to load statement")
	}
	return &stmt, nil
}

// GenerateMonthlyStatements renders the statement of every account for the
// month containing month and returns how many were stored.
func (s *Service) GenerateMonthlyStatements(ctx context.Context, month time.Time) (int, error) {
	var ids []uint
	if err := s.db.WithContext(ctx).Model(&models.BankAccount{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("list accounts: %w", err)
	}
	done := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		if _, err := s.generate(ctx, id, month); err != nil {
			logrus.WithError(err).WithField("account_id", id).Error("Failed to generate statement")
			continue
		}
		done++
	}
	return done, nil
}

// ListStatements lists the stored statements of an account, newest first.
func (s *Service) ListStatements(ctx context.Context, p access.Principal, accountID uint) ([]models.Statement, error) {
	if _, err := s.GetAccount(ctx, p, accountID); err != nil {
		return nil, err
	}
	var out []models.Statement
	if err := s.db.WithContext(ctx).Where("account_id = ?", accountID).
		Order("period_start DESC").Find(&out).Error; err != nil {
		return nil, utils.Internal(err, "Failed to fetch statements")
	}
	return out, nil
}

// StatementURL returns a presigned download link for a statement the caller may see.
func (s *Service) StatementURL(ctx context.Context, p access.Principal, statementID uint) (string, error) {
	var stmt models.Statement
	if err := s.db.WithContext(ctx).First(&stmt, statementID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", utils.NotFound("Statement not found")
		}
		return "", utils.Internal(err, "Failed to load statement")
	}
	if _, err := s.GetAccount(ctx, p, stmt.AccountID); err != nil {
		return "", utils.NotFound("Statement not found")
	}
	if s.store == nil {
		return "", utils.Internal(errors.New("object store not configured"), "Statements are not available")
	}
	url, err := s.store.PresignGet(ctx, stmt.S3Key, StatementLinkTTL)
	if err != nil {
		return "", utils.Internal(err, "Failed to create download link")
	}
	return url, nil
}
