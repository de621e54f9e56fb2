package billing

import (
	"context"
	"testing"

	"shortstacks/database/testdb"
	"shortstacks/models"
	"shortstacks/utils"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pay(e *env, billID uint, amount string) (*PaymentResult, error) {
	return e.svc.PayBill(context.Background(), principal(e.student), PayBillInput{
		BillID:    billID,
		AccountID: e.checking.ID,
		Amount:    decimal.RequireFromString(amount),
	})
}

func ledgerCount(t *testing.T, e *env) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&models.Transaction{}).Where("account_id = ?", e.checking.ID).Count(&n).Error)
	return n
}

func TestPayBillPartialThenOverpayThenSettle(t *testing.T) {
	e := newEnv(t)
	bill := e.bill(t, "100.00", day(2025, 3, 20), models.FrequencyOnce)

	res, err := pay(e, bill.ID, "40")
	require.NoError(t, err)
	assert.Equal(t, "40.00", res.StudentBill.PaidAmount.StringFixed(2))
	assert.False(t, res.StudentBill.IsPaid)
	assert.Equal(t, "60.00", res.Remaining.StringFixed(2))
	assert.Equal(t, "160.00", res.Balance.StringFixed(2))
	assert.Equal(t, models.BillStatusPartial, res.BillStatus)
	assert.Equal(t, models.TxWithdrawal, res.Transaction.TransactionType)
	require.NotNil(t, res.Transaction.BillID)
	assert.Equal(t, bill.ID, *res.Transaction.BillID)

	_, err = pay(e, bill.ID, "70")
	require.Error(t, err)
	var appErr *utils.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, utils.KindInvalidAmount, appErr.Kind)
	assert.Equal(t, "Payment amount exceeds remaining bill amount of 60.00", appErr.Message)
	assert.Equal(t, "160.00", testdb.Balance(t, e.db, e.checking.ID).StringFixed(2))
	assert.Equal(t, int64(1), ledgerCount(t, e))

	res, err = pay(e, bill.ID, "60")
	require.NoError(t, err)
	assert.True(t, res.StudentBill.IsPaid)
	assert.NotNil(t, res.StudentBill.PaidAt)
	assert.True(t, res.Remaining.IsZero())
	assert.Equal(t, "100.00", res.Balance.StringFixed(2))
	assert.Equal(t, models.BillStatusPaid, res.BillStatus)
	assert.Equal(t, int64(2), ledgerCount(t, e))

	var stored models.Bill
	require.NoError(t, e.db.First(&stored, bill.ID).Error)
	assert.Equal(t, models.BillStatusPaid, stored.Status)
	assert.Len(t, e.notifier.titled("Payment received"), 2)
}

func TestPayBillRejections(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		setup   func(t *testing.T, e *env, bill *models.Bill)
		kind    utils.ErrorKind
		message string
	}{
		{
			name:    "first payment above the bill amount",
			amount:  "150",
			kind:    utils.KindInvalidAmount,
			message: "Payment amount exceeds remaining bill amount of 100.00",
		},
		{
			name:    "zero amount",
			amount:  "0",
			kind:    utils.KindInvalidAmount,
			message: "Payment amount must be greater than zero",
		},
		{
			name:    "three decimal places",
			amount:  "10.005",
			kind:    utils.KindInvalidAmount,
			message: "Payment amount must have at most two decimal places",
		},
		{
			name:    "over the money limit",
			amount:  "100000000000.00",
			kind:    utils.KindInvalidAmount,
			message: "Payment amount exceeds the maximum of 9999999999.99",
		},
		{
			name:   "balance too low",
			amount: "100",
			setup: func(t *testing.T, e *env, _ *models.Bill) {
				require.NoError(t, e.db.Model(&models.BankAccount{}).Where("id = ?", e.checking.ID).
					Update("balance", decimal.NewFromInt(30)).Error)
			},
			kind:    utils.KindInsufficientFunds,
			message: "Insufficient funds",
		},
		{
			name:   "cancelled bill",
			amount: "10",
			setup: func(t *testing.T, e *env, bill *models.Bill) {
				_, err := e.svc.CancelBill(context.Background(), principal(e.teacher), bill.ID, "mistake")
				require.NoError(t, err)
			},
			kind:    utils.KindInvalidAmount,
			message: "Bill has been cancelled",
		},
		{
			name:   "bill of another class",
			amount: "10",
			setup: func(t *testing.T, e *env, bill *models.Bill) {
				other := testdb.Class(t, e.db, e.teacher.ID, "History")
				require.NoError(t, e.db.Model(bill).Association("Classes").Replace([]models.Class{other}))
			},
			kind:    utils.KindNotFound,
			message: "Bill not found",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t)
			bill := e.bill(t, "100.00", day(2025, 3, 20), models.FrequencyOnce)
			if tc.setup != nil {
				tc.setup(t, e, &bill)
			}
			before := testdb.Balance(t, e.db, e.checking.ID)

			_, err := pay(e, bill.ID, tc.amount)
			var appErr *utils.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tc.kind, appErr.Kind)
			assert.Equal(t, tc.message, appErr.Message)

			assert.True(t, before.Equal(testdb.Balance(t, e.db, e.checking.ID)))
			assert.Equal(t, int64(0), ledgerCount(t, e))
			var rows int64
			require.NoError(t, e.db.Model(&models.StudentBill{}).Count(&rows).Error)
			assert.Equal(t, int64(0), rows)
		})
	}
}

func TestPayBillRequiresStudent(t *testing.T) {
	e := newEnv(t)
	bill := e.bill(t, "100.00", day(2025, 3, 20), models.FrequencyOnce)

	_, err := e.svc.PayBill(context.Background(), principal(e.teacher), PayBillInput{
		BillID: bill.ID, AccountID: e.checking.ID, Amount: decimal.NewFromInt(10),
	})
	assert.True(t, utils.IsKind(err, utils.KindForbidden))
}

func TestPayBillWithSomeoneElsesAccount(t *testing.T) {
	e := newEnv(t)
	bill := e.bill(t, "100.00", day(2025, 3, 20), models.FrequencyOnce)
	other := testdb.Student(t, e.db, "wanda")
	theirs := testdb.Account(t, e.db, other.ID, models.AccountChecking, "500.00")

	_, err := e.svc.PayBill(context.Background(), principal(e.student), PayBillInput{
		BillID: bill.ID, AccountID: theirs.ID, Amount: decimal.NewFromInt(10),
	})
	assert.True(t, utils.IsKind(err, utils.KindNotFound))
	assert.Equal(t, "500.00", testdb.Balance(t, e.db, theirs.ID).StringFixed(2))
}
