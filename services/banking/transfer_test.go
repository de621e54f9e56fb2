package banking

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

func TestTransferMovesMoneyWithPairedLedgerRows(t *testing.T) {
	db := testdb.New(t)
	svc := NewService(db, nil, nil)
	student := testdb.Student(t, db, "arnold")
	checking := testdb.Account(t, db, student.ID, models.AccountChecking, "100.00")
	savings := testdb.Account(t, db, student.ID, models.AccountSavings, "0")

	res, err := svc.Transfer(context.Background(), principal(student), TransferInput{
		FromAccountID: checking.ID,
		ToAccountID:   savings.ID,
		Amount:        decimal.RequireFromString("25.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, "75.00", res.FromBalance.StringFixed(2))
	assert.Equal(t, "25.00", res.ToBalance.StringFixed(2))
	assert.Equal(t, "75.00", testdb.Balance(t, db, checking.ID).StringFixed(2))
	assert.Equal(t, "25.00", testdb.Balance(t, db, savings.ID).StringFixed(2))

	assert.Equal(t, models.TxTransferOut, res.Out.TransactionType)
	require.NotNil(t, res.Out.ReceivingAccountID)
	assert.Equal(t, savings.ID, *res.Out.ReceivingAccountID)
	assert.Equal(t, models.TxTransferIn, res.In.TransactionType)
	require.NotNil(t, res.In.ReceivingAccountID)
	assert.Equal(t, checking.ID, *res.In.ReceivingAccountID)
	assert.Equal(t, "Transfer CHECKING -> SAVINGS", res.Out.Description)

	var rows []models.Transaction
	require.NoError(t, db.Order("id").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, checking.ID, rows[0].AccountID)
	assert.Equal(t, savings.ID, rows[1].AccountID)
}

func TestTransferRejections(t *testing.T) {
	tests := []struct {
		name   string
		from   func(own, other models.BankAccount, sav models.BankAccount) uint
		to     func(own, other models.BankAccount, sav models.BankAccount) uint
		amount string
		kind   utils.ErrorKind
	}{
		{
			name:   "more than the balance",
			from:   func(own, _, _ models.BankAccount) uint { return own.ID },
			to:     func(_, _, sav models.BankAccount) uint { return sav.ID },
			amount: "100.01",
			kind:   utils.KindInsufficientFunds,
		},
		{
			name:   "same account",
			from:   func(own, _, _ models.BankAccount) uint { return own.ID },
			to:     func(own, _, _ models.BankAccount) uint { return own.ID },
			amount: "5",
			kind:   utils.KindInvalidAmount,
		},
		{
			name:   "into another student's account",
			from:   func(own, _, _ models.BankAccount) uint { return own.ID },
			to:     func(_, other, _ models.BankAccount) uint { return other.ID },
			amount: "5",
			kind:   utils.KindNotFound,
		},
		{
			name:   "negative amount",
			from:   func(own, _, _ models.BankAccount) uint { return own.ID },
			to:     func(_, _, sav models.BankAccount) uint { return sav.ID },
			amount: "-5",
			kind:   utils.KindInvalidAmount,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			db := testdb.New(t)
			svc := NewService(db, nil, nil)
			student := testdb.Student(t, db, "arnold")
			own := testdb.Account(t, db, student.ID, models.AccountChecking, "100.00")
			sav := testdb.Account(t, db, student.ID, models.AccountSavings, "0")
			someone := testdb.Student(t, db, "wanda")
			other := testdb.Account(t, db, someone.ID, models.AccountChecking, "0")

			_, err := svc.Transfer(context.Background(), principal(student), TransferInput{
				FromAccountID: tc.from(own, other, sav),
				ToAccountID:   tc.to(own, other, sav),
				Amount:        decimal.RequireFromString(tc.amount),
			})
			assert.True(t, utils.IsKind(err, tc.kind), "got %v", err)

			assert.Equal(t, "100.00", testdb.Balance(t, db, own.ID).StringFixed(2))
			assert.True(t, testdb.Balance(t, db, sav.ID).IsZero())
			assert.True(t, testdb.Balance(t, db, other.ID).IsZero())
			var n int64
			require.NoError(t, db.Model(&models.Transaction{}).Count(&n).Error)
			assert.Zero(t, n)
		})
	}
}

func TestTransferRequiresStudent(t *testing.T) {
	db := testdb.New(t)
	svc := NewService(db, nil, nil)
	teacher := testdb.Teacher(t, db, "ms.frizzle")

	_, err := svc.Transfer(context.Background(), principal(teacher), TransferInput{
		FromAccountID: 1, ToAccountID: 2, Amount: decimal.NewFromInt(1),
	})
	assert.True(t, utils.IsKind(err, utils.KindForbidden))
}

func TestDebitNeverOverdraws(t *testing.T) {
	db := testdb.New(t)
	student := testdb.Student(t, db, "arnold")
	acc := testdb.Account(t, db, student.ID, models.AccountChecking, "10.00")

	err := Debit(db, acc.ID, decimal.NewFromInt(11))
	assert.True(t, utils.IsKind(err, utils.KindInsufficientFunds))
	require.NoError(t, Debit(db, acc.ID, decimal.NewFromInt(10)))
	assert.True(t, testdb.Balance(t, db, acc.ID).IsZero())
}

func TestCreditNeverPassesTheMoneyLimit(t *testing.T) {
	db := testdb.New(t)
	student := testdb.Student(t, db, "arnold")
	acc := testdb.Account(t, db, student.ID, models.AccountSavings, "9999999990.00")

	err := Credit(db, acc.ID, decimal.NewFromInt(10))
	assert.True(t, utils.IsKind(err, utils.KindInvalidAmount), "got %v", err)
	assert.EqualError(t, err, "Balance would exceed the maximum of 9999999999.99")
	assert.Equal(t, "9999999990.00", testdb.Balance(t, db, acc.ID).StringFixed(2))

	require.NoError(t, Credit(db, acc.ID, decimal.RequireFromString("9.99")))
	assert.Equal(t, "9999999999.99", testdb.Balance(t, db, acc.ID).StringFixed(2))

	err = Credit(db, 9999, decimal.NewFromInt(1))
	assert.True(t, utils.IsKind(err, utils.KindNotFound))
}
