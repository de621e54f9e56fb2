package store

import (
	"context"
	"testing"

	"shortstacks/database/testdb"
	"shortstacks/models"
	"shortstacks/services/access"
	"shortstacks/utils"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func principal(u models.User) access.Principal {
	return access.Principal{UserID: u.ID, Username: u.Username, Role: u.Role}
}

type shop struct {
	db      *gorm.DB
	svc     *Service
	teacher models.User
	student models.User
	class   models.Class
	account models.BankAccount
}

func newShop(t *testing.T, balance string) *shop {
	t.Helper()
	db := testdb.New(t)
	s := &shop{db: db, svc: NewService(db, nil)}
	s.teacher = testdb.Teacher(t, db, "ms.frizzle")
	s.student = testdb.Student(t, db, "arnold")
	s.class = testdb.Class(t, db, s.teacher.ID, "Economics")
	testdb.Enroll(t, db, s.class.ID, s.student.ID)
	s.account = testdb.Account(t, db, s.student.ID, models.AccountChecking, balance)
	return s
}

func (s *shop) item(t *testing.T, price string, stock *int, active bool) models.StoreItem {
	t.Helper()
	item, err := s.svc.CreateItem(context.Background(), principal(s.teacher), s.class.ID, ItemInput{
		Name:   "Pencil",
		Price:  decimal.RequireFromString(price),
		Stock:  stock,
		Active: &active,
	})
	require.NoError(t, err)
	return *item
}

func intPtr(n int) *int { return &n }

func TestPurchase(t *testing.T) {
	s := newShop(t, "10.00")
	item := s.item(t, "2.50", intPtr(3), true)

	res, err := s.svc.Purchase(context.Background(), principal(s.student), PurchaseInput{ItemID: item.ID, Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, "5.00", res.Purchase.Total.StringFixed(2))
	assert.Equal(t, "5.00", res.Balance.StringFixed(2))
	assert.Equal(t, models.TxPurchase, res.Transaction.TransactionType)
	require.NotNil(t, res.Transaction.PurchaseID)
	assert.Equal(t, res.Purchase.ID, *res.Transaction.PurchaseID)
	assert.Equal(t, "Store: 2 x Pencil", res.Transaction.Description)

	var stored models.StoreItem
	require.NoError(t, s.db.First(&stored, item.ID).Error)
	require.NotNil(t, stored.Stock)
	assert.Equal(t, 1, *stored.Stock)
}

func TestPurchaseUnlimitedStock(t *testing.T) {
	s := newShop(t, "100.00")
	item := s.item(t, "1.00", nil, true)

	_, err := s.svc.Purchase(context.Background(), principal(s.student), PurchaseInput{ItemID: item.ID, Quantity: 40})
	require.NoError(t, err)
	assert.Equal(t, "60.00", testdb.Balance(t, s.db, s.account.ID).StringFixed(2))
}

func TestPurchaseRejections(t *testing.T) {
	tests := []struct {
		name     string
		balance  string
		stock    *int
		active   bool
		quantity int
		outsider bool
		kind     utils.ErrorKind
	}{
		{name: "not enough stock", balance: "100", stock: intPtr(1), active: true, quantity: 2, kind: utils.KindConflict},
		{name: "not enough money", balance: "4.99", stock: intPtr(5), active: true, quantity: 2, kind: utils.KindInsufficientFunds},
		{name: "inactive item", balance: "100", active: false, quantity: 1, kind: utils.KindNotFound},
		{name: "zero quantity", balance: "100", active: true, quantity: 0, kind: utils.KindInvalidAmount},
		{name: "student of another class", balance: "100", active: true, quantity: 1, outsider: true, kind: utils.KindNotFound},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			s := newShop(t, tc.balance)
			item := s.item(t, "2.50", tc.stock, tc.active)
			buyer := s.student
			if tc.outsider {
				buyer = testdb.Student(t, s.db, "phoebe")
				testdb.Account(t, s.db, buyer.ID, models.AccountChecking, "100")
			}
			before := testdb.Balance(t, s.db, s.account.ID)

			_, err := s.svc.Purchase(context.Background(), principal(buyer), PurchaseInput{ItemID: item.ID, Quantity: tc.quantity})
			assert.True(t, utils.IsKind(err, tc.kind), "got %v", err)

			assert.True(t, before.Equal(testdb.Balance(t, s.db, s.account.ID)))
			var purchases, ledger int64
			require.NoError(t, s.db.Model(&models.Purchase{}).Count(&purchases).Error)
			require.NoError(t, s.db.Model(&models.Transaction{}).Count(&ledger).Error)
			assert.Zero(t, purchases)
			assert.Zero(t, ledger)

			var stored models.StoreItem
			require.NoError(t, s.db.First(&stored, item.ID).Error)
			assert.Equal(t, tc.stock == nil, stored.Stock == nil)
			if tc.stock != nil {
				assert.Equal(t, *tc.stock, *stored.Stock)
			}
		})
	}
}

func TestListItemsHidesInactiveFromStudents(t *testing.T) {
	s := newShop(t, "0")
	s.item(t, "1.00", nil, true)
	s.item(t, "1.00", nil, false)

	items, err := s.svc.ListItems(context.Background(), principal(s.student), s.class.ID)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	items, err = s.svc.ListItems(context.Background(), principal(s.teacher), s.class.ID)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestUpdateItemByAnotherTeacher(t *testing.T) {
	s := newShop(t, "0")
	item := s.item(t, "1.00", nil, true)
	other := testdb.Teacher(t, s.db, "mr.ratburn")

	_, err := s.svc.UpdateItem(context.Background(), principal(other), item.ID, ItemInput{Name: "Pen", Price: decimal.NewFromInt(2)})
	assert.True(t, utils.IsKind(err, utils.KindNotFound))

	inactive := false
	updated, err := s.svc.UpdateItem(context.Background(), principal(s.teacher), item.ID, ItemInput{Name: "Pen", Price: decimal.NewFromInt(2), Active: &inactive})
	require.NoError(t, err)
	assert.Equal(t, "Pen", updated.Name)
	assert.False(t, updated.Active)
}
