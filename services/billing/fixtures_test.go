package billing

import (
	"context"
	"sync"
	"testing"
	"time"

	"shortstacks/database/testdb"
	"shortstacks/models"
	"shortstacks/services/access"
	"shortstacks/services/notifications"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type notifyCall struct {
	userIDs []uint
	msg     notifications.Message
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
}

func (f *fakeNotifier) Notify(_ context.Context, userIDs []uint, msg notifications.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, notifyCall{userIDs: append([]uint(nil), userIDs...), msg: msg})
	return nil
}

func (f *fakeNotifier) titled(title string) []notifyCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []notifyCall
	for _, c := range f.calls {
		if c.msg.Title == title {
			out = append(out, c)
		}
	}
	return out
}

func principal(u models.User) access.Principal {
	return access.Principal{UserID: u.ID, Username: u.Username, Role: u.Role}
}

type env struct {
	db       *gorm.DB
	svc      *Service
	notifier *fakeNotifier
	teacher  models.User
	student  models.User
	class    models.Class
	checking models.BankAccount
}

// newEnv seeds one teacher with one class and one enrolled student holding 200.00.
func newEnv(t *testing.T) *env {
	t.Helper()
	db := testdb.New(t)
	n := &fakeNotifier{}
	e := &env{
		db:       db,
		svc:      NewService(db, n).WithClock(func() time.Time { return testNow }),
		notifier: n,
		teacher:  testdb.Teacher(t, db, "ms.frizzle"),
		student:  testdb.Student(t, db, "arnold"),
	}
	e.class = testdb.Class(t, db, e.teacher.ID, "Economics")
	testdb.Enroll(t, db, e.class.ID, e.student.ID)
	e.checking = testdb.Account(t, db, e.student.ID, models.AccountChecking, "200.00")
	return e
}

// bill inserts a bill assigned to the env's class.
func (e *env) bill(t *testing.T, amount string, due time.Time, freq models.Frequency) models.Bill {
	t.Helper()
	b := models.Bill{
		Title:       "Rent",
		Amount:      decimal.RequireFromString(amount),
		DueDate:     due,
		Frequency:   freq,
		Status:      models.BillStatusActive,
		CreatedByID: e.teacher.ID,
		Classes:     []models.Class{e.class},
	}
	if err := e.db.Create(&b).Error; err != nil {
		t.Fatalf("create bill: %v", err)
	}
	return b
}
