// Package testdb opens throwaway in-memory databases for service tests.
package testdb

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"shortstacks/models"
	"shortstacks/utils"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Password is the plain text password of every fixture user.
const Password = "password123"

var seq atomic.Int64

// New returns a migrated in-memory database private to t. A single
// connection serialises access the way row locks would on MySQL.
func New(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:shortstacks_%d?mode=memory&cache=shared", seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

var (
	hashOnce     sync.Once
	passwordHash string
	hashErr      error
)

// hashed computes the bcrypt fixture hash once per test binary.
func hashed(t testing.TB) string {
	t.Helper()
	hashOnce.Do(func() {
		passwordHash, hashErr = utils.HashPassword(Password)
	})
	if hashErr != nil {
		t.Fatalf("hash password: %v", hashErr)
	}
	return passwordHash
}

// User inserts an active user with the given role.
func User(t testing.TB, db *gorm.DB, username, role string) models.User {
	t.Helper()
	u := models.User{
		Username:    username,
		Password:    hashed(t),
		DisplayName: username,
		Role:        role,
		Status:      models.StatusActive,
	}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

func Teacher(t testing.TB, db *gorm.DB, username string) models.User {
	return User(t, db, username, models.RoleTeacher)
}

func Student(t testing.TB, db *gorm.DB, username string) models.User {
	return User(t, db, username, models.RoleStudent)
}

// Class inserts a class owned by teacherID with a random join code.
func Class(t testing.TB, db *gorm.DB, teacherID uint, name string) models.Class {
	t.Helper()
	code, err := utils.GenerateJoinCode(6)
	if err != nil {
		t.Fatalf("join code: %v", err)
	}
	c := models.Class{Name: name, Period: "1", JoinCode: code, TeacherID: teacherID, Active: true}
	if err := db.Create(&c).Error; err != nil {
		t.Fatalf("create class %s: %v", name, err)
	}
	return c
}

func Enroll(t testing.TB, db *gorm.DB, classID, studentID uint) {
	t.Helper()
	if err := db.Create(&models.Enrollment{ClassID: classID, StudentID: studentID}).Error; err != nil {
		t.Fatalf("enroll student %d in class %d: %v", studentID, classID, err)
	}
}

// Account inserts a bank account holding balance, e.g. "100.00".
func Account(t testing.TB, db *gorm.DB, studentID uint, typ models.AccountType, balance string) models.BankAccount {
	t.Helper()
	acc := models.BankAccount{
		StudentID:     studentID,
		AccountType:   typ,
		AccountNumber: "SS-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10]),
		Balance:       decimal.RequireFromString(balance),
	}
	if err := db.Create(&acc).Error; err != nil {
		t.Fatalf("create account: %v", err)
	}
	return acc
}

// Balance reloads the balance of an account.
func Balance(t testing.TB, db *gorm.DB, accountID uint) decimal.Decimal {
	t.Helper()
	var acc models.BankAccount
	if err := db.First(&acc, accountID).Error; err != nil {
		t.Fatalf("load account %d: %v", accountID, err)
	}
	return acc.Balance
}
