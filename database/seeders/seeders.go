package seeders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shortstacks/models"
	"shortstacks/services/banking"
	"shortstacks/utils"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SeedAll runs all seeders. Demo data is only created in development.
func SeedAll(ctx context.Context, db *gorm.DB, adminUsername, adminPassword string, withDemo bool) error {
	logrus.Info("Starting database seeding...")

	if err := SeedSuperAdmin(ctx, db, adminUsername, adminPassword); err != nil {
		return err
	}
	if withDemo {
		if err := SeedDemoClass(ctx, db); err != nil {
			return err
		}
	}

	logrus.Info("Database seeding completed successfully!")
	return nil
}

// SeedSuperAdmin creates the super admin account when it does not exist yet.
func SeedSuperAdmin(ctx context.Context, db *gorm.DB, username, password string) error {
	if username == "" || password == "" {
		logrus.Debug("ADMIN_USERNAME/ADMIN_PASSWORD not set, skipping super admin seed")
		return nil
	}

	var existing models.User
	err := db.WithContext(ctx).Where("username = ?", username).First(&existing).Error
	if err == nil {
		logrus.WithField("username", username).Info("Super admin already seeded, skipping...")
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("lookup super admin: %w", err)
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash super admin password: %w", err)
	}
	admin := models.User{
		Username:    username,
		Password:    hash,
		DisplayName: "Administrator",
		Role:        models.RoleSuperAdmin,
		Status:      models.StatusActive,
	}
	if err := db.WithContext(ctx).Create(&admin).Error; err != nil {
		return fmt.Errorf("create super admin: %w", err)
	}

	logrus.WithField("username", username).Info("Super admin seeded successfully")
	return nil
}

// SeedDemoClass creates a teacher, a class with two funded students and a monthly rent bill.
func SeedDemoClass(ctx context.Context, db *gorm.DB) error {
	var count int64
	db.WithContext(ctx).Model(&models.Class{}).Count(&count)
	if count > 0 {
		logrus.Info("Classes already seeded, skipping...")
		return nil
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		hash, err := utils.HashPassword("password123")
		if err != nil {
			return err
		}

		teacher := models.User{Username: "demo.teacher", Password: hash, DisplayName: "Demo Teacher", Role: models.RoleTeacher, Status: models.StatusActive}
		if err := tx.Create(&teacher).Error; err != nil {
			return fmt.Errorf("seed teacher: %w", err)
		}

		code, err := utils.GenerateJoinCode(6)
		if err != nil {
			return err
		}
		class := models.Class{Name: "Personal Finance", Period: "1", JoinCode: code, TeacherID: teacher.ID, Active: true}
		if err := tx.Create(&class).Error; err != nil {
			return fmt.Errorf("seed class: %w", err)
		}

		for _, name := range []string{"demo.student1", "demo.student2"} {
			student := models.User{Username: name, Password: hash, DisplayName: name, Role: models.RoleStudent, Status: models.StatusActive}
			if err := tx.Create(&student).Error; err != nil {
				return fmt.Errorf("seed student %s: %w", name, err)
			}
			if err := tx.Create(&models.Enrollment{ClassID: class.ID, StudentID: student.ID}).Error; err != nil {
				return fmt.Errorf("seed enrollment %s: %w", name, err)
			}
			accounts, err := banking.ProvisionAccounts(tx, student.ID)
			if err != nil {
				return err
			}
			for _, acc := range accounts {
				if acc.AccountType != models.AccountChecking {
					continue
				}
				opening := decimal.NewFromInt(100)
				if err := tx.Model(&models.BankAccount{}).Where("id = ?", acc.ID).
					Update("balance", opening).Error; err != nil {
					return err
				}
				if err := tx.Create(&models.Transaction{
					AccountID:       acc.ID,
					TransactionType: models.TxDeposit,
					Amount:          opening,
					Description:     "Opening deposit",
				}).Error; err != nil {
					return err
				}
			}
		}

		bill := models.Bill{
			Title:       "Rent",
			Description: "Monthly desk rent",
			Amount:      decimal.NewFromInt(50),
			DueDate:     time.Now().AddDate(0, 0, 7).Truncate(24 * time.Hour),
			Frequency:   models.FrequencyMonthly,
			Status:      models.BillStatusActive,
			CreatedByID: teacher.ID,
			Classes:     []models.Class{class},
		}
		if err := tx.Create(&bill).Error; err != nil {
			return fmt.Errorf("seed bill: %w", err)
		}

		logrus.WithField("join_code", code).Info("Demo class seeded successfully")
		return nil
	})
}
