package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"shortstacks/models"
	"shortstacks/services/access"
	"shortstacks/services/banking"
	"shortstacks/services/notifications"
	"shortstacks/utils"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Service runs the class storefront.
type Service struct {
	db       *gorm.DB
	notifier notifications.Notifier
}

func NewService(db *gorm.DB, notifier notifications.Notifier) *Service {
	return &Service{db: db, notifier: notifier}
}

type ItemInput struct {
	Name        string          `json:"name" validate:"required,max=255"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       *int            `json:"stock" validate:"omitempty,min=0"`
	Active      *bool           `json:"active"`
}

type PurchaseInput struct {
	ItemID   uint `json:"-"`
	Quantity int  `json:"quantity" validate:"required,min=1,max=100"`
}

type PurchaseResult struct {
	Purchase    models.Purchase    `json:"purchase"`
	Transaction models.Transaction `json:"transaction"`
	Balance     decimal.Decimal    `json:"balance"`
}

// CreateItem adds an item to a class store owned by the teacher.
func (s *Service) CreateItem(ctx context.Context, p access.Principal, classID uint, in ItemInput) (*models.StoreItem, error) {
	if err := access.RequireRole(p, models.RoleTeacher, models.RoleSuperAdmin); err != nil {
		return nil, err
	}
	if err := utils.PositiveAmount(in.Price, "Price"); err != nil {
		return nil, err
	}
	if err := access.TeacherOwnsClasses(ctx, s.db, p, []uint{classID}); err != nil {
		return nil, err
	}
	item := models.StoreItem{
		ClassID:     classID,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
		Active:      in.Active == nil || *in.Active,
	}
	if err := s.db.WithContext(ctx).Create(&item).Error; err != nil {
		return nil, utils.Internal(err, "Failed to create item")
	}
	return &item, nil
}

// UpdateItem replaces the editable fields of an item. Setting active=false hides it from students.
func (s *Service) UpdateItem(ctx context.Context, p access.Principal, itemID uint, in ItemInput) (*models.StoreItem, error) {
	if err := access.RequireRole(p, models.RoleTeacher, models.RoleSuperAdmin); err != nil {
		return nil, err
	}
	if err := utils.PositiveAmount(in.Price, "Price"); err != nil {
		return nil, err
	}
	item, err := s.loadItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if err := access.TeacherOwnsClasses(ctx, s.db, p, []uint{item.ClassID}); err != nil {
		return nil, utils.NotFound("Item not found")
	}

	item.Name = strings.TrimSpace(in.Name)
	item.Description = in.Description
	item.Price = in.Price
	item.Stock = in.Stock
	if in.Active != nil {
		item.Active = *in.Active
	}
	if err := s.db.WithContext(ctx).Select("name", "description", "price", "stock", "active").Save(item).Error; err != nil {
		return nil, utils.Internal(err, "Failed to update item")
	}
	return item, nil
}

// ListItems lists a class store. Students only see active items.
func (s *Service) ListItems(ctx context.Context, p access.Principal, classID uint) ([]models.StoreItem, error) {
	if err := access.CanAccessClass(ctx, s.db, p, classID); err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).Where("class_id = ?", classID)
	if p.IsStudent() {
		q = q.Where("active = ?", true)
	}
	var items []models.StoreItem
	if err := q.Order("name ASC").Find(&items).Error; err != nil {
		return nil, utils.Internal(err, "Failed to fetch items")
	}
	return items, nil
}

func (s *Service) loadItem(ctx context.Context, id uint) (*models.StoreItem, error) {
	var item models.StoreItem
	if err := s.db.WithContext(ctx).First(&item, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NotFound("Item not found")
		}
		return nil, utils.Internal(err, "Failed to load item")
	}
	return &item, nil
}

// Purchase buys quantity of an item with the student's CHECKING account.
// Stock, balance, the purchase row and its ledger row change together.
func (s *Service) Purchase(ctx context.Context, p access.Principal, in PurchaseInput) (*PurchaseResult, error) {
	if err := access.RequireRole(p, models.RoleStudent); err != nil {
		return nil, err
	}
	if in.Quantity <= 0 {
		return nil, utils.InvalidAmount("Quantity must be greater than zero")
	}

	var result PurchaseResult
	var item models.StoreItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&item, in.ItemID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NotFound("Item not found")
			}
			return utils.Internal(err, "Failed to load item")
		}
		if !item.Active {
			return utils.NotFound("Item not found")
		}
		ok, err := access.StudentEnrolled(ctx, tx, p.UserID, item.ClassID)
		if err != nil {
			return err
		}
		if !ok {
			return utils.NotFound("Item not found")
		}

		var account models.BankAccount
		if err := tx.Where("student_id = ? AND account_type = ?", p.UserID, models.AccountChecking).First(&account).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NotFound("Account not found")
			}
			return utils.Internal(err, "Failed to load account")
		}

		total := item.Price.Mul(decimal.NewFromInt(int64(in.Quantity)))
		if account.Balance.LessThan(total) {
			return utils.InsufficientFunds("Insufficient funds")
		}

		if item.Stock != nil {
			res := tx.Model(&models.StoreItem{}).
				Where("id = ? AND stock >= ?", item.ID, in.Quantity).
				Update("stock", gorm.Expr("stock - ?", in.Quantity))
			if res.Error != nil {
				return utils.Internal(res.Error, "Failed to update stock")
			}
			if res.RowsAffected == 0 {
				return utils.Conflict("Not enough stock")
			}
		}

		if err := banking.Debit(tx, account.ID, total); err != nil {
			return err
		}

		result.Purchase = models.Purchase{
			StoreItemID: item.ID,
			StudentID:   p.UserID,
			AccountID:   account.ID,
			Quantity:    in.Quantity,
			UnitPrice:   item.Price,
			Total:       total,
		}
		if err := tx.Create(&result.Purchase).Error; err != nil {
			return utils.Internal(err, "Failed to record purchase")
		}
		purchaseID := result.Purchase.ID
		result.Transaction = models.Transaction{
			AccountID:       account.ID,
			PurchaseID:      &purchaseID,
			TransactionType: models.TxPurchase,
			Amount:          total,
			Description:     fmt.Sprintf("Store: %d x %s", in.Quantity, item.Name),
		}
		if err := tx.Create(&result.Transaction).Error; err != nil {
			return utils.Internal(err, "Failed to record transaction")
		}

		if err := tx.Select("balance").First(&account, account.ID).Error; err != nil {
			return utils.Internal(err, "Failed to reload account")
		}
		result.Balance = account.Balance
		return nil
	})
	if err != nil {
		var appErr *utils.AppError
		if !errors.As(err, &appErr) {
			err = utils.Internal(err, "Purchase failed")
		}
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"item_id": item.ID, "student_id": p.UserID, "quantity": in.Quantity, "total": result.Purchase.Total.StringFixed(2),
	}).Info("Store purchase completed")

	if s.notifier != nil {
		var teacherIDs []uint
		if err := s.db.WithContext(ctx).Model(&models.Class{}).Where("id = ?", item.ClassID).
			Pluck("teacher_id", &teacherIDs).Error; err == nil && len(teacherIDs) > 0 {
			msg := notifications.Message{
				Title:   "Store purchase",
				Message: fmt.Sprintf("%s bought %d x %s", p.Username, in.Quantity, item.Name),
				Type:    notifications.TypeInfo,
				Data:    map[string]interface{}{"purchase_id": result.Purchase.ID},
			}
			if err := s.notifier.Notify(ctx, teacherIDs, msg); err != nil {
				logrus.WithError(err).Warn("Purchase notification failed")
			}
		}
	}
	return &result, nil
}
