package billing

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

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// MaxScheduleOccurrences caps the schedule preview endpoint.
const MaxScheduleOccurrences = 52

// Service owns bills and bill payments.
type Service struct {
	db       *gorm.DB
	notifier notifications.Notifier
	now      func() time.Time
}

func NewService(db *gorm.DB, notifier notifications.Notifier) *Service {
	return &Service{db: db, notifier: notifier, now: time.Now}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateBillInput is the validated payload for a new bill.
type CreateBillInput struct {
	Title       string           `json:"title" validate:"required,max=255"`
	Description string           `json:"description"`
	Amount      decimal.Decimal  `json:"amount"`
	DueDate     time.Time        `json:"due_date" validate:"required"`
	Frequency   models.Frequency `json:"frequency"`
	ClassIDs    []uint           `json:"class_ids" validate:"required,min=1"`
}

// BillSummary is a bill as seen by its teacher.
type BillSummary struct {
	models.Bill
	StudentCount int             `json:"student_count"`
	PaidCount    int             `json:"paid_count"`
	Collected    decimal.Decimal `json:"collected"`
}

// StudentBillView is a bill as seen by one student.
type StudentBillView struct {
	models.Bill
	Owed       decimal.Decimal `json:"owed"`
	PaidAmount decimal.Decimal `json:"paid_amount"`
	Remaining  decimal.Decimal `json:"remaining"`
	IsPaid     bool            `json:"is_paid"`
	PaidAt     *time.Time      `json:"paid_at,omitempty"`
}

// CreateBill assigns a new bill to classes owned by the teacher.
func (s *Service) CreateBill(ctx context.Context, p access.Principal, in CreateBillInput) (*models.Bill, error) {
	if err := access.RequireRole(p, models.RoleTeacher, models.RoleSuperAdmin); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, utils.Validation("title is required")
	}
	if err := utils.PositiveAmount(in.Amount, "Bill amount"); err != nil {
		return nil, err
	}
	freq := models.FrequencyOnce
	if in.Frequency != "" {
		f, err := ParseFrequency(string(in.Frequency))
		if err != nil {
			return nil, utils.Validation(err.Error())
		}
		freq = f
	}
	if err := access.TeacherOwnsClasses(ctx, s.db, p, in.ClassIDs); err != nil {
		return nil, err
	}

	var classes []models.Class
	if err := s.db.WithContext(ctx).Where("id IN ?", in.ClassIDs).Find(&classes).Error; err != nil {
		return nil, utils.Internal(err, "Failed to load classes")
	}

	bill := models.Bill{
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Amount:      in.Amount,
		DueDate:     in.DueDate,
		Frequency:   freq,
		Status:      ClassifyStatus(in.DueDate, false, nil, s.now()),
		CreatedByID: p.UserID,
		Classes:     classes,
	}
	if err := s.db.WithContext(ctx).Create(&bill).Error; err != nil {
		return nil, utils.Internal(err, "Failed to create bill")
	}

	if status, err := s.RefreshStatus(ctx, bill.ID); err == nil {
		bill.Status = status
	}

	logrus.WithFields(logrus.Fields{"bill_id": bill.ID, "teacher_id": p.UserID, "classes": in.ClassIDs}).Info("Bill created")
	s.notifyClasses(ctx, in.ClassIDs, notifications.Message{
		Title:   "New bill: " + bill.Title,
		Message: fmt.Sprintf("%s is due on %s", bill.Amount.StringFixed(2), bill.DueDate.Format("2006-01-02")),
		Type:    notifications.TypeInfo,
		Data:    map[string]interface{}{"bill_id": bill.ID},
	})
	return &bill, nil
}

// GetBill returns a bill visible to the caller.
func (s *Service) GetBill(ctx context.Context, p access.Principal, billID uint) (*models.Bill, error) {
	var bill models.Bill
	if err := s.db.WithContext(ctx).Preload("Classes").First(&bill, billID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NotFound("Bill not found")
		}
		return nil, utils.Internal(err, "Failed to load bill")
	}
	if err := s.canSeeBill(ctx, p, &bill); err != nil {
		return nil, err
	}
	return &bill, nil
}

func (s *Service) canSeeBill(ctx context.Context, p access.Principal, bill *models.Bill) error {
	classIDs := make([]uint, 0, len(bill.Classes))
	for _, c := range bill.Classes {
		classIDs = append(classIDs, c.ID)
	}
	switch {
	case p.IsSuperAdmin():
		return nil
	case p.IsTeacher():
		if bill.CreatedByID == p.UserID {
			return nil
		}
		if len(classIDs) > 0 && access.TeacherOwnsClasses(ctx, s.db, p, classIDs) == nil {
			return nil
		}
	case p.IsStudent():
		ok, err := access.StudentEnrolled(ctx, s.db, p.UserID, classIDs...)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return utils.NotFound("Bill not found")
}

// Schedule previews the upcoming due dates of a bill.
func (s *Service) Schedule(ctx context.Context, p access.Principal, billID uint, count int) ([]time.Time, error) {
	if count > MaxScheduleOccurrences {
		count = MaxScheduleOccurrences
	}
	bill, err := s.GetBill(ctx, p, billID)
	if err != nil {
		return nil, err
	}
	dates, err := GenerateRecurringDates(bill.DueDate, bill.Frequency, count)
	if err != nil {
		return nil, utils.Validation(err.Error())
	}
	return dates, nil
}

// ListForClass returns the bills of a class with their collection progress.
func (s *Service) ListForClass(ctx context.Context, p access.Principal, classID uint) ([]BillSummary, error) {
	if err := access.RequireRole(p, models.RoleTeacher, models.RoleSuperAdmin); err != nil {
		return nil, err
	}
	if err := access.CanAccessClass(ctx, s.db, p, classID); err != nil {
		return nil, err
	}

	var bills []models.Bill
	err := s.db.WithContext(ctx).
		Where("id IN (?)", s.db.Table("bill_classes").Select("bill_id").Where("class_id = ?", classID)).
		Order("due_date ASC, id ASC").
		Find(&bills).Error
	if err != nil {
		return nil, utils.Internal(err, "Failed to fetch bills")
	}

	out := make([]BillSummary, 0, len(bills))
	for _, b := range bills {
		states, err := paymentStates(ctx, s.db, b.ID)
		if err != nil {
			return nil, err
		}
		sum := BillSummary{Bill: b, StudentCount: len(states), Collected: decimal.Zero}
		for _, st := range states {
			if st.IsPaid {
				sum.PaidCount++
			}
			sum.Collected = sum.Collected.Add(st.PaidAmount)
		}
		out = append(out, sum)
	}
	return out, nil
}

// ListForStudent returns every bill of the student's classes with their own payment position.
func (s *Service) ListForStudent(ctx context.Context, p access.Principal) ([]StudentBillView, error) {
	if err := access.RequireRole(p, models.RoleStudent); err != nil {
		return nil, err
	}
	classIDs, err := access.ClassIDsForStudent(ctx, s.db, p.UserID)
	if err != nil {
		return nil, err
	}
	if len(classIDs) == 0 {
		return []StudentBillView{}, nil
	}

	var bills []models.Bill
	err = s.db.WithContext(ctx).
		Where("id IN (?)", s.db.Table("bill_classes").Select("bill_id").Where("class_id IN ?", classIDs)).
		Order("due_date ASC, id ASC").
		Find(&bills).Error
	if err != nil {
		return nil, utils.Internal(err, "Failed to fetch bills")
	}

	var rows []models.StudentBill
	if err := s.db.WithContext(ctx).Where("student_id = ?", p.UserID).Find(&rows).Error; err != nil {
		return nil, utils.Internal(err, "Failed to fetch payments")
	}
	byBill := make(map[uint]models.StudentBill, len(rows))
	for _, r := range rows {
		byBill[r.BillID] = r
	}

	out := make([]StudentBillView, 0, len(bills))
	for _, b := range bills {
		v := StudentBillView{Bill: b, Owed: b.Amount, PaidAmount: decimal.Zero}
		if sb, ok := byBill[b.ID]; ok {
			v.Owed = sb.Amount
			v.PaidAmount = sb.PaidAmount
			v.IsPaid = sb.IsPaid
			v.PaidAt = sb.PaidAt
		}
		v.Remaining = v.Owed.Sub(v.PaidAmount)
		out = append(out, v)
	}
	return out, nil
}

// CancelBill moves a bill to CANCELLED. Cancelled bills reject further payments.
func (s *Service) CancelBill(ctx context.Context, p access.Principal, billID uint, reason string) (*models.Bill, error) {
	if err := access.RequireRole(p, models.RoleTeacher, models.RoleSuperAdmin); err != nil {
		return nil, err
	}
	bill, err := s.GetBill(ctx, p, billID)
	if err != nil {
		return nil, err
	}
	if bill.Status == models.BillStatusCancelled {
		return nil, utils.Conflict("Bill is already cancelled")
	}

	now := s.now()
	res := s.db.WithContext(ctx).Model(&models.Bill{}).
		Where("id = ? AND status <> ?", bill.ID, models.BillStatusCancelled).
		Updates(map[string]interface{}{
			"status":              models.BillStatusCancelled,
			"cancellation_reason": strings.TrimSpace(reason),
			"cancelled_at":        now,
		})
	if res.Error != nil {
		return nil, utils.Internal(res.Error, "Failed to cancel bill")
	}
	if res.RowsAffected == 0 {
		return nil, utils.Conflict("Bill is already cancelled")
	}
	bill.Status = models.BillStatusCancelled
	bill.CancellationReason = strings.TrimSpace(reason)
	bill.CancelledAt = &now

	logrus.WithFields(logrus.Fields{"bill_id": bill.ID, "by": p.UserID}).Info("Bill cancelled")
	return bill, nil
}

// RefreshStatus recomputes and persists the status of one bill.
func (s *Service) RefreshStatus(ctx context.Context, billID uint) (models.BillStatus, error) {
	var bill models.Bill
	if err := s.db.WithContext(ctx).First(&bill, billID).Error; err != nil {
		return "", fmt.Errorf("load bill %d: %w", billID, err)
	}
	return s.refresh(ctx, &bill)
}

func (s *Service) refresh(ctx context.Context, bill *models.Bill) (models.BillStatus, error) {
	states, err := paymentStates(ctx, s.db, bill.ID)
	if err != nil {
		return "", err
	}
	status := ClassifyStatus(bill.DueDate, bill.Status == models.BillStatusCancelled, states, s.now())
	if status == bill.Status {
		return status, nil
	}
	// never overwrite a cancellation that raced with this refresh
	if err := s.db.WithContext(ctx).Model(&models.Bill{}).
		Where("id = ? AND status <> ?", bill.ID, models.BillStatusCancelled).
		Update("status", status).Error; err != nil {
		return "", fmt.Errorf("update bill %d status: %w", bill.ID, err)
	}
	bill.Status = status
	return status, nil
}

// RefreshStatuses recomputes every non-cancelled bill and returns how many changed.
func (s *Service) RefreshStatuses(ctx context.Context) (int, error) {
	changed := 0
	var batch []models.Bill
	result := s.db.WithContext(ctx).
		Where("status <> ?", models.BillStatusCancelled).
		FindInBatches(&batch, 200, func(tx *gorm.DB, _ int) error {
			for i := range batch {
				before := batch[i].Status
				after, err := s.refresh(ctx, &batch[i])
				if err != nil {
					return err
				}
				if before != after {
					changed++
				}
			}
			return nil
		})
	if result.Error != nil {
		return changed, fmt.Errorf("refresh bill statuses: %w", result.Error)
	}
	return changed, nil
}

// RollRecurringBills extends every recurring chain whose last bill is past due.
// A chain that missed several periods gets every missed occurrence at once,
// up to the first one due today or later.
func (s *Service) RollRecurringBills(ctx context.Context) (int, error) {
	now := s.now()
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())

	var due []models.Bill
	err := s.db.WithContext(ctx).Preload("Classes").
		Where("frequency <> ? AND status <> ? AND due_date < ?", models.FrequencyOnce, models.BillStatusCancelled, today).
		Where("NOT EXISTS (?)", s.db.Table("bills AS child").Select("1").Where("child.parent_bill_id = bills.id")).
		Find(&due).Error
	if err != nil {
		return 0, fmt.Errorf("find recurring bills: %w", err)
	}

	created := 0
	for i := range due {
		n, err := s.rollOne(ctx, &due[i], today)
		if err != nil {
			logrus.WithError(err).WithField("bill_id", due[i].ID).Error("Failed to roll recurring bill")
			continue
		}
		created += n
	}
	return created, nil
}

// rollOne appends occurrences after last until one falls on or after today.
func (s *Service) rollOne(ctx context.Context, last *models.Bill, today time.Time) (int, error) {
	created := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		anchor, index, err := chainAnchor(tx, last)
		if err != nil {
			return err
		}
		parentID := last.ID
		for {
			index++
			next, err := Occurrence(anchor, last.Frequency, index)
			if err != nil {
				return err
			}
			pid := parentID
			child := models.Bill{
				Title:        last.Title,
				Description:  last.Description,
				Amount:       last.Amount,
				DueDate:      next,
				Frequency:    last.Frequency,
				Status:       ClassifyStatus(next, false, nil, s.now()),
				CreatedByID:  last.CreatedByID,
				ParentBillID: &pid,
				Classes:      last.Classes,
			}
			if err := tx.Create(&child).Error; err != nil {
				return err
			}
			created++
			logrus.WithFields(logrus.Fields{"parent_id": pid, "bill_id": child.ID, "due_date": next.Format("2006-01-02")}).Info("Recurring bill rolled")
			if !next.Before(today) {
				return nil
			}
			parentID = child.ID
		}
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

// chainAnchor walks parent links back to the first bill of a recurrence chain
// and returns its due date and the position of b in the chain.
func chainAnchor(tx *gorm.DB, b *models.Bill) (time.Time, int, error) {
	anchor := b.DueDate
	index := 0
	parentID := b.ParentBillID
	for parentID != nil {
		var p models.Bill
		if err := tx.Unscoped().Select("id", "due_date", "parent_bill_id").First(&p, *parentID).Error; err != nil {
			return time.Time{}, 0, fmt.Errorf("load parent bill %d: %w", *parentID, err)
		}
		anchor = p.DueDate
		index++
		parentID = p.ParentBillID
	}
	return anchor, index, nil
}

// paymentStates returns one state per student enrolled in any class of the bill.
// Students without a StudentBill row are unpaid.
func paymentStates(ctx context.Context, db *gorm.DB, billID uint) ([]PaymentState, error) {
	var studentIDs []uint
	err := db.WithContext(ctx).Model(&models.Enrollment{}).
		Joins("JOIN bill_classes ON bill_classes.class_id = enrollments.class_id").
		Where("bill_classes.bill_id = ?", billID).
		Pluck("enrollments.student_id", &studentIDs).Error
	if err != nil {
		return nil, utils.Internal(err, "Failed to load bill students")
	}

	var rows []models.StudentBill
	if err := db.WithContext(ctx).Where("bill_id = ?", billID).Find(&rows).Error; err != nil {
		return nil, utils.Internal(err, "Failed to load bill payments")
	}
	byStudent := make(map[uint]models.StudentBill, len(rows))
	for _, r := range rows {
		byStudent[r.StudentID] = r
	}

	var bill models.Bill
	if err := db.WithContext(ctx).Select("id", "amount").First(&bill, billID).Error; err != nil {
		return nil, utils.Internal(err, "Failed to load bill")
	}

	seen := make(map[uint]struct{}, len(studentIDs))
	states := make([]PaymentState, 0, len(studentIDs))
	for _, id := range studentIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if sb, ok := byStudent[id]; ok {
			states = append(states, PaymentState{Amount: sb.Amount, PaidAmount: sb.PaidAmount, IsPaid: sb.IsPaid})
			continue
		}
		states = append(states, PaymentState{Amount: bill.Amount, PaidAmount: decimal.Zero})
	}
	return states, nil
}

func (s *Service) notifyClasses(ctx context.Context, classIDs []uint, msg notifications.Message) {
	if s.notifier == nil {
		return
	}
	var studentIDs []uint
	if err := s.db.WithContext(ctx).Model(&models.Enrollment{}).
		Where("class_id IN ?", classIDs).Distinct().Pluck("student_id", &studentIDs).Error; err != nil {
		logrus.WithError(err).Warn("Failed to resolve bill recipients")
		return
	}
	if len(studentIDs) == 0 {
		return
	}
	if err := s.notifier.Notify(ctx, studentIDs, msg); err != nil {
		logrus.WithError(err).Warn("Failed to send bill notification")
	}
}
