package lessons

import (
	"context"
	"errors"
	"strings"
	"time"

	"shortstacks/models"
	"shortstacks/services/access"
	"shortstacks/services/notifications"
	"shortstacks/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service manages lesson plans and when each class can see them.
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

type PlanInput struct {
	Title      string `json:"title" validate:"required,max=255"`
	Summary    string `json:"summary"`
	Body       string `json:"body"`
	ContentURL string `json:"content_url" validate:"omitempty,url,max=500"`
}

type ScheduleInput struct {
	ClassID      uint       `json:"class_id" validate:"required"`
	VisibleFrom  time.Time  `json:"visible_from" validate:"required"`
	VisibleUntil *time.Time `json:"visible_until"`
}

// IsVisible reports whether a scheduled plan is open at now:
// visible_from <= now and (no end or now < visible_until).
func IsVisible(visibleFrom time.Time, visibleUntil *time.Time, now time.Time) bool {
	if now.Before(visibleFrom) {
		return false
	}
	return visibleUntil == nil || now.Before(*visibleUntil)
}

// CreatePlan stores a new lesson plan authored by the teacher.
func (s *Service) CreatePlan(ctx context.Context, p access.Principal, in PlanInput) (*models.LessonPlan, error) {
	if err := access.RequireRole(p, models.RoleTeacher, models.RoleSuperAdmin); err != nil {
		return nil, err
	}
	plan := models.LessonPlan{
		Title:      strings.TrimSpace(in.Title),
		Summary:    in.Summary,
		Body:       in.Body,
		ContentURL: in.ContentURL,
		AuthorID:   p.UserID,
	}
	if plan.Title == "" {
		return nil, utils.Validation("title is required")
	}
	if err := s.db.WithContext(ctx).Create(&plan).Error; err != nil {
		return nil, utils.Internal(err, "Failed to create lesson plan")
	}
	return &plan, nil
}

// ListPlans lists the plans authored by the teacher.
func (s *Service) ListPlans(ctx context.Context, p access.Principal) ([]models.LessonPlan, error) {
	if err := access.RequireRole(p, models.RoleTeacher, models.RoleSuperAdmin); err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if !p.IsSuperAdmin() {
		q = q.Where("author_id = ?", p.UserID)
	}
	var plans []models.LessonPlan
	if err := q.Find(&plans).Error; err != nil {
		return nil, utils.Internal(err, "Failed to fetch lesson plans")
	}
	return plans, nil
}

// SchedulePlan sets (or replaces) the visibility window of a plan in a class.
func (s *Service) SchedulePlan(ctx context.Context, p access.Principal, planID uint, in ScheduleInput) (*models.ClassLessonPlan, error) {
	if err := access.RequireRole(p, models.RoleTeacher, models.RoleSuperAdmin); err != nil {
		return nil, err
	}
	if in.VisibleUntil != nil && !in.VisibleUntil.After(in.VisibleFrom) {
		return nil, utils.Validation("visible_until must be after visible_from")
	}

	var plan models.LessonPlan
	if err := s.db.WithContext(ctx).First(&plan, planID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NotFound("Lesson plan not found")
		}
		return nil, utils.Internal(err, "Failed to load lesson plan")
	}
	if !p.IsSuperAdmin() && plan.AuthorID != p.UserID {
		return nil, utils.NotFound("Lesson plan not found")
	}
	if err := access.TeacherOwnsClasses(ctx, s.db, p, []uint{in.ClassID}); err != nil {
		return nil, err
	}

	entry := models.ClassLessonPlan{
		ClassID:      in.ClassID,
		LessonPlanID: plan.ID,
		VisibleFrom:  in.VisibleFrom,
		VisibleUntil: in.VisibleUntil,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "class_id"}, {Name: "lesson_plan_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"visible_from", "visible_until", "updated_at", "deleted_at"}),
	}).Create(&entry).Error
	if err != nil {
		return nil, utils.Internal(err, "Failed to schedule lesson plan")
	}
	entry.LessonPlan = plan

	logrus.WithFields(logrus.Fields{"plan_id": plan.ID, "class_id": in.ClassID}).Info("Lesson plan scheduled")
	if IsVisible(in.VisibleFrom, in.VisibleUntil, s.now()) {
		s.announce(ctx, in.ClassID, plan)
	}
	return &entry, nil
}

// Unschedule removes a plan from a class.
func (s *Service) Unschedule(ctx context.Context, p access.Principal, planID, classID uint) error {
	if err := access.RequireRole(p, models.RoleTeacher, models.RoleSuperAdmin); err != nil {
		return err
	}
	if err := access.TeacherOwnsClasses(ctx, s.db, p, []uint{classID}); err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Unscoped().
		Where("class_id = ? AND lesson_plan_id = ?", classID, planID).
		Delete(&models.ClassLessonPlan{})
	if res.Error != nil {
		return utils.Internal(res.Error, "Failed to unschedule lesson plan")
	}
	if res.RowsAffected == 0 {
		return utils.NotFound("Lesson plan not scheduled for this class")
	}
	return nil
}

// ListForClass returns the class schedule. Teachers see every entry; students
// only those visible right now.
func (s *Service) ListForClass(ctx context.Context, p access.Principal, classID uint) ([]models.ClassLessonPlan, error) {
	if err := access.CanAccessClass(ctx, s.db, p, classID); err != nil {
		return nil, err
	}
	var entries []models.ClassLessonPlan
	if err := s.db.WithContext(ctx).Preload("LessonPlan").
		Where("class_id = ?", classID).
		Order("visible_from ASC").
		Find(&entries).Error; err != nil {
		return nil, utils.Internal(err, "Failed to fetch lesson plans")
	}
	if !p.IsStudent() {
		return entries, nil
	}
	now := s.now()
	visible := entries[:0]
	for _, e := range entries {
		if IsVisible(e.VisibleFrom, e.VisibleUntil, now) {
			visible = append(visible, e)
		}
	}
	return visible, nil
}

func (s *Service) announce(ctx context.Context, classID uint, plan models.LessonPlan) {
	if s.notifier == nil {
		return
	}
	var studentIDs []uint
	if err := s.db.WithContext(ctx).Model(&models.Enrollment{}).Where("class_id = ?", classID).
		Pluck("student_id", &studentIDs).Error; err != nil || len(studentIDs) == 0 {
		return
	}
	msg := notifications.Message{
		Title:   "New lesson: " + plan.Title,
		Message: plan.Summary,
		Type:    notifications.TypeInfo,
		Data:    map[string]interface{}{"lesson_plan_id": plan.ID, "class_id": classID},
	}
	if err := s.notifier.Notify(ctx, studentIDs, msg); err != nil {
		logrus.WithError(err).Warn("Lesson notification failed")
	}
}
