package classroom

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"shortstacks/models"
	"shortstacks/services/access"
	"shortstacks/services/banking"
	"shortstacks/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// JoinCodeLength is the length of generated class join codes.
const JoinCodeLength = 6

// Service manages classes and their rosters.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

type ClassInput struct {
	Name   string `json:"name" validate:"required,max=255"`
	Period string `json:"period" validate:"max=50"`
}

type StudentInput struct {
	Username    string `json:"username" validate:"required,min=3,max=50"`
	DisplayName string `json:"display_name" validate:"max=200"`
	Password    string `json:"password" validate:"required,min=6"`
	Email       string `json:"email" validate:"omitempty,email"`
}

// StudentRow is one roster entry with the student's accounts.
type StudentRow struct {
	models.User
	Accounts []models.BankAccount `json:"accounts"`
}

// CreateClass creates a class owned by the teacher with a fresh join code.
func (s *Service) CreateClass(ctx context.Context, p access.Principal, in ClassInput) (*models.Class, error) {
	if err := access.RequireRole(p, models.RoleTeacher); err != nil {
		return nil, err
	}
	name := utils.SanitizeString(in.Name)
	if name == "" {
		return nil, utils.Validation("name is required")
	}
	class := models.Class{Name: name, Period: strings.TrimSpace(in.Period), TeacherID: p.UserID, Active: true}
	if err := s.withJoinCode(ctx, func(code string) error {
		class.JoinCode = code
		return s.db.WithContext(ctx).Create(&class).Error
	}); err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"class_id": class.ID, "teacher_id": p.UserID}).Info("Class created")
	return &class, nil
}

// withJoinCode retries fn with new codes while it fails on a duplicate key.
func (s *Service) withJoinCode(ctx context.Context, fn func(code string) error) error {
	for attempt := 0; attempt < 5; attempt++ {
		code, err := utils.GenerateJoinCode(JoinCodeLength)
		if err != nil {
			return utils.Internal(err, "Failed to generate join code")
		}
		err = fn(code)
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return utils.Internal(err, "Failed to save class")
		}
	}
	return utils.Conflict("Could not allocate a unique join code, try again")
}

// RegenerateJoinCode replaces the join code of a class.
func (s *Service) RegenerateJoinCode(ctx context.Context, p access.Principal, classID uint) (*models.Class, error) {
	class, err := s.GetClass(ctx, p, classID)
	if err != nil {
		return nil, err
	}
	if err := access.TeacherOwnsClasses(ctx, s.db, p, []uint{classID}); err != nil {
		return nil, err
	}
	if err := s.withJoinCode(ctx, func(code string) error {
		if err := s.db.WithContext(ctx).Model(class).Update("join_code", code).Error; err != nil {
			return err
		}
		class.JoinCode = code
		return nil
	}); err != nil {
		return nil, err
	}
	return class, nil
}

// ListClasses returns the classes the caller teaches, attends, or every class for super admins.
func (s *Service) ListClasses(ctx context.Context, p access.Principal) ([]models.Class, error) {
	q := s.db.WithContext(ctx).Order("name ASC")
	switch {
	case p.IsSuperAdmin():
	case p.IsTeacher():
		q = q.Where("teacher_id = ?", p.UserID)
	case p.IsStudent():
		q = q.Where("id IN (?)", s.db.Model(&models.Enrollment{}).Select("class_id").Where("student_id = ?", p.UserID))
	default:
		return nil, utils.Forbidden("Insufficient permissions")
	}
	var classes []models.Class
	if err := q.Find(&classes).Error; err != nil {
		return nil, utils.Internal(err, "Failed to fetch classes")
	}
	if p.IsStudent() {
		for i := range classes {
			classes[i].JoinCode = ""
		}
	}
	return classes, nil
}

// GetClass loads a class the caller can access.
func (s *Service) GetClass(ctx context.Context, p access.Principal, classID uint) (*models.Class, error) {
	if err := access.CanAccessClass(ctx, s.db, p, classID); err != nil {
		return nil, err
	}
	var class models.Class
	if err := s.db.WithContext(ctx).First(&class, classID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NotFound("Class not found")
		}
		return nil, utils.Internal(err, "Failed to load class")
	}
	return &class, nil
}

// AddStudent creates the student (or reuses an existing student account),
// enrolls them and provisions their bank accounts.
func (s *Service) AddStudent(ctx context.Context, p access.Principal, classID uint, in StudentInput) (*models.User, error) {
	if err := access.RequireRole(p, models.RoleTeacher, models.RoleSuperAdmin); err != nil {
		return nil, err
	}
	if err := access.TeacherOwnsClasses(ctx, s.db, p, []uint{classID}); err != nil {
		return nil, err
	}
	var user *models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, _, err := enroll(tx, classID, in)
		user = u
		return err
	})
	if err != nil {
		var appErr *utils.AppError
		if !errors.As(err, &appErr) {
			err = utils.Internal(err, "Failed to add student")
		}
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"class_id": classID, "student_id": user.ID}).Info("Student enrolled")
	return user, nil
}

// enroll runs inside tx. It reports whether a new user was created.
func enroll(tx *gorm.DB, classID uint, in StudentInput) (*models.User, bool, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return nil, false, utils.Validation("username is required")
	}

	var user models.User
	created := false
	err := tx.Where("username = ?", username).First(&user).Error
	switch {
	case err == nil:
		if user.Role != models.RoleStudent {
			return nil, false, utils.Conflict(fmt.Sprintf("Username %s is already taken", username))
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		if len(in.Password) < 6 {
			return nil, false, utils.Validation("password must be at least 6 characters")
		}
		hash, err := utils.HashPassword(in.Password)
		if err != nil {
			return nil, false, err
		}
		display := utils.SanitizeString(in.DisplayName)
		if display == "" {
			display = username
		}
		user = models.User{
			Username:    username,
			Password:    hash,
			Email:       in.Email,
			DisplayName: display,
			Role:        models.RoleStudent,
			Status:      models.StatusActive,
		}
		if err := tx.Create(&user).Error; err != nil {
			return nil, false, err
		}
		created = true
	default:
		return nil, false, err
	}

	var n int64
	if err := tx.Model(&models.Enrollment{}).Where("class_id = ? AND student_id = ?", classID, user.ID).Count(&n).Error; err != nil {
		return nil, false, err
	}
	if n == 0 {
		if err := tx.Create(&models.Enrollment{ClassID: classID, StudentID: user.ID}).Error; err != nil {
			return nil, false, err
		}
	}
	if _, err := banking.ProvisionAccounts(tx, user.ID); err != nil {
		return nil, false, err
	}
	return &user, created, nil
}

// ListStudents returns the roster of a class with each student's accounts.
func (s *Service) ListStudents(ctx context.Context, p access.Principal, classID uint) ([]StudentRow, error) {
	if err := access.RequireRole(p, models.RoleTeacher, models.RoleSuperAdmin); err != nil {
		return nil, err
	}
	if err := access.CanAccessClass(ctx, s.db, p, classID); err != nil {
		return nil, err
	}
	var users []models.User
	if err := s.db.WithContext(ctx).
		Where("id IN (?)", s.db.Model(&models.Enrollment{}).Select("student_id").Where("class_id = ?", classID)).
		Order("display_name ASC, username ASC").
		Find(&users).Error; err != nil {
		return nil, utils.Internal(err, "Failed to fetch students")
	}
	if len(users) == 0 {
		return []StudentRow{}, nil
	}

	ids := make([]uint, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	var accounts []models.BankAccount
	if err := s.db.WithContext(ctx).Where("student_id IN ?", ids).Order("account_type").Find(&accounts).Error; err != nil {
		return nil, utils.Internal(err, "Failed to fetch accounts")
	}
	byStudent := make(map[uint][]models.BankAccount, len(users))
	for _, a := range accounts {
		byStudent[a.StudentID] = append(byStudent[a.StudentID], a)
	}

	rows := make([]StudentRow, len(users))
	for i, u := range users {
		rows[i] = StudentRow{User: u, Accounts: byStudent[u.ID]}
	}
	return rows, nil
}

// RemoveStudent drops the enrollment. The student's accounts and history stay.
func (s *Service) RemoveStudent(ctx context.Context, p access.Principal, classID, studentID uint) error {
	if err := access.RequireRole(p, models.RoleTeacher, models.RoleSuperAdmin); err != nil {
		return err
	}
	if err := access.TeacherOwnsClasses(ctx, s.db, p, []uint{classID}); err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Where("class_id = ? AND student_id = ?", classID, studentID).Delete(&models.Enrollment{})
	if res.Error != nil {
		return utils.Internal(res.Error, "Failed to remove student")
	}
	if res.RowsAffected == 0 {
		return utils.NotFound("Student not found")
	}
	return nil
}
