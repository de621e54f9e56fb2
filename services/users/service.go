package users

import (
	"context"
	"errors"
	"strings"

	"shortstacks/models"
	"shortstacks/services/access"
	"shortstacks/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Service handles credentials and staff accounts.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

type LoginInput struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type StudentLoginInput struct {
	JoinCode string `json:"join_code" validate:"required,min=4,max=12"`
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type TeacherInput struct {
	Username    string `json:"username" validate:"required,min=3,max=50"`
	Password    string `json:"password" validate:"required,min=8"`
	Email       string `json:"email" validate:"omitempty,email"`
	DisplayName string `json:"display_name" validate:"max=200"`
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

var errInvalidCredentials = utils.Unauthorized("Invalid credentials")

// Authenticate signs in teachers and super admins.
func (s *Service) Authenticate(ctx context.Context, in LoginInput) (*models.User, error) {
	user, err := s.activeUser(ctx, in.Username)
	if err != nil {
		return nil, err
	}
	if user.Role != models.RoleTeacher && user.Role != models.RoleSuperAdmin {
		return nil, errInvalidCredentials
	}
	if err := utils.CheckPassword(in.Password, user.Password); err != nil {
		return nil, errInvalidCredentials
	}
	return user, nil
}

// AuthenticateStudent signs in a student through the join code of a class they are enrolled in.
func (s *Service) AuthenticateStudent(ctx context.Context, in StudentLoginInput) (*models.User, *models.Class, error) {
	var class models.Class
	if err := s.db.WithContext(ctx).
		Where("join_code = ? AND active = ?", strings.ToUpper(strings.TrimSpace(in.JoinCode)), true).
		First(&class).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, errInvalidCredentials
		}
		return nil, nil, utils.Internal(err, "Failed to load class")
	}

	user, err := s.activeUser(ctx, in.Username)
	if err != nil {
		return nil, nil, err
	}
	if user.Role != models.RoleStudent {
		return nil, nil, errInvalidCredentials
	}
	if err := utils.CheckPassword(in.Password, user.Password); err != nil {
		return nil, nil, errInvalidCredentials
	}
	ok, err := access.StudentEnrolled(ctx, s.db, user.ID, class.ID)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, errInvalidCredentials
	}
	return user, &class, nil
}

func (s *Service) activeUser(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).
		Where("username = ? AND status = ?", strings.TrimSpace(username), models.StatusActive).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, utils.Internal(err, "Failed to load user")
	}
	return &user, nil
}

// Get loads an active user by id.
func (s *Service) Get(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ? AND status = ?", id, models.StatusActive).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NotFound("User not found")
		}
		return nil, utils.Internal(err, "Failed to load user")
	}
	return &user, nil
}

// CreateTeacher is reserved for super admins.
func (s *Service) CreateTeacher(ctx context.Context, p access.Principal, in TeacherInput) (*models.User, error) {
	if err := access.RequireRole(p, models.RoleSuperAdmin); err != nil {
		return nil, err
	}
	username := strings.TrimSpace(in.Username)
	var n int64
	if err := s.db.WithContext(ctx).Unscoped().Model(&models.User{}).Where("username = ?", username).Count(&n).Error; err != nil {
		return nil, utils.Internal(err, "Failed to check username")
	}
	if n > 0 {
		return nil, utils.Conflict("Username already exists")
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, utils.Internal(err, "Failed to hash password")
	}
	user := models.User{
		Username:    username,
		Password:    hash,
		Email:       in.Email,
		DisplayName: utils.SanitizeString(in.DisplayName),
		Role:        models.RoleTeacher,
		Status:      models.StatusActive,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, utils.Conflict("Username already exists")
		}
		return nil, utils.Internal(err, "Failed to create teacher")
	}
	logrus.WithFields(logrus.Fields{"teacher_id": user.ID, "by": p.UserID}).Info("Teacher created")
	return &user, nil
}

// ListTeachers lists every teacher account (super admins only).
func (s *Service) ListTeachers(ctx context.Context, p access.Principal) ([]models.User, error) {
	if err := access.RequireRole(p, models.RoleSuperAdmin); err != nil {
		return nil, err
	}
	var out []models.User
	if err := s.db.WithContext(ctx).Where("role = ?", models.RoleTeacher).Order("username").Find(&out).Error; err != nil {
		return nil, utils.Internal(err, "Failed to fetch teachers")
	}
	return out, nil
}

// ChangePassword verifies the current password before storing the new one.
func (s *Service) ChangePassword(ctx context.Context, userID uint, in ChangePasswordInput) error {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if err := utils.CheckPassword(in.CurrentPassword, user.Password); err != nil {
		return utils.Validation("Current password is incorrect")
	}
	hash, err := utils.HashPassword(in.NewPassword)
	if err != nil {
		return utils.Internal(err, "Failed to hash password")
	}
	if err := s.db.WithContext(ctx).Model(user).Update("password", hash).Error; err != nil {
		return utils.Internal(err, "Failed to update password")
	}
	return nil
}

// SetLineUserID links a LINE account for push notifications.
func (s *Service) SetLineUserID(ctx context.Context, userID uint, lineUserID string) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
		Update("line_user_id", strings.TrimSpace(lineUserID))
	if res.Error != nil {
		return utils.Internal(res.Error, "Failed to update LINE id")
	}
	if res.RowsAffected == 0 {
		return utils.NotFound("User not found")
	}
	return nil
}
