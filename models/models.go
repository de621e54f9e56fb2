package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// User roles
const (
	RoleTeacher    = "teacher"
	RoleStudent    = "student"
	RoleSuperAdmin = "super_admin"
)

// User statuses
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// User model. Teachers and super admins sign in with username/password;
// students additionally need the join code of a class they are enrolled in.
type User struct {
	BaseModel
	Username    string `json:"username" gorm:"size:100;not null;uniqueIndex"`
	Password    string `json:"-" gorm:"size:255;not null"`
	Email       string `json:"email" gorm:"size:255"`
	DisplayName string `json:"display_name" gorm:"size:200"`
	Role        string `json:"role" gorm:"size:20;not null;default:'student';index"`
	Status      string `json:"status" gorm:"size:20;not null;default:'active'"`
	LineUserID  string `json:"line_user_id,omitempty" gorm:"size:100"`
}

// Class model
type Class struct {
	BaseModel
	Name      string `json:"name" gorm:"size:255;not null"`
	Period    string `json:"period" gorm:"size:50"`
	JoinCode  string `json:"join_code" gorm:"size:12;not null;uniqueIndex"`
	TeacherID uint   `json:"teacher_id" gorm:"not null;index"`
	Active    bool   `json:"active" gorm:"default:true"`
}

// Enrollment links a student to a class.
type Enrollment struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	ClassID   uint      `json:"class_id" gorm:"not null;uniqueIndex:idx_enrollment"`
	StudentID uint      `json:"student_id" gorm:"not null;uniqueIndex:idx_enrollment;index"`
	CreatedAt time.Time `json:"created_at"`
}

// LessonPlan is content authored by a teacher and scheduled per class.
type LessonPlan struct {
	BaseModel
	Title      string `json:"title" gorm:"size:255;not null"`
	Summary    string `json:"summary" gorm:"type:text"`
	Body       string `json:"body" gorm:"type:text"`
	ContentURL string `json:"content_url" gorm:"size:500"`
	AuthorID   uint   `json:"author_id" gorm:"not null;index"`
}

// ClassLessonPlan is the visibility window of a lesson plan inside one class.
type ClassLessonPlan struct {
	BaseModel
	ClassID      uint       `json:"class_id" gorm:"not null;uniqueIndex:idx_class_lesson"`
	LessonPlanID uint       `json:"lesson_plan_id" gorm:"not null;uniqueIndex:idx_class_lesson"`
	VisibleFrom  time.Time  `json:"visible_from" gorm:"not null"`
	VisibleUntil *time.Time `json:"visible_until"`

	LessonPlan LessonPlan `json:"lesson_plan" gorm:"foreignKey:LessonPlanID"`
}

// Log model for activity tracking
type ActivityLog struct {
	BaseModel
	UserID     uint           `json:"user_id" gorm:"index"`
	Action     string         `json:"action" gorm:"size:100;not null"`
	Resource   string         `json:"resource" gorm:"size:100;not null"`
	ResourceID uint           `json:"resource_id"`
	Details    datatypes.JSON `json:"details"`
	IPAddress  string         `json:"ip_address" gorm:"size:45"`
	UserAgent  string         `json:"user_agent" gorm:"size:500"`
}

// Notification model
type Notification struct {
	BaseModel
	UserID   uint           `json:"user_id" gorm:"not null;index"`
	Title    string         `json:"title" gorm:"size:255;not null"`
	Message  string         `json:"message" gorm:"type:text;not null"`
	Type     string         `json:"type" gorm:"size:20;not null"` // info, warning, error, success
	Channels datatypes.JSON `json:"channels"`
	Data     datatypes.JSON `json:"data,omitempty"`
	Read     bool           `json:"read" gorm:"default:false"`
	ReadAt   *time.Time     `json:"read_at"`
}

// LogArchive model for tracking archived logs
type LogArchive struct {
	BaseModel
	FileName    string    `json:"file_name" gorm:"size:255;not null"`
	S3Key       string    `json:"s3_key" gorm:"size:500;not null"`
	StartDate   time.Time `json:"start_date" gorm:"not null"`
	EndDate     time.Time `json:"end_date" gorm:"not null"`
	RecordCount int       `json:"record_count" gorm:"not null"`
	FileSize    int64     `json:"file_size" gorm:"not null"`
	Status      string    `json:"status" gorm:"size:20;not null;default:'pending'"` // pending, completed, failed
	Error       string    `json:"error" gorm:"type:text"`
}

// All lists every model handled by AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Class{},
		&Enrollment{},
		&LessonPlan{},
		&ClassLessonPlan{},
		&Bill{},
		&StudentBill{},
		&BankAccount{},
		&Transaction{},
		&StoreItem{},
		&Purchase{},
		&Statement{},
		&ActivityLog{},
		&Notification{},
		&LogArchive{},
	}
}
