package access

import (
	"context"
	"fmt"

	"shortstacks/models"
	"shortstacks/utils"

	"gorm.io/gorm"
)

// Principal is the authenticated caller as established by the JWT middleware.
type Principal struct {
	UserID   uint
	Username string
	Role     string
}

func (p Principal) IsTeacher() bool    { return p.Role == models.RoleTeacher }
func (p Principal) IsStudent() bool    { return p.Role == models.RoleStudent }
func (p Principal) IsSuperAdmin() bool { return p.Role == models.RoleSuperAdmin }

// RequireRole fails with Unauthorized for an anonymous principal and Forbidden for a wrong role.
func RequireRole(p Principal, roles ...string) error {
	if p.UserID == 0 {
		return utils.Unauthorized("Authentication required")
	}
	for _, r := range roles {
		if p.Role == r {
			return nil
		}
	}
	return utils.Forbidden("Insufficient permissions")
}

// TeacherOwnsClasses checks that every class exists and belongs to the teacher.
// Super admins pass without an ownership check but the classes must still exist.
func TeacherOwnsClasses(ctx context.Context, db *gorm.DB, p Principal, classIDs []uint) error {
	if len(classIDs) == 0 {
		return utils.Validation("class_ids is required")
	}
	ids := uniq(classIDs)

	q := db.WithContext(ctx).Model(&models.Class{}).Where("id IN ?", ids)
	if !p.IsSuperAdmin() {
		q = q.Where("teacher_id = ?", p.UserID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return utils.Internal(err, "Failed to check class ownership")
	}
	if int(n) != len(ids) {
		return utils.NotFound("Class not found")
	}
	return nil
}

// CanAccessClass allows the owning teacher, enrolled students and super admins.
func CanAccessClass(ctx context.Context, db *gorm.DB, p Principal, classID uint) error {
	switch {
	case p.IsSuperAdmin():
		var n int64
		if err := db.WithContext(ctx).Model(&models.Class{}).Where("id = ?", classID).Count(&n).Error; err != nil {
			return utils.Internal(err, "Failed to load class")
		}
		if n == 0 {
			return utils.NotFound("Class not found")
		}
		return nil
	case p.IsTeacher():
		return TeacherOwnsClasses(ctx, db, p, []uint{classID})
	case p.IsStudent():
		ok, err := StudentEnrolled(ctx, db, p.UserID, classID)
		if err != nil {
			return err
		}
		if !ok {
			return utils.NotFound("Class not found")
		}
		return nil
	}
	return utils.Forbidden("Insufficient permissions")
}

// StudentEnrolled reports whether the student is enrolled in any of the classes.
func StudentEnrolled(ctx context.Context, db *gorm.DB, studentID uint, classIDs ...uint) (bool, error) {
	if len(classIDs) == 0 {
		return false, nil
	}
	var n int64
	err := db.WithContext(ctx).Model(&models.Enrollment{}).
		Where("student_id = ? AND class_id IN ?", studentID, classIDs).
		Count(&n).Error
	if err != nil {
		return false, utils.Internal(err, "Failed to check enrollment")
	}
	return n > 0, nil
}

// ClassIDsForStudent lists the classes a student is enrolled in.
func ClassIDsForStudent(ctx context.Context, db *gorm.DB, studentID uint) ([]uint, error) {
	var ids []uint
	if err := db.WithContext(ctx).Model(&models.Enrollment{}).
		Where("student_id = ?", studentID).
		Pluck("class_id", &ids).Error; err != nil {
		return nil, utils.Internal(err, "Failed to load enrollments")
	}
	return ids, nil
}

// TeacherCanViewStudent reports whether the student is enrolled in one of the teacher's classes.
func TeacherCanViewStudent(ctx context.Context, db *gorm.DB, p Principal, studentID uint) error {
	if p.IsSuperAdmin() {
		return nil
	}
	if p.IsStudent() {
		if p.UserID == studentID {
			return nil
		}
		return utils.NotFound("Student not found")
	}
	var n int64
	err := db.WithContext(ctx).Model(&models.Enrollment{}).
		Joins("JOIN classes ON classes.id = enrollments.class_id").
		Where("enrollments.student_id = ? AND classes.teacher_id = ? AND classes.deleted_at IS NULL", studentID, p.UserID).
		Count(&n).Error
	if err != nil {
		return utils.Internal(err, fmt.Sprintf("Failed to check student %d", studentID))
	}
	if n == 0 {
		return utils.NotFound("Student not found")
	}
	return nil
}

func uniq(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
