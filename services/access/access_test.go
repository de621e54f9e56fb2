package access

import (
	"context"
	"testing"

	"shortstacks/database/testdb"
	"shortstacks/models"
	"shortstacks/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name  string
		p     Principal
		roles []string
		kind  utils.ErrorKind
	}{
		{"anonymous", Principal{}, []string{models.RoleStudent}, utils.KindUnauthorized},
		{"wrong role", Principal{UserID: 1, Role: models.RoleStudent}, []string{models.RoleTeacher}, utils.KindForbidden},
		{"one of several", Principal{UserID: 1, Role: models.RoleSuperAdmin}, []string{models.RoleTeacher, models.RoleSuperAdmin}, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := RequireRole(tc.p, tc.roles...)
			if tc.kind == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, utils.IsKind(err, tc.kind), "got %v", err)
		})
	}
}

func TestClassAccess(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	frizzle := testdb.Teacher(t, db, "ms.frizzle")
	ratburn := testdb.Teacher(t, db, "mr.ratburn")
	admin := testdb.User(t, db, "root", models.RoleSuperAdmin)
	arnold := testdb.Student(t, db, "arnold")
	buster := testdb.Student(t, db, "buster")
	econ := testdb.Class(t, db, frizzle.ID, "Economics")
	hist := testdb.Class(t, db, ratburn.ID, "History")
	testdb.Enroll(t, db, econ.ID, arnold.ID)
	testdb.Enroll(t, db, hist.ID, buster.ID)

	as := func(u models.User) Principal { return Principal{UserID: u.ID, Username: u.Username, Role: u.Role} }

	tests := []struct {
		name    string
		p       Principal
		classID uint
		kind    utils.ErrorKind
	}{
		{"owner", as(frizzle), econ.ID, ""},
		{"other teacher", as(ratburn), econ.ID, utils.KindNotFound},
		{"enrolled student", as(arnold), econ.ID, ""},
		{"student elsewhere", as(buster), econ.ID, utils.KindNotFound},
		{"super admin", as(admin), hist.ID, ""},
		{"super admin missing class", as(admin), 9999, utils.KindNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := CanAccessClass(ctx, db, tc.p, tc.classID)
			if tc.kind == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, utils.IsKind(err, tc.kind), "got %v", err)
		})
	}

	err := TeacherOwnsClasses(ctx, db, as(frizzle), []uint{econ.ID, econ.ID, hist.ID})
	assert.True(t, utils.IsKind(err, utils.KindNotFound))
	assert.NoError(t, TeacherOwnsClasses(ctx, db, as(frizzle), []uint{econ.ID, econ.ID}))
	assert.True(t, utils.IsKind(TeacherOwnsClasses(ctx, db, as(frizzle), nil), utils.KindValidation))

	ids, err := ClassIDsForStudent(ctx, db, arnold.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{econ.ID}, ids)

	assert.NoError(t, TeacherCanViewStudent(ctx, db, as(frizzle), arnold.ID))
	assert.True(t, utils.IsKind(TeacherCanViewStudent(ctx, db, as(frizzle), buster.ID), utils.KindNotFound))
	assert.NoError(t, TeacherCanViewStudent(ctx, db, as(arnold), arnold.ID))
	assert.True(t, utils.IsKind(TeacherCanViewStudent(ctx, db, as(arnold), buster.ID), utils.KindNotFound))
}
