package controllers

import (
	"shortstacks/middleware"
	"shortstacks/services/activity"
	"shortstacks/services/users"
	"shortstacks/utils"

	"github.com/gofiber/fiber/v2"
)

// AdminController exposes super admin operations: teacher accounts and the audit trail.
type AdminController struct {
	users    *users.Service
	activity *activity.Recorder
}

func NewAdminController(svc *users.Service, rec *activity.Recorder) *AdminController {
	return &AdminController{users: svc, activity: rec}
}

func (ac *AdminController) CreateTeacher(c *fiber.Ctx) error {
	var req users.TeacherInput
	if err := utils.ParseBody(c, &req); err != nil {
		return err
	}
	teacher, err := ac.users.CreateTeacher(c.UserContext(), middleware.CurrentPrincipal(c), req)
	if err != nil {
		return err
	}
	return utils.Created(c, teacher)
}

func (ac *AdminController) ListTeachers(c *fiber.Ctx) error {
	teachers, err := ac.users.ListTeachers(c.UserContext(), middleware.CurrentPrincipal(c))
	if err != nil {
		return err
	}
	return utils.Success(c, teachers)
}

// ListActivityLogs pages the audit trail, optionally for one user (?user_id=).
func (ac *AdminController) ListActivityLogs(c *fiber.Ctx) error {
	page, size := utils.Paging(c)
	logs, total, err := ac.activity.List(c.UserContext(), uint(c.QueryInt("user_id", 0)), page, size)
	if err != nil {
		return err
	}
	return utils.Success(c, utils.Page{Items: logs, Page: page, PageSize: size, Total: total})
}

// FlushActivityLogs moves cached entries into the database now.
func (ac *AdminController) FlushActivityLogs(c *fiber.Ctx) error {
	n, err := ac.activity.Flush(c.UserContext())
	if err != nil {
		return utils.Internal(err, "Failed to flush activity logs")
	}
	return utils.Success(c, fiber.Map{"flushed": n})
}

type archiveRequest struct {
	DaysOld int `json:"days_old" validate:"required,min=7"`
}

func (ac *AdminController) ArchiveActivityLogs(c *fiber.Ctx) error {
	var req archiveRequest
	if err := utils.ParseBody(c, &req); err != nil {
		return err
	}
	archive, err := ac.activity.Archive(c.UserContext(), req.DaysOld)
	if err != nil {
		return utils.Internal(err, "Failed to archive activity logs")
	}
	if archive == nil {
		return utils.Success(c, fiber.Map{"message": "No logs to archive"})
	}
	return utils.Created(c, archive)
}

func (ac *AdminController) ListLogArchives(c *fiber.Ctx) error {
	archives, err := ac.activity.ListArchives(c.UserContext())
	if err != nil {
		return err
	}
	return utils.Success(c, archives)
}

func (ac *AdminController) DownloadLogArchive(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	url, err := ac.activity.ArchiveURL(c.UserContext(), id)
	if err != nil {
		return err
	}
	return utils.Success(c, fiber.Map{"url": url})
}
