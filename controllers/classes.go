package controllers

import (
	"shortstacks/middleware"
	"shortstacks/services/classroom"
	"shortstacks/utils"

	"github.com/gofiber/fiber/v2"
)

type ClassController struct {
	classes     *classroom.Service
	maxFileSize int64
}

func NewClassController(svc *classroom.Service, maxFileSize int64) *ClassController {
	return &ClassController{classes: svc, maxFileSize: maxFileSize}
}

func (cc *ClassController) CreateClass(c *fiber.Ctx) error {
	var req classroom.ClassInput
	if err := utils.ParseBody(c, &req); err != nil {
		return err
	}
	class, err := cc.classes.CreateClass(c.UserContext(), middleware.CurrentPrincipal(c), req)
	if err != nil {
		return err
	}
	return utils.Created(c, class)
}

func (cc *ClassController) ListClasses(c *fiber.Ctx) error {
	classes, err := cc.classes.ListClasses(c.UserContext(), middleware.CurrentPrincipal(c))
	if err != nil {
		return err
	}
	return utils.Success(c, classes)
}

func (cc *ClassController) GetClass(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	class, err := cc.classes.GetClass(c.UserContext(), middleware.CurrentPrincipal(c), id)
	if err != nil {
		return err
	}
	return utils.Success(c, class)
}

func (cc *ClassController) RegenerateJoinCode(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	class, err := cc.classes.RegenerateJoinCode(c.UserContext(), middleware.CurrentPrincipal(c), id)
	if err != nil {
		return err
	}
	return utils.Success(c, class)
}

func (cc *ClassController) ListStudents(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	rows, err := cc.classes.ListStudents(c.UserContext(), middleware.CurrentPrincipal(c), id)
	if err != nil {
		return err
	}
	return utils.Success(c, rows)
}

func (cc *ClassController) AddStudent(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req classroom.StudentInput
	if err := utils.ParseBody(c, &req); err != nil {
		return err
	}
	student, err := cc.classes.AddStudent(c.UserContext(), middleware.CurrentPrincipal(c), id, req)
	if err != nil {
		return err
	}
	return utils.Created(c, student)
}

func (cc *ClassController) RemoveStudent(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	studentID, err := paramID(c, "studentId")
	if err != nil {
		return err
	}
	if err := cc.classes.RemoveStudent(c.UserContext(), middleware.CurrentPrincipal(c), id, studentID); err != nil {
		return err
	}
	return utils.Success(c, fiber.Map{"message": "Student removed from class"})
}

// ImportRoster accepts a multipart "file" field holding a CSV or XLSX roster.
func (cc *ClassController) ImportRoster(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return utils.Validation("file is required")
	}
	if cc.maxFileSize > 0 && fh.Size > cc.maxFileSize {
		return utils.Validation("File is too large")
	}
	if !utils.IsValidFileExtension(fh.Filename, []string{"csv", "xlsx"}) {
		return utils.Validation("Roster must be a .csv or .xlsx file")
	}
	f, err := fh.Open()
	if err != nil {
		return utils.Internal(err, "Failed to read upload")
	}
	defer f.Close()

	summary, err := cc.classes.ImportRoster(c.UserContext(), middleware.CurrentPrincipal(c), id, fh.Filename, f)
	if err != nil {
		return err
	}
	return utils.Success(c, summary)
}
