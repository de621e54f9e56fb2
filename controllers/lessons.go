package controllers

import (
	"shortstacks/middleware"
	"shortstacks/services/lessons"
	"shortstacks/utils"

	"github.com/gofiber/fiber/v2"
)

type LessonController struct {
	lessons *lessons.Service
}

func NewLessonController(svc *lessons.Service) *LessonController {
	return &LessonController{lessons: svc}
}

func (lc *LessonController) CreatePlan(c *fiber.Ctx) error {
	var req lessons.PlanInput
	if err := utils.ParseBody(c, &req); err != nil {
		return err
	}
	plan, err := lc.lessons.CreatePlan(c.UserContext(), middleware.CurrentPrincipal(c), req)
	if err != nil {
		return err
	}
	return utils.Created(c, plan)
}

func (lc *LessonController) ListPlans(c *fiber.Ctx) error {
	plans, err := lc.lessons.ListPlans(c.UserContext(), middleware.CurrentPrincipal(c))
	if err != nil {
		return err
	}
	return utils.Success(c, plans)
}

// SchedulePlan sets the visibility window of a plan in a class.
func (lc *LessonController) SchedulePlan(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req lessons.ScheduleInput
	if err := utils.ParseBody(c, &req); err != nil {
		return err
	}
	entry, err := lc.lessons.SchedulePlan(c.UserContext(), middleware.CurrentPrincipal(c), id, req)
	if err != nil {
		return err
	}
	return utils.Success(c, entry)
}

func (lc *LessonController) Unschedule(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	classID, err := paramID(c, "classId")
	if err != nil {
		return err
	}
	if err := lc.lessons.Unschedule(c.UserContext(), middleware.CurrentPrincipal(c), id, classID); err != nil {
		return err
	}
	return utils.Success(c, fiber.Map{"message": "Lesson plan unscheduled"})
}

func (lc *LessonController) ListClassLessons(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	entries, err := lc.lessons.ListForClass(c.UserContext(), middleware.CurrentPrincipal(c), id)
	if err != nil {
		return err
	}
	return utils.Success(c, entries)
}
