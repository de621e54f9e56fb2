package controllers

import (
	"shortstacks/middleware"
	"shortstacks/services/billing"
	"shortstacks/utils"

	"github.com/gofiber/fiber/v2"
)

type BillController struct {
	bills *billing.Service
}

func NewBillController(svc *billing.Service) *BillController {
	return &BillController{bills: svc}
}

// CreateBill assigns a bill to one or more of the teacher's classes.
func (bc *BillController) CreateBill(c *fiber.Ctx) error {
	var req billing.CreateBillInput
	if err := utils.ParseBody(c, &req); err != nil {
		return err
	}
	bill, err := bc.bills.CreateBill(c.UserContext(), middleware.CurrentPrincipal(c), req)
	if err != nil {
		return err
	}
	return utils.Created(c, bill)
}

func (bc *BillController) GetBill(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	bill, err := bc.bills.GetBill(c.UserContext(), middleware.CurrentPrincipal(c), id)
	if err != nil {
		return err
	}
	return utils.Success(c, bill)
}

// GetSchedule previews the due dates of a bill (?count=, default 12).
func (bc *BillController) GetSchedule(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	dates, err := bc.bills.Schedule(c.UserContext(), middleware.CurrentPrincipal(c), id, c.QueryInt("count", 0))
	if err != nil {
		return err
	}
	return utils.Success(c, fiber.Map{"bill_id": id, "dates": dates})
}

func (bc *BillController) ListClassBills(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	bills, err := bc.bills.ListForClass(c.UserContext(), middleware.CurrentPrincipal(c), id)
	if err != nil {
		return err
	}
	return utils.Success(c, bills)
}

// ListMyBills lists the signed-in student's bills with what is still owed.
func (bc *BillController) ListMyBills(c *fiber.Ctx) error {
	bills, err := bc.bills.ListForStudent(c.UserContext(), middleware.CurrentPrincipal(c))
	if err != nil {
		return err
	}
	return utils.Success(c, bills)
}

type cancelBillRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (bc *BillController) CancelBill(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req cancelBillRequest
	if len(c.Body()) > 0 {
		if err := utils.ParseBody(c, &req); err != nil {
			return err
		}
	}
	bill, err := bc.bills.CancelBill(c.UserContext(), middleware.CurrentPrincipal(c), id, req.Reason)
	if err != nil {
		return err
	}
	return utils.Success(c, bill)
}

// PayBill is POST /api/bills/:id/pay {accountId, amount}.
func (bc *BillController) PayBill(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req billing.PayBillInput
	if err := utils.ParseBody(c, &req); err != nil {
		return err
	}
	req.BillID = id
	result, err := bc.bills.PayBill(c.UserContext(), middleware.CurrentPrincipal(c), req)
	if err != nil {
		return err
	}
	return utils.Success(c, result)
}

// RefreshStatus recomputes one bill's status on demand.
func (bc *BillController) RefreshStatus(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if _, err := bc.bills.GetBill(c.UserContext(), middleware.CurrentPrincipal(c), id); err != nil {
		return err
	}
	status, err := bc.bills.RefreshStatus(c.UserContext(), id)
	if err != nil {
		return err
	}
	return utils.Success(c, fiber.Map{"bill_id": id, "status": status})
}
