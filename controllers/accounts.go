package controllers

import (
	"time"

	"shortstacks/middleware"
	"shortstacks/services/banking"
	"shortstacks/utils"

	"github.com/gofiber/fiber/v2"
)

type AccountController struct {
	banking *banking.Service
	loc     *time.Location
}

func NewAccountController(svc *banking.Service, loc *time.Location) *AccountController {
	if loc == nil {
		loc = time.Local
	}
	return &AccountController{banking: svc, loc: loc}
}

// ListAccounts returns the caller's accounts, or a student's (?student_id=) for teachers.
func (ac *AccountController) ListAccounts(c *fiber.Ctx) error {
	accounts, err := ac.banking.ListAccounts(c.UserContext(), middleware.CurrentPrincipal(c), uint(c.QueryInt("student_id", 0)))
	if err != nil {
		return err
	}
	return utils.Success(c, accounts)
}

func (ac *AccountController) GetAccount(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	account, err := ac.banking.GetAccount(c.UserContext(), middleware.CurrentPrincipal(c), id)
	if err != nil {
		return err
	}
	return utils.Success(c, account)
}

func (ac *AccountController) ListTransactions(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	page, size := utils.Paging(c)
	rows, total, err := ac.banking.ListTransactions(c.UserContext(), middleware.CurrentPrincipal(c), id, page, size)
	if err != nil {
		return err
	}
	return utils.Success(c, utils.Page{Items: rows, Page: page, PageSize: size, Total: total})
}

// Transfer is POST /api/accounts/transfer {fromAccountId, toAccountId, amount}.
func (ac *AccountController) Transfer(c *fiber.Ctx) error {
	var req banking.TransferInput
	if err := utils.ParseBody(c, &req); err != nil {
		return err
	}
	result, err := ac.banking.Transfer(c.UserContext(), middleware.CurrentPrincipal(c), req)
	if err != nil {
		return err
	}
	return utils.Success(c, result)
}

// Deposit pays students of a class into their CHECKING accounts.
func (ac *AccountController) Deposit(c *fiber.Ctx) error {
	var req banking.DepositInput
	if err := utils.ParseBody(c, &req); err != nil {
		return err
	}
	result, err := ac.banking.Deposit(c.UserContext(), middleware.CurrentPrincipal(c), req)
	if err != nil {
		return err
	}
	return utils.Created(c, result)
}

// GenerateStatement renders the statement for ?month=YYYY-MM (default: last month).
func (ac *AccountController) GenerateStatement(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	month, err := queryMonth(c, ac.loc, time.Now().In(ac.loc))
	if err != nil {
		return err
	}
	stmt, err := ac.banking.GenerateStatement(c.UserContext(), middleware.CurrentPrincipal(c), id, month)
	if err != nil {
		return err
	}
	return utils.Created(c, stmt)
}

func (ac *AccountController) ListStatements(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	stmts, err := ac.banking.ListStatements(c.UserContext(), middleware.CurrentPrincipal(c), id)
	if err != nil {
		return err
	}
	return utils.Success(c, stmts)
}

// DownloadStatement returns a presigned link to the statement workbook.
func (ac *AccountController) DownloadStatement(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	url, err := ac.banking.StatementURL(c.UserContext(), middleware.CurrentPrincipal(c), id)
	if err != nil {
		return err
	}
	return utils.Success(c, fiber.Map{"url": url, "expires_in": int(banking.StatementLinkTTL.Seconds())})
}
