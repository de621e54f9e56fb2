package controllers

import (
	"shortstacks/middleware"
	"shortstacks/services/store"
	"shortstacks/utils"

	"github.com/gofiber/fiber/v2"
)

type StoreController struct {
	store *store.Service
}

func NewStoreController(svc *store.Service) *StoreController {
	return &StoreController{store: svc}
}

func (sc *StoreController) ListItems(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	items, err := sc.store.ListItems(c.UserContext(), middleware.CurrentPrincipal(c), id)
	if err != nil {
		return err
	}
	return utils.Success(c, items)
}

func (sc *StoreController) CreateItem(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req store.ItemInput
	if err := utils.ParseBody(c, &req); err != nil {
		return err
	}
	item, err := sc.store.CreateItem(c.UserContext(), middleware.CurrentPrincipal(c), id, req)
	if err != nil {
		return err
	}
	return utils.Created(c, item)
}

func (sc *StoreController) UpdateItem(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req store.ItemInput
	if err := utils.ParseBody(c, &req); err != nil {
		return err
	}
	item, err := sc.store.UpdateItem(c.UserContext(), middleware.CurrentPrincipal(c), id, req)
	if err != nil {
		return err
	}
	return utils.Success(c, item)
}

func (sc *StoreController) Purchase(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req store.PurchaseInput
	if err := utils.ParseBody(c, &req); err != nil {
		return err
	}
	req.ItemID = id
	result, err := sc.store.Purchase(c.UserContext(), middleware.CurrentPrincipal(c), req)
	if err != nil {
		return err
	}
	return utils.Created(c, result)
}
