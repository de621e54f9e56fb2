package controllers

import (
	"shortstacks/middleware"
	"shortstacks/services/notifications"
	"shortstacks/utils"

	"github.com/gofiber/fiber/v2"
)

type NotificationController struct {
	notifications *notifications.Service
}

func NewNotificationController(svc *notifications.Service) *NotificationController {
	return &NotificationController{notifications: svc}
}

// GetNotifications returns notifications for the current user (?unread=true to filter).
func (nc *NotificationController) GetNotifications(c *fiber.Ctx) error {
	p := middleware.CurrentPrincipal(c)
	page, size := utils.Paging(c)
	items, total, err := nc.notifications.List(c.UserContext(), p.UserID, page, size, c.QueryBool("unread", false))
	if err != nil {
		return err
	}
	return utils.Success(c, utils.Page{Items: items, Page: page, PageSize: size, Total: total})
}

func (nc *NotificationController) GetUnreadCount(c *fiber.Ctx) error {
	n, err := nc.notifications.UnreadCount(c.UserContext(), middleware.CurrentPrincipal(c).UserID)
	if err != nil {
		return err
	}
	return utils.Success(c, fiber.Map{"unread": n})
}

func (nc *NotificationController) MarkAsRead(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := nc.notifications.MarkRead(c.UserContext(), middleware.CurrentPrincipal(c).UserID, id); err != nil {
		return err
	}
	return utils.Success(c, fiber.Map{"message": "Notification marked as read"})
}

func (nc *NotificationController) MarkAllAsRead(c *fiber.Ctx) error {
	n, err := nc.notifications.MarkAllRead(c.UserContext(), middleware.CurrentPrincipal(c).UserID)
	if err != nil {
		return err
	}
	return utils.Success(c, fiber.Map{"updated": n})
}
