package controllers

import (
	"shortstacks/models"
	"shortstacks/services/websocket"
	"shortstacks/utils"

	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

type WebSocketController struct {
	hub *websocket.Hub
}

func NewWebSocketController(hub *websocket.Hub) *WebSocketController {
	return &WebSocketController{hub: hub}
}

// RequireUpgrade rejects plain HTTP requests on the WebSocket route.
func (wsc *WebSocketController) RequireUpgrade(c *fiber.Ctx) error {
	if !fiberws.IsWebSocketUpgrade(c) {
		return fiber.NewError(fiber.StatusUpgradeRequired, "Use the WebSocket endpoint: ws://<host>/ws?token=YOUR_JWT")
	}
	return c.Next()
}

// WebSocketHandler attaches the authenticated connection to the hub. The JWT
// middleware runs before the upgrade and leaves the user in locals.
func (wsc *WebSocketController) WebSocketHandler() fiber.Handler {
	return fiberws.New(func(c *fiberws.Conn) {
		defer func() {
			if r := recover(); r != nil {
				logrus.WithField("panic", r).Error("WebSocket handler panic")
			}
		}()

		user, ok := c.Locals("user").(*models.User)
		if !ok {
			_ = c.WriteMessage(fiberws.CloseMessage, []byte("Unauthorized"))
			_ = c.Close()
			return
		}
		logrus.WithFields(logrus.Fields{"user_id": user.ID, "username": user.Username}).Info("WebSocket connection established")
		wsc.hub.ServeFiberWS(c, user.ID)
	})
}

// GetWebSocketStats returns WebSocket connection statistics (admin only)
func (wsc *WebSocketController) GetWebSocketStats(c *fiber.Ctx) error {
	return utils.Success(c, fiber.Map{
		"connected_clients": wsc.hub.GetClientCount(),
		"status":            "active",
	})
}
