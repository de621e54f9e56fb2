package middleware

import (
	"errors"

	"shortstacks/utils"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// ErrorHandler renders every error returned by a handler as the JSON envelope.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		status := appErr.StatusCode()
		msg := appErr.Message
		if status >= fiber.StatusInternalServerError {
			logrus.WithError(err).WithFields(logrus.Fields{
				"method": c.Method(), "path": c.Path(), "request_id": c.Locals("request_id"),
			}).Error("Request failed")
			if msg == "" {
				msg = "Internal server error"
			}
		}
		return utils.Fail(c, status, msg)
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return utils.Fail(c, fe.Code, fe.Message)
	}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		return utils.Fail(c, fiber.StatusBadRequest, ve.Error())
	}

	logrus.WithError(err).WithFields(logrus.Fields{
		"method": c.Method(), "path": c.Path(), "request_id": c.Locals("request_id"),
	}).Error("Unhandled error")
	return utils.Fail(c, fiber.StatusInternalServerError, "Internal server error")
}
