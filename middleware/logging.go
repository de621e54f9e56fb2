package middleware

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"shortstacks/models"

	"github.com/gofiber/fiber/v2"
	futils "github.com/gofiber/fiber/v2/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const requestIDHeader = "X-Request-ID"

// ActivityRecorder persists audit entries.
type ActivityRecorder interface {
	Record(ctx context.Context, entry models.ActivityLog) error
}

// RequestID tags every request with an id, reusing the caller's one when present.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Locals("request_id", id)
		c.Set(requestIDHeader, id)
		return c.Next()
	}
}

// LoggerMiddleware logs HTTP requests
func LoggerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else if se, ok := err.(interface{ StatusCode() int }); ok {
				status = se.StatusCode()
			}
		}

		entry := logrus.WithFields(logrus.Fields{
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     status,
			"duration":   time.Since(start).String(),
			"ip":         c.IP(),
			"user_agent": c.Get(fiber.HeaderUserAgent),
			"request_id": c.Locals("request_id"),
		})
		if status >= fiber.StatusInternalServerError {
			entry.Error("HTTP Request")
		} else {
			entry.Info("HTTP Request")
		}
		return err
	}
}

// LogActivity records one audit entry for the current user. Storage happens
// off the request path.
func LogActivity(c *fiber.Ctx, rec ActivityRecorder, action, resource string, resourceID uint, details interface{}) {
	if rec == nil {
		return
	}
	var userID uint
	if user, err := GetCurrentUser(c); err == nil {
		userID = user.ID
	}

	meta := map[string]interface{}{
		"request_id":  c.Locals("request_id"),
		"method":      c.Method(),
		"path":        c.Path(),
		"status_code": c.Response().StatusCode(),
	}
	if details != nil {
		meta["details"] = details
	}
	raw, _ := json.Marshal(meta)

	entry := models.ActivityLog{
		UserID:     userID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Details:    raw,
		IPAddress:  futils.CopyString(c.IP()),
		UserAgent:  truncate(futils.CopyString(c.Get(fiber.HeaderUserAgent)), 500),
	}
	entry.CreatedAt = time.Now()

	go func(e models.ActivityLog) {
		defer func() {
			if r := recover(); r != nil {
				logrus.WithField("panic", r).Error("panic recovered in LogActivity goroutine")
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rec.Record(ctx, e); err != nil {
			logrus.WithError(err).Error("Failed to record activity log")
		}
	}(entry)
}

// LogActivityMiddleware records successful mutating requests.
func LogActivityMiddleware(rec ActivityRecorder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodGet || strings.Contains(c.Path(), "/auth/") {
			return c.Next()
		}

		err := c.Next()

		var action string
		switch c.Method() {
		case fiber.MethodPost:
			action = "CREATE"
		case fiber.MethodPut, fiber.MethodPatch:
			action = "UPDATE"
		case fiber.MethodDelete:
			action = "DELETE"
		default:
			return err
		}

		// /api/<resource>/...
		var resource string
		if parts := strings.Split(strings.Trim(c.Path(), "/"), "/"); len(parts) >= 2 {
			resource = futils.CopyString(parts[1])
		}
		var resourceID uint
		if id, perr := strconv.ParseUint(c.Params("id"), 10, 64); perr == nil {
			resourceID = uint(id)
		}

		if err == nil && c.Response().StatusCode() < fiber.StatusBadRequest {
			LogActivity(c, rec, action, resource, resourceID, nil)
		}
		return err
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
