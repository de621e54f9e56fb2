package controllers

import (
	"strconv"
	"time"

	"shortstacks/utils"

	"github.com/gofiber/fiber/v2"
)

// paramID parses a positive numeric route parameter.
func paramID(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 32)
	if err != nil || id == 0 {
		return 0, utils.Validation("Invalid " + name)
	}
	return uint(id), nil
}

// queryMonth reads ?month=YYYY-MM; it defaults to the previous month.
func queryMonth(c *fiber.Ctx, loc *time.Location, now time.Time) (time.Time, error) {
	raw := c.Query("month")
	if raw == "" {
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
		return first.AddDate(0, -1, 0), nil
	}
	t, err := time.ParseInLocation("2006-01", raw, loc)
	if err != nil {
		return time.Time{}, utils.Validation("month must be formatted as YYYY-MM")
	}
	return t, nil
}
