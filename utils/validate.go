package utils

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report json field names instead of Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ParseBody decodes the JSON body into out and validates its struct tags.
func ParseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return Validation("Invalid request body")
	}
	return ValidateStruct(out)
}

// ValidateStruct runs validator tags and converts failures into a single Validation error.
func ValidateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return Validation("Invalid input")
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, describeFieldError(fe))
	}
	return Validation(strings.Join(msgs, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag())
	}
}

// MaxAmount is the largest value a decimal(12,2) money column holds.
var MaxAmount = decimal.RequireFromString("9999999999.99")

// PositiveAmount checks that amount is > 0, at most MaxAmount and has at most two decimal places.
func PositiveAmount(amount decimal.Decimal, what string) error {
	if !amount.IsPositive() {
		return InvalidAmount(what + " must be greater than zero")
	}
	if amount.GreaterThan(MaxAmount) {
		return InvalidAmount(what + " exceeds the maximum of " + MaxAmount.StringFixed(2))
	}
	if !amount.Equal(amount.Round(2)) {
		return InvalidAmount(what + " must have at most two decimal places")
	}
	return nil
}
