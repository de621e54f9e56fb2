package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"shortstacks/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"unauthorized", utils.Unauthorized("Invalid token"), http.StatusUnauthorized, "Invalid token"},
		{"forbidden", utils.Forbidden("Insufficient permissions"), http.StatusForbidden, "Insufficient permissions"},
		{"not found", utils.NotFound("Bill not found"), http.StatusNotFound, "Bill not found"},
		{"invalid amount", utils.InvalidAmount("Payment amount exceeds remaining bill amount of 60.00"), http.StatusBadRequest, "Payment amount exceeds remaining bill amount of 60.00"},
		{"insufficient funds", utils.InsufficientFunds("Insufficient funds"), http.StatusBadRequest, "Insufficient funds"},
		{"conflict", utils.Conflict("Bill is already cancelled"), http.StatusConflict, "Bill is already cancelled"},
		{"internal keeps the cause private", utils.Internal(errors.New("dial tcp: refused"), "Failed to load bill"), http.StatusInternalServerError, "Failed to load bill"},
		{"wrapped app error", errors.Join(errors.New("ctx"), utils.NotFound("Class not found")), http.StatusNotFound, "Class not found"},
		{"fiber error", fiber.NewError(http.StatusMethodNotAllowed, "Method Not Allowed"), http.StatusMethodNotAllowed, "Method Not Allowed"},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError, "Internal server error"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
			app.Get("/", func(*fiber.Ctx) error { return tc.err })

			status, env := call(t, app, "/", "")
			require.Equal(t, tc.status, status)
			assert.False(t, env.Success)
			assert.Equal(t, tc.msg, env.Error)
		})
	}
}

func TestErrorHandlerUnknownRoute(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/nowhere", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
