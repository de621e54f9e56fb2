package utils

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorStatusCode(t *testing.T) {
	tests := []struct {
		err  *AppError
		want int
	}{
		{Unauthorized("x"), http.StatusUnauthorized},
		{Forbidden("x"), http.StatusForbidden},
		{NotFound("x"), http.StatusNotFound},
		{InvalidAmount("x"), http.StatusBadRequest},
		{Validation("x"), http.StatusBadRequest},
		{InsufficientFunds("x"), http.StatusBadRequest},
		{Conflict("x"), http.StatusConflict},
		{Internal(errors.New("boom"), "x"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(string(tc.err.Kind), func(t *testing.T) {
			assert.Equal(t, tc.want, tc.err.StatusCode())
		})
	}
}

func TestKindOf(t *testing.T) {
	cause := errors.New("connection reset")
	wrapped := fmt.Errorf("pay bill: %w", InsufficientFunds("Insufficient funds"))

	assert.Equal(t, KindInsufficientFunds, KindOf(wrapped))
	assert.Equal(t, KindInternal, KindOf(cause))
	assert.False(t, IsKind(nil, KindInternal))
	assert.True(t, IsKind(wrapped, KindInsufficientFunds))

	internal := Internal(cause, "Failed to load bill")
	assert.ErrorIs(t, internal, cause)
	assert.Equal(t, "Failed to load bill: connection reset", internal.Error())
}

func TestPositiveAmount(t *testing.T) {
	tests := []struct {
		in      string
		wantErr string
	}{
		{"0.01", ""},
		{"125", ""},
		{"10.50", ""},
		{"0", "Amount must be greater than zero"},
		{"-5", "Amount must be greater than zero"},
		{"1.005", "Amount must have at most two decimal places"},
		{"9999999999.99", ""},
		{"10000000000.00", "Amount exceeds the maximum of 9999999999.99"},
		{"100000000000.00", "Amount exceeds the maximum of 9999999999.99"},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			err := PositiveAmount(decimal.RequireFromString(tc.in), "Amount")
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tc.wantErr)
			assert.True(t, IsKind(err, KindInvalidAmount))
		})
	}
}

func TestGenerateJoinCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := GenerateJoinCode(6)
		require.NoError(t, err)
		require.Len(t, code, 6)
		for _, r := range code {
			assert.Contains(t, joinCodeAlphabet, string(r))
		}
		seen[code] = true
	}
	assert.Greater(t, len(seen), 45)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)
	assert.NoError(t, CheckPassword("correct horse", hash))
	assert.Error(t, CheckPassword("battery staple", hash))
}

func TestIsValidFileExtension(t *testing.T) {
	allowed := []string{"csv", "xlsx"}
	tests := []struct {
		name string
		want bool
	}{
		{"roster.csv", true},
		{"Roster.XLSX", true},
		{"roster.csv.exe", false},
		{"roster", false},
		{"roster.", false},
		{"roster.xls", false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, IsValidFileExtension(tc.name, allowed), tc.name)
	}
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "Arnold", SanitizeString("  Ar\x00nold \n"))
}

type signup struct {
	Username string `json:"username" validate:"required,min=3"`
	Role     string `json:"role" validate:"oneof=teacher student"`
}

func TestValidateStruct(t *testing.T) {
	assert.NoError(t, ValidateStruct(&signup{Username: "arnold", Role: "student"}))

	err := ValidateStruct(&signup{Username: "ab", Role: "janitor"})
	assert.True(t, IsKind(err, KindValidation))
	assert.EqualError(t, err, "username must be at least 3; role must be one of [teacher student]")

	err = ValidateStruct(&signup{Role: "teacher"})
	assert.EqualError(t, err, "username is required")
}

func TestEnvelopeAndPaging(t *testing.T) {
	app := fiber.New()
	app.Post("/signup", func(c *fiber.Ctx) error {
		var in signup
		if err := ParseBody(c, &in); err != nil {
			return Fail(c, err.(*AppError).StatusCode(), err.Error())
		}
		return Created(c, in)
	})
	app.Get("/items", func(c *fiber.Ctx) error {
		page, size := Paging(c)
		return Success(c, Page{Items: []int{}, Page: page, PageSize: size})
	})

	tests := []struct {
		name   string
		req    *http.Request
		status int
		body   string
	}{
		{
			name:   "created",
			req:    jsonRequest(http.MethodPost, "/signup", `{"username":"arnold","role":"student"}`),
			status: http.StatusCreated,
			body:   `{"success":true,"data":{"username":"arnold","role":"student"}}`,
		},
		{
			name:   "bad json",
			req:    jsonRequest(http.MethodPost, "/signup", `{`),
			status: http.StatusBadRequest,
			body:   `{"success":false,"error":"Invalid request body"}`,
		},
		{
			name:   "paging defaults",
			req:    httptest.NewRequest(http.MethodGet, "/items", nil),
			status: http.StatusOK,
			body:   `{"success":true,"data":{"items":[],"page":1,"page_size":20,"total":0}}`,
		},
		{
			name:   "paging clamps",
			req:    httptest.NewRequest(http.MethodGet, "/items?page=-2&page_size=500", nil),
			status: http.StatusOK,
			body:   `{"success":true,"data":{"items":[],"page":1,"page_size":100,"total":0}}`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := app.Test(tc.req)
			require.NoError(t, err)
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.JSONEq(t, tc.body, string(body))
		})
	}
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}
