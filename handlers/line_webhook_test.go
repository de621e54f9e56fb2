package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/line/line-bot-sdk-go/linebot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestParseLinkCommand(t *testing.T) {
	tests := []struct {
		text string
		code string
		ok   bool
	}{
		{"LINK ab12cd34", "AB12CD34", true},
		{"  link   XYZ23456 ", "XYZ23456", true},
		{"Link", "", false},
		{"link a b", "", false},
		{"hello there", "", false},
		{"", "", false},
	}
	for _, tc := range tests {
		code, ok := ParseLinkCommand(tc.text)
		assert.Equal(t, tc.ok, ok, tc.text)
		assert.Equal(t, tc.code, code, tc.text)
	}
}

func TestValidateSignature(t *testing.T) {
	body := []byte(`{"events":[]}`)
	assert.True(t, ValidateSignature("s3cret", body, sign("s3cret", string(body))))
	assert.False(t, ValidateSignature("s3cret", body, sign("other", string(body))))
	assert.False(t, ValidateSignature("s3cret", body, ""))
}

func TestHandleChecksSignature(t *testing.T) {
	const secret = "channel-secret"
	bot, err := linebot.New(secret, "channel-token")
	require.NoError(t, err)
	h := NewLineWebhookHandler(secret, bot, nil)

	app := fiber.New()
	app.Post("/line/webhook", h.Handle)
	body := `{"destination":"U0","events":[]}`

	tests := []struct {
		name      string
		signature string
		status    int
	}{
		{"missing signature", "", http.StatusBadRequest},
		{"wrong signature", sign("nope", body), http.StatusUnauthorized},
		{"valid signature", sign(secret, body), http.StatusOK},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/line/webhook", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			if tc.signature != "" {
				req.Header.Set("X-Line-Signature", tc.signature)
			}
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestHandleWithoutBotAcknowledges(t *testing.T) {
	app := fiber.New()
	app.Post("/line/webhook", NewLineWebhookHandler("", nil, nil).Handle)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/line/webhook", strings.NewReader("{}")), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
