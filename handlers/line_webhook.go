package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/line/line-bot-sdk-go/linebot"
	"github.com/sirupsen/logrus"
)

// LinkRedeemer consumes account link codes sent to the bot.
type LinkRedeemer interface {
	Redeem(ctx context.Context, code, lineUserID string) (uint, error)
}

type LineWebhookHandler struct {
	secret string
	bot    *linebot.Client
	linker LinkRedeemer
}

// NewLineWebhookHandler returns a handler that acknowledges and ignores
// events when bot is nil.
func NewLineWebhookHandler(secret string, bot *linebot.Client, linker LinkRedeemer) *LineWebhookHandler {
	return &LineWebhookHandler{secret: secret, bot: bot, linker: linker}
}

// Handle verifies the signature, answers 200 right away and processes events in the background.
func (h *LineWebhookHandler) Handle(c *fiber.Ctx) error {
	if h.bot == nil {
		return c.SendStatus(fiber.StatusOK)
	}
	signature := c.Get("X-Line-Signature")
	if signature == "" {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	body := append([]byte(nil), c.Body()...)
	if !ValidateSignature(h.secret, body, signature) {
		logrus.Warn("LINE webhook signature mismatch")
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	go h.process(body)
	return c.SendStatus(fiber.StatusOK)
}

func (h *LineWebhookHandler) process(body []byte) {
	var webhook struct {
		Events []*linebot.Event `json:"events"`
	}
	if err := json.Unmarshal(body, &webhook); err != nil {
		logrus.WithError(err).Error("Failed to parse LINE events")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, event := range webhook.Events {
		if event.Source == nil || event.Source.UserID == "" {
			continue
		}
		switch event.Type {
		case linebot.EventTypeFollow:
			h.reply(event.ReplyToken, "Welcome to ShortStacks! Send LINK followed by the code from your profile page to receive notifications here.")
		case linebot.EventTypeMessage:
			msg, ok := event.Message.(*linebot.TextMessage)
			if !ok {
				continue
			}
			code, ok := ParseLinkCommand(msg.Text)
			if !ok {
				continue
			}
			userID, err := h.linker.Redeem(ctx, code, event.Source.UserID)
			if err != nil {
				logrus.WithError(err).Info("LINE link code rejected")
				h.reply(event.ReplyToken, "That code is invalid or has expired. Please request a new one.")
				continue
			}
			logrus.WithField("user_id", userID).Info("LINE account linked")
			h.reply(event.ReplyToken, "Your LINE account is now linked.")
		}
	}
}

func (h *LineWebhookHandler) reply(token, text string) {
	if token == "" {
		return
	}
	if _, err := h.bot.ReplyMessage(token, linebot.NewTextMessage(text)).Do(); err != nil {
		logrus.WithError(err).Warn("Failed to reply on LINE")
	}
}

// ParseLinkCommand extracts the code from "LINK <code>" (case-insensitive).
func ParseLinkCommand(text string) (string, bool) {
	fields := strings.Fields(text)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "link") {
		return "", false
	}
	return strings.ToUpper(fields[1]), true
}

// ValidateSignature checks the X-Line-Signature header against the channel secret.
func ValidateSignature(secret string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}
