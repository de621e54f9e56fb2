package notifications

import (
	"fmt"

	"github.com/line/line-bot-sdk-go/linebot"
	"github.com/sirupsen/logrus"
)

// LineMessagingService pushes notifications through the LINE Messaging API.
type LineMessagingService struct {
	Bot *linebot.Client
}

// NewLineMessagingService returns nil when credentials are missing so callers can skip the channel.
func NewLineMessagingService(channelSecret, channelToken string) (*LineMessagingService, error) {
	if channelSecret == "" || channelToken == "" {
		logrus.Info("LINE Messaging API disabled: missing LINE_CHANNEL_SECRET or LINE_CHANNEL_ACCESS_TOKEN")
		return nil, nil
	}

	bot, err := linebot.New(channelSecret, channelToken)
	if err != nil {
		return nil, fmt.Errorf("create LINE bot client: %w", err)
	}
	return &LineMessagingService{Bot: bot}, nil
}

// PushText sends a text message to a LINE user or group id.
func (s *LineMessagingService) PushText(to, text string) error {
	if s == nil || s.Bot == nil {
		return fmt.Errorf("LINE Bot client is not initialized")
	}
	if _, err := s.Bot.PushMessage(to, linebot.NewTextMessage(text)).Do(); err != nil {
		return fmt.Errorf("LINE Messaging API failed: %w", err)
	}
	return nil
}
