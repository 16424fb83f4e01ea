package notify

import (
	"context"
	"time"

	tele "gopkg.in/telebot.v3"
)

// Telegram sends notifications to a single chat. The bot is used as a pure
// sender; no command handlers, no poller loop.
type Telegram struct {
	bot    *tele.Bot
	chatID int64
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, err
	}
	return &Telegram{bot: bot, chatID: chatID}, nil
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Send(_ context.Context, msg string) error {
	_, err := t.bot.Send(tele.ChatID(t.chatID), msg)
	return err
}
