package bot

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/example/germanbot/internal/quiz"
)

// Bot is the Telegram transport. It turns updates into engine calls and
// engine output into messages; all quiz logic and message wording live in
// the engine.
type Bot struct {
	api    *tgbotapi.BotAPI
	engine *quiz.Engine
	log    *slog.Logger
}

// New connects to the Telegram API with the given token.
func New(token string, engine *quiz.Engine, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram api: %w", err)
	}
	log.Info("telegram bot authorized", "username", api.Self.UserName)
	return &Bot{api: api, engine: engine, log: log}, nil
}

// Start runs the long-polling update loop until the context is canceled.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

// send delivers one Markdown text message, optionally with an inline
// keyboard of answer options.
func (b *Bot) send(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if keyboard != nil {
		msg.ReplyMarkup = keyboard
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("sending message failed", "chat", chatID, "error", err)
	}
}

// SendText delivers plain engine-formatted text. Used by the background
// jobs for timeout summaries.
func (b *Bot) SendText(learner int64, text string) error {
	msg := tgbotapi.NewMessage(learner, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	_, err := b.api.Send(msg)
	return err
}

// SendReminder nudges a learner about items waiting for review.
func (b *Bot) SendReminder(learner int64, due int) error {
	text := fmt.Sprintf("🔔 You have %d word(s) due for review. Send /quiz to practice!", due)
	_, err := b.api.Send(tgbotapi.NewMessage(learner, text))
	return err
}
