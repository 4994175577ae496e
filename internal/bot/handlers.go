package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/example/germanbot/internal/quiz"
	"github.com/example/germanbot/internal/session"
	"github.com/example/germanbot/internal/store"
)

const callbackAnswerPrefix = "ans:"

const helpText = `I help you learn German vocabulary with spaced repetition.

/quiz - start a review round
/stop - stop the current round
/word - show a random word card
/stats - show your progress
/help - show this message`

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		b.handleCommand(ctx, update.Message)
	case update.Message != nil && update.Message.Text != "":
		b.handleAnswer(ctx, update.Message.Chat.ID, update.Message.Text)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	switch msg.Command() {
	case "start":
		b.send(chatID, "👋 Willkommen! "+helpText, nil)
	case "help":
		b.send(chatID, helpText, nil)
	case "quiz":
		b.startRound(ctx, chatID)
	case "stop":
		summary, err := b.engine.AbandonRound(ctx, chatID)
		if errors.Is(err, session.ErrNoActiveSession) {
			b.send(chatID, "No round is running. Send /quiz to start one.", nil)
			return
		}
		if err != nil {
			b.reportError(chatID, err)
			return
		}
		b.send(chatID, summary, nil)
	case "word":
		card, err := b.engine.RandomWord(ctx)
		if err != nil {
			b.reportError(chatID, err)
			return
		}
		b.send(chatID, card, nil)
	case "stats":
		stats, err := b.engine.Stats(ctx, chatID)
		if err != nil {
			b.reportError(chatID, err)
			return
		}
		b.send(chatID, stats, nil)
	default:
		b.send(chatID, "Unknown command. "+helpText, nil)
	}
}

func (b *Bot) startRound(ctx context.Context, chatID int64) {
	prompt, err := b.engine.StartRound(ctx, chatID)
	if errors.Is(err, quiz.ErrNothingDue) {
		b.send(chatID, "🎉 Nothing is due right now. Come back later!", nil)
		return
	}
	if err != nil {
		b.reportError(chatID, err)
		return
	}
	b.sendPrompt(chatID, prompt)
}

// handleAnswer feeds a typed answer into the engine.
func (b *Bot) handleAnswer(ctx context.Context, chatID int64, text string) {
	res, err := b.engine.SubmitAnswer(ctx, chatID, text)
	if errors.Is(err, session.ErrNoActiveSession) {
		b.send(chatID, "No round is running. Send /quiz to start one.", nil)
		return
	}
	if err != nil {
		b.reportError(chatID, err)
		return
	}
	b.deliverResult(chatID, res)
}

// handleCallback resolves a tapped answer button back to its option text
// and grades it like a typed answer.
func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Warn("answering callback failed", "error", err)
	}
	if cb.Message == nil || !strings.HasPrefix(cb.Data, callbackAnswerPrefix) {
		return
	}

	idx, err := strconv.Atoi(strings.TrimPrefix(cb.Data, callbackAnswerPrefix))
	if err != nil {
		return
	}
	markup := cb.Message.ReplyMarkup
	if markup == nil || idx < 0 || idx >= len(markup.InlineKeyboard) || len(markup.InlineKeyboard[idx]) == 0 {
		return
	}
	answer := markup.InlineKeyboard[idx][0].Text

	// Drop the keyboard so the question cannot be answered twice.
	edit := tgbotapi.NewEditMessageReplyMarkup(cb.Message.Chat.ID, cb.Message.MessageID,
		tgbotapi.NewInlineKeyboardMarkup([]tgbotapi.InlineKeyboardButton{}))
	if _, err := b.api.Request(edit); err != nil {
		b.log.Warn("removing keyboard failed", "error", err)
	}

	b.handleAnswer(ctx, cb.Message.Chat.ID, answer)
}

func (b *Bot) deliverResult(chatID int64, res *quiz.AnswerResult) {
	b.send(chatID, res.Feedback, nil)
	if res.Next != nil {
		b.sendPrompt(chatID, res.Next)
	}
	if res.SummaryText != "" {
		b.send(chatID, res.SummaryText, nil)
	}
}

func (b *Bot) sendPrompt(chatID int64, prompt *quiz.Prompt) {
	keyboard := answerKeyboard(prompt.Options)
	b.send(chatID, prompt.Text, &keyboard)
}

// answerKeyboard lays out one option per row; the callback data carries
// the row index.
func answerKeyboard(options []string) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(options))
	for i, opt := range options {
		data := callbackAnswerPrefix + strconv.Itoa(i)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(opt, data)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (b *Bot) reportError(chatID int64, err error) {
	b.log.Error("handler failed", "chat", chatID, "error", err)
	if errors.Is(err, store.ErrUnavailable) {
		b.send(chatID, "⚠️ Storage is temporarily unavailable. Please try again in a moment.", nil)
		return
	}
	b.send(chatID, "Something went wrong. Please try again.", nil)
}
