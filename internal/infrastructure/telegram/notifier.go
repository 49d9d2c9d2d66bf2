package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"EventPoster/internal/ports"
)

// Notifier sends operator messages and files to a Telegram chat.
type Notifier struct {
	api    botAPI
	chatID int64
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier binds the bot to the chat.
func NewNotifier(api botAPI, chatID int64) *Notifier {
	return &Notifier{api: api, chatID: chatID}
}

// Notify posts a plain text message.
func (n *Notifier) Notify(ctx context.Context, text string) error {
	if err := n.check(ctx); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("telegram send message: %w", err)
	}
	return nil
}

// NotifyFile uploads a file as a document.
func (n *Notifier) NotifyFile(ctx context.Context, path, caption string) error {
	if err := n.check(ctx); err != nil {
		return err
	}

	doc := tgbotapi.NewDocument(n.chatID, tgbotapi.FilePath(path))
	doc.Caption = caption
	if _, err := n.api.Send(doc); err != nil {
		return fmt.Errorf("telegram send document: %w", err)
	}
	return nil
}

func (n *Notifier) check(ctx context.Context) error {
	if n.api == nil || n.chatID == 0 {
		return fmt.Errorf("telegram notifier misconfigured")
	}
	return ctx.Err()
}
