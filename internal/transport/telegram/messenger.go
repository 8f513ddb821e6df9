package telegram

import (
	"context"
	"strings"

	"quizbot-service/internal/app"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// botAPI is the slice of tgbotapi.BotAPI the messenger needs; tests hand in a
// fake.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Messenger implements app.Messenger on top of the Telegram Bot API.
type Messenger struct {
	api botAPI
}

func NewMessenger(api botAPI) *Messenger {
	return &Messenger{api: api}
}

func (m *Messenger) SendMessage(_ context.Context, chatID int64, text string, buttons [][]app.Button) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	if len(buttons) > 0 {
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
		for _, row := range buttons {
			keyboardRow := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
			for _, button := range row {
				keyboardRow = append(keyboardRow, tgbotapi.NewInlineKeyboardButtonData(button.Label, button.Data))
			}
			rows = append(rows, keyboardRow)
		}
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	sent, err := m.api.Send(msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

// DeleteMessage treats "already deleted" responses as success; a prompt the
// user removed themselves is exactly the state we wanted anyway.
func (m *Messenger) DeleteMessage(_ context.Context, chatID int64, messageID int) error {
	_, err := m.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
	if err != nil && isAlreadyDeleted(err) {
		return nil
	}
	return err
}

func isAlreadyDeleted(err error) bool {
	text := err.Error()
	return strings.Contains(text, "message to delete not found") ||
		strings.Contains(text, "message can't be deleted")
}
