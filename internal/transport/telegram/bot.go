package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"quizbot-service/internal/app"
	"quizbot-service/internal/callback"
	"quizbot-service/internal/domain"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Bot is the inbound half of the Telegram transport: it long-polls updates
// and translates commands and button callbacks into controller intents.
type Bot struct {
	api              *tgbotapi.BotAPI
	controller       *app.Controller
	admins           map[int64]struct{}
	leaderboardLimit int
}

func NewBot(api *tgbotapi.BotAPI, controller *app.Controller, adminIDs []int64, leaderboardLimit int) *Bot {
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	if leaderboardLimit <= 0 {
		leaderboardLimit = 10
	}
	return &Bot{
		api:              api,
		controller:       controller,
		admins:           admins,
		leaderboardLimit: leaderboardLimit,
	}
}

// Run long-polls Telegram until ctx is canceled. Each update is handled in
// its own goroutine; per-user ordering is the controller's job, not the
// transport's.
func (b *Bot) Run(ctx context.Context) {
	log.Printf("authorized on account %s", b.api.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			go b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil && update.Message.IsCommand():
		b.handleCommand(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	userID := message.From.ID

	switch cmd := message.Command(); {
	case cmd == "start":
		b.send(chatID, "👋 Welcome to the quiz bot!\n\nSend /listquizzes to see what's available, /leaderboard for the standings, /help for everything else.")
	case cmd == "help":
		b.send(chatID, "Commands:\n/listquizzes — available quizzes\n/quiz_<id> — start a quiz\n/leaderboard — top players\n/help — this message")
	case cmd == "listquizzes":
		b.handleListQuizzes(ctx, chatID, userID)
	case cmd == "leaderboard":
		b.handleLeaderboard(ctx, chatID)
	case cmd == "resetuser":
		b.handleResetUser(ctx, chatID, userID, message.CommandArguments())
	case strings.HasPrefix(cmd, "quiz_"):
		b.handleBegin(ctx, userID, chatID, strings.TrimPrefix(cmd, "quiz_"))
	default:
		b.send(chatID, "Unknown command. Send /help.")
	}
}

func (b *Bot) handleBegin(ctx context.Context, userID, chatID int64, quizID string) {
	err := b.controller.BeginQuiz(ctx, userID, chatID, quizID)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrAlreadyCompleted):
		b.send(chatID, "✔ You have already completed this quiz.")
	case errors.Is(err, domain.ErrSessionBusy):
		b.send(chatID, "⏳ Finish your current quiz first.")
	case errors.Is(err, domain.ErrQuizNotFound):
		b.send(chatID, "Unknown quiz. Send /listquizzes to see what's available.")
	case errors.Is(err, domain.ErrStoreUnavailable):
		b.send(chatID, "😓 Having trouble saving progress right now. Please try again in a minute.")
	default:
		log.Printf("begin quiz %s for user %d: %v", quizID, userID, err)
		b.send(chatID, "Could not start the quiz. Please try again.")
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || !callback.IsAnswer(cb.Data) {
		b.ack(cb.ID, "")
		return
	}

	token, err := callback.Decode(cb.Data)
	if err != nil {
		log.Printf("callback from user %d: %v", cb.From.ID, err)
		b.ack(cb.ID, "This button has expired.")
		return
	}

	err = b.controller.SubmitAnswer(ctx, cb.From.ID, displayName(cb.From), token)
	switch {
	case err == nil:
		b.ack(cb.ID, "")
	case errors.Is(err, domain.ErrStaleCallback), errors.Is(err, domain.ErrForeignSession):
		// Duplicate tap, replayed button, or someone else's keyboard; stop the
		// spinner, change nothing.
		b.ack(cb.ID, "This button is no longer active.")
	case errors.Is(err, domain.ErrStoreUnavailable):
		b.ack(cb.ID, "Could not save your answer. Please restart the quiz.")
	default:
		log.Printf("submit answer for user %d: %v", cb.From.ID, err)
		b.ack(cb.ID, "Something went wrong. Send /start to try again.")
	}
}

func (b *Bot) handleListQuizzes(ctx context.Context, chatID, userID int64) {
	overviews, err := b.controller.ListQuizzes(ctx, userID)
	if err != nil {
		log.Printf("list quizzes: %v", err)
		b.send(chatID, "Could not load the quiz list. Please try again.")
		return
	}
	if len(overviews) == 0 {
		b.send(chatID, "No quizzes available yet.")
		return
	}
	var sb strings.Builder
	sb.WriteString("📚 Available quizzes:\n\n")
	for _, overview := range overviews {
		mark := ""
		if overview.Completed {
			mark = " ✔"
		}
		fmt.Fprintf(&sb, "/quiz_%s — %s (%d questions)%s\n", overview.ID, overview.Title, overview.QuestionCount, mark)
	}
	b.send(chatID, sb.String())
}

func (b *Bot) handleLeaderboard(ctx context.Context, chatID int64) {
	text, err := b.controller.Leaderboard(ctx, b.leaderboardLimit)
	if err != nil {
		log.Printf("leaderboard: %v", err)
		b.send(chatID, "Could not load the leaderboard. Please try again.")
		return
	}
	b.send(chatID, text)
}

func (b *Bot) handleResetUser(ctx context.Context, chatID, callerID int64, args string) {
	if _, ok := b.admins[callerID]; !ok {
		b.send(chatID, "This command is for operators only.")
		return
	}
	target, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil || target <= 0 {
		b.send(chatID, "Usage: /resetuser <user id>")
		return
	}
	if err := b.controller.ResetUserProgress(ctx, target); err != nil {
		log.Printf("reset user %d: %v", target, err)
		b.send(chatID, "Reset failed. Check the logs.")
		return
	}
	b.send(chatID, fmt.Sprintf("Progress for user %d has been reset.", target))
}

func (b *Bot) send(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.Printf("send to chat %d: %v", chatID, err)
	}
}

func (b *Bot) ack(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		log.Printf("answer callback: %v", err)
	}
}

func displayName(user *tgbotapi.User) string {
	if user.UserName != "" {
		return "@" + user.UserName
	}
	return user.FirstName
}
