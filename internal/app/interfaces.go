package app

import (
	"context"

	"quizbot-service/internal/domain"
)

// ScoreStore is the durable record of per-(user, quiz) progress. For one
// (user, quiz) pair calls are serialized by the controller; the store only
// guarantees that each single upsert is atomic at the storage layer.
type ScoreStore interface {
	// RecordAnswer upserts the record, incrementing score by 1 iff correct and
	// always refreshing the display name.
	RecordAnswer(ctx context.Context, userID int64, quizID string, correct bool, displayName string, totalQuestions int) error
	// MarkCompleted flips the completed flag; idempotent, upsert semantics.
	MarkCompleted(ctx context.Context, userID int64, quizID string) error
	// HasCompleted reports whether a completed record exists for the quiz, or
	// for any quiz when quizID is empty.
	HasCompleted(ctx context.Context, userID int64, quizID string) (bool, error)
	// GetRecord returns the record or nil when absent.
	GetRecord(ctx context.Context, userID int64, quizID string) (*domain.UserQuizRecord, error)
	// Leaderboard returns entries ordered by total score desc, then quizzes
	// completed desc.
	Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
	// ResetUser removes all records for the user. Operator use only.
	ResetUser(ctx context.Context, userID int64) error
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	ListQuizzes(ctx context.Context) ([]domain.Quiz, error)
}

// Button is one inline keyboard button: a visible label and an opaque
// callback payload.
type Button struct {
	Label string
	Data  string
}

// Messenger is the outbound half of the chat transport.
type Messenger interface {
	// SendMessage returns the transport's message id for later deletion.
	SendMessage(ctx context.Context, chatID int64, text string, buttons [][]Button) (int, error)
	// DeleteMessage must treat "already deleted" as success.
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

// EventPublisher mirrors progress to the live-update side channel. Delivery
// is fire-and-forget; implementations must never block the caller.
type EventPublisher interface {
	Publish(event domain.Event)
}
