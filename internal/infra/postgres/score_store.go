package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"quizbot-service/internal/domain"
	"github.com/uptrace/bun"
)

// recordRow maps user_quiz_records. The score delta is applied inside a
// single INSERT ... ON CONFLICT DO UPDATE, so the increment is atomic at the
// storage layer; no read-modify-write from the application.
type recordRow struct {
	bun.BaseModel `bun:"table:user_quiz_records,alias:uqr"`

	UserID         int64     `bun:"user_id,pk"`
	QuizID         string    `bun:"quiz_id,pk"`
	DisplayName    string    `bun:"display_name"`
	Score          int       `bun:"score"`
	TotalQuestions int       `bun:"total_questions"`
	Completed      bool      `bun:"completed"`
	UpdatedAt      time.Time `bun:"updated_at"`
}

// ScoreStore is the durable implementation of app.ScoreStore on Postgres.
type ScoreStore struct {
	db *bun.DB
}

func NewScoreStore(db *bun.DB) *ScoreStore {
	return &ScoreStore{db: db}
}

func (s *ScoreStore) RecordAnswer(ctx context.Context, userID int64, quizID string, correct bool, displayName string, totalQuestions int) error {
	delta := 0
	if correct {
		delta = 1
	}
	row := &recordRow{
		UserID:         userID,
		QuizID:         quizID,
		DisplayName:    displayName,
		Score:          delta,
		TotalQuestions: totalQuestions,
		UpdatedAt:      time.Now(),
	}
	_, err := s.db.NewInsert().Model(row).
		On("CONFLICT (user_id, quiz_id) DO UPDATE").
		Set("score = uqr.score + EXCLUDED.score").
		Set("display_name = EXCLUDED.display_name").
		Set("total_questions = EXCLUDED.total_questions").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("record answer: %w", err)
	}
	return nil
}

func (s *ScoreStore) MarkCompleted(ctx context.Context, userID int64, quizID string) error {
	row := &recordRow{
		UserID:    userID,
		QuizID:    quizID,
		Completed: true,
		UpdatedAt: time.Now(),
	}
	_, err := s.db.NewInsert().Model(row).
		On("CONFLICT (user_id, quiz_id) DO UPDATE").
		Set("completed = TRUE").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

func (s *ScoreStore) HasCompleted(ctx context.Context, userID int64, quizID string) (bool, error) {
	q := s.db.NewSelect().Model((*recordRow)(nil)).
		Where("user_id = ?", userID).
		Where("completed")
	if quizID != "" {
		q = q.Where("quiz_id = ?", quizID)
	}
	exists, err := q.Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("has completed: %w", err)
	}
	return exists, nil
}

func (s *ScoreStore) GetRecord(ctx context.Context, userID int64, quizID string) (*domain.UserQuizRecord, error) {
	row := new(recordRow)
	err := s.db.NewSelect().Model(row).
		Where("user_id = ?", userID).
		Where("quiz_id = ?", quizID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return &domain.UserQuizRecord{
		UserID:         row.UserID,
		QuizID:         row.QuizID,
		DisplayName:    row.DisplayName,
		Score:          row.Score,
		TotalQuestions: row.TotalQuestions,
		Completed:      row.Completed,
		UpdatedAt:      row.UpdatedAt,
	}, nil
}

func (s *ScoreStore) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	var entries []domain.LeaderboardEntry
	err := s.db.NewRaw(`
		SELECT user_id,
		       (array_agg(display_name ORDER BY updated_at DESC))[1] AS display_name,
		       COALESCE(SUM(score), 0) AS total_score,
		       COUNT(*) FILTER (WHERE completed) AS quizzes_completed
		FROM user_quiz_records
		GROUP BY user_id
		ORDER BY total_score DESC, quizzes_completed DESC, user_id
		LIMIT ?`, limit).
		Scan(ctx, &entries)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	return entries, nil
}

func (s *ScoreStore) ResetUser(ctx context.Context, userID int64) error {
	_, err := s.db.NewDelete().Model((*recordRow)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("reset user: %w", err)
	}
	return nil
}
