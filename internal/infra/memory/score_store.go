package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"quizbot-service/internal/domain"
)

type recordKey struct {
	userID int64
	quizID string
}

// ScoreStore is an in-memory implementation of app.ScoreStore. Useful for
// development and tests; records do not survive a restart.
type ScoreStore struct {
	mu      sync.RWMutex
	records map[recordKey]*domain.UserQuizRecord
	clock   func() time.Time
}

func NewScoreStore() *ScoreStore {
	return &ScoreStore{
		records: make(map[recordKey]*domain.UserQuizRecord),
		clock:   time.Now,
	}
}

func (s *ScoreStore) RecordAnswer(_ context.Context, userID int64, quizID string, correct bool, displayName string, totalQuestions int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.getOrCreateLocked(userID, quizID)
	if correct {
		rec.Score++
	}
	rec.DisplayName = displayName
	rec.TotalQuestions = totalQuestions
	rec.UpdatedAt = s.clock()
	return nil
}

func (s *ScoreStore) MarkCompleted(_ context.Context, userID int64, quizID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.getOrCreateLocked(userID, quizID)
	rec.Completed = true
	rec.UpdatedAt = s.clock()
	return nil
}

func (s *ScoreStore) HasCompleted(_ context.Context, userID int64, quizID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if quizID != "" {
		rec, ok := s.records[recordKey{userID, quizID}]
		return ok && rec.Completed, nil
	}
	for key, rec := range s.records {
		if key.userID == userID && rec.Completed {
			return true, nil
		}
	}
	return false, nil
}

func (s *ScoreStore) GetRecord(_ context.Context, userID int64, quizID string) (*domain.UserQuizRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[recordKey{userID, quizID}]
	if !ok {
		return nil, nil
	}
	copied := *rec
	return &copied, nil
}

func (s *ScoreStore) Leaderboard(_ context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	s.mu.RLock()
	byUser := make(map[int64]*domain.LeaderboardEntry)
	latest := make(map[int64]time.Time)
	for key, rec := range s.records {
		entry, ok := byUser[key.userID]
		if !ok {
			entry = &domain.LeaderboardEntry{UserID: key.userID}
			byUser[key.userID] = entry
		}
		entry.TotalScore += rec.Score
		if rec.Completed {
			entry.QuizzesCompleted++
		}
		if rec.UpdatedAt.After(latest[key.userID]) {
			latest[key.userID] = rec.UpdatedAt
			entry.DisplayName = rec.DisplayName
		}
	}
	s.mu.RUnlock()

	entries := make([]domain.LeaderboardEntry, 0, len(byUser))
	for _, entry := range byUser {
		entries = append(entries, *entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalScore != entries[j].TotalScore {
			return entries[i].TotalScore > entries[j].TotalScore
		}
		if entries[i].QuizzesCompleted != entries[j].QuizzesCompleted {
			return entries[i].QuizzesCompleted > entries[j].QuizzesCompleted
		}
		return entries[i].UserID < entries[j].UserID
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *ScoreStore) ResetUser(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.records {
		if key.userID == userID {
			delete(s.records, key)
		}
	}
	return nil
}

func (s *ScoreStore) getOrCreateLocked(userID int64, quizID string) *domain.UserQuizRecord {
	key := recordKey{userID, quizID}
	if rec, ok := s.records[key]; ok {
		return rec
	}
	rec := &domain.UserQuizRecord{UserID: userID, QuizID: quizID}
	s.records[key] = rec
	return rec
}
