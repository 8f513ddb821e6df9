package domain

import "time"

// Question models an MCQ question. Correct references one option by value,
// not by index, so reordering options never invalidates authored content.
type Question struct {
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
	Correct string   `json:"correct"`
	Link    string   `json:"link,omitempty"`
}

// Quiz is an immutable, ordered collection of questions.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// UserQuizRecord is the durable projection of a user's progress through one
// quiz. Score only ever increases; Completed only ever flips false to true.
type UserQuizRecord struct {
	UserID         int64     `json:"userId"`
	QuizID         string    `json:"quizId"`
	DisplayName    string    `json:"displayName"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"totalQuestions"`
	Completed      bool      `json:"completed"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// LeaderboardEntry aggregates a user's results across all quizzes.
type LeaderboardEntry struct {
	UserID           int64  `json:"userId"`
	DisplayName      string `json:"displayName"`
	TotalScore       int    `json:"totalScore"`
	QuizzesCompleted int    `json:"quizzesCompleted"`
}

// Event mirrors session progress to the live-update side channel. Delivery is
// best-effort; nothing in the quiz flow depends on it.
type Event struct {
	Type           string `json:"type"` // quiz_progress | answer_result | quiz_completed
	UserID         int64  `json:"userId"`
	QuizID         string `json:"quizId"`
	QuestionIndex  int    `json:"questionIndex"`
	Correct        bool   `json:"correct,omitempty"`
	Score          int    `json:"score"`
	TotalQuestions int    `json:"totalQuestions"`
}
