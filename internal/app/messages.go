package app

import (
	"fmt"
	"math"
	"strings"

	"quizbot-service/internal/callback"
	"quizbot-service/internal/domain"
)

func formatQuestion(quiz domain.Quiz, index int) string {
	question := quiz.Questions[index]
	return fmt.Sprintf("❓ %s — question %d/%d\n\n%s",
		quiz.Title, index+1, len(quiz.Questions), question.Prompt)
}

func questionButtons(quiz domain.Quiz, index int, userID int64) [][]Button {
	question := quiz.Questions[index]
	rows := make([][]Button, 0, len(question.Options))
	for i, option := range question.Options {
		rows = append(rows, []Button{{
			Label: option,
			Data: callback.Encode(callback.Token{
				QuizID:        quiz.ID,
				QuestionIndex: index,
				OptionIndex:   i,
				UserID:        userID,
			}),
		}})
	}
	return rows
}

func formatResult(correct bool, correctAnswer, link string) string {
	if correct {
		return "✅ Correct!"
	}
	text := fmt.Sprintf("❌ Wrong!\nThe correct answer is: %s", correctAnswer)
	if link != "" {
		text += "\n📖 " + link
	}
	return text
}

func formatSummary(quiz domain.Quiz, score int) string {
	total := len(quiz.Questions)
	percentage := int(math.Round(100 * float64(score) / float64(total)))
	text := fmt.Sprintf("🏁 %s finished!\nYour result: %d/%d (%d%%)",
		quiz.Title, score, total, percentage)
	if percentage == 100 {
		text += "\n🎁 Perfect score — you qualify for the prize!"
	}
	return text
}

func formatLeaderboard(entries []domain.LeaderboardEntry) string {
	if len(entries) == 0 {
		return "🏆 Leaderboard\n\nNo results yet. Be the first! 🎯"
	}
	var b strings.Builder
	b.WriteString("🏆 Leaderboard\n\n")
	for i, entry := range entries {
		medal := "🔸"
		switch i {
		case 0:
			medal = "🥇"
		case 1:
			medal = "🥈"
		case 2:
			medal = "🥉"
		}
		fmt.Fprintf(&b, "%s %d. %s — %d points, %d completed\n",
			medal, i+1, entry.DisplayName, entry.TotalScore, entry.QuizzesCompleted)
	}
	return b.String()
}

const failureNotice = "⚠️ Something went wrong with your quiz. Send /start to try again."
