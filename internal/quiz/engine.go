// Package quiz holds the pure question-sequencing logic. It performs no I/O
// and keeps no state; everything it needs arrives as arguments.
package quiz

import (
	"quizbot-service/internal/domain"
)

// Outcome summarizes the evaluation of a single submitted answer.
type Outcome struct {
	Correct       bool
	CorrectAnswer string
	Link          string
	NextIndex     int
	IsLast        bool
}

// Start validates a quiz definition and returns the index of its first question.
func Start(quiz domain.Quiz) (int, error) {
	if len(quiz.Questions) == 0 {
		return 0, domain.ErrQuestionNotFound
	}
	return 0, nil
}

// Evaluate scores a chosen option against the question at questionIndex.
// Correctness is by option value; IsLast is true when NextIndex runs past the
// question list. A bad index is a caller contract violation, not a user error.
func Evaluate(quiz domain.Quiz, questionIndex int, chosenOption string) (Outcome, error) {
	if questionIndex < 0 || questionIndex >= len(quiz.Questions) {
		return Outcome{}, domain.ErrQuestionNotFound
	}
	question := quiz.Questions[questionIndex]
	next := questionIndex + 1
	return Outcome{
		Correct:       chosenOption == question.Correct,
		CorrectAnswer: question.Correct,
		Link:          question.Link,
		NextIndex:     next,
		IsLast:        next >= len(quiz.Questions),
	}, nil
}

// Option resolves an option by index, guarding against replayed callbacks that
// reference an option the question does not have.
func Option(quiz domain.Quiz, questionIndex, optionIndex int) (string, error) {
	if questionIndex < 0 || questionIndex >= len(quiz.Questions) {
		return "", domain.ErrQuestionNotFound
	}
	options := quiz.Questions[questionIndex].Options
	if optionIndex < 0 || optionIndex >= len(options) {
		return "", domain.ErrBadCallbackToken
	}
	return options[optionIndex], nil
}
