// Package callback encodes inline-button payloads as a compact, versioned
// token. Parsing is strict: anything that does not round-trip exactly is
// rejected, never silently zero-valued.
package callback

import (
	"fmt"
	"strconv"
	"strings"

	"quizbot-service/internal/domain"
)

// version tags the token schema so old buttons can be recognized and refused
// if the layout ever changes.
const version = "v1"

const separator = ":"

// Token is the structured payload behind an answer button.
type Token struct {
	QuizID        string
	QuestionIndex int
	OptionIndex   int
	UserID        int64
}

// Encode renders the token as "v1:<quizID>:<qIdx>:<optIdx>:<userID>".
// Telegram caps callback data at 64 bytes, so quiz IDs are kept short.
func Encode(t Token) string {
	return strings.Join([]string{
		version,
		t.QuizID,
		strconv.Itoa(t.QuestionIndex),
		strconv.Itoa(t.OptionIndex),
		strconv.FormatInt(t.UserID, 10),
	}, separator)
}

// Decode parses and validates a token. All four fields must round-trip
// exactly; malformed input yields ErrBadCallbackToken.
func Decode(raw string) (Token, error) {
	parts := strings.Split(raw, separator)
	if len(parts) != 5 || parts[0] != version {
		return Token{}, fmt.Errorf("%w: %q", domain.ErrBadCallbackToken, raw)
	}
	quizID := parts[1]
	if quizID == "" {
		return Token{}, fmt.Errorf("%w: empty quiz id", domain.ErrBadCallbackToken)
	}
	questionIndex, err := strconv.Atoi(parts[2])
	if err != nil || questionIndex < 0 {
		return Token{}, fmt.Errorf("%w: question index %q", domain.ErrBadCallbackToken, parts[2])
	}
	optionIndex, err := strconv.Atoi(parts[3])
	if err != nil || optionIndex < 0 {
		return Token{}, fmt.Errorf("%w: option index %q", domain.ErrBadCallbackToken, parts[3])
	}
	userID, err := strconv.ParseInt(parts[4], 10, 64)
	if err != nil || userID <= 0 {
		return Token{}, fmt.Errorf("%w: user id %q", domain.ErrBadCallbackToken, parts[4])
	}
	return Token{
		QuizID:        quizID,
		QuestionIndex: questionIndex,
		OptionIndex:   optionIndex,
		UserID:        userID,
	}, nil
}

// IsAnswer reports whether raw looks like an answer token at all, letting the
// transport route non-answer callbacks (menu buttons) elsewhere.
func IsAnswer(raw string) bool {
	return strings.HasPrefix(raw, version+separator)
}
