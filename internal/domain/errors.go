package domain

import "errors"

var (
	// ErrAlreadyCompleted is returned when a user retries a finished quiz.
	ErrAlreadyCompleted = errors.New("quiz already completed")
	// ErrSessionBusy is returned when a quiz is started while another is active.
	ErrSessionBusy = errors.New("another quiz is already in progress")
	// ErrStaleCallback indicates a button press for a question the session has moved past.
	ErrStaleCallback = errors.New("stale callback")
	// ErrForeignSession indicates the submitting identity does not own the session.
	ErrForeignSession = errors.New("callback from a different user")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates an out-of-range question index; a contract
	// violation, fatal for the request.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrDeliveryTimeout is returned for queued messages that aged out unsent.
	ErrDeliveryTimeout = errors.New("delivery timeout")
	// ErrSessionReset is returned for pending deliveries dropped by a forced reset.
	ErrSessionReset = errors.New("session reset")
	// ErrStoreUnavailable indicates the durable store kept failing after retries.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrBadCallbackToken indicates a callback payload that failed validation.
	ErrBadCallbackToken = errors.New("malformed callback token")
)
