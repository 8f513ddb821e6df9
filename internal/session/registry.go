// Package session tracks which quiz, if any, each user currently has in
// flight. It is the single source of truth for "is this user mid-quiz".
package session

import (
	"sync"
)

// State names the per-user position in the answer flow.
type State int

const (
	// Idle means no quiz is in flight.
	Idle State = iota
	// AwaitingAnswer means a question prompt is out and an answer is expected.
	AwaitingAnswer
	// Transitioning covers the window between accepting an answer and sending
	// the next prompt; submissions arriving here are duplicates by definition.
	Transitioning
)

// Session is the ephemeral per-user record. ActiveQuizID and QuestionIndex are
// set and cleared together; callers mutate only while holding the session lock.
type Session struct {
	mu sync.Mutex

	UserID        int64
	ChatID        int64
	State         State
	ActiveQuizID  string
	QuestionIndex int
	// LastMessageID identifies the previous outbound prompt so it can be
	// deleted before the next one is sent.
	LastMessageID int
}

// Lock takes the per-session lock; every state transition for a user runs
// under it, which is what makes "at most one active quiz" hold when the same
// user fires concurrent requests.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the per-session lock.
func (s *Session) Unlock() { s.mu.Unlock() }

// Begin moves an idle session into AwaitingAnswer for the given quiz.
// Callers must hold the session lock.
func (s *Session) Begin(quizID string, chatID int64) {
	s.State = AwaitingAnswer
	s.ActiveQuizID = quizID
	s.QuestionIndex = 0
	s.ChatID = chatID
	s.LastMessageID = 0
}

// Reset returns the session to idle, clearing quiz and index together.
// Callers must hold the session lock.
func (s *Session) Reset() {
	s.State = Idle
	s.ActiveQuizID = ""
	s.QuestionIndex = 0
	s.LastMessageID = 0
}

// Registry maps user identity to session state.
type Registry struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[int64]*Session)}
}

// GetOrCreate never fails; absent users lazily get an idle session.
func (r *Registry) GetOrCreate(userID int64) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[userID]; ok {
		return s
	}
	s := &Session{UserID: userID, State: Idle}
	r.sessions[userID] = s
	return s
}

// IsActive reports whether the user has a quiz in flight.
func (r *Registry) IsActive(userID int64) bool {
	r.mu.RLock()
	s, ok := r.sessions[userID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	s.Lock()
	defer s.Unlock()
	return s.State != Idle
}

// Clear resets the user's session to idle, used on completion or fatal error.
func (r *Registry) Clear(userID int64) {
	r.mu.RLock()
	s, ok := r.sessions[userID]
	r.mu.RUnlock()
	if !ok {
		return
	}
	s.Lock()
	s.Reset()
	s.Unlock()
}
