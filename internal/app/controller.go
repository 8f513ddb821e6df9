package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"quizbot-service/internal/callback"
	"quizbot-service/internal/delivery"
	"quizbot-service/internal/domain"
	quizengine "quizbot-service/internal/quiz"
	"quizbot-service/internal/session"
)

// Options tunes controller behavior. Zero values fall back to defaults.
type Options struct {
	// ResultDelay is how long a result message stays visible before it is
	// removed and the next question appears. UX pacing, not correctness.
	ResultDelay time.Duration
	// GlobalCompletionGate blocks all quizzes once any quiz is completed;
	// when false the gate applies per quiz.
	GlobalCompletionGate bool
	// RetryDelays are the waits between durable-store attempts.
	RetryDelays []time.Duration
	// Sleep is injectable for tests.
	Sleep func(time.Duration)
}

// Controller drives the per-user quiz flow: it owns the one-active-session
// invariant, feeds the quiz engine, writes through the score store, and
// schedules ordered message delivery.
type Controller struct {
	registry  *session.Registry
	queue     *delivery.Queue
	scores    ScoreStore
	quizzes   QuizRepository
	messenger Messenger
	events    EventPublisher

	resultDelay time.Duration
	globalGate  bool
	retryDelays []time.Duration
	sleep       func(time.Duration)
}

func NewController(registry *session.Registry, queue *delivery.Queue, scores ScoreStore, quizzes QuizRepository, messenger Messenger, events EventPublisher, opts Options) *Controller {
	c := &Controller{
		registry:    registry,
		queue:       queue,
		scores:      scores,
		quizzes:     quizzes,
		messenger:   messenger,
		events:      events,
		resultDelay: opts.ResultDelay,
		globalGate:  opts.GlobalCompletionGate,
		retryDelays: opts.RetryDelays,
		sleep:       opts.Sleep,
	}
	if c.resultDelay == 0 {
		c.resultDelay = 2 * time.Second
	}
	if c.retryDelays == nil {
		c.retryDelays = []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}
	}
	if c.sleep == nil {
		c.sleep = time.Sleep
	}
	return c
}

// BeginQuiz starts a quiz for the user. Returns ErrAlreadyCompleted when the
// completion gate applies, ErrSessionBusy when a quiz is already in flight,
// ErrQuizNotFound for unknown content.
func (c *Controller) BeginQuiz(ctx context.Context, userID, chatID int64, quizID string) error {
	quiz, err := c.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return err
	}

	gateQuiz := quizID
	if c.globalGate {
		gateQuiz = ""
	}
	var completed bool
	err = c.withRetry(ctx, "check completion", func() error {
		var err error
		completed, err = c.scores.HasCompleted(ctx, userID, gateQuiz)
		return err
	})
	if err != nil {
		return err
	}
	if completed {
		return domain.ErrAlreadyCompleted
	}

	first, err := quizengine.Start(quiz)
	if err != nil {
		return err
	}

	s := c.registry.GetOrCreate(userID)
	s.Lock()
	if s.State != session.Idle {
		s.Unlock()
		return domain.ErrSessionBusy
	}
	s.Begin(quizID, chatID)
	s.Unlock()

	c.publish(domain.Event{
		Type:           "quiz_progress",
		UserID:         userID,
		QuizID:         quizID,
		QuestionIndex:  first,
		TotalQuestions: len(quiz.Questions),
	})
	c.watch(userID, chatID, c.queue.Enqueue(userID, c.questionTask(userID, chatID, quiz, first)))
	return nil
}

// SubmitAnswer handles a decoded answer button press from senderID. Stale and
// foreign callbacks are rejected without touching session or store state.
func (c *Controller) SubmitAnswer(ctx context.Context, senderID int64, displayName string, token callback.Token) error {
	if token.UserID != senderID {
		return domain.ErrForeignSession
	}

	s := c.registry.GetOrCreate(senderID)
	s.Lock()
	if s.State != session.AwaitingAnswer || s.ActiveQuizID != token.QuizID || s.QuestionIndex != token.QuestionIndex {
		s.Unlock()
		return domain.ErrStaleCallback
	}
	// Transitioning shuts the door on duplicate taps for this question while
	// the result is being recorded and delivered.
	s.State = session.Transitioning
	chatID := s.ChatID
	promptID := s.LastMessageID
	s.Unlock()

	quiz, err := c.quizzes.GetQuiz(ctx, token.QuizID)
	if err != nil {
		c.forceReset(ctx, senderID, chatID)
		return err
	}

	chosen, err := quizengine.Option(quiz, token.QuestionIndex, token.OptionIndex)
	if err != nil {
		c.forceReset(ctx, senderID, chatID)
		return err
	}
	outcome, err := quizengine.Evaluate(quiz, token.QuestionIndex, chosen)
	if err != nil {
		c.forceReset(ctx, senderID, chatID)
		return err
	}

	// The durable write happens before the result delivery is enqueued: a
	// crash in between can hide a recorded answer but never confirm an
	// unrecorded one.
	err = c.withRetry(ctx, "record answer", func() error {
		return c.scores.RecordAnswer(ctx, senderID, quiz.ID, outcome.Correct, displayName, len(quiz.Questions))
	})
	if err != nil {
		c.forceReset(ctx, senderID, chatID)
		return err
	}

	c.publish(domain.Event{
		Type:           "answer_result",
		UserID:         senderID,
		QuizID:         quiz.ID,
		QuestionIndex:  token.QuestionIndex,
		Correct:        outcome.Correct,
		TotalQuestions: len(quiz.Questions),
	})

	resultText := formatResult(outcome.Correct, outcome.CorrectAnswer, outcome.Link)
	c.watch(senderID, chatID, c.queue.Enqueue(senderID, c.resultTask(chatID, promptID, resultText)))

	if outcome.IsLast {
		return c.finishQuiz(ctx, senderID, chatID, quiz)
	}

	s.Lock()
	s.State = session.AwaitingAnswer
	s.QuestionIndex = outcome.NextIndex
	s.Unlock()

	c.publish(domain.Event{
		Type:           "quiz_progress",
		UserID:         senderID,
		QuizID:         quiz.ID,
		QuestionIndex:  outcome.NextIndex,
		TotalQuestions: len(quiz.Questions),
	})
	c.watch(senderID, chatID, c.queue.Enqueue(senderID, c.questionTask(senderID, chatID, quiz, outcome.NextIndex)))
	return nil
}

func (c *Controller) finishQuiz(ctx context.Context, userID, chatID int64, quiz domain.Quiz) error {
	err := c.withRetry(ctx, "mark completed", func() error {
		return c.scores.MarkCompleted(ctx, userID, quiz.ID)
	})
	if err != nil {
		c.forceReset(ctx, userID, chatID)
		return err
	}

	var record *domain.UserQuizRecord
	err = c.withRetry(ctx, "load record", func() error {
		var err error
		record, err = c.scores.GetRecord(ctx, userID, quiz.ID)
		return err
	})
	if err != nil {
		c.forceReset(ctx, userID, chatID)
		return err
	}
	score := 0
	if record != nil {
		score = record.Score
	}

	summary := formatSummary(quiz, score)
	c.watch(userID, chatID, c.queue.Enqueue(userID, func() error {
		_, err := c.messenger.SendMessage(context.Background(), chatID, summary, nil)
		return err
	}))

	c.registry.Clear(userID)
	c.publish(domain.Event{
		Type:           "quiz_completed",
		UserID:         userID,
		QuizID:         quiz.ID,
		Score:          score,
		TotalQuestions: len(quiz.Questions),
	})
	return nil
}

// QuizOverview pairs catalog content with the requesting user's progress.
type QuizOverview struct {
	ID            string
	Title         string
	QuestionCount int
	Completed     bool
}

// ListQuizzes returns the catalog with per-quiz completion marks.
func (c *Controller) ListQuizzes(ctx context.Context, userID int64) ([]QuizOverview, error) {
	quizzes, err := c.quizzes.ListQuizzes(ctx)
	if err != nil {
		return nil, err
	}
	overviews := make([]QuizOverview, 0, len(quizzes))
	for _, quiz := range quizzes {
		done, err := c.scores.HasCompleted(ctx, userID, quiz.ID)
		if err != nil {
			return nil, err
		}
		overviews = append(overviews, QuizOverview{
			ID:            quiz.ID,
			Title:         quiz.Title,
			QuestionCount: len(quiz.Questions),
			Completed:     done,
		})
	}
	return overviews, nil
}

// Leaderboard returns the top entries as formatted text.
func (c *Controller) Leaderboard(ctx context.Context, limit int) (string, error) {
	entries, err := c.scores.Leaderboard(ctx, limit)
	if err != nil {
		return "", err
	}
	return formatLeaderboard(entries), nil
}

// ResetUserProgress clears durable records and in-memory session/queue state
// for the user. Operator use only; identity gating happens at the transport.
func (c *Controller) ResetUserProgress(ctx context.Context, userID int64) error {
	err := c.withRetry(ctx, "reset user", func() error {
		return c.scores.ResetUser(ctx, userID)
	})
	if err != nil {
		return err
	}
	c.queue.Clear(userID)
	c.registry.Clear(userID)
	return nil
}

// questionTask sends the prompt for one question and remembers its message id
// so the next transition can delete it.
func (c *Controller) questionTask(userID, chatID int64, quiz domain.Quiz, index int) delivery.Task {
	return func() error {
		ctx := context.Background()
		messageID, err := c.messenger.SendMessage(ctx, chatID, formatQuestion(quiz, index), questionButtons(quiz, index, userID))
		if err != nil {
			return err
		}
		s := c.registry.GetOrCreate(userID)
		s.Lock()
		if s.ActiveQuizID == quiz.ID {
			s.LastMessageID = messageID
		}
		s.Unlock()
		return nil
	}
}

// resultTask removes the answered prompt, shows the result, and removes the
// result again after the display delay. Delete failures are cosmetic and only
// logged; the send failure is the content of the task and surfaces.
func (c *Controller) resultTask(chatID int64, promptID int, text string) delivery.Task {
	return func() error {
		ctx := context.Background()
		if promptID != 0 {
			if err := c.messenger.DeleteMessage(ctx, chatID, promptID); err != nil {
				log.Printf("delete prompt %d for chat %d: %v", promptID, chatID, err)
			}
		}
		messageID, err := c.messenger.SendMessage(ctx, chatID, text, nil)
		if err != nil {
			return err
		}
		c.sleep(c.resultDelay)
		if err := c.messenger.DeleteMessage(ctx, chatID, messageID); err != nil {
			log.Printf("delete result %d for chat %d: %v", messageID, chatID, err)
		}
		return nil
	}
}

// watch converts a delivery failure into a forced session reset so the user
// is never left with buttons pointing at a dead session.
func (c *Controller) watch(userID, chatID int64, done <-chan error) {
	go func() {
		err := <-done
		if err == nil || errors.Is(err, domain.ErrSessionReset) {
			return
		}
		log.Printf("delivery failed for user %d: %v", userID, err)
		c.forceReset(context.Background(), userID, chatID)
	}()
}

func (c *Controller) forceReset(ctx context.Context, userID, chatID int64) {
	c.registry.Clear(userID)
	c.queue.Clear(userID)
	// Best effort, bypassing the queue the reset just emptied.
	if _, err := c.messenger.SendMessage(ctx, chatID, failureNotice, nil); err != nil {
		log.Printf("failure notice for chat %d: %v", chatID, err)
	}
}

// withRetry runs op with capped backoff. After exhaustion the error surfaces
// as ErrStoreUnavailable so the user sees a retry-later message rather than
// proceeding with an unrecorded answer.
func (c *Controller) withRetry(ctx context.Context, name string, op func() error) error {
	err := op()
	if err == nil {
		return nil
	}
	for _, delay := range c.retryDelays {
		log.Printf("%s failed, retrying in %s: %v", name, delay, err)
		c.sleep(delay)
		if ctx.Err() != nil {
			break
		}
		if err = op(); err == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrStoreUnavailable, name, err)
}

func (c *Controller) publish(event domain.Event) {
	if c.events != nil {
		c.events.Publish(event)
	}
}
