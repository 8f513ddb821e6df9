package app_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"quizbot-service/internal/app"
	"quizbot-service/internal/callback"
	"quizbot-service/internal/delivery"
	"quizbot-service/internal/domain"
	"quizbot-service/internal/infra/memory"
	"quizbot-service/internal/session"
)

type sentMessage struct {
	chatID  int64
	text    string
	buttons [][]app.Button
	id      int
}

type fakeMessenger struct {
	mu          sync.Mutex
	sent        []sentMessage
	deleted     []int
	nextID      int
	failPattern string
}

func (m *fakeMessenger) SendMessage(_ context.Context, chatID int64, text string, buttons [][]app.Button) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPattern != "" && strings.Contains(text, m.failPattern) {
		return 0, errors.New("transport down")
	}
	m.nextID++
	m.sent = append(m.sent, sentMessage{chatID: chatID, text: text, buttons: buttons, id: m.nextID})
	return m.nextID, nil
}

func (m *fakeMessenger) DeleteMessage(_ context.Context, _ int64, messageID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, messageID)
	return nil
}

func (m *fakeMessenger) countSent(substr string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.sent {
		if strings.Contains(msg.text, substr) {
			n++
		}
	}
	return n
}

func (m *fakeMessenger) lastSent(substr string) (sentMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if strings.Contains(m.sent[i].text, substr) {
			return m.sent[i], true
		}
	}
	return sentMessage{}, false
}

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *fakePublisher) Publish(event domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, event := range p.events {
		out = append(out, event.Type)
	}
	return out
}

type failingStore struct {
	app.ScoreStore
}

func (failingStore) RecordAnswer(context.Context, int64, string, bool, string, int) error {
	return errors.New("connection refused")
}

func testQuizzes() app.QuizRepository {
	loader := memory.NewStaticQuizLoader(map[string]domain.Quiz{
		"wonders": {
			ID:    "wonders",
			Title: "World Wonders",
			Questions: []domain.Question{
				{
					Prompt:  "Which is an ancient wonder?",
					Options: []string{"Great Pyramid of Giza", "Eiffel Tower"},
					Correct: "Great Pyramid of Giza",
				},
				{
					Prompt:  "Where is Machu Picchu?",
					Options: []string{"Chile", "Peru"},
					Correct: "Peru",
				},
			},
		},
		"capitals": {
			ID:    "capitals",
			Title: "European Capitals",
			Questions: []domain.Question{
				{
					Prompt:  "Capital of Portugal?",
					Options: []string{"Porto", "Lisbon"},
					Correct: "Lisbon",
				},
			},
		},
	})
	return memory.NewQuizRepository(loader, 5*time.Minute)
}

type fixture struct {
	controller *app.Controller
	messenger  *fakeMessenger
	publisher  *fakePublisher
	scores     app.ScoreStore
	registry   *session.Registry
}

func newFixture(scores app.ScoreStore, opts app.Options) *fixture {
	if scores == nil {
		scores = memory.NewScoreStore()
	}
	messenger := &fakeMessenger{}
	publisher := &fakePublisher{}
	registry := session.NewRegistry()
	if opts.ResultDelay == 0 {
		opts.ResultDelay = time.Millisecond
	}
	if opts.Sleep == nil {
		opts.Sleep = func(time.Duration) {}
	}
	controller := app.NewController(registry, delivery.NewQueue(time.Minute), scores, testQuizzes(), messenger, publisher, opts)
	return &fixture{
		controller: controller,
		messenger:  messenger,
		publisher:  publisher,
		scores:     scores,
		registry:   registry,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func answerToken(quizID string, questionIndex, optionIndex int, userID int64) callback.Token {
	return callback.Token{QuizID: quizID, QuestionIndex: questionIndex, OptionIndex: optionIndex, UserID: userID}
}

func TestBeginQuizDeliversFirstPrompt(t *testing.T) {
	f := newFixture(nil, app.Options{})
	ctx := context.Background()

	if err := f.controller.BeginQuiz(ctx, 1, 1, "wonders"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	waitFor(t, "first prompt", func() bool { return f.messenger.countSent("question 1/2") == 1 })

	prompt, _ := f.messenger.lastSent("question 1/2")
	if len(prompt.buttons) != 2 {
		t.Fatalf("expected one button row per option, got %d", len(prompt.buttons))
	}
	token, err := callback.Decode(prompt.buttons[0][0].Data)
	if err != nil {
		t.Fatalf("button token must decode: %v", err)
	}
	if token.QuizID != "wonders" || token.QuestionIndex != 0 || token.UserID != 1 {
		t.Fatalf("unexpected token %+v", token)
	}
	if !f.registry.IsActive(1) {
		t.Fatalf("expected active session")
	}
}

func TestBeginQuizUnknownQuiz(t *testing.T) {
	f := newFixture(nil, app.Options{})
	if err := f.controller.BeginQuiz(context.Background(), 1, 1, "nope"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

func TestConcurrentBeginOnlyOneWins(t *testing.T) {
	f := newFixture(nil, app.Options{})
	ctx := context.Background()

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.controller.BeginQuiz(ctx, 1, 1, "wonders")
		}()
	}
	wg.Wait()
	close(errs)

	var accepted, busy int
	for err := range errs {
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, domain.ErrSessionBusy):
			busy++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if accepted != 1 || busy != 1 {
		t.Fatalf("expected exactly one accepted start, got accepted=%d busy=%d", accepted, busy)
	}

	waitFor(t, "prompt delivery", func() bool { return f.messenger.countSent("question 1/2") >= 1 })
	time.Sleep(50 * time.Millisecond)
	if n := f.messenger.countSent("question 1/2"); n != 1 {
		t.Fatalf("expected exactly one question-0 prompt, got %d", n)
	}
}

func TestFullQuizFlow(t *testing.T) {
	f := newFixture(nil, app.Options{})
	ctx := context.Background()

	if err := f.controller.BeginQuiz(ctx, 1, 1, "wonders"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	waitFor(t, "prompt 0", func() bool { return f.messenger.countSent("question 1/2") == 1 })
	prompt0, _ := f.messenger.lastSent("question 1/2")
	waitFor(t, "prompt id recorded", func() bool {
		s := f.registry.GetOrCreate(1)
		s.Lock()
		defer s.Unlock()
		return s.LastMessageID == prompt0.id
	})

	// Q0 answered correctly.
	if err := f.controller.SubmitAnswer(ctx, 1, "Alice", answerToken("wonders", 0, 0, 1)); err != nil {
		t.Fatalf("submit q0: %v", err)
	}
	waitFor(t, "correct result", func() bool { return f.messenger.countSent("✅ Correct!") == 1 })
	waitFor(t, "prompt 1", func() bool { return f.messenger.countSent("question 2/2") == 1 })

	// Q1 answered incorrectly ("Chile").
	if err := f.controller.SubmitAnswer(ctx, 1, "Alice", answerToken("wonders", 1, 0, 1)); err != nil {
		t.Fatalf("submit q1: %v", err)
	}
	waitFor(t, "wrong result", func() bool { return f.messenger.countSent("❌ Wrong!") == 1 })
	waitFor(t, "summary", func() bool { return f.messenger.countSent("finished!") == 1 })

	summary, _ := f.messenger.lastSent("finished!")
	if !strings.Contains(summary.text, "1/2 (50%)") {
		t.Fatalf("expected 50%% summary, got %q", summary.text)
	}

	record, err := f.scores.GetRecord(ctx, 1, "wonders")
	if err != nil || record == nil {
		t.Fatalf("get record: %v %v", record, err)
	}
	if record.Score != 1 || !record.Completed {
		t.Fatalf("expected score=1 completed=true, got %+v", record)
	}

	entries, err := f.scores.Leaderboard(ctx, 10)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(entries) != 1 || entries[0].TotalScore != 1 || entries[0].QuizzesCompleted != 1 {
		t.Fatalf("expected totalScore=1 quizzesCompleted=1, got %+v", entries)
	}

	if f.registry.IsActive(1) {
		t.Fatalf("expected idle session after completion")
	}

	// The answered prompt was removed before the result appeared.
	f.messenger.mu.Lock()
	deleted := append([]int(nil), f.messenger.deleted...)
	f.messenger.mu.Unlock()
	found := false
	for _, id := range deleted {
		if id == prompt0.id {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected prompt %d to be deleted, deleted=%v", prompt0.id, deleted)
	}
}

func TestStaleCallbackRejected(t *testing.T) {
	f := newFixture(nil, app.Options{})
	ctx := context.Background()

	if err := f.controller.BeginQuiz(ctx, 1, 1, "wonders"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	waitFor(t, "prompt 0", func() bool { return f.messenger.countSent("question 1/2") == 1 })

	if err := f.controller.SubmitAnswer(ctx, 1, "Alice", answerToken("wonders", 0, 0, 1)); err != nil {
		t.Fatalf("submit q0: %v", err)
	}

	// Replay of the question-0 button after the session advanced.
	err := f.controller.SubmitAnswer(ctx, 1, "Alice", answerToken("wonders", 0, 0, 1))
	if !errors.Is(err, domain.ErrStaleCallback) {
		t.Fatalf("expected ErrStaleCallback, got %v", err)
	}

	record, _ := f.scores.GetRecord(ctx, 1, "wonders")
	if record == nil || record.Score != 1 {
		t.Fatalf("replay must not double-count, got %+v", record)
	}
}

func TestForeignSessionRejected(t *testing.T) {
	f := newFixture(nil, app.Options{})
	ctx := context.Background()

	if err := f.controller.BeginQuiz(ctx, 1, 1, "wonders"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	err := f.controller.SubmitAnswer(ctx, 2, "Mallory", answerToken("wonders", 0, 0, 1))
	if !errors.Is(err, domain.ErrForeignSession) {
		t.Fatalf("expected ErrForeignSession, got %v", err)
	}
}

func TestAlreadyCompletedGate(t *testing.T) {
	scores := memory.NewScoreStore()
	f := newFixture(scores, app.Options{})
	ctx := context.Background()

	if err := scores.MarkCompleted(ctx, 1, "wonders"); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	done, err := scores.HasCompleted(ctx, 1, "wonders")
	if err != nil || !done {
		t.Fatalf("expected hasCompleted true, got %v %v", done, err)
	}

	if err := f.controller.BeginQuiz(ctx, 1, 1, "wonders"); !errors.Is(err, domain.ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}
	if f.registry.IsActive(1) {
		t.Fatalf("rejected start must not create a session")
	}

	// Another quiz is still open under per-quiz gating.
	if err := f.controller.BeginQuiz(ctx, 1, 1, "capitals"); err != nil {
		t.Fatalf("per-quiz gate must not block other quizzes: %v", err)
	}
}

func TestGlobalCompletionGate(t *testing.T) {
	scores := memory.NewScoreStore()
	f := newFixture(scores, app.Options{GlobalCompletionGate: true})
	ctx := context.Background()

	if err := scores.MarkCompleted(ctx, 1, "wonders"); err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	if err := f.controller.BeginQuiz(ctx, 1, 1, "capitals"); !errors.Is(err, domain.ErrAlreadyCompleted) {
		t.Fatalf("expected global gate to block, got %v", err)
	}
}

func TestStoreFailureForcesReset(t *testing.T) {
	f := newFixture(failingStore{memory.NewScoreStore()}, app.Options{})
	ctx := context.Background()

	if err := f.controller.BeginQuiz(ctx, 1, 1, "wonders"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	waitFor(t, "prompt 0", func() bool { return f.messenger.countSent("question 1/2") == 1 })

	err := f.controller.SubmitAnswer(ctx, 1, "Alice", answerToken("wonders", 0, 0, 1))
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}

	waitFor(t, "failure notice", func() bool { return f.messenger.countSent("Something went wrong") == 1 })
	if f.registry.IsActive(1) {
		t.Fatalf("expected forced reset to idle")
	}
}

func TestSendFailureForcesReset(t *testing.T) {
	f := newFixture(nil, app.Options{})
	f.messenger.failPattern = "question"
	ctx := context.Background()

	if err := f.controller.BeginQuiz(ctx, 1, 1, "wonders"); err != nil {
		t.Fatalf("begin: %v", err)
	}

	waitFor(t, "failure notice", func() bool { return f.messenger.countSent("Something went wrong") == 1 })
	waitFor(t, "idle session", func() bool { return !f.registry.IsActive(1) })
}

func TestEventsPublished(t *testing.T) {
	f := newFixture(nil, app.Options{})
	ctx := context.Background()

	if err := f.controller.BeginQuiz(ctx, 1, 1, "capitals"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := f.controller.SubmitAnswer(ctx, 1, "Alice", answerToken("capitals", 0, 1, 1)); err != nil {
		t.Fatalf("submit: %v", err)
	}

	waitFor(t, "completion event", func() bool {
		for _, typ := range f.publisher.types() {
			if typ == "quiz_completed" {
				return true
			}
		}
		return false
	})

	types := f.publisher.types()
	var progress, result bool
	for _, typ := range types {
		switch typ {
		case "quiz_progress":
			progress = true
		case "answer_result":
			result = true
		}
	}
	if !progress || !result {
		t.Fatalf("expected progress and result events, got %v", types)
	}
}

func TestResetUserProgress(t *testing.T) {
	f := newFixture(nil, app.Options{})
	ctx := context.Background()

	if err := f.controller.BeginQuiz(ctx, 1, 1, "wonders"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := f.controller.SubmitAnswer(ctx, 1, "Alice", answerToken("wonders", 0, 0, 1)); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := f.controller.ResetUserProgress(ctx, 1); err != nil {
		t.Fatalf("reset: %v", err)
	}
	record, _ := f.scores.GetRecord(ctx, 1, "wonders")
	if record != nil {
		t.Fatalf("expected record removed, got %+v", record)
	}
	if f.registry.IsActive(1) {
		t.Fatalf("expected idle session after reset")
	}

	// A fresh start succeeds cleanly after the purge.
	if err := f.controller.BeginQuiz(ctx, 1, 1, "wonders"); err != nil {
		t.Fatalf("begin after reset: %v", err)
	}
}

func TestListQuizzesMarksCompletion(t *testing.T) {
	scores := memory.NewScoreStore()
	f := newFixture(scores, app.Options{})
	ctx := context.Background()

	if err := scores.MarkCompleted(ctx, 1, "capitals"); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	overviews, err := f.controller.ListQuizzes(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(overviews) != 2 {
		t.Fatalf("expected 2 quizzes, got %d", len(overviews))
	}
	for _, overview := range overviews {
		want := overview.ID == "capitals"
		if overview.Completed != want {
			t.Fatalf("completion mark wrong for %s: %+v", overview.ID, overview)
		}
	}
}
