package memory

import (
	"context"
	"testing"
)

func TestRecordAnswerUpsert(t *testing.T) {
	ctx := context.Background()
	store := NewScoreStore()

	if err := store.RecordAnswer(ctx, 1, "wonders", true, "Alice", 2); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := store.RecordAnswer(ctx, 1, "wonders", false, "Alice the Great", 2); err != nil {
		t.Fatalf("record: %v", err)
	}

	record, err := store.GetRecord(ctx, 1, "wonders")
	if err != nil || record == nil {
		t.Fatalf("get record: %v %v", record, err)
	}
	if record.Score != 1 {
		t.Fatalf("wrong answers must not change score, got %d", record.Score)
	}
	if record.DisplayName != "Alice the Great" {
		t.Fatalf("display name must refresh on every answer, got %q", record.DisplayName)
	}
	if record.TotalQuestions != 2 {
		t.Fatalf("expected totalQuestions snapshot, got %d", record.TotalQuestions)
	}
}

func TestMarkCompletedIsMonotonic(t *testing.T) {
	ctx := context.Background()
	store := NewScoreStore()

	// Finishing with zero correct answers still produces a completed record.
	if err := store.MarkCompleted(ctx, 1, "wonders"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := store.RecordAnswer(ctx, 1, "wonders", true, "Alice", 2); err != nil {
		t.Fatalf("record: %v", err)
	}

	record, _ := store.GetRecord(ctx, 1, "wonders")
	if record == nil || !record.Completed {
		t.Fatalf("completed must not revert, got %+v", record)
	}
}

func TestHasCompletedScopes(t *testing.T) {
	ctx := context.Background()
	store := NewScoreStore()

	_ = store.MarkCompleted(ctx, 1, "wonders")

	if done, _ := store.HasCompleted(ctx, 1, "wonders"); !done {
		t.Fatalf("expected per-quiz completion")
	}
	if done, _ := store.HasCompleted(ctx, 1, "capitals"); done {
		t.Fatalf("other quiz must stay open")
	}
	if done, _ := store.HasCompleted(ctx, 1, ""); !done {
		t.Fatalf("expected any-quiz completion")
	}
	if done, _ := store.HasCompleted(ctx, 2, ""); done {
		t.Fatalf("other user must stay open")
	}
}

func TestLeaderboardOrdering(t *testing.T) {
	ctx := context.Background()
	store := NewScoreStore()

	// Bob: 2 points over two quizzes, one completed.
	_ = store.RecordAnswer(ctx, 2, "wonders", true, "Bob", 2)
	_ = store.RecordAnswer(ctx, 2, "capitals", true, "Bob", 1)
	_ = store.MarkCompleted(ctx, 2, "capitals")
	// Alice: 2 points, two completions; wins the tie on completions.
	_ = store.RecordAnswer(ctx, 1, "wonders", true, "Alice", 2)
	_ = store.MarkCompleted(ctx, 1, "wonders")
	_ = store.RecordAnswer(ctx, 1, "capitals", true, "Alice", 1)
	_ = store.MarkCompleted(ctx, 1, "capitals")
	// Carol: 1 point.
	_ = store.RecordAnswer(ctx, 3, "wonders", true, "Carol", 2)

	entries, err := store.Leaderboard(ctx, 2)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected limit applied, got %d entries", len(entries))
	}
	if entries[0].UserID != 1 || entries[0].TotalScore != 2 || entries[0].QuizzesCompleted != 2 {
		t.Fatalf("expected Alice first, got %+v", entries[0])
	}
	if entries[1].UserID != 2 {
		t.Fatalf("expected Bob second, got %+v", entries[1])
	}
}

func TestResetUserRemovesAllRecords(t *testing.T) {
	ctx := context.Background()
	store := NewScoreStore()

	_ = store.RecordAnswer(ctx, 1, "wonders", true, "Alice", 2)
	_ = store.RecordAnswer(ctx, 1, "capitals", true, "Alice", 1)
	_ = store.RecordAnswer(ctx, 2, "wonders", true, "Bob", 2)

	if err := store.ResetUser(ctx, 1); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if record, _ := store.GetRecord(ctx, 1, "wonders"); record != nil {
		t.Fatalf("expected records gone, got %+v", record)
	}
	if record, _ := store.GetRecord(ctx, 2, "wonders"); record == nil {
		t.Fatalf("other users must keep their records")
	}
}
