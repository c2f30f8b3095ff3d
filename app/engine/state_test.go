package engine

import (
	"context"
	"testing"
	"time"

	"feedsync/app/database"
	"feedsync/app/feed"
)

func setupUserEntry(t *testing.T, db *database.DB, userID string) string {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	createFeed(t, db, "feed-1", "https://example.com/feed")
	result, err := NewProcessor(db).ProcessEntries(ctx, "feed-1", now, []feed.Item{
		{GUID: "guid-1", Title: "Item"},
	})
	if err != nil {
		t.Fatal(err)
	}
	entryID := result.Results[0].EntryID

	if _, err := database.NewUserEntryRepository(db).InsertUserEntryIfAbsent(ctx, userID, entryID, now); err != nil {
		t.Fatal(err)
	}
	return entryID
}

func TestApplyMutationLastWriterWins(t *testing.T) {
	db := newTestDB(t)
	reconciler := NewStateReconciler(database.NewUserEntryRepository(db))
	ctx := context.Background()

	entryID := setupUserEntry(t, db, "user-1")

	t2 := time.UnixMilli(2000)
	state, err := reconciler.ApplyMutation(ctx, "user-1", Mutation{
		EntryID: entryID, Field: FieldRead, BoolValue: true, ChangedAt: t2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !state.Found || !state.Read {
		t.Fatalf("Expected read=true after first write, got %+v", state)
	}

	// A stale write is dropped; the response still reports the stored state.
	t1 := time.UnixMilli(1000)
	state, err = reconciler.ApplyMutation(ctx, "user-1", Mutation{
		EntryID: entryID, Field: FieldRead, BoolValue: false, ChangedAt: t1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !state.Read {
		t.Error("Expected stale mutation to be dropped")
	}

	// A tie applies.
	state, err = reconciler.ApplyMutation(ctx, "user-1", Mutation{
		EntryID: entryID, Field: FieldRead, BoolValue: false, ChangedAt: t2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if state.Read {
		t.Error("Expected tie to apply the incoming mutation")
	}

	t3 := time.UnixMilli(3000)
	state, err = reconciler.ApplyMutation(ctx, "user-1", Mutation{
		EntryID: entryID, Field: FieldRead, BoolValue: true, ChangedAt: t3,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !state.Read {
		t.Error("Expected newer mutation to apply")
	}
}

func TestApplyMutationUnknownEntry(t *testing.T) {
	db := newTestDB(t)
	reconciler := NewStateReconciler(database.NewUserEntryRepository(db))
	ctx := context.Background()

	// Mutating an entry the user does not hold is not an error and never
	// creates a row.
	state, err := reconciler.ApplyMutation(ctx, "user-1", Mutation{
		EntryID: "ghost", Field: FieldRead, BoolValue: true, ChangedAt: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if state.Found {
		t.Error("Expected found=false for unknown entry")
	}

	ue, err := database.NewUserEntryRepository(db).GetUserEntry(ctx, "user-1", "ghost")
	if err != nil {
		t.Fatal(err)
	}
	if ue != nil {
		t.Error("Expected no row to be created for unknown entry")
	}
}

func TestApplyMutationScore(t *testing.T) {
	db := newTestDB(t)
	reconciler := NewStateReconciler(database.NewUserEntryRepository(db))
	ctx := context.Background()

	entryID := setupUserEntry(t, db, "user-1")

	score := 7
	state, err := reconciler.ApplyMutation(ctx, "user-1", Mutation{
		EntryID: entryID, Field: FieldScore, Score: &score, ChangedAt: time.UnixMilli(1000),
	})
	if err != nil {
		t.Fatal(err)
	}
	if state.Score == nil || *state.Score != 7 {
		t.Errorf("Expected explicit score 7, got %v", state.Score)
	}

	// Clearing the explicit score falls back to the implicit one.
	state, err = reconciler.ApplyMutation(ctx, "user-1", Mutation{
		EntryID: entryID, Field: FieldScore, Score: nil, ChangedAt: time.UnixMilli(2000),
	})
	if err != nil {
		t.Fatal(err)
	}
	if state.Score != nil {
		t.Errorf("Expected score cleared, got %v", state.Score)
	}
	if state.ImplicitScore != 0 {
		t.Errorf("Expected implicit score 0 for fresh entry, got %d", state.ImplicitScore)
	}
}

func TestApplyBatchIndependentFields(t *testing.T) {
	db := newTestDB(t)
	reconciler := NewStateReconciler(database.NewUserEntryRepository(db))
	ctx := context.Background()

	entryID := setupUserEntry(t, db, "user-1")

	states, err := reconciler.ApplyBatch(ctx, "user-1", []Mutation{
		{EntryID: entryID, Field: FieldRead, BoolValue: true, ChangedAt: time.UnixMilli(5000)},
		// The starred timestamp is older than the read one, but fields
		// carry independent clocks, so it still applies.
		{EntryID: entryID, Field: FieldStarred, BoolValue: true, ChangedAt: time.UnixMilli(1000)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(states) != 2 {
		t.Fatalf("Expected 2 states, got %d", len(states))
	}

	final := states[1]
	if !final.Read || !final.Starred {
		t.Errorf("Expected both fields set, got %+v", final)
	}
	if final.ImplicitScore != 1 {
		t.Errorf("Expected implicit score 1 for starred entry, got %d", final.ImplicitScore)
	}
}

func TestImplicitScore(t *testing.T) {
	cases := []struct {
		read, starred bool
		want          int
	}{
		{false, false, 0},
		{true, false, -1},
		{false, true, 1},
		{true, true, 1}, // starred dominates
	}

	for _, c := range cases {
		if got := ImplicitScore(c.read, c.starred); got != c.want {
			t.Errorf("ImplicitScore(%t, %t) = %d, want %d", c.read, c.starred, got, c.want)
		}
	}
}
