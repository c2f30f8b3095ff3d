package engine

import (
	"context"
	"testing"
	"time"

	"feedsync/app/database"
	"feedsync/app/feed"
)

func newVisibilityReconciler(db *database.DB) *VisibilityReconciler {
	return NewVisibilityReconciler(
		database.NewFeedRepository(db),
		database.NewEntryRepository(db),
		database.NewSubscriptionRepository(db),
		database.NewUserEntryRepository(db),
	)
}

func TestCreateUserEntriesForFeed(t *testing.T) {
	db := newTestDB(t)
	processor := NewProcessor(db)
	visibility := newVisibilityReconciler(db)
	ctx := context.Background()
	fetchedAt := time.Now().UTC()

	createFeed(t, db, "feed-1", "https://example.com/feed")
	createSubscription(t, db, "sub-1", "user-1", "feed-1")
	createSubscription(t, db, "sub-2", "user-2", "feed-1")

	result, err := processor.ProcessEntries(ctx, "feed-1", fetchedAt, []feed.Item{
		{GUID: "guid-1", Title: "One"},
		{GUID: "guid-2", Title: "Two"},
	})
	if err != nil {
		t.Fatal(err)
	}

	entryIDs := []string{result.Results[0].EntryID, result.Results[1].EntryID}

	inserted, err := visibility.CreateUserEntriesForFeed(ctx, "feed-1", entryIDs)
	if err != nil {
		t.Fatal(err)
	}
	if inserted != 4 {
		t.Errorf("Expected 4 user entries (2 users x 2 entries), got %d", inserted)
	}

	// Idempotent: running again inserts nothing.
	inserted, err = visibility.CreateUserEntriesForFeed(ctx, "feed-1", entryIDs)
	if err != nil {
		t.Fatal(err)
	}
	if inserted != 0 {
		t.Errorf("Expected repeat run to insert nothing, got %d", inserted)
	}
}

func TestCreateUserEntriesForSubscriberNullWatermark(t *testing.T) {
	db := newTestDB(t)
	visibility := newVisibilityReconciler(db)
	ctx := context.Background()

	createFeed(t, db, "feed-1", "https://example.com/feed")

	// A feed that never resolved entries yields nothing.
	inserted, err := visibility.CreateUserEntriesForSubscriber(ctx, "user-1", "feed-1")
	if err != nil {
		t.Fatal(err)
	}
	if inserted != 0 {
		t.Errorf("Expected 0 entries for feed without watermark, got %d", inserted)
	}
}

func TestCreateUserEntriesForSubscriberUsesWatermark(t *testing.T) {
	db := newTestDB(t)
	processor := NewProcessor(db)
	visibility := newVisibilityReconciler(db)
	userEntryRepo := database.NewUserEntryRepository(db)
	ctx := context.Background()

	createFeed(t, db, "feed-1", "https://example.com/feed")

	// First fetch carries A and B; the second carries B and C. A aged out
	// upstream, so a new subscriber only sees B and C.
	t1 := time.Now().UTC()
	if _, err := processor.ProcessEntries(ctx, "feed-1", t1, []feed.Item{
		{GUID: "A", Title: "A"},
		{GUID: "B", Title: "B"},
	}); err != nil {
		t.Fatal(err)
	}

	t2 := t1.Add(time.Hour)
	if _, err := processor.ProcessEntries(ctx, "feed-1", t2, []feed.Item{
		{GUID: "B", Title: "B"},
		{GUID: "C", Title: "C"},
	}); err != nil {
		t.Fatal(err)
	}

	inserted, err := visibility.CreateUserEntriesForSubscriber(ctx, "user-1", "feed-1")
	if err != nil {
		t.Fatal(err)
	}
	if inserted != 2 {
		t.Fatalf("Expected 2 visible entries, got %d", inserted)
	}

	entryRepo := database.NewEntryRepository(db)
	entryA, err := entryRepo.GetEntryByGUID(ctx, "feed-1", "A")
	if err != nil {
		t.Fatal(err)
	}
	ue, err := userEntryRepo.GetUserEntry(ctx, "user-1", entryA.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ue != nil {
		t.Error("Expected aged-out entry A to be invisible to the new subscriber")
	}
}

func TestVisibilityAfterMigrationDedupesByGUID(t *testing.T) {
	db := newTestDB(t)
	processor := NewProcessor(db)
	migrator := NewMigrator(db)
	visibility := newVisibilityReconciler(db)
	userEntryRepo := database.NewUserEntryRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	createFeed(t, db, "feed-old", "https://old.example.com/feed")
	createFeed(t, db, "feed-new", "https://new.example.com/feed")
	createSubscription(t, db, "sub-1", "user-1", "feed-old")

	// Both feeds carry the shared item; the target also has a new one.
	if _, err := processor.ProcessEntries(ctx, "feed-old", now, []feed.Item{
		{GUID: "shared", Title: "Shared"},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := processor.ProcessEntries(ctx, "feed-new", now, []feed.Item{
		{GUID: "shared", Title: "Shared"},
		{GUID: "fresh", Title: "Fresh"},
	}); err != nil {
		t.Fatal(err)
	}

	// The user read the shared item via the old feed.
	if _, err := visibility.CreateUserEntriesForSubscriber(ctx, "user-1", "feed-old"); err != nil {
		t.Fatal(err)
	}

	if err := migrator.Migrate(ctx, "feed-old", "https://new.example.com/feed", now); err != nil {
		t.Fatal(err)
	}

	inserted, err := visibility.CreateUserEntriesForSubscriber(ctx, "user-1", "feed-new")
	if err != nil {
		t.Fatal(err)
	}
	if inserted != 1 {
		t.Errorf("Expected only the fresh entry to be added, got %d inserts", inserted)
	}

	// The target feed's copy of the shared item stays hidden.
	entryRepo := database.NewEntryRepository(db)
	sharedNew, err := entryRepo.GetEntryByGUID(ctx, "feed-new", "shared")
	if err != nil {
		t.Fatal(err)
	}
	ue, err := userEntryRepo.GetUserEntry(ctx, "user-1", sharedNew.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ue != nil {
		t.Error("Expected shared GUID already held via the old feed to be skipped")
	}
}
