package database

import (
	"context"
	"testing"
	"time"
)

func TestGetFeedNotFound(t *testing.T) {
	db := newTestDB(t)
	repo := NewFeedRepository(db)

	feed, err := repo.GetFeed(context.Background(), "missing")
	if err != nil {
		t.Fatal(err)
	}
	if feed != nil {
		t.Error("Expected nil for missing feed")
	}
}

func TestCreateAndGetFeed(t *testing.T) {
	db := newTestDB(t)
	repo := NewFeedRepository(db)
	ctx := context.Background()

	createTestFeed(t, db, "feed-1", "https://example.com/feed")

	feed, err := repo.GetFeed(ctx, "feed-1")
	if err != nil {
		t.Fatal(err)
	}
	if feed == nil {
		t.Fatal("Expected feed to exist")
	}
	if feed.URL != "https://example.com/feed" {
		t.Errorf("Expected URL 'https://example.com/feed', got '%s'", feed.URL)
	}
	if feed.LastEntriesUpdatedAt != nil {
		t.Error("Expected nil watermark on a new feed")
	}

	byURL, err := repo.GetFeedByURL(ctx, "https://example.com/feed")
	if err != nil {
		t.Fatal(err)
	}
	if byURL == nil || byURL.ID != "feed-1" {
		t.Error("Expected lookup by URL to find feed-1")
	}
}

func TestCreateFeedDuplicateURL(t *testing.T) {
	db := newTestDB(t)
	repo := NewFeedRepository(db)
	ctx := context.Background()

	createTestFeed(t, db, "feed-1", "https://example.com/feed")

	err := repo.CreateFeed(ctx, &Feed{ID: "feed-2", URL: "https://example.com/feed"})
	if err == nil {
		t.Error("Expected unique constraint violation for duplicate URL")
	}
}

func TestListFeedsDueForRefresh(t *testing.T) {
	db := newTestDB(t)
	repo := NewFeedRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	// Never fetched: due immediately.
	createTestFeed(t, db, "feed-new", "https://example.com/new")

	// Due in the past.
	createTestFeed(t, db, "feed-due", "https://example.com/due")
	if err := repo.UpdateFetchSchedule(ctx, "feed-due", now.Add(-2*time.Hour), now.Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}

	// Not due yet.
	createTestFeed(t, db, "feed-later", "https://example.com/later")
	if err := repo.UpdateFetchSchedule(ctx, "feed-later", now, now.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	feeds, err := repo.ListFeedsDueForRefresh(ctx, now, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(feeds) != 2 {
		t.Fatalf("Expected 2 due feeds, got %d", len(feeds))
	}
	// Null next-fetch-at sorts first.
	if feeds[0].ID != "feed-new" {
		t.Errorf("Expected feed-new first, got %s", feeds[0].ID)
	}
	if feeds[1].ID != "feed-due" {
		t.Errorf("Expected feed-due second, got %s", feeds[1].ID)
	}
}

func TestSetWatermark(t *testing.T) {
	db := newTestDB(t)
	repo := NewFeedRepository(db)
	ctx := context.Background()

	createTestFeed(t, db, "feed-1", "https://example.com/feed")

	at := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	if err := repo.SetWatermark(ctx, "feed-1", at); err != nil {
		t.Fatal(err)
	}

	feed, err := repo.GetFeed(ctx, "feed-1")
	if err != nil {
		t.Fatal(err)
	}
	if feed.LastEntriesUpdatedAt == nil {
		t.Fatal("Expected watermark to be set")
	}
	if !feed.LastEntriesUpdatedAt.Equal(at) {
		t.Errorf("Expected watermark %v, got %v", at, *feed.LastEntriesUpdatedAt)
	}
}

func TestRedirectTargetRoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := NewFeedRepository(db)
	ctx := context.Background()

	createTestFeed(t, db, "feed-1", "https://example.com/feed")

	seenAt := time.Now().UTC()
	if err := repo.SetRedirectTarget(ctx, "feed-1", "https://new.example.com/feed", seenAt); err != nil {
		t.Fatal(err)
	}

	feed, err := repo.GetFeed(ctx, "feed-1")
	if err != nil {
		t.Fatal(err)
	}
	if feed.RedirectTargetURL != "https://new.example.com/feed" {
		t.Errorf("Expected redirect target, got '%s'", feed.RedirectTargetURL)
	}
	if feed.RedirectSeenAt == nil || !feed.RedirectSeenAt.Equal(seenAt) {
		t.Error("Expected redirect seen-at to round-trip")
	}

	if err := repo.ClearRedirectTarget(ctx, "feed-1"); err != nil {
		t.Fatal(err)
	}

	feed, err = repo.GetFeed(ctx, "feed-1")
	if err != nil {
		t.Fatal(err)
	}
	if feed.RedirectTargetURL != "" || feed.RedirectSeenAt != nil {
		t.Error("Expected redirect fields to be cleared")
	}
}

func TestUpdateFeedURL(t *testing.T) {
	db := newTestDB(t)
	repo := NewFeedRepository(db)
	ctx := context.Background()

	createTestFeed(t, db, "feed-1", "https://old.example.com/feed")

	if err := repo.UpdateFeedURL(ctx, "feed-1", "https://new.example.com/feed"); err != nil {
		t.Fatal(err)
	}

	feed, err := repo.GetFeedByURL(ctx, "https://new.example.com/feed")
	if err != nil {
		t.Fatal(err)
	}
	if feed == nil || feed.ID != "feed-1" {
		t.Error("Expected feed to be reachable under the new URL")
	}
}
