package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"feedsync/app/database"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := database.RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return db
}

func createFeed(t *testing.T, db *database.DB, id, url string) *database.Feed {
	t.Helper()

	now := time.Now().UTC()
	feed := &database.Feed{
		ID:        id,
		URL:       url,
		Kind:      "rss",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := database.NewFeedRepository(db).CreateFeed(context.Background(), feed); err != nil {
		t.Fatalf("Failed to create feed: %v", err)
	}
	return feed
}

func createSubscription(t *testing.T, db *database.DB, id, userID, feedID string) *database.Subscription {
	t.Helper()

	now := time.Now().UTC()
	sub := &database.Subscription{
		ID:           id,
		UserID:       userID,
		FeedID:       feedID,
		SubscribedAt: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := database.NewSubscriptionRepository(db).CreateSubscription(context.Background(), sub); err != nil {
		t.Fatalf("Failed to create subscription: %v", err)
	}
	return sub
}

func reloadFeed(t *testing.T, db *database.DB, id string) *database.Feed {
	t.Helper()

	feed, err := database.NewFeedRepository(db).GetFeed(context.Background(), id)
	if err != nil {
		t.Fatalf("Failed to reload feed: %v", err)
	}
	if feed == nil {
		t.Fatalf("Feed %s not found", id)
	}
	return feed
}
