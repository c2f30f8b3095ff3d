package engine

import (
	"context"
	"testing"
	"time"

	"feedsync/app/database"
)

func TestObserveNoRedirect(t *testing.T) {
	db := newTestDB(t)
	tracker := NewRedirectTracker(database.NewFeedRepository(db))
	ctx := context.Background()

	f := createFeed(t, db, "feed-1", "https://example.com/feed")

	outcome, err := tracker.Observe(ctx, f, "", time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if outcome != RedirectNone {
		t.Errorf("Expected none, got %s", outcome)
	}

	// Redirecting to the canonical URL itself is not a move.
	outcome, err = tracker.Observe(ctx, f, f.URL, time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if outcome != RedirectNone {
		t.Errorf("Expected none for self-redirect, got %s", outcome)
	}
}

func TestObserveNewTargetSuspected(t *testing.T) {
	db := newTestDB(t)
	tracker := NewRedirectTracker(database.NewFeedRepository(db))
	ctx := context.Background()
	now := time.Now().UTC()

	f := createFeed(t, db, "feed-1", "https://example.com/feed")

	outcome, err := tracker.Observe(ctx, f, "https://new.example.com/feed", now)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != RedirectSuspected {
		t.Errorf("Expected suspected, got %s", outcome)
	}

	f = reloadFeed(t, db, "feed-1")
	if f.RedirectTargetURL != "https://new.example.com/feed" {
		t.Errorf("Expected target to be tracked, got '%s'", f.RedirectTargetURL)
	}
	if f.RedirectSeenAt == nil || !f.RedirectSeenAt.Equal(now) {
		t.Error("Expected seen-at to record the observation time")
	}
}

func TestObserveConfirmationWait(t *testing.T) {
	db := newTestDB(t)
	tracker := NewRedirectTracker(database.NewFeedRepository(db))
	ctx := context.Background()
	start := time.Now().UTC()

	f := createFeed(t, db, "feed-1", "https://example.com/feed")
	if _, err := tracker.Observe(ctx, f, "https://new.example.com/feed", start); err != nil {
		t.Fatal(err)
	}

	// Six days in: still waiting.
	f = reloadFeed(t, db, "feed-1")
	outcome, err := tracker.Observe(ctx, f, "https://new.example.com/feed", start.Add(6*24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if outcome != RedirectSuspected {
		t.Errorf("Expected suspected at six days, got %s", outcome)
	}

	// The repeat observation must not restart the clock.
	f = reloadFeed(t, db, "feed-1")
	if !f.RedirectSeenAt.Equal(start) {
		t.Errorf("Expected seen-at to stay %v, got %v", start, *f.RedirectSeenAt)
	}

	// Eight days in: confirmed.
	outcome, err = tracker.Observe(ctx, f, "https://new.example.com/feed", start.Add(8*24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if outcome != RedirectConfirmed {
		t.Errorf("Expected confirmed at eight days, got %s", outcome)
	}
}

func TestObserveTargetChangeRestartsClock(t *testing.T) {
	db := newTestDB(t)
	tracker := NewRedirectTracker(database.NewFeedRepository(db))
	ctx := context.Background()
	start := time.Now().UTC()

	f := createFeed(t, db, "feed-1", "https://example.com/feed")
	if _, err := tracker.Observe(ctx, f, "https://first.example.com/feed", start); err != nil {
		t.Fatal(err)
	}

	// A different target six days later restarts the wait.
	f = reloadFeed(t, db, "feed-1")
	later := start.Add(6 * 24 * time.Hour)
	outcome, err := tracker.Observe(ctx, f, "https://second.example.com/feed", later)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != RedirectSuspected {
		t.Errorf("Expected suspected after target change, got %s", outcome)
	}

	f = reloadFeed(t, db, "feed-1")
	if f.RedirectTargetURL != "https://second.example.com/feed" {
		t.Errorf("Expected new target tracked, got '%s'", f.RedirectTargetURL)
	}
	if !f.RedirectSeenAt.Equal(later) {
		t.Error("Expected the clock to restart at the change")
	}

	// Two more days on the new target is not enough even though eight have
	// passed since the first suspicion.
	outcome, err = tracker.Observe(ctx, f, "https://second.example.com/feed", start.Add(8*24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if outcome != RedirectSuspected {
		t.Errorf("Expected suspected, got %s", outcome)
	}
}

func TestObserveCleared(t *testing.T) {
	db := newTestDB(t)
	tracker := NewRedirectTracker(database.NewFeedRepository(db))
	ctx := context.Background()
	start := time.Now().UTC()

	f := createFeed(t, db, "feed-1", "https://example.com/feed")
	if _, err := tracker.Observe(ctx, f, "https://new.example.com/feed", start); err != nil {
		t.Fatal(err)
	}

	// The feed answers at its canonical URL again.
	f = reloadFeed(t, db, "feed-1")
	outcome, err := tracker.Observe(ctx, f, "", start.Add(24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if outcome != RedirectCleared {
		t.Errorf("Expected cleared, got %s", outcome)
	}

	f = reloadFeed(t, db, "feed-1")
	if f.RedirectTargetURL != "" || f.RedirectSeenAt != nil {
		t.Error("Expected tracking fields to be cleared")
	}
}
