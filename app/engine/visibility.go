package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"feedsync/app/database"
)

// VisibilityReconciler decides which entries are "in" a user's feed and
// materializes per-user entry rows. All inserts are insert-if-absent, so
// overlapping invocations from the fetch and migration paths are safe
// without locking.
type VisibilityReconciler struct {
	feedRepo      database.FeedRepository
	entryRepo     database.EntryRepository
	subRepo       database.SubscriptionRepository
	userEntryRepo database.UserEntryRepository
}

func NewVisibilityReconciler(feedRepo database.FeedRepository, entryRepo database.EntryRepository,
	subRepo database.SubscriptionRepository, userEntryRepo database.UserEntryRepository) *VisibilityReconciler {
	return &VisibilityReconciler{
		feedRepo:      feedRepo,
		entryRepo:     entryRepo,
		subRepo:       subRepo,
		userEntryRepo: userEntryRepo,
	}
}

// CreateUserEntriesForFeed exposes candidate entries to every active
// subscriber of the feed. Returns the number of rows actually inserted;
// calling it twice with the same arguments inserts nothing the second
// time.
func (v *VisibilityReconciler) CreateUserEntriesForFeed(ctx context.Context, feedID string, entryIDs []string) (int, error) {
	if len(entryIDs) == 0 {
		return 0, nil
	}

	subs, err := v.subRepo.ListActiveSubscriptionsByFeed(ctx, feedID)
	if err != nil {
		return 0, fmt.Errorf("failed to list subscribers: %w", err)
	}

	now := time.Now().UTC()
	inserted := 0
	for _, sub := range subs {
		for _, entryID := range entryIDs {
			ok, err := v.userEntryRepo.InsertUserEntryIfAbsent(ctx, sub.UserID, entryID, now)
			if err != nil {
				return inserted, fmt.Errorf("failed to create user entry: %w", err)
			}
			if ok {
				inserted++
			}
		}
	}

	if inserted > 0 {
		slog.Debug("User entries created", "feed_id", feedID, "inserted", inserted,
			"subscribers", len(subs), "candidates", len(entryIDs))
	}

	return inserted, nil
}

// CreateUserEntriesForSubscriber is the subscribe-to-existing-feed fast
// path: only entries observed in the feed's most recent resolved fetch
// (last-seen-at equal to the feed watermark) are currently visible.
// Entries that aged out of the upstream source between historical
// fetches are intentionally excluded. A feed that never resolved any
// entries has a null watermark and yields nothing.
func (v *VisibilityReconciler) CreateUserEntriesForSubscriber(ctx context.Context, userID, feedID string) (int, error) {
	feed, err := v.feedRepo.GetFeed(ctx, feedID)
	if err != nil {
		return 0, fmt.Errorf("failed to get feed: %w", err)
	}
	if feed == nil {
		return 0, fmt.Errorf("feed %s not found", feedID)
	}
	if feed.LastEntriesUpdatedAt == nil {
		return 0, nil
	}

	entryIDs, err := v.entryRepo.ListVisibleEntryIDs(ctx, feedID, *feed.LastEntriesUpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to list visible entries: %w", err)
	}

	now := time.Now().UTC()
	inserted := 0
	for _, entryID := range entryIDs {
		ok, err := v.userEntryRepo.InsertUserEntryIfAbsent(ctx, userID, entryID, now)
		if err != nil {
			return inserted, fmt.Errorf("failed to create user entry: %w", err)
		}
		if ok {
			inserted++
		}
	}

	return inserted, nil
}
