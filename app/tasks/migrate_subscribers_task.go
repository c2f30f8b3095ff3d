package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"feedsync/app/database"
	"feedsync/app/engine"
)

// MigrateSubscribersTask rewires subscribers after a confirmed redirect.
// Migration conflicts bubble up as errors so the scheduler's retry loop
// re-runs the whole migration.
type MigrateSubscribersTask struct {
	Task
	targetURL  string
	migrator   *engine.Migrator
	visibility *engine.VisibilityReconciler
	feedRepo   database.FeedRepository
	subRepo    database.SubscriptionRepository
}

func NewMigrateSubscribersTask(oldFeedID, targetURL string, migrator *engine.Migrator,
	visibility *engine.VisibilityReconciler, feedRepo database.FeedRepository,
	subRepo database.SubscriptionRepository) *MigrateSubscribersTask {
	return &MigrateSubscribersTask{
		Task:       NewTask(TaskTypeMigrateSubscribers, oldFeedID),
		targetURL:  targetURL,
		migrator:   migrator,
		visibility: visibility,
		feedRepo:   feedRepo,
		subRepo:    subRepo,
	}
}

func (t *MigrateSubscribersTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	now := time.Now().UTC()

	if err := t.migrator.Migrate(ctx, t.FeedID, t.targetURL, now); err != nil {
		return err
	}

	// Migrated users must also see what the target feed currently
	// carries, minus anything their history already covers by GUID.
	newFeed, err := t.feedRepo.GetFeedByURL(ctx, t.targetURL)
	if err != nil {
		return fmt.Errorf("failed to load target feed: %w", err)
	}
	if newFeed != nil && newFeed.ID != t.FeedID {
		subs, err := t.subRepo.ListActiveSubscriptionsByFeed(ctx, newFeed.ID)
		if err != nil {
			return fmt.Errorf("failed to list target subscribers: %w", err)
		}
		for _, sub := range subs {
			if _, err := t.visibility.CreateUserEntriesForSubscriber(ctx, sub.UserID, newFeed.ID); err != nil {
				return fmt.Errorf("failed to reconcile visibility for user %s: %w", sub.UserID, err)
			}
		}
	}

	slog.Info("Task completed",
		"type", "MigrateSubscribers",
		"old_feed_id", t.FeedID,
		"target_url", t.targetURL,
		"duration", t.GetDuration())

	return nil
}
