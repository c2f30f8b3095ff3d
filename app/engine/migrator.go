package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"feedsync/app/database"
	"feedsync/app/ids"
)

// Migrator rewires subscribers when a feed's canonical location has
// durably moved. UserEntry rows are never rewritten: they reference the
// entry id, not the feed id, so read/starred history survives migration
// on its own.
type Migrator struct {
	db *database.DB
}

func NewMigrator(db *database.DB) *Migrator {
	return &Migrator{db: db}
}

// Migrate moves every active subscriber of oldFeedID to the feed at
// targetURL. When no feed row exists at the target the old feed's URL is
// simply rewritten in place and no subscriber-visible change happens.
// The whole migration runs in one transaction; a target row appearing or
// disappearing underneath it surfaces as ErrMigrationConflict so the
// caller retries.
func (m *Migrator) Migrate(ctx context.Context, oldFeedID, targetURL string, now time.Time) error {
	err := m.db.InTx(ctx, func(q database.Querier) error {
		feedRepo := database.NewFeedRepository(q)
		subRepo := database.NewSubscriptionRepository(q)

		oldFeed, err := feedRepo.GetFeed(ctx, oldFeedID)
		if err != nil {
			return err
		}
		if oldFeed == nil {
			return fmt.Errorf("%w: feed %s disappeared", ErrMigrationConflict, oldFeedID)
		}

		newFeed, err := feedRepo.GetFeedByURL(ctx, targetURL)
		if err != nil {
			return err
		}

		if newFeed == nil {
			// Case A: nothing to converge with, adopt the new URL in place.
			if err := feedRepo.UpdateFeedURL(ctx, oldFeedID, targetURL); err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("%w: feed appeared at %s", ErrMigrationConflict, targetURL)
				}
				return err
			}
			if err := feedRepo.ClearRedirectTarget(ctx, oldFeedID); err != nil {
				return err
			}
			slog.Info("Feed URL rewritten after confirmed redirect",
				"feed_id", oldFeedID, "url", targetURL)
			return nil
		}

		// Case B: two feeds converging.
		subs, err := subRepo.ListActiveSubscriptionsByFeed(ctx, oldFeedID)
		if err != nil {
			return err
		}

		for _, sub := range subs {
			if err := m.migrateSubscriber(ctx, subRepo, sub, oldFeed.ID, newFeed.ID, now); err != nil {
				return err
			}
		}

		// Tracking fields are cleared on whichever row survives; the old
		// row stays (subscription lineage still references it) but stops
		// being tracked.
		if err := feedRepo.ClearRedirectTarget(ctx, oldFeed.ID); err != nil {
			return err
		}
		if err := feedRepo.ClearRedirectTarget(ctx, newFeed.ID); err != nil {
			return err
		}

		slog.Info("Subscribers migrated",
			"old_feed_id", oldFeed.ID, "new_feed_id", newFeed.ID, "count", len(subs))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to migrate feed %s: %w", oldFeedID, err)
	}
	return nil
}

func (m *Migrator) migrateSubscriber(ctx context.Context, subRepo database.SubscriptionRepository, sub database.Subscription, oldFeedID, newFeedID string, now time.Time) error {
	existing, err := subRepo.GetSubscriptionByUserAndFeed(ctx, sub.UserID, newFeedID)
	if err != nil {
		return err
	}

	switch {
	case existing == nil:
		id, err := ids.New()
		if err != nil {
			return err
		}
		err = subRepo.CreateSubscription(ctx, &database.Subscription{
			ID:              id,
			UserID:          sub.UserID,
			FeedID:          newFeedID,
			SubscribedAt:    now,
			PreviousFeedIDs: []string{oldFeedID},
			CreatedAt:       now,
			UpdatedAt:       now,
		})
		if err != nil {
			return err
		}

	case existing.UnsubscribedAt != nil:
		if err := subRepo.ReactivateSubscription(ctx, existing.ID, now); err != nil {
			return err
		}
		if err := m.appendLineage(ctx, subRepo, existing, oldFeedID); err != nil {
			return err
		}

	default:
		// Already actively subscribed to the target; only lineage grows.
		if err := m.appendLineage(ctx, subRepo, existing, oldFeedID); err != nil {
			return err
		}
	}

	return subRepo.DeactivateSubscription(ctx, sub.ID, now)
}

// appendLineage records the immediate predecessor feed, set-union style.
// Only one hop is kept per migration step; full lineage is reconstructable
// by following previous feed ids through inactive subscriptions.
func (m *Migrator) appendLineage(ctx context.Context, subRepo database.SubscriptionRepository, sub *database.Subscription, feedID string) error {
	if slices.Contains(sub.PreviousFeedIDs, feedID) {
		return nil
	}
	return subRepo.SetPreviousFeedIDs(ctx, sub.ID, append(sub.PreviousFeedIDs, feedID))
}
