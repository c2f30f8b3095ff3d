package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"feedsync/app/database"
)

// RedirectConfirmationWait is how long a permanent-redirect target must
// be observed consistently before subscribers are migrated. Feeds return
// transient 301s during maintenance; migrating on first sight would cause
// spurious, hard-to-reverse migrations.
const RedirectConfirmationWait = 7 * 24 * time.Hour

type RedirectOutcome string

const (
	// RedirectNone: no redirect reported and none was being tracked.
	RedirectNone RedirectOutcome = "none"
	// RedirectSuspected: a redirect target is being tracked but the wait
	// period has not elapsed yet.
	RedirectSuspected RedirectOutcome = "suspected"
	// RedirectCleared: a previously tracked target disappeared.
	RedirectCleared RedirectOutcome = "cleared"
	// RedirectConfirmed: the same target has been observed for the whole
	// wait period. The caller migrates subscribers.
	RedirectConfirmed RedirectOutcome = "confirmed"
)

// RedirectTracker decides when a feed's URL change is durable.
type RedirectTracker struct {
	feedRepo database.FeedRepository
}

func NewRedirectTracker(feedRepo database.FeedRepository) *RedirectTracker {
	return &RedirectTracker{feedRepo: feedRepo}
}

// Observe records the redirect state of one fetch. targetURL is the
// permanent-redirect target the fetch ended at, or empty when the feed
// answered at its canonical URL.
func (t *RedirectTracker) Observe(ctx context.Context, feed *database.Feed, targetURL string, now time.Time) (RedirectOutcome, error) {
	if targetURL == "" || targetURL == feed.URL {
		if feed.RedirectTargetURL == "" {
			return RedirectNone, nil
		}
		// Transient redirect resolved itself.
		if err := t.feedRepo.ClearRedirectTarget(ctx, feed.ID); err != nil {
			return "", fmt.Errorf("failed to clear redirect tracking: %w", err)
		}
		slog.Info("Redirect suspicion cleared", "feed_id", feed.ID, "target", feed.RedirectTargetURL)
		return RedirectCleared, nil
	}

	if feed.RedirectTargetURL == targetURL && feed.RedirectSeenAt != nil {
		// Same target again: the first-seen timestamp is never reset here.
		if now.Sub(*feed.RedirectSeenAt) >= RedirectConfirmationWait {
			slog.Info("Redirect confirmed", "feed_id", feed.ID, "target", targetURL,
				"first_seen_at", feed.RedirectSeenAt)
			return RedirectConfirmed, nil
		}
		return RedirectSuspected, nil
	}

	// New target, or the target changed while suspected. A changed target
	// indicates upstream flapping, so the clock restarts.
	if err := t.feedRepo.SetRedirectTarget(ctx, feed.ID, targetURL, now); err != nil {
		return "", fmt.Errorf("failed to record redirect target: %w", err)
	}
	slog.Info("Redirect suspected", "feed_id", feed.ID, "target", targetURL)
	return RedirectSuspected, nil
}
