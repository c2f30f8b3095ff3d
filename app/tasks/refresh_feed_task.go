package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"feedsync/app/database"
	"feedsync/app/engine"
	"feedsync/app/feed"
)

// RefreshFeedTask runs one synchronization cycle for a feed: fetch,
// redirect observation, entry reconciliation, subscriber visibility.
type RefreshFeedTask struct {
	Task
	scheduler       *Scheduler
	httpClient      *http.Client
	parser          *feed.Parser
	processor       *engine.Processor
	tracker         *engine.RedirectTracker
	visibility      *engine.VisibilityReconciler
	feedRepo        database.FeedRepository
	userAgent       string
	refreshInterval time.Duration
}

func NewRefreshFeedTask(feedID string, scheduler *Scheduler, httpClient *http.Client,
	parser *feed.Parser, processor *engine.Processor, tracker *engine.RedirectTracker,
	visibility *engine.VisibilityReconciler, feedRepo database.FeedRepository,
	userAgent string, refreshInterval time.Duration) *RefreshFeedTask {
	return &RefreshFeedTask{
		Task:            NewTask(TaskTypeRefreshFeed, feedID),
		scheduler:       scheduler,
		httpClient:      httpClient,
		parser:          parser,
		processor:       processor,
		tracker:         tracker,
		visibility:      visibility,
		feedRepo:        feedRepo,
		userAgent:       userAgent,
		refreshInterval: refreshInterval,
	}
}

func (t *RefreshFeedTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	f, err := t.feedRepo.GetFeed(ctx, t.FeedID)
	if err != nil {
		return fmt.Errorf("failed to load feed: %w", err)
	}
	if f == nil {
		slog.Debug("Feed no longer exists, skipping", "feed_id", t.FeedID)
		return nil
	}

	now := time.Now().UTC()

	// A failed fetch aborts here; the processor never sees partial data.
	data, redirectTarget, err := t.fetchFeed(ctx, f.URL)
	if err != nil {
		return fmt.Errorf("failed to fetch feed: %w", err)
	}

	outcome, err := t.tracker.Observe(ctx, f, redirectTarget, now)
	if err != nil {
		return fmt.Errorf("failed to track redirect: %w", err)
	}
	if outcome == engine.RedirectConfirmed {
		if err := t.scheduler.enqueueMigration(f.ID, redirectTarget); err != nil {
			slog.Warn("Failed to enqueue migration task", "feed_id", f.ID, "error", err)
		}
	}

	metadata, items, err := t.parser.Run(data)
	if err != nil {
		return fmt.Errorf("failed to parse feed: %w", err)
	}

	if err := t.feedRepo.UpdateFeedMetadata(ctx, f.ID, metadata.Kind, metadata.Title); err != nil {
		return fmt.Errorf("failed to store feed metadata: %w", err)
	}

	result, err := t.processor.ProcessEntries(ctx, f.ID, now, items)
	if err != nil {
		return fmt.Errorf("failed to process entries: %w", err)
	}

	entryIDs := make([]string, 0, len(result.Results))
	for _, r := range result.Results {
		if r.Status != engine.StatusSkipped {
			entryIDs = append(entryIDs, r.EntryID)
		}
	}

	inserted, err := t.visibility.CreateUserEntriesForFeed(ctx, f.ID, entryIDs)
	if err != nil {
		return fmt.Errorf("failed to reconcile visibility: %w", err)
	}

	if err := t.feedRepo.UpdateFetchSchedule(ctx, f.ID, now, now.Add(t.refreshInterval)); err != nil {
		return fmt.Errorf("failed to update fetch schedule: %w", err)
	}

	slog.Info("Task completed",
		"type", "RefreshFeed",
		"feed_id", f.ID,
		"duration", t.GetDuration(),
		"total", len(items),
		"created", result.Created,
		"updated", result.Updated,
		"unchanged", result.Unchanged,
		"skipped", result.Skipped,
		"user_entries", inserted,
		"redirect", string(outcome))

	return nil
}

// fetchFeed downloads the feed body, following redirects. When the chain
// contains a permanent redirect (301/308) the final URL is reported as
// the redirect target; temporary redirects are followed silently.
func (t *RefreshFeedTask) fetchFeed(ctx context.Context, url string) ([]byte, string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	var permanentTarget string
	client := *t.httpClient
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return errors.New("stopped after 10 redirects")
		}
		if resp := req.Response; resp != nil &&
			(resp.StatusCode == http.StatusMovedPermanently || resp.StatusCode == http.StatusPermanentRedirect) {
			permanentTarget = req.URL.String()
		}
		return nil
	}

	req, err := http.NewRequestWithContext(timeoutCtx, "GET", url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", t.userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response body: %w", err)
	}

	return data, permanentTarget, nil
}
