package engine

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"feedsync/app/database"
	"feedsync/app/feed"
	"feedsync/app/ids"
)

type ItemStatus string

const (
	StatusCreated   ItemStatus = "created"
	StatusUpdated   ItemStatus = "updated"
	StatusUnchanged ItemStatus = "unchanged"
	StatusSkipped   ItemStatus = "skipped"
)

type ItemResult struct {
	GUID    string
	EntryID string
	Status  ItemStatus
	Err     error
}

type Result struct {
	Created   int
	Updated   int
	Unchanged int
	Skipped   int
	Results   []ItemResult
}

// Processor reconciles one upstream fetch result against the stored
// entries of a feed.
type Processor struct {
	db *database.DB
}

func NewProcessor(db *database.DB) *Processor {
	return &Processor{db: db}
}

// ProcessEntries classifies each item as created, updated or unchanged
// against the stored (feed, guid) entry and writes it accordingly. The
// whole batch and the feed watermark commit in a single transaction, so
// an aborted run never leaves the watermark ahead of the entries it
// governs. A malformed item is skipped, never fatal to the batch.
func (p *Processor) ProcessEntries(ctx context.Context, feedID string, fetchedAt time.Time, items []feed.Item) (*Result, error) {
	result := &Result{}

	err := p.db.InTx(ctx, func(q database.Querier) error {
		entryRepo := database.NewEntryRepository(q)
		feedRepo := database.NewFeedRepository(q)

		seenAdvanced := 0

		for i, item := range items {
			guid := deriveIdentifier(item)
			if guid == "" {
				itemErr := &UnidentifiableItemError{Index: i}
				slog.Warn("Skipping unidentifiable item", "feed_id", feedID, "index", i)
				result.Skipped++
				result.Results = append(result.Results, ItemResult{Status: StatusSkipped, Err: itemErr})
				continue
			}

			status, entryID, err := p.processItem(ctx, entryRepo, feedID, guid, fetchedAt, item)
			if err != nil {
				return err
			}

			switch status {
			case StatusCreated:
				result.Created++
			case StatusUpdated:
				result.Updated++
			case StatusUnchanged:
				result.Unchanged++
			}
			seenAdvanced++
			result.Results = append(result.Results, ItemResult{GUID: guid, EntryID: entryID, Status: status})
		}

		// The watermark moves iff this run observed at least one entry;
		// it later defines "currently visible" for new subscribers.
		if seenAdvanced > 0 {
			if err := feedRepo.SetWatermark(ctx, feedID, fetchedAt); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to process entries for feed %s: %w", feedID, err)
	}

	return result, nil
}

func (p *Processor) processItem(ctx context.Context, entryRepo database.EntryRepository, feedID, guid string, fetchedAt time.Time, item feed.Item) (ItemStatus, string, error) {
	contentHash := feed.ContentHash(item.Title, item.Content, item.Summary)
	now := time.Now().UTC()

	existing, err := entryRepo.GetEntryByGUID(ctx, feedID, guid)
	if err != nil {
		return "", "", err
	}

	if existing == nil {
		entryID, err := ids.New()
		if err != nil {
			return "", "", err
		}
		entry := &database.Entry{
			ID:          entryID,
			FeedID:      feedID,
			GUID:        guid,
			Title:       item.Title,
			Author:      item.Author,
			Content:     item.Content,
			Summary:     item.Summary,
			URL:         item.Link,
			ContentHash: contentHash,
			PublishedAt: item.PublishedAt,
			FetchedAt:   fetchedAt,
			LastSeenAt:  fetchedAt,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := entryRepo.InsertEntry(ctx, entry); err != nil {
			return "", "", err
		}
		return StatusCreated, entryID, nil
	}

	if existing.ContentHash == contentHash {
		if err := entryRepo.TouchEntryLastSeen(ctx, existing.ID, fetchedAt); err != nil {
			return "", "", err
		}
		return StatusUnchanged, existing.ID, nil
	}

	existing.Title = item.Title
	existing.Author = item.Author
	existing.Content = item.Content
	existing.Summary = item.Summary
	existing.URL = item.Link
	existing.ContentHash = contentHash
	existing.PublishedAt = item.PublishedAt
	existing.LastSeenAt = fetchedAt
	existing.UpdatedAt = now
	if err := entryRepo.UpdateEntryContent(ctx, existing); err != nil {
		return "", "", err
	}
	return StatusUpdated, existing.ID, nil
}

// deriveIdentifier picks the dedup key for an item: explicit guid, else
// link, else title. Empty means the item cannot be identified at all.
func deriveIdentifier(item feed.Item) string {
	return cmp.Or(
		strings.TrimSpace(item.GUID),
		strings.TrimSpace(item.Link),
		strings.TrimSpace(item.Title),
	)
}
