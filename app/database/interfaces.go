package database

import (
	"context"
	"time"
)

type FeedRepository interface {
	GetFeed(ctx context.Context, id string) (*Feed, error)
	GetFeedByURL(ctx context.Context, url string) (*Feed, error)
	ListFeedsDueForRefresh(ctx context.Context, now time.Time, limit int) ([]Feed, error)
	GetFeedCount(ctx context.Context) (int, error)

	CreateFeed(ctx context.Context, feed *Feed) error
	UpdateFeedMetadata(ctx context.Context, id, kind, title string) error
	UpdateFeedURL(ctx context.Context, id, url string) error
	UpdateFetchSchedule(ctx context.Context, id string, lastFetchedAt, nextFetchAt time.Time) error
	SetWatermark(ctx context.Context, id string, at time.Time) error

	SetRedirectTarget(ctx context.Context, id, targetURL string, seenAt time.Time) error
	ClearRedirectTarget(ctx context.Context, id string) error
}

type EntryRepository interface {
	GetEntry(ctx context.Context, id string) (*Entry, error)
	GetEntryByGUID(ctx context.Context, feedID, guid string) (*Entry, error)
	ListVisibleEntryIDs(ctx context.Context, feedID string, watermark time.Time) ([]string, error)
	GetEntryCount(ctx context.Context) (int, error)

	InsertEntry(ctx context.Context, entry *Entry) error
	UpdateEntryContent(ctx context.Context, entry *Entry) error
	TouchEntryLastSeen(ctx context.Context, id string, at time.Time) error
}

type SubscriptionRepository interface {
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	GetSubscriptionByUserAndFeed(ctx context.Context, userID, feedID string) (*Subscription, error)
	GetActiveSubscription(ctx context.Context, userID, feedID string) (*Subscription, error)
	ListActiveSubscriptionsByFeed(ctx context.Context, feedID string) ([]Subscription, error)
	ListActiveSubscriptionsByUser(ctx context.Context, userID string) ([]Subscription, error)
	GetSubscriptionCount(ctx context.Context) (int, error)

	CreateSubscription(ctx context.Context, sub *Subscription) error
	DeactivateSubscription(ctx context.Context, id string, at time.Time) error
	ReactivateSubscription(ctx context.Context, id string, at time.Time) error
	SetPreviousFeedIDs(ctx context.Context, id string, feedIDs []string) error
}

type UserEntryRepository interface {
	GetUserEntry(ctx context.Context, userID, entryID string) (*UserEntry, error)
	ListUserEntries(ctx context.Context, userID, cursor string, limit int) ([]UserEntryDetail, error)
	GetUserEntryCount(ctx context.Context) (int, error)

	InsertUserEntryIfAbsent(ctx context.Context, userID, entryID string, createdAt time.Time) (bool, error)

	UpdateReadIfNewer(ctx context.Context, userID, entryID string, value bool, changedAt int64) error
	UpdateStarredIfNewer(ctx context.Context, userID, entryID string, value bool, changedAt int64) error
	UpdateScoreIfNewer(ctx context.Context, userID, entryID string, score *int, changedAt int64) error
}
