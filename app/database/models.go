package database

import (
	"time"
)

// Feed is an upstream source. The redirect columns track a suspected
// permanent move until the wait period elapses.
type Feed struct {
	ID                   string
	URL                  string
	Kind                 string // rss, atom or json per the parser
	Title                string
	LastFetchedAt        *time.Time
	NextFetchAt          *time.Time
	LastEntriesUpdatedAt *time.Time // watermark: fetch time of the last run that touched any entry
	RedirectTargetURL    string
	RedirectSeenAt       *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Entry is one upstream item. (FeedID, GUID) is unique; LastSeenAt is
// the fetch time of the run in which the item was last present upstream.
type Entry struct {
	ID          string
	FeedID      string
	GUID        string
	Title       string
	Author      string
	Content     string
	Summary     string
	URL         string
	ContentHash string
	PublishedAt *time.Time
	FetchedAt   time.Time
	LastSeenAt  time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Subscription is a user's relationship to a feed. Soft-deleted via
// UnsubscribedAt; PreviousFeedIDs records the immediate predecessor per
// redirect migration step.
type Subscription struct {
	ID              string
	UserID          string
	FeedID          string
	SubscribedAt    time.Time
	UnsubscribedAt  *time.Time
	PreviousFeedIDs []string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// UserEntry is the per-user visibility/state row for an entry. The
// changed-at columns hold client-supplied Unix milliseconds and drive
// the last-writer-wins conditional updates.
type UserEntry struct {
	UserID           string
	EntryID          string
	Read             bool
	Starred          bool
	ReadChangedAt    *int64
	StarredChangedAt *int64
	Score            *int
	ScoreChangedAt   *int64
	CreatedAt        time.Time
}

// UserEntryDetail joins a user's state row with the entry it refers to,
// for list/detail views.
type UserEntryDetail struct {
	UserEntry
	Entry Entry
}
