package feed

import (
	"time"
)

type Metadata struct {
	Title       string
	Link        string
	Description string
	Kind        string // rss, atom or json
	Language    string
}

// Item is one normalized upstream item. GUID is the item's explicit
// identifier when the feed supplies one; identifier derivation with
// link/title fallback happens downstream.
type Item struct {
	GUID        string
	Title       string
	Link        string
	Author      string
	Content     string
	Summary     string
	PublishedAt *time.Time
}
