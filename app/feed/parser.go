package feed

import (
	"bytes"
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
)

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

func (p *Parser) Run(data []byte) (*Metadata, []Item, error) {
	parsed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	metadata := &Metadata{
		Title:       parsed.Title,
		Link:        parsed.Link,
		Description: parsed.Description,
		Kind:        parsed.FeedType,
		Language:    parsed.Language,
	}

	items := make([]Item, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		items = append(items, p.normalizeItem(item))
	}

	return metadata, items, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item) Item {
	normalized := Item{
		GUID:    item.GUID,
		Title:   item.Title,
		Link:    item.Link,
		Content: item.Content,
		Summary: item.Description,
	}

	if item.PublishedParsed != nil {
		published := item.PublishedParsed.UTC()
		normalized.PublishedAt = &published
	}

	normalized.Author = p.extractAuthor(item)

	return normalized
}

// ContentHash digests the fields whose change makes an item "updated":
// the title and the content, falling back to the summary when the feed
// carries no full content.
func ContentHash(title, content, summary string) string {
	digest := fmt.Sprintf("%s|%s", title, cmp.Or(content, summary))

	hash := sha256.Sum256([]byte(digest))
	return hex.EncodeToString(hash[:])
}

func (p *Parser) extractAuthor(item *gofeed.Item) string {
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		return p.formatAuthor(item.Authors[0].Name, item.Authors[0].Email)
	}
	if item.Author != nil {
		return p.formatAuthor(item.Author.Name, item.Author.Email)
	}
	return ""
}

func (p *Parser) formatAuthor(name, email string) string {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)

	if name != "" && email != "" {
		return fmt.Sprintf("%s (%s)", email, name)
	} else if name != "" {
		return name
	} else if email != "" {
		return email
	}

	return ""
}
