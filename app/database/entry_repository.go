package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type entryRepository struct {
	q Querier
}

// NewEntryRepository creates an entry repository over a database
// connection or an open transaction.
func NewEntryRepository(q Querier) EntryRepository {
	return &entryRepository{q: q}
}

const entryColumns = `id, feed_id, guid, title, author, content, summary, url,
	content_hash, published_at, fetched_at, last_seen_at, created_at, updated_at`

type entryScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row entryScanner) (*Entry, error) {
	var entry Entry
	var published sql.NullString
	var fetchedAt, lastSeenAt, createdAt, updatedAt string

	err := row.Scan(
		&entry.ID, &entry.FeedID, &entry.GUID, &entry.Title, &entry.Author,
		&entry.Content, &entry.Summary, &entry.URL, &entry.ContentHash,
		&published, &fetchedAt, &lastSeenAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if entry.PublishedAt, err = parseNullableTime(published); err != nil {
		return nil, err
	}
	if entry.FetchedAt, err = parseTime(fetchedAt); err != nil {
		return nil, err
	}
	if entry.LastSeenAt, err = parseTime(lastSeenAt); err != nil {
		return nil, err
	}
	if entry.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if entry.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	return &entry, nil
}

func (r *entryRepository) GetEntry(ctx context.Context, id string) (*Entry, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return entry, nil
}

func (r *entryRepository) GetEntryByGUID(ctx context.Context, feedID, guid string) (*Entry, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE feed_id = ? AND guid = ?`, feedID, guid)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry by GUID: %w", err)
	}
	return entry, nil
}

// ListVisibleEntryIDs returns ids of entries last observed at exactly the
// given watermark, i.e. the entries present in the feed's most recent
// resolved fetch.
func (r *entryRepository) ListVisibleEntryIDs(ctx context.Context, feedID string, watermark time.Time) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id FROM entries
		WHERE feed_id = ? AND last_seen_at = ?
		ORDER BY id
	`, feedID, formatTime(watermark))
	if err != nil {
		return nil, fmt.Errorf("failed to list visible entries: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan entry id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entry rows: %w", err)
	}

	return ids, nil
}

func (r *entryRepository) GetEntryCount(ctx context.Context) (int, error) {
	var count int
	err := r.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get entry count: %w", err)
	}
	return count, nil
}

func (r *entryRepository) InsertEntry(ctx context.Context, entry *Entry) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO entries (
			id, feed_id, guid, title, author, content, summary, url,
			content_hash, published_at, fetched_at, last_seen_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.FeedID, entry.GUID, entry.Title, entry.Author,
		entry.Content, entry.Summary, entry.URL, entry.ContentHash,
		formatNullableTime(entry.PublishedAt), formatTime(entry.FetchedAt),
		formatTime(entry.LastSeenAt), formatTime(entry.CreatedAt), formatTime(entry.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return nil
}

// UpdateEntryContent overwrites the mutable fields of an existing entry,
// keyed by id. GUID, feed id and fetched-at are immutable.
func (r *entryRepository) UpdateEntryContent(ctx context.Context, entry *Entry) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE entries
		SET title = ?, author = ?, content = ?, summary = ?, url = ?,
		    content_hash = ?, published_at = ?, last_seen_at = ?, updated_at = ?
		WHERE id = ?
	`, entry.Title, entry.Author, entry.Content, entry.Summary, entry.URL,
		entry.ContentHash, formatNullableTime(entry.PublishedAt),
		formatTime(entry.LastSeenAt), formatTime(entry.UpdatedAt), entry.ID)
	if err != nil {
		return fmt.Errorf("failed to update entry content: %w", err)
	}
	return nil
}

func (r *entryRepository) TouchEntryLastSeen(ctx context.Context, id string, at time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE entries SET last_seen_at = ? WHERE id = ?
	`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("failed to touch entry last seen: %w", err)
	}
	return nil
}
