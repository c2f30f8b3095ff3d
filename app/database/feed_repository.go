package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type feedRepository struct {
	q Querier
}

// NewFeedRepository creates a feed repository over a database connection
// or an open transaction.
func NewFeedRepository(q Querier) FeedRepository {
	return &feedRepository{q: q}
}

const feedColumns = `id, url, kind, title, last_fetched_at, next_fetch_at,
	last_entries_updated_at, COALESCE(redirect_target_url, ''), redirect_seen_at,
	created_at, updated_at`

func (r *feedRepository) scanFeed(row *sql.Row) (*Feed, error) {
	var feed Feed
	var lastFetched, nextFetch, watermark, redirectSeen sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&feed.ID, &feed.URL, &feed.Kind, &feed.Title,
		&lastFetched, &nextFetch, &watermark,
		&feed.RedirectTargetURL, &redirectSeen,
		&createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan feed row: %w", err)
	}

	if feed.LastFetchedAt, err = parseNullableTime(lastFetched); err != nil {
		return nil, err
	}
	if feed.NextFetchAt, err = parseNullableTime(nextFetch); err != nil {
		return nil, err
	}
	if feed.LastEntriesUpdatedAt, err = parseNullableTime(watermark); err != nil {
		return nil, err
	}
	if feed.RedirectSeenAt, err = parseNullableTime(redirectSeen); err != nil {
		return nil, err
	}
	if feed.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if feed.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	return &feed, nil
}

func (r *feedRepository) GetFeed(ctx context.Context, id string) (*Feed, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+feedColumns+` FROM feeds WHERE id = ?`, id)
	feed, err := r.scanFeed(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get feed: %w", err)
	}
	return feed, nil
}

func (r *feedRepository) GetFeedByURL(ctx context.Context, url string) (*Feed, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+feedColumns+` FROM feeds WHERE url = ?`, url)
	feed, err := r.scanFeed(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get feed by URL: %w", err)
	}
	return feed, nil
}

func (r *feedRepository) ListFeedsDueForRefresh(ctx context.Context, now time.Time, limit int) ([]Feed, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+feedColumns+`
		FROM feeds
		WHERE next_fetch_at IS NULL OR next_fetch_at <= ?
		ORDER BY COALESCE(next_fetch_at, '1970-01-01T00:00:00Z')
		LIMIT ?
	`, formatTime(now), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds due for refresh: %w", err)
	}
	defer rows.Close()

	var feeds []Feed
	for rows.Next() {
		var feed Feed
		var lastFetched, nextFetch, watermark, redirectSeen sql.NullString
		var createdAt, updatedAt string

		err := rows.Scan(
			&feed.ID, &feed.URL, &feed.Kind, &feed.Title,
			&lastFetched, &nextFetch, &watermark,
			&feed.RedirectTargetURL, &redirectSeen,
			&createdAt, &updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed row: %w", err)
		}

		if feed.LastFetchedAt, err = parseNullableTime(lastFetched); err != nil {
			return nil, err
		}
		if feed.NextFetchAt, err = parseNullableTime(nextFetch); err != nil {
			return nil, err
		}
		if feed.LastEntriesUpdatedAt, err = parseNullableTime(watermark); err != nil {
			return nil, err
		}
		if feed.RedirectSeenAt, err = parseNullableTime(redirectSeen); err != nil {
			return nil, err
		}
		if feed.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if feed.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}

		feeds = append(feeds, feed)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feed rows: %w", err)
	}

	return feeds, nil
}

func (r *feedRepository) GetFeedCount(ctx context.Context) (int, error) {
	var count int
	err := r.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM feeds").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get feed count: %w", err)
	}
	return count, nil
}

func (r *feedRepository) CreateFeed(ctx context.Context, feed *Feed) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO feeds (id, url, kind, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, feed.ID, feed.URL, feed.Kind, feed.Title,
		formatTime(feed.CreatedAt), formatTime(feed.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create feed: %w", err)
	}
	return nil
}

func (r *feedRepository) UpdateFeedMetadata(ctx context.Context, id, kind, title string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE feeds
		SET kind = ?, title = ?, updated_at = ?
		WHERE id = ?
	`, kind, title, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to update feed metadata: %w", err)
	}
	return nil
}

func (r *feedRepository) UpdateFeedURL(ctx context.Context, id, url string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE feeds
		SET url = ?, updated_at = ?
		WHERE id = ?
	`, url, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to update feed URL: %w", err)
	}
	return nil
}

func (r *feedRepository) UpdateFetchSchedule(ctx context.Context, id string, lastFetchedAt, nextFetchAt time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE feeds
		SET last_fetched_at = ?, next_fetch_at = ?, updated_at = ?
		WHERE id = ?
	`, formatTime(lastFetchedAt), formatTime(nextFetchAt), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to update fetch schedule: %w", err)
	}
	return nil
}

func (r *feedRepository) SetWatermark(ctx context.Context, id string, at time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE feeds
		SET last_entries_updated_at = ?, updated_at = ?
		WHERE id = ?
	`, formatTime(at), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to set feed watermark: %w", err)
	}
	return nil
}

func (r *feedRepository) SetRedirectTarget(ctx context.Context, id, targetURL string, seenAt time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE feeds
		SET redirect_target_url = ?, redirect_seen_at = ?, updated_at = ?
		WHERE id = ?
	`, targetURL, formatTime(seenAt), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to set redirect target: %w", err)
	}
	return nil
}

func (r *feedRepository) ClearRedirectTarget(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE feeds
		SET redirect_target_url = NULL, redirect_seen_at = NULL, updated_at = ?
		WHERE id = ?
	`, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to clear redirect target: %w", err)
	}
	return nil
}
