package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type userEntryRepository struct {
	q Querier
}

// NewUserEntryRepository creates a user entry repository over a database
// connection or an open transaction.
func NewUserEntryRepository(q Querier) UserEntryRepository {
	return &userEntryRepository{q: q}
}

func scanUserEntry(row entryScanner, ue *UserEntry) error {
	var readChanged, starredChanged, score, scoreChanged sql.NullInt64
	var read, starred int
	var createdAt string

	err := row.Scan(
		&ue.UserID, &ue.EntryID, &read, &starred,
		&readChanged, &starredChanged, &score, &scoreChanged,
		&createdAt,
	)
	if err != nil {
		return err
	}

	ue.Read = read != 0
	ue.Starred = starred != 0
	ue.ReadChangedAt = nullableInt64(readChanged)
	ue.StarredChangedAt = nullableInt64(starredChanged)
	ue.Score = nullableInt(score)
	ue.ScoreChangedAt = nullableInt64(scoreChanged)
	if ue.CreatedAt, err = parseTime(createdAt); err != nil {
		return err
	}

	return nil
}

func (r *userEntryRepository) GetUserEntry(ctx context.Context, userID, entryID string) (*UserEntry, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT user_id, entry_id, read, starred,
		       read_changed_at, starred_changed_at, score, score_changed_at,
		       created_at
		FROM user_entries
		WHERE user_id = ? AND entry_id = ?
	`, userID, entryID)

	var ue UserEntry
	err := scanUserEntry(row, &ue)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user entry: %w", err)
	}
	return &ue, nil
}

// ListUserEntries returns a page of the user's entries joined with entry
// content, newest first. An empty cursor starts at the newest entry; a
// non-empty cursor resumes strictly after (below) the given entry id.
func (r *userEntryRepository) ListUserEntries(ctx context.Context, userID, cursor string, limit int) ([]UserEntryDetail, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT ue.user_id, ue.entry_id, ue.read, ue.starred,
		       ue.read_changed_at, ue.starred_changed_at, ue.score, ue.score_changed_at,
		       ue.created_at,
		       e.id, e.feed_id, e.guid, e.title, e.author, e.content, e.summary, e.url,
		       e.content_hash, e.published_at, e.fetched_at, e.last_seen_at, e.created_at, e.updated_at
		FROM user_entries ue
		JOIN entries e ON e.id = ue.entry_id
		WHERE ue.user_id = ?
		  AND (? = '' OR ue.entry_id < ?)
		ORDER BY ue.entry_id DESC
		LIMIT ?
	`, userID, cursor, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list user entries: %w", err)
	}
	defer rows.Close()

	var details []UserEntryDetail
	for rows.Next() {
		var d UserEntryDetail
		var readChanged, starredChanged, score, scoreChanged sql.NullInt64
		var read, starred int
		var ueCreatedAt string
		var published sql.NullString
		var fetchedAt, lastSeenAt, createdAt, updatedAt string

		err := rows.Scan(
			&d.UserID, &d.EntryID, &read, &starred,
			&readChanged, &starredChanged, &score, &scoreChanged,
			&ueCreatedAt,
			&d.Entry.ID, &d.Entry.FeedID, &d.Entry.GUID, &d.Entry.Title, &d.Entry.Author,
			&d.Entry.Content, &d.Entry.Summary, &d.Entry.URL, &d.Entry.ContentHash,
			&published, &fetchedAt, &lastSeenAt, &createdAt, &updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user entry row: %w", err)
		}

		d.Read = read != 0
		d.Starred = starred != 0
		d.ReadChangedAt = nullableInt64(readChanged)
		d.StarredChangedAt = nullableInt64(starredChanged)
		d.Score = nullableInt(score)
		d.ScoreChangedAt = nullableInt64(scoreChanged)
		if d.CreatedAt, err = parseTime(ueCreatedAt); err != nil {
			return nil, err
		}
		if d.Entry.PublishedAt, err = parseNullableTime(published); err != nil {
			return nil, err
		}
		if d.Entry.FetchedAt, err = parseTime(fetchedAt); err != nil {
			return nil, err
		}
		if d.Entry.LastSeenAt, err = parseTime(lastSeenAt); err != nil {
			return nil, err
		}
		if d.Entry.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if d.Entry.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}

		details = append(details, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user entry rows: %w", err)
	}

	return details, nil
}

func (r *userEntryRepository) GetUserEntryCount(ctx context.Context) (int, error) {
	var count int
	err := r.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM user_entries").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get user entry count: %w", err)
	}
	return count, nil
}

// InsertUserEntryIfAbsent makes an entry visible to a user unless the user
// already holds a row for it, or holds a row for any entry carrying the
// same GUID (a copy inherited across a feed migration). Safe under
// concurrent invocation: the (user_id, entry_id) conflict is swallowed.
func (r *userEntryRepository) InsertUserEntryIfAbsent(ctx context.Context, userID, entryID string, createdAt time.Time) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO user_entries (user_id, entry_id, created_at)
		SELECT ?, e.id, ?
		FROM entries e
		WHERE e.id = ?
		  AND NOT EXISTS (
			SELECT 1
			FROM user_entries ue
			JOIN entries held ON held.id = ue.entry_id
			WHERE ue.user_id = ? AND held.guid = e.guid
		  )
		ON CONFLICT (user_id, entry_id) DO NOTHING
	`, userID, formatTime(createdAt), entryID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to insert user entry: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected > 0, nil
}

// The conditional updates below implement last-writer-wins: the write
// applies only when the stored timestamp does not exceed the incoming
// one, in a single atomic statement. Ties favor the incoming write.

func (r *userEntryRepository) UpdateReadIfNewer(ctx context.Context, userID, entryID string, value bool, changedAt int64) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE user_entries
		SET read = ?, read_changed_at = ?
		WHERE user_id = ? AND entry_id = ?
		  AND (read_changed_at IS NULL OR read_changed_at <= ?)
	`, boolToInt(value), changedAt, userID, entryID, changedAt)
	if err != nil {
		return fmt.Errorf("failed to update read state: %w", err)
	}
	return nil
}

func (r *userEntryRepository) UpdateStarredIfNewer(ctx context.Context, userID, entryID string, value bool, changedAt int64) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE user_entries
		SET starred = ?, starred_changed_at = ?
		WHERE user_id = ? AND entry_id = ?
		  AND (starred_changed_at IS NULL OR starred_changed_at <= ?)
	`, boolToInt(value), changedAt, userID, entryID, changedAt)
	if err != nil {
		return fmt.Errorf("failed to update starred state: %w", err)
	}
	return nil
}

func (r *userEntryRepository) UpdateScoreIfNewer(ctx context.Context, userID, entryID string, score *int, changedAt int64) error {
	var scoreArg any
	if score != nil {
		scoreArg = *score
	}

	_, err := r.q.ExecContext(ctx, `
		UPDATE user_entries
		SET score = ?, score_changed_at = ?
		WHERE user_id = ? AND entry_id = ?
		  AND (score_changed_at IS NULL OR score_changed_at <= ?)
	`, scoreArg, changedAt, userID, entryID, changedAt)
	if err != nil {
		return fmt.Errorf("failed to update score: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
