package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type subscriptionRepository struct {
	q Querier
}

// NewSubscriptionRepository creates a subscription repository over a
// database connection or an open transaction.
func NewSubscriptionRepository(q Querier) SubscriptionRepository {
	return &subscriptionRepository{q: q}
}

const subscriptionColumns = `id, user_id, feed_id, subscribed_at, unsubscribed_at,
	previous_feed_ids, created_at, updated_at`

type subscriptionScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row subscriptionScanner) (*Subscription, error) {
	var sub Subscription
	var unsubscribed sql.NullString
	var subscribedAt, previousFeedIDs, createdAt, updatedAt string

	err := row.Scan(
		&sub.ID, &sub.UserID, &sub.FeedID,
		&subscribedAt, &unsubscribed, &previousFeedIDs,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if sub.SubscribedAt, err = parseTime(subscribedAt); err != nil {
		return nil, err
	}
	if sub.UnsubscribedAt, err = parseNullableTime(unsubscribed); err != nil {
		return nil, err
	}
	if sub.PreviousFeedIDs, err = unmarshalFeedIDs(previousFeedIDs); err != nil {
		return nil, err
	}
	if sub.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if sub.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	return &sub, nil
}

func (r *subscriptionRepository) getOne(ctx context.Context, query string, args ...any) (*Subscription, error) {
	row := r.q.QueryRowContext(ctx, query, args...)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (r *subscriptionRepository) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	sub, err := r.getOne(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

// GetSubscriptionByUserAndFeed returns the user's subscription to a feed
// whether active or soft-deleted, preferring the active row.
func (r *subscriptionRepository) GetSubscriptionByUserAndFeed(ctx context.Context, userID, feedID string) (*Subscription, error) {
	sub, err := r.getOne(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE user_id = ? AND feed_id = ?
		ORDER BY unsubscribed_at IS NOT NULL, subscribed_at DESC
		LIMIT 1
	`, userID, feedID)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription by user and feed: %w", err)
	}
	return sub, nil
}

func (r *subscriptionRepository) GetActiveSubscription(ctx context.Context, userID, feedID string) (*Subscription, error) {
	sub, err := r.getOne(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE user_id = ? AND feed_id = ? AND unsubscribed_at IS NULL
	`, userID, feedID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active subscription: %w", err)
	}
	return sub, nil
}

func (r *subscriptionRepository) list(ctx context.Context, query string, args ...any) ([]Subscription, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription row: %w", err)
		}
		subs = append(subs, *sub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscription rows: %w", err)
	}

	return subs, nil
}

func (r *subscriptionRepository) ListActiveSubscriptionsByFeed(ctx context.Context, feedID string) ([]Subscription, error) {
	subs, err := r.list(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE feed_id = ? AND unsubscribed_at IS NULL
		ORDER BY id
	`, feedID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions by feed: %w", err)
	}
	return subs, nil
}

func (r *subscriptionRepository) ListActiveSubscriptionsByUser(ctx context.Context, userID string) ([]Subscription, error) {
	subs, err := r.list(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE user_id = ? AND unsubscribed_at IS NULL
		ORDER BY id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions by user: %w", err)
	}
	return subs, nil
}

func (r *subscriptionRepository) GetSubscriptionCount(ctx context.Context) (int, error) {
	var count int
	err := r.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM subscriptions WHERE unsubscribed_at IS NULL").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get subscription count: %w", err)
	}
	return count, nil
}

func (r *subscriptionRepository) CreateSubscription(ctx context.Context, sub *Subscription) error {
	previousFeedIDs, err := marshalFeedIDs(sub.PreviousFeedIDs)
	if err != nil {
		return err
	}

	_, err = r.q.ExecContext(ctx, `
		INSERT INTO subscriptions (
			id, user_id, feed_id, subscribed_at, unsubscribed_at,
			previous_feed_ids, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, sub.ID, sub.UserID, sub.FeedID,
		formatTime(sub.SubscribedAt), formatNullableTime(sub.UnsubscribedAt),
		previousFeedIDs, formatTime(sub.CreatedAt), formatTime(sub.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

// DeactivateSubscription soft-deletes a subscription.
func (r *subscriptionRepository) DeactivateSubscription(ctx context.Context, id string, at time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE subscriptions
		SET unsubscribed_at = ?, updated_at = ?
		WHERE id = ?
	`, formatTime(at), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate subscription: %w", err)
	}
	return nil
}

// ReactivateSubscription clears the soft delete and bumps subscribed-at.
func (r *subscriptionRepository) ReactivateSubscription(ctx context.Context, id string, at time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE subscriptions
		SET unsubscribed_at = NULL, subscribed_at = ?, updated_at = ?
		WHERE id = ?
	`, formatTime(at), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to reactivate subscription: %w", err)
	}
	return nil
}

func (r *subscriptionRepository) SetPreviousFeedIDs(ctx context.Context, id string, feedIDs []string) error {
	previousFeedIDs, err := marshalFeedIDs(feedIDs)
	if err != nil {
		return err
	}

	_, err = r.q.ExecContext(ctx, `
		UPDATE subscriptions
		SET previous_feed_ids = ?, updated_at = ?
		WHERE id = ?
	`, previousFeedIDs, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to set previous feed ids: %w", err)
	}
	return nil
}
