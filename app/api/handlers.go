package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"feedsync/app/database"
	"feedsync/app/engine"
	"feedsync/app/ids"
)

func NewHandler(feedRepo database.FeedRepository, entryRepo database.EntryRepository,
	subRepo database.SubscriptionRepository, userEntryRepo database.UserEntryRepository,
	visibility *engine.VisibilityReconciler, state *engine.StateReconciler) *Handler {
	return &Handler{
		feedRepo:      feedRepo,
		entryRepo:     entryRepo,
		subRepo:       subRepo,
		userEntryRepo: userEntryRepo,
		visibility:    visibility,
		state:         state,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if feedCount, err := h.feedRepo.GetFeedCount(c.Request.Context()); err == nil {
		health["feeds"] = feedCount
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()

	stats := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if n, err := h.feedRepo.GetFeedCount(ctx); err == nil {
		stats["feeds"] = n
	}
	if n, err := h.entryRepo.GetEntryCount(ctx); err == nil {
		stats["entries"] = n
	}
	if n, err := h.subRepo.GetSubscriptionCount(ctx); err == nil {
		stats["active_subscriptions"] = n
	}
	if n, err := h.userEntryRepo.GetUserEntryCount(ctx); err == nil {
		stats["user_entries"] = n
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) ListSubscriptions(c *gin.Context) {
	userID := c.Param("id")
	ctx := c.Request.Context()

	subs, err := h.subRepo.ListActiveSubscriptionsByUser(ctx, userID)
	if err != nil {
		slog.Error("Database error", "operation", "list_subscriptions", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	result := make([]map[string]interface{}, 0, len(subs))
	for _, sub := range subs {
		info := map[string]interface{}{
			"id":                sub.ID,
			"feed_id":           sub.FeedID,
			"subscribed_at":     sub.SubscribedAt,
			"previous_feed_ids": sub.PreviousFeedIDs,
		}

		if feed, err := h.feedRepo.GetFeed(ctx, sub.FeedID); err == nil && feed != nil {
			info["url"] = feed.URL
			info["title"] = feed.Title
			info["last_fetched_at"] = feed.LastFetchedAt
		}

		result = append(result, info)
	}

	c.JSON(http.StatusOK, gin.H{
		"subscriptions": result,
		"total":         len(result),
	})
}

// Subscribe subscribes a user to a feed by URL, registering the feed
// when it is not yet known. A previously unsubscribed subscription is
// reactivated in place so its history survives.
func (h *Handler) Subscribe(c *gin.Context) {
	userID := c.Param("id")
	ctx := c.Request.Context()

	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid url"})
		return
	}

	now := time.Now().UTC()

	feed, err := h.feedRepo.GetFeedByURL(ctx, req.URL)
	if err != nil {
		slog.Error("Database error", "operation", "get_feed_by_url", "url", req.URL, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if feed == nil {
		// A feed with no fetch schedule is picked up by the next
		// scheduler tick.
		feed = &database.Feed{
			ID:        ids.MustNew(),
			URL:       req.URL,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := h.feedRepo.CreateFeed(ctx, feed); err != nil {
			slog.Error("Database error", "operation", "create_feed", "url", req.URL, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register feed"})
			return
		}
		slog.Info("Feed registered", "feed_id", feed.ID, "url", feed.URL)
	}

	sub, err := h.subRepo.GetSubscriptionByUserAndFeed(ctx, userID, feed.ID)
	if err != nil {
		slog.Error("Database error", "operation", "get_subscription", "user_id", userID, "feed_id", feed.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	created := false
	switch {
	case sub == nil:
		sub = &database.Subscription{
			ID:           ids.MustNew(),
			UserID:       userID,
			FeedID:       feed.ID,
			SubscribedAt: now,
		}
		if err := h.subRepo.CreateSubscription(ctx, sub); err != nil {
			slog.Error("Database error", "operation", "create_subscription", "user_id", userID, "feed_id", feed.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create subscription"})
			return
		}
		created = true
	case sub.UnsubscribedAt != nil:
		if err := h.subRepo.ReactivateSubscription(ctx, sub.ID, now); err != nil {
			slog.Error("Database error", "operation", "reactivate_subscription", "subscription_id", sub.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reactivate subscription"})
			return
		}
		created = true
	}

	// Currently visible entries appear immediately; anything else waits
	// for the next fetch cycle.
	inserted, err := h.visibility.CreateUserEntriesForSubscriber(ctx, userID, feed.ID)
	if err != nil {
		slog.Error("Visibility reconciliation failed", "user_id", userID, "feed_id", feed.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to initialize entries"})
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}

	c.JSON(status, gin.H{
		"subscription_id": sub.ID,
		"feed_id":         feed.ID,
		"url":             feed.URL,
		"entries_added":   inserted,
	})
}

// Unsubscribe soft-deletes the active subscription. The user's entry
// state rows are kept so a later resubscribe restores read history.
func (h *Handler) Unsubscribe(c *gin.Context) {
	userID := c.Param("id")
	feedID := c.Param("feed_id")
	ctx := c.Request.Context()

	sub, err := h.subRepo.GetActiveSubscription(ctx, userID, feedID)
	if err != nil {
		slog.Error("Database error", "operation", "get_active_subscription", "user_id", userID, "feed_id", feedID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if sub == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No active subscription for this feed"})
		return
	}

	if err := h.subRepo.DeactivateSubscription(ctx, sub.ID, time.Now().UTC()); err != nil {
		slog.Error("Database error", "operation", "deactivate_subscription", "subscription_id", sub.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to unsubscribe"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"subscription_id": sub.ID,
	})
}

func (h *Handler) ListEntries(c *gin.Context) {
	userID := c.Param("id")
	ctx := c.Request.Context()

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
			return
		}
		limit = n
	}
	cursor := c.Query("cursor")

	details, err := h.userEntryRepo.ListUserEntries(ctx, userID, cursor, limit)
	if err != nil {
		slog.Error("Database error", "operation", "list_user_entries", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	entries := make([]map[string]interface{}, 0, len(details))
	for _, d := range details {
		entries = append(entries, map[string]interface{}{
			"entry_id":       d.EntryID,
			"feed_id":        d.Entry.FeedID,
			"title":          d.Entry.Title,
			"author":         d.Entry.Author,
			"summary":        d.Entry.Summary,
			"url":            d.Entry.URL,
			"published_at":   d.Entry.PublishedAt,
			"read":           d.Read,
			"starred":        d.Starred,
			"score":          d.Score,
			"implicit_score": engine.ImplicitScore(d.Read, d.Starred),
		})
	}

	response := gin.H{
		"entries": entries,
		"total":   len(entries),
	}
	if len(details) == limit {
		response["next_cursor"] = details[len(details)-1].EntryID
	}

	c.JSON(http.StatusOK, response)
}

// UpdateEntryStates applies a batch of read/starred/score mutations.
// Each mutation resolves independently via its own timestamp; the
// response always carries the authoritative final state per entry.
func (h *Handler) UpdateEntryStates(c *gin.Context) {
	userID := c.Param("id")
	ctx := c.Request.Context()

	var req BatchMutationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if len(req.Mutations) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No mutations provided"})
		return
	}

	mutations := make([]engine.Mutation, 0, len(req.Mutations))
	for _, m := range req.Mutations {
		field := engine.Field(m.Field)
		switch field {
		case engine.FieldRead, engine.FieldStarred, engine.FieldScore:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown field: " + m.Field})
			return
		}
		mutations = append(mutations, engine.Mutation{
			EntryID:   m.EntryID,
			Field:     field,
			BoolValue: m.Value,
			Score:     m.Score,
			ChangedAt: time.UnixMilli(m.ChangedAt),
		})
	}

	states, err := h.state.ApplyBatch(ctx, userID, mutations)
	if err != nil {
		slog.Error("State reconciliation failed", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to apply mutations"})
		return
	}

	result := make([]EntryStateResponse, 0, len(states))
	for _, s := range states {
		result = append(result, EntryStateResponse{
			EntryID:       s.EntryID,
			Found:         s.Found,
			Read:          s.Read,
			Starred:       s.Starred,
			Score:         s.Score,
			ImplicitScore: s.ImplicitScore,
		})
	}

	c.JSON(http.StatusOK, gin.H{"states": result})
}
