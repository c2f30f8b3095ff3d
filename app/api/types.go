package api

import (
	"feedsync/app/database"
	"feedsync/app/engine"
)

type Handler struct {
	feedRepo      database.FeedRepository
	entryRepo     database.EntryRepository
	subRepo       database.SubscriptionRepository
	userEntryRepo database.UserEntryRepository
	visibility    *engine.VisibilityReconciler
	state         *engine.StateReconciler
}

type SubscribeRequest struct {
	URL string `json:"url" binding:"required"`
}

type MutationRequest struct {
	EntryID   string `json:"entry_id" binding:"required"`
	Field     string `json:"field" binding:"required"`
	Value     bool   `json:"value"`
	Score     *int   `json:"score"`
	ChangedAt int64  `json:"changed_at" binding:"required"` // Unix milliseconds
}

type BatchMutationRequest struct {
	Mutations []MutationRequest `json:"mutations" binding:"required"`
}

type EntryStateResponse struct {
	EntryID       string `json:"entry_id"`
	Found         bool   `json:"found"`
	Read          bool   `json:"read"`
	Starred       bool   `json:"starred"`
	Score         *int   `json:"score"`
	ImplicitScore int    `json:"implicit_score"`
}
