package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"feedsync/app/cfg"
	"feedsync/app/database"
	"feedsync/app/engine"
	"feedsync/app/feed"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

type Scheduler struct {
	feedRepo        database.FeedRepository
	subRepo         database.SubscriptionRepository
	httpClient      *http.Client
	parser          *feed.Parser
	processor       *engine.Processor
	tracker         *engine.RedirectTracker
	migrator        *engine.Migrator
	visibility      *engine.VisibilityReconciler
	userAgent       string
	interval        time.Duration
	refreshInterval time.Duration
	workerCount     int
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	taskQueue       chan TaskInterface

	// Fetches for one feed are serialized: a feed stays in flight from
	// enqueue until its task finishes (including retries), so a single
	// worker owns the feed's hash-compare-and-write sequence at a time.
	mu       sync.Mutex
	inFlight map[string]bool
}

func NewScheduler(feedRepo database.FeedRepository, subRepo database.SubscriptionRepository,
	httpClient *http.Client, parser *feed.Parser, processor *engine.Processor,
	tracker *engine.RedirectTracker, migrator *engine.Migrator,
	visibility *engine.VisibilityReconciler) TaskSchedulerInterface {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := cfg.Get()

	return &Scheduler{
		feedRepo:        feedRepo,
		subRepo:         subRepo,
		httpClient:      httpClient,
		parser:          parser,
		processor:       processor,
		tracker:         tracker,
		migrator:        migrator,
		visibility:      visibility,
		userAgent:       cfg.UserAgent,
		interval:        time.Duration(cfg.SchedulerInterval) * time.Second,
		refreshInterval: time.Duration(cfg.RefreshInterval) * time.Second,
		workerCount:     cfg.WorkerCount,
		ctx:             ctx,
		cancel:          cancel,
		taskQueue:       make(chan TaskInterface, 300),
		inFlight:        make(map[string]bool),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueDueFeeds()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueDueFeeds()
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	close(s.taskQueue)
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (s *Scheduler) enqueueDueFeeds() {
	feeds, err := s.feedRepo.ListFeedsDueForRefresh(s.ctx, time.Now().UTC(), 50)
	if err != nil {
		slog.Warn("Failed to list feeds due for refresh", "error", err)
		return
	}
	if len(feeds) == 0 {
		slog.Debug("No feeds due for refresh")
		return
	}

	slog.Debug("Scheduling feed refreshes", "count", len(feeds))

	for _, f := range feeds {
		if !s.acquireFeed(f.ID) {
			slog.Debug("Feed already in flight, skipping", "feed_id", f.ID)
			continue
		}

		task := NewRefreshFeedTask(f.ID, s, s.httpClient, s.parser, s.processor,
			s.tracker, s.visibility, s.feedRepo, s.userAgent, s.refreshInterval)
		if err := s.EnqueueTask(task); err != nil {
			s.releaseFeed(f.ID)
			slog.Warn("Failed to enqueue RefreshFeedTask", "feed_id", f.ID, "error", err)
		}
	}
}

// enqueueMigration spawns a MigrateSubscribersTask for a confirmed
// redirect. Duplicate enqueues are harmless: Migrate is idempotent and
// a lost race with an existing target feed surfaces as a conflict error
// that the retry loop handles.
func (s *Scheduler) enqueueMigration(oldFeedID, targetURL string) error {
	task := NewMigrateSubscribersTask(oldFeedID, targetURL, s.migrator,
		s.visibility, s.feedRepo, s.subRepo)
	return s.EnqueueTask(task)
}

func (s *Scheduler) acquireFeed(feedID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[feedID] {
		return false
	}
	s.inFlight[feedID] = true
	return true
}

func (s *Scheduler) releaseFeed(feedID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, feedID)
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task, ok := <-s.taskQueue:
			if !ok {
				return
			}
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	err := task.Execute(taskCtx)

	if err == nil {
		s.finishTask(task)
		return
	}

	slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

	if !task.CanRetry() {
		slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		s.finishTask(task)
		return
	}

	task.IncrementRetryCount()
	retryDelay := time.Duration(1<<uint(task.GetRetryCount()-1)) * time.Second
	if retryDelay > 30*time.Second {
		retryDelay = 30 * time.Second
	}

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "feed_id", task.GetFeedID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

	go func() {
		time.Sleep(retryDelay)
		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
			s.finishTask(task)
			return
		default:
			if retryErr := s.EnqueueTask(task); retryErr != nil {
				slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
				s.finishTask(task)
			}
		}
	}()
}

func (s *Scheduler) finishTask(task TaskInterface) {
	if task.GetType() == TaskTypeRefreshFeed {
		s.releaseFeed(task.GetFeedID())
	}
}
