package tasks

import (
	"testing"
	"time"
)

func TestNewTask(t *testing.T) {
	task := NewTask(TaskTypeRefreshFeed, "feed-1")

	if task.ID == "" {
		t.Error("Expected task to get an id")
	}
	if task.Type != TaskTypeRefreshFeed {
		t.Errorf("Expected type refresh_feed, got %s", task.Type)
	}
	if task.FeedID != "feed-1" {
		t.Errorf("Expected feed id 'feed-1', got '%s'", task.FeedID)
	}
	if task.MaxRetries != DefaultMaxRetries {
		t.Errorf("Expected max retries %d, got %d", DefaultMaxRetries, task.MaxRetries)
	}

	other := NewTask(TaskTypeMigrateSubscribers, "feed-1")
	if other.ID == task.ID {
		t.Error("Expected distinct task ids")
	}
}

func TestTaskRetryAccounting(t *testing.T) {
	task := NewTask(TaskTypeRefreshFeed, "feed-1")

	for i := 0; i < DefaultMaxRetries; i++ {
		if !task.CanRetry() {
			t.Fatalf("Expected retry %d to be allowed", i+1)
		}
		task.IncrementRetryCount()
	}

	if task.CanRetry() {
		t.Error("Expected retries to be exhausted")
	}
	if task.GetRetryCount() != DefaultMaxRetries {
		t.Errorf("Expected retry count %d, got %d", DefaultMaxRetries, task.GetRetryCount())
	}
}

func TestTaskDuration(t *testing.T) {
	task := NewTask(TaskTypeRefreshFeed, "feed-1")

	if task.GetDuration() != 0 {
		t.Error("Expected zero duration before start")
	}

	task.Start()
	time.Sleep(10 * time.Millisecond)

	if task.GetDuration() <= 0 {
		t.Error("Expected positive duration after start")
	}
}
