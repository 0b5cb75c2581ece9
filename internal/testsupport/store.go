package testsupport

import (
	"context"
	"testing"

	"docbridge/internal/config"
	"docbridge/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewTask creates a pending Feishu to Notion task for tests.
func NewTask(t testing.TB, store *queue.Store, sourceID string) *queue.Task {
	t.Helper()

	task, err := store.NewTask(context.Background(), &queue.Task{
		SourcePlatform: queue.PlatformFeishu,
		TargetPlatform: queue.PlatformNotion,
		SourceID:       sourceID,
		MaxAttempts:    3,
	})
	if err != nil {
		t.Fatalf("store.NewTask: %v", err)
	}
	return task
}
