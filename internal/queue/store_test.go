package queue_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"docbridge/internal/queue"
	"docbridge/internal/testsupport"
)

func TestOpenCreatesSchemaAndAssignsTaskNumber(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	task, err := store.NewTask(ctx, &queue.Task{
		SourcePlatform: queue.PlatformFeishu,
		TargetPlatform: queue.PlatformNotion,
		SourceID:       "doccn123",
		MaxAttempts:    3,
	})
	if err != nil {
		t.Fatalf("NewTask failed: %v", err)
	}
	if task.ID == 0 {
		t.Fatal("expected task ID to be assigned")
	}
	wantPrefix := "SYNC-" + time.Now().UTC().Format("20060102")
	if !strings.HasPrefix(task.TaskNumber, wantPrefix) {
		t.Fatalf("task number %q missing prefix %q", task.TaskNumber, wantPrefix)
	}
	if task.Status != queue.StatusPending {
		t.Fatalf("new task status = %s, want pending", task.Status)
	}

	fetched, err := store.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched == nil || fetched.SourceID != "doccn123" {
		t.Fatalf("unexpected fetched task: %#v", fetched)
	}

	found, err := store.FindBySource(ctx, queue.PlatformFeishu, "doccn123")
	if err != nil {
		t.Fatalf("FindBySource failed: %v", err)
	}
	if found == nil || found.ID != task.ID {
		t.Fatalf("expected to find inserted task, got %#v", found)
	}
}

func TestClaimPendingRespectsDueTime(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	ready := testsupport.NewTask(t, store, "doc-ready")
	deferred := testsupport.NewTask(t, store, "doc-deferred")
	future := time.Now().UTC().Add(time.Hour)
	deferred.NextAttemptAt = &future
	if err := store.Update(ctx, deferred); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	claimed, err := store.ClaimPending(ctx, 5, time.Now().UTC())
	if err != nil {
		t.Fatalf("ClaimPending failed: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != ready.ID {
		t.Fatalf("expected only the due task, got %d claims", len(claimed))
	}
	if claimed[0].Status != queue.StatusProcessing {
		t.Fatalf("claimed task status = %s, want processing", claimed[0].Status)
	}
	if claimed[0].AttemptCount != 1 {
		t.Fatalf("claimed task attempts = %d, want 1", claimed[0].AttemptCount)
	}
}

func TestClaimPendingNeverDoubleClaims(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	const taskCount = 8
	for i := 0; i < taskCount; i++ {
		testsupport.NewTask(t, store, fmt.Sprintf("doc-%d", i))
	}

	const claimants = 4
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed = make(map[int64]int)
	)
	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tasks, err := store.ClaimPending(ctx, taskCount, time.Now().UTC())
			if err != nil {
				t.Errorf("ClaimPending failed: %v", err)
				return
			}
			mu.Lock()
			for _, task := range tasks {
				claimed[task.ID]++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(claimed) != taskCount {
		t.Fatalf("claimed %d distinct tasks, want %d", len(claimed), taskCount)
	}
	for id, count := range claimed {
		if count != 1 {
			t.Fatalf("task %d claimed %d times", id, count)
		}
	}
}

func TestLifecycleTransitions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	task := testsupport.NewTask(t, store, "doc-lifecycle")
	claimed, err := store.ClaimPending(ctx, 1, time.Now().UTC())
	if err != nil || len(claimed) != 1 {
		t.Fatalf("ClaimPending: %v (claims %d)", err, len(claimed))
	}

	if err := store.MarkRetry(ctx, task.ID, "upstream timeout", time.Minute); err != nil {
		t.Fatalf("MarkRetry failed: %v", err)
	}
	retried, err := store.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if retried.Status != queue.StatusPending {
		t.Fatalf("status after retry = %s, want pending", retried.Status)
	}
	if retried.NextAttemptAt == nil || !retried.NextAttemptAt.After(time.Now().UTC().Add(30*time.Second)) {
		t.Fatalf("expected next attempt pushed out, got %v", retried.NextAttemptAt)
	}
	if retried.Due(time.Now().UTC()) {
		t.Fatal("retried task should not be due before its backoff elapses")
	}

	claimed, err = store.ClaimPending(ctx, 1, time.Now().UTC().Add(2*time.Minute))
	if err != nil || len(claimed) != 1 {
		t.Fatalf("second claim: %v (claims %d)", err, len(claimed))
	}
	if claimed[0].AttemptCount != 2 {
		t.Fatalf("attempts after second claim = %d, want 2", claimed[0].AttemptCount)
	}

	if err := store.MarkFailed(ctx, task.ID, "document not found"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}
	failed, _ := store.GetByID(ctx, task.ID)
	if failed.Status != queue.StatusFailed || failed.ErrorMessage != "document not found" {
		t.Fatalf("unexpected failed task: %#v", failed)
	}

	reset, err := store.ResetForRetry(ctx, task.ID)
	if err != nil {
		t.Fatalf("ResetForRetry failed: %v", err)
	}
	if !reset {
		t.Fatal("expected failed task to be reset")
	}
	restored, _ := store.GetByID(ctx, task.ID)
	if restored.Status != queue.StatusPending || restored.AttemptCount != 0 || restored.ErrorMessage != "" {
		t.Fatalf("unexpected restored task: %#v", restored)
	}
}

func TestMarkSuccessRecordsTargetAndPartialNote(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	task := testsupport.NewTask(t, store, "doc-success")
	if _, err := store.ClaimPending(ctx, 1, time.Now().UTC()); err != nil {
		t.Fatalf("ClaimPending failed: %v", err)
	}
	if err := store.MarkSuccess(ctx, task.ID, "notion-page-9", "Weekly Notes", "2 of 3 images relocated"); err != nil {
		t.Fatalf("MarkSuccess failed: %v", err)
	}

	done, err := store.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if done.Status != queue.StatusSuccess {
		t.Fatalf("status = %s, want success", done.Status)
	}
	if done.TargetID != "notion-page-9" || done.DocumentTitle != "Weekly Notes" {
		t.Fatalf("unexpected success fields: %#v", done)
	}
	if done.ErrorMessage != "2 of 3 images relocated" {
		t.Fatalf("partial note = %q", done.ErrorMessage)
	}
}

func TestResetForRetryIgnoresNonFailedTasks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	task := testsupport.NewTask(t, store, "doc-pending")
	reset, err := store.ResetForRetry(ctx, task.ID)
	if err != nil {
		t.Fatalf("ResetForRetry failed: %v", err)
	}
	if reset {
		t.Fatal("pending task must not be resettable")
	}
}

func TestRetryFailedBatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	var failedIDs []int64
	for i := 0; i < 3; i++ {
		task := testsupport.NewTask(t, store, fmt.Sprintf("doc-fail-%d", i))
		if _, err := store.ClaimPending(ctx, 1, time.Now().UTC()); err != nil {
			t.Fatalf("ClaimPending failed: %v", err)
		}
		if err := store.MarkFailed(ctx, task.ID, "boom"); err != nil {
			t.Fatalf("MarkFailed failed: %v", err)
		}
		failedIDs = append(failedIDs, task.ID)
	}

	n, err := store.RetryFailed(ctx, failedIDs[0], failedIDs[1])
	if err != nil {
		t.Fatalf("RetryFailed failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("retried %d tasks, want 2", n)
	}

	n, err = store.RetryFailed(ctx)
	if err != nil {
		t.Fatalf("RetryFailed (all) failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("retried %d remaining tasks, want 1", n)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[queue.StatusFailed] != 0 || stats[queue.StatusPending] != 3 {
		t.Fatalf("unexpected stats after retry: %#v", stats)
	}
}

func TestResetStuckProcessing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	task := testsupport.NewTask(t, store, "doc-stuck")
	if _, err := store.ClaimPending(ctx, 1, time.Now().UTC()); err != nil {
		t.Fatalf("ClaimPending failed: %v", err)
	}

	n, err := store.ResetStuckProcessing(ctx)
	if err != nil {
		t.Fatalf("ResetStuckProcessing failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("reset %d tasks, want 1", n)
	}
	recovered, _ := store.GetByID(ctx, task.ID)
	if recovered.Status != queue.StatusPending {
		t.Fatalf("status = %s, want pending", recovered.Status)
	}
}

func TestHealthAndClear(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	done := testsupport.NewTask(t, store, "doc-done")
	testsupport.NewTask(t, store, "doc-wait")
	if _, err := store.ClaimPending(ctx, 1, time.Now().UTC()); err != nil {
		t.Fatalf("ClaimPending failed: %v", err)
	}
	if err := store.MarkSuccess(ctx, done.ID, "page-1", "", ""); err != nil {
		t.Fatalf("MarkSuccess failed: %v", err)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Total != 2 || health.Success != 1 || health.Pending != 1 {
		t.Fatalf("unexpected health: %#v", health)
	}

	removed, err := store.ClearSuccess(ctx)
	if err != nil {
		t.Fatalf("ClearSuccess failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("cleared %d tasks, want 1", removed)
	}
	remaining, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("remaining tasks = %d, want 1", len(remaining))
	}
}

func TestSyncConfigUpsertAndLastSynced(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	stored, err := store.UpsertSyncConfig(ctx, &queue.SyncConfig{
		Platform:   queue.PlatformFeishu,
		DocumentID: "doccn-sync",
		Direction:  queue.DirectionFeishuToNotion,
		Enabled:    true,
		Category:   "notes",
	})
	if err != nil {
		t.Fatalf("UpsertSyncConfig failed: %v", err)
	}
	if stored.ID == 0 || stored.Category != "notes" {
		t.Fatalf("unexpected stored config: %#v", stored)
	}

	stored.Category = "journal"
	stored.NotionParentID = "parent-42"
	updated, err := store.UpsertSyncConfig(ctx, stored)
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if updated.ID != stored.ID {
		t.Fatalf("upsert created a new row: %d != %d", updated.ID, stored.ID)
	}
	if updated.Category != "journal" || updated.NotionParentID != "parent-42" {
		t.Fatalf("unexpected updated config: %#v", updated)
	}

	syncedAt := time.Now().UTC().Truncate(time.Second)
	if err := store.SetLastSynced(ctx, queue.PlatformFeishu, "doccn-sync", syncedAt); err != nil {
		t.Fatalf("SetLastSynced failed: %v", err)
	}
	reloaded, err := store.ConfigFor(ctx, queue.PlatformFeishu, "doccn-sync")
	if err != nil {
		t.Fatalf("ConfigFor failed: %v", err)
	}
	if reloaded.LastSyncedAt == nil || !reloaded.LastSyncedAt.Equal(syncedAt) {
		t.Fatalf("last synced = %v, want %v", reloaded.LastSyncedAt, syncedAt)
	}

	enabled, err := store.ListEnabledConfigs(ctx)
	if err != nil {
		t.Fatalf("ListEnabledConfigs failed: %v", err)
	}
	if len(enabled) != 1 {
		t.Fatalf("enabled configs = %d, want 1", len(enabled))
	}
}

func TestRecordMediaDeduplicatesByHash(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first, err := store.RecordMedia(ctx, &queue.MediaMapping{
		ContentHash:  "abc123",
		OriginURL:    "https://source.example/img-a.png",
		RelocatedURL: "https://cdn.example/images/abc123.png",
		ByteSize:     2048,
		MimeType:     "image/png",
	})
	if err != nil {
		t.Fatalf("RecordMedia failed: %v", err)
	}
	if first.ReferenceCount != 1 {
		t.Fatalf("reference count = %d, want 1", first.ReferenceCount)
	}

	second, err := store.RecordMedia(ctx, &queue.MediaMapping{
		ContentHash:  "abc123",
		OriginURL:    "https://source.example/img-b.png",
		RelocatedURL: "https://cdn.example/images/elsewhere.png",
		ByteSize:     2048,
		MimeType:     "image/png",
	})
	if err != nil {
		t.Fatalf("second RecordMedia failed: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("duplicate hash created a new row")
	}
	if second.RelocatedURL != first.RelocatedURL {
		t.Fatalf("stored URL changed on conflict: %q", second.RelocatedURL)
	}
	if second.ReferenceCount != 2 {
		t.Fatalf("reference count = %d, want 2", second.ReferenceCount)
	}

	count, bytes, err := store.MediaStats(ctx)
	if err != nil {
		t.Fatalf("MediaStats failed: %v", err)
	}
	if count != 1 || bytes != 2048 {
		t.Fatalf("media stats = (%d, %d), want (1, 2048)", count, bytes)
	}
}
