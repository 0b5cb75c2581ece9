// Package orchestrator is the public entry point for task creation and
// status queries. It is the only component that inserts task records; the
// dispatcher owns every later transition.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"docbridge/internal/config"
	"docbridge/internal/dispatcher"
	"docbridge/internal/logging"
	"docbridge/internal/queue"
	"docbridge/internal/services"
)

// TargetInspector answers point queries about the target platform, used by
// the last-writer conflict check. Implemented by the Notion client.
type TargetInspector interface {
	PageLastEdited(ctx context.Context, pageID string) (time.Time, error)
}

// HealthReporter exposes dispatcher liveness. Implemented by the dispatcher.
type HealthReporter interface {
	Health(ctx context.Context) (dispatcher.Health, error)
}

// BatchItem records the outcome for one document id in a manual batch.
type BatchItem struct {
	DocumentID string
	Task       *queue.Task
	Existing   bool
	Err        error
}

// BatchResult summarizes a manual batch creation. The batch itself never
// fails; each document succeeds or fails independently.
type BatchResult struct {
	BatchID string
	Items   []BatchItem
}

// Created counts items that produced a new task.
func (r BatchResult) Created() int {
	n := 0
	for _, item := range r.Items {
		if item.Err == nil && !item.Existing {
			n++
		}
	}
	return n
}

// Orchestrator creates tasks and serves status reads.
type Orchestrator struct {
	cfg    *config.Config
	store  *queue.Store
	target TargetInspector
	health HealthReporter
	logger *slog.Logger
}

// New constructs an orchestrator. target and health may be nil in contexts
// that never call HandleSourceChange or DispatcherHealth.
func New(cfg *config.Config, store *queue.Store, target TargetInspector, health HealthReporter, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		store:  store,
		target: target,
		health: health,
		logger: logging.NewComponentLogger(logger, "orchestrator"),
	}
}

// CreateTask enqueues a sync for the given config binding. The direction
// must permit the source-to-target pair and the binding must be enabled.
// When a pending or processing task already exists for the document the
// existing task is returned instead of inserting a duplicate.
func (o *Orchestrator) CreateTask(ctx context.Context, syncCfg *queue.SyncConfig, source, target queue.Platform) (*queue.Task, error) {
	if syncCfg == nil {
		return nil, services.Wrap(services.ErrValidation, "orchestrator", "create task", "sync config is required", nil)
	}
	if !syncCfg.Enabled {
		return nil, services.Wrap(services.ErrValidation, "orchestrator", "create task", "sync config is disabled", nil)
	}
	if !syncCfg.Direction.Allows(source, target) {
		return nil, services.Wrap(services.ErrValidation, "orchestrator", "create task",
			"direction "+string(syncCfg.Direction)+" does not permit "+string(source)+" to "+string(target), nil)
	}
	return o.enqueue(ctx, source, target, syncCfg.DocumentID)
}

// CreateManualBatch enqueues one task per document id. Each id is handled
// independently; a bad id records an error on its item without aborting the
// rest.
func (o *Orchestrator) CreateManualBatch(ctx context.Context, documentIDs []string, source, target queue.Platform) BatchResult {
	result := BatchResult{BatchID: uuid.NewString()}
	ctx = services.WithRequestID(ctx, result.BatchID)
	logger := o.logger.With(logging.String(logging.FieldCorrelationID, result.BatchID))

	for _, id := range documentIDs {
		item := BatchItem{DocumentID: id}
		existing, task, err := o.enqueueDedup(ctx, source, target, id)
		item.Task = task
		item.Existing = existing
		item.Err = err
		if err != nil {
			logger.Warn("batch item rejected",
				logging.String(logging.FieldSourceID, id),
				logging.Error(err),
			)
		}
		result.Items = append(result.Items, item)
	}
	logger.Info("manual batch created",
		logging.Int("requested", len(documentIDs)),
		logging.Int("created", result.Created()),
	)
	return result
}

// Retry resets a failed task to pending with a fresh attempt budget. Tasks
// in any other state are rejected.
func (o *Orchestrator) Retry(ctx context.Context, taskID int64) (*queue.Task, error) {
	task, err := o.store.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, services.Wrap(services.ErrNotFound, "orchestrator", "retry", "no such task", nil)
	}
	reset, err := o.store.ResetForRetry(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !reset {
		return nil, services.Wrap(services.ErrValidation, "orchestrator", "retry",
			"task is "+string(task.Status)+", only failed tasks can be retried", nil)
	}
	o.logger.Info("task reset for retry", logging.String(logging.FieldTaskNumber, task.TaskNumber))
	return o.store.GetByID(ctx, taskID)
}

// HandleSourceChange is the webhook entry point for a changed source
// document. It enqueues a task when a matching enabled config permits the
// sync, applying the last-writer rule for bidirectional bindings: if the
// target page was edited after the last successful sync, the change is
// skipped so the newer target edit is not overwritten. A nil task with a
// nil error means the event was deliberately skipped.
func (o *Orchestrator) HandleSourceChange(ctx context.Context, platform queue.Platform, documentID string) (*queue.Task, error) {
	syncCfg, err := o.store.ConfigFor(ctx, platform, documentID)
	if err != nil {
		return nil, err
	}
	if syncCfg == nil || !syncCfg.Enabled {
		o.logger.Debug("change event without enabled config, ignoring",
			logging.String(logging.FieldSourceID, documentID),
		)
		return nil, nil
	}

	target := counterpart(platform)
	if !syncCfg.Direction.Allows(platform, target) {
		return nil, nil
	}

	if syncCfg.Direction == queue.DirectionBidirectional {
		skip, err := o.targetEditedSinceLastSync(ctx, platform, documentID, syncCfg)
		if err != nil {
			o.logger.Warn("conflict check failed, enqueueing anyway", logging.Error(err))
		} else if skip {
			o.logger.Warn("target edited after last sync, skipping auto-create",
				logging.String(logging.FieldSourceID, documentID),
			)
			return nil, nil
		}
	}

	return o.enqueue(ctx, platform, target, documentID)
}

// GetStatus returns the task record for an id.
func (o *Orchestrator) GetStatus(ctx context.Context, taskID int64) (*queue.Task, error) {
	task, err := o.store.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, services.Wrap(services.ErrNotFound, "orchestrator", "get status", "no such task", nil)
	}
	return task, nil
}

// DispatcherHealth reports loop liveness and queue counts.
func (o *Orchestrator) DispatcherHealth(ctx context.Context) (dispatcher.Health, error) {
	if o.health == nil {
		summary, err := o.store.Health(ctx)
		if err != nil {
			return dispatcher.Health{}, err
		}
		return dispatcher.Health{Queue: summary}, nil
	}
	return o.health.Health(ctx)
}

func (o *Orchestrator) enqueue(ctx context.Context, source, target queue.Platform, documentID string) (*queue.Task, error) {
	_, task, err := o.enqueueDedup(ctx, source, target, documentID)
	return task, err
}

// enqueueDedup inserts a pending task unless one is already in flight for
// the document. A prior successful task donates its target id so re-syncs
// update the existing page instead of creating a new one.
func (o *Orchestrator) enqueueDedup(ctx context.Context, source, target queue.Platform, documentID string) (existing bool, _ *queue.Task, _ error) {
	if documentID == "" {
		return false, nil, services.Wrap(services.ErrValidation, "orchestrator", "create task", "document id is required", nil)
	}
	if !source.Valid() || !target.Valid() || source == target {
		return false, nil, services.Wrap(services.ErrValidation, "orchestrator", "create task",
			"unsupported platform pair "+string(source)+" to "+string(target), nil)
	}

	prior, err := o.store.FindBySource(ctx, source, documentID)
	if err != nil {
		return false, nil, err
	}
	if prior != nil && (prior.Status == queue.StatusPending || prior.Status == queue.StatusProcessing) {
		return true, prior, nil
	}

	task := &queue.Task{
		SourcePlatform: source,
		TargetPlatform: target,
		SourceID:       documentID,
		ContentType:    queue.ContentDocument,
		MaxAttempts:    o.cfg.Dispatcher.MaxAttempts,
	}
	if prior != nil && prior.Status == queue.StatusSuccess {
		task.TargetID = prior.TargetID
		task.DocumentTitle = prior.DocumentTitle
	}

	created, err := o.store.NewTask(ctx, task)
	if err != nil {
		return false, nil, err
	}
	o.logger.Info("task enqueued",
		logging.String(logging.FieldTaskNumber, created.TaskNumber),
		logging.String(logging.FieldSourceID, created.SourceID),
	)
	return false, created, nil
}

// targetEditedSinceLastSync reports whether the target side changed after
// the last recorded successful sync of this document.
func (o *Orchestrator) targetEditedSinceLastSync(ctx context.Context, platform queue.Platform, documentID string, syncCfg *queue.SyncConfig) (bool, error) {
	if o.target == nil || syncCfg.LastSyncedAt == nil {
		return false, nil
	}
	prior, err := o.store.FindBySource(ctx, platform, documentID)
	if err != nil {
		return false, err
	}
	if prior == nil || prior.TargetID == "" {
		return false, nil
	}
	edited, err := o.target.PageLastEdited(ctx, prior.TargetID)
	if err != nil {
		return false, err
	}
	return edited.After(*syncCfg.LastSyncedAt), nil
}

func counterpart(platform queue.Platform) queue.Platform {
	if platform == queue.PlatformFeishu {
		return queue.PlatformNotion
	}
	return queue.PlatformFeishu
}
