// Package dispatcher polls the task queue on a fixed tick and drives due
// tasks through the sync pipeline with bounded concurrency.
package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"docbridge/internal/config"
	"docbridge/internal/logging"
	"docbridge/internal/pipeline"
	"docbridge/internal/queue"
	"docbridge/internal/services"
)

// Executor runs one claimed task. Implemented by the pipeline; faked in
// tests.
type Executor interface {
	Sync(ctx context.Context, task *queue.Task, opts pipeline.Options) (pipeline.Outcome, error)
}

// Health is a point-in-time snapshot of dispatcher state.
type Health struct {
	Running   bool
	LastTick  time.Time
	InFlight  int
	LastError string
	Queue     queue.HealthSummary
}

// placement is the per-document target resolution, captured from the sync
// config snapshot at tick time so workers never read live config state.
type placement struct {
	ParentID string
	Category string
}

// Dispatcher owns the polling loop.
type Dispatcher struct {
	cfg      *config.Config
	store    *queue.Store
	executor Executor
	logger   *slog.Logger

	mu         sync.Mutex
	running    bool
	cancel     context.CancelFunc
	workCancel context.CancelFunc
	wg         sync.WaitGroup
	lastTick   time.Time
	inFlight   int
	lastError  string
}

// New constructs a dispatcher over the given store and executor.
func New(cfg *config.Config, store *queue.Store, executor Executor, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg,
		store:    store,
		executor: executor,
		logger:   logging.NewComponentLogger(logger, "dispatcher"),
	}
}

// Start launches the polling loop. Tasks left in processing from a previous
// run are returned to pending first, so a crash never strands work.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return errors.New("dispatcher already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	// Workers get a context that survives graceful stop: cancelling the
	// loop must not abort a task mid-write, so only the drain timeout in
	// Stop cancels this one.
	workCtx, workCancel := context.WithCancel(context.WithoutCancel(ctx))
	d.workCancel = workCancel
	d.running = true
	d.wg.Add(1)
	d.mu.Unlock()

	if reset, err := d.store.ResetStuckProcessing(runCtx); err != nil {
		d.logger.Warn("stuck task recovery failed", logging.Error(err))
	} else if reset > 0 {
		d.logger.Info("recovered interrupted tasks", logging.Int64("count", reset))
	}

	go d.run(runCtx, workCtx)
	return nil
}

// Stop halts polling and lets in-flight tasks finish their current document.
// Only when the shutdown timeout elapses are the remaining executions
// force-aborted; their rows return to pending at next startup.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	cancel := d.cancel
	workCancel := d.workCancel
	d.running = false
	d.cancel = nil
	d.workCancel = nil
	d.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	timeout := time.Duration(d.cfg.Dispatcher.ShutdownTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	select {
	case <-done:
	case <-time.After(timeout):
		d.logger.Warn("shutdown timeout elapsed, aborting tasks still in flight")
		workCancel()
		<-done
	}
	workCancel()
}

// Health reports current dispatcher and queue state.
func (d *Dispatcher) Health(ctx context.Context) (Health, error) {
	summary, err := d.store.Health(ctx)
	if err != nil {
		return Health{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return Health{
		Running:   d.running,
		LastTick:  d.lastTick,
		InFlight:  d.inFlight,
		LastError: d.lastError,
		Queue:     summary,
	}, nil
}

// run drives the ticker. loopCtx ends the loop on stop; workCtx is what
// tasks execute under, so a stopping loop never cancels their I/O.
func (d *Dispatcher) run(loopCtx, workCtx context.Context) {
	defer d.wg.Done()

	interval := time.Duration(d.cfg.Dispatcher.TickInterval) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run one tick immediately so freshly enqueued work is not delayed by a
	// full interval after startup.
	d.tick(workCtx)
	for {
		select {
		case <-loopCtx.Done():
			return
		case <-ticker.C:
			d.tick(workCtx)
		}
	}
}

// Tick claims due tasks and runs them. Exposed for tests; the loop calls it
// on every interval.
func (d *Dispatcher) Tick(ctx context.Context) {
	d.tick(ctx)
}

func (d *Dispatcher) tick(ctx context.Context) {
	d.mu.Lock()
	d.lastTick = time.Now().UTC()
	limit := d.cfg.Dispatcher.MaxConcurrent
	d.mu.Unlock()
	if limit <= 0 {
		limit = 5
	}

	tasks, err := d.store.ClaimPending(ctx, limit, time.Now().UTC())
	if err != nil {
		if ctx.Err() == nil {
			d.logger.Error("claim pending tasks failed", logging.Error(err))
		}
		return
	}
	if len(tasks) == 0 {
		return
	}
	d.logger.Debug("claimed due tasks", logging.Int("count", len(tasks)))

	// One read-only config snapshot per tick; workers get placements by
	// value and never touch live config state.
	placements, err := d.configSnapshot(ctx)
	if err != nil {
		d.logger.Warn("sync config snapshot failed, using default placement", logging.Error(err))
	}

	var batch sync.WaitGroup
	for _, task := range tasks {
		batch.Add(1)
		d.mu.Lock()
		d.inFlight++
		d.mu.Unlock()
		go func(task *queue.Task, place placement) {
			defer batch.Done()
			defer func() {
				d.mu.Lock()
				d.inFlight--
				d.mu.Unlock()
			}()
			d.process(ctx, task, place)
		}(task, d.placementFor(task, placements))
	}
	batch.Wait()
}

// configSnapshot loads all enabled bindings into a placement map keyed by
// platform and document id.
func (d *Dispatcher) configSnapshot(ctx context.Context) (map[string]placement, error) {
	configs, err := d.store.ListEnabledConfigs(ctx)
	if err != nil {
		return nil, err
	}
	placements := make(map[string]placement, len(configs))
	for _, cfg := range configs {
		placements[placementKey(cfg.Platform, cfg.DocumentID)] = placement{
			ParentID: cfg.NotionParentID,
			Category: cfg.Category,
		}
	}
	return placements, nil
}

func placementKey(platform queue.Platform, documentID string) string {
	return string(platform) + "/" + documentID
}

func (d *Dispatcher) process(ctx context.Context, task *queue.Task, place placement) {
	logger := d.logger.With(
		logging.String(logging.FieldTaskNumber, task.TaskNumber),
		logging.String(logging.FieldSourceID, task.SourceID),
	)
	logger.Info("task started", logging.Int("attempt", task.AttemptCount))

	opts := pipeline.Options{ParentID: place.ParentID, Category: place.Category}
	outcome, err := d.executor.Sync(ctx, task, opts)
	if err != nil {
		d.handleFailure(ctx, task, logger, err)
		return
	}

	if err := d.store.MarkSuccess(ctx, task.ID, outcome.TargetID, outcome.Title, outcome.PartialNote); err != nil {
		logger.Error("mark success failed", logging.Error(err))
		return
	}
	if err := d.store.SetLastSynced(ctx, task.SourcePlatform, task.SourceID, time.Now().UTC()); err != nil {
		logger.Warn("record last synced failed", logging.Error(err))
	}
	if outcome.PartialNote != "" {
		logger.Warn("task completed with degraded media", logging.String("note", outcome.PartialNote))
	} else {
		logger.Info("task completed",
			logging.String(logging.FieldTargetID, outcome.TargetID),
			logging.Int("nodes", outcome.Nodes),
		)
	}
}

// placementFor resolves the target parent and category from the tick's
// snapshot, falling back to the global default parent.
func (d *Dispatcher) placementFor(task *queue.Task, placements map[string]placement) placement {
	place := placement{ParentID: d.cfg.Notion.ParentID}
	if found, ok := placements[placementKey(task.SourcePlatform, task.SourceID)]; ok {
		if found.ParentID != "" {
			place.ParentID = found.ParentID
		}
		place.Category = found.Category
	}
	return place
}

func (d *Dispatcher) handleFailure(ctx context.Context, task *queue.Task, logger *slog.Logger, syncErr error) {
	message := syncErr.Error()
	d.mu.Lock()
	d.lastError = message
	d.mu.Unlock()

	if !services.IsTransient(syncErr) {
		logger.Error("task failed permanently", logging.Error(syncErr))
		if err := d.store.MarkFailed(ctx, task.ID, message); err != nil {
			logger.Error("mark failed errored", logging.Error(err))
		}
		return
	}

	maxAttempts := task.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = d.cfg.Dispatcher.MaxAttempts
	}
	if task.AttemptCount >= maxAttempts {
		logger.Error("task exhausted retry budget",
			logging.Error(syncErr),
			logging.Int("attempts", task.AttemptCount),
		)
		if err := d.store.MarkFailed(ctx, task.ID, message); err != nil {
			logger.Error("mark failed errored", logging.Error(err))
		}
		return
	}

	backoff := d.backoffFor(task.AttemptCount)
	logger.Warn("task failed, retrying",
		logging.Error(syncErr),
		logging.Int("attempt", task.AttemptCount),
		logging.Duration("backoff", backoff),
	)
	if err := d.store.MarkRetry(ctx, task.ID, message, backoff); err != nil {
		logger.Error("mark retry errored", logging.Error(err))
	}
}

// backoffFor doubles the base delay per completed attempt, bounded by the
// configured cap.
func (d *Dispatcher) backoffFor(attempt int) time.Duration {
	base := time.Duration(d.cfg.Dispatcher.BackoffBase) * time.Second
	if base <= 0 {
		base = 30 * time.Second
	}
	ceiling := time.Duration(d.cfg.Dispatcher.BackoffCap) * time.Second
	if ceiling <= 0 {
		ceiling = 10 * time.Minute
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= ceiling {
			return ceiling
		}
	}
	if delay > ceiling {
		return ceiling
	}
	return delay
}
