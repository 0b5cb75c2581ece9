// Package daemon wires the full sync engine together behind a
// single-instance lock: platform clients, media cache, pipeline,
// dispatcher, and orchestrator sharing one store.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"docbridge/internal/config"
	"docbridge/internal/dispatcher"
	"docbridge/internal/logging"
	"docbridge/internal/mediacache"
	"docbridge/internal/orchestrator"
	"docbridge/internal/pipeline"
	"docbridge/internal/queue"
	"docbridge/internal/services/feishu"
	"docbridge/internal/services/notion"
	"docbridge/internal/services/qiniu"
)

// Daemon owns the background sync engine for one data directory.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *queue.Store

	dispatcher   *dispatcher.Dispatcher
	orchestrator *orchestrator.Orchestrator

	lockPath string
	lock     *flock.Flock
	running  atomic.Bool
}

// Status reports daemon runtime information.
type Status struct {
	Running      bool
	Dispatcher   dispatcher.Health
	QueueDBPath  string
	LockFilePath string
}

// New opens the store and assembles the engine. Close releases the store.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || logger == nil {
		return nil, errors.New("daemon requires config and logger")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	store, err := queue.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	source := feishu.NewClient(cfg.Feishu, logger)
	target := notion.NewClient(cfg.Notion, logger)
	uploader := qiniu.NewClient(cfg.Storage, logger)
	cache := mediacache.New(store, uploader, cfg.Media, logger)
	pipe := pipeline.New(source, target, cache, logger)

	disp := dispatcher.New(cfg, store, pipe, logger)
	orch := orchestrator.New(cfg, store, target, disp, logger)

	lockPath := filepath.Join(cfg.Paths.DataDir, "docbridged.lock")
	return &Daemon{
		cfg:          cfg,
		logger:       logging.NewComponentLogger(logger, "daemon"),
		store:        store,
		dispatcher:   disp,
		orchestrator: orch,
		lockPath:     lockPath,
		lock:         flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock and launches the dispatcher loop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another docbridge daemon instance is already running")
	}

	if err := d.dispatcher.Start(ctx); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("start dispatcher: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String("lock", d.lockPath),
		logging.String("db", d.store.Path()),
	)
	return nil
}

// Stop drains the dispatcher and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.dispatcher.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("release daemon lock failed", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close releases the store. Call after Stop.
func (d *Daemon) Close() error {
	return d.store.Close()
}

// Orchestrator exposes the task creation and status entry point.
func (d *Daemon) Orchestrator() *orchestrator.Orchestrator {
	return d.orchestrator
}

// Store exposes the shared task store.
func (d *Daemon) Store() *queue.Store {
	return d.store
}

// Status reports lock, store, and dispatcher state.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	health, err := d.dispatcher.Health(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Running:      d.running.Load(),
		Dispatcher:   health,
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
	}, nil
}
