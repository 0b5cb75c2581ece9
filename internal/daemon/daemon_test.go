package daemon_test

import (
	"context"
	"strings"
	"testing"

	"docbridge/internal/daemon"
	"docbridge/internal/logging"
	"docbridge/internal/testsupport"
)

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Dispatcher.TickInterval = 3600

	d, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer d.Close()

	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("second Start must fail while running")
	}

	status, err := d.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !status.Running || !status.Dispatcher.Running {
		t.Fatalf("unexpected status: %#v", status)
	}
	if !strings.HasPrefix(status.LockFilePath, testsupport.BaseDir(cfg)) {
		t.Fatalf("lock file %q outside test base dir", status.LockFilePath)
	}

	d.Stop()
	status, err = d.Status(ctx)
	if err != nil {
		t.Fatalf("Status after stop failed: %v", err)
	}
	if status.Running {
		t.Fatal("daemon must report stopped after Stop")
	}
}

func TestSecondInstanceIsRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Dispatcher.TickInterval = 3600

	first, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer first.Close()

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer first.Stop()

	second, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New for second instance failed: %v", err)
	}
	defer second.Close()

	if err := second.Start(ctx); err == nil {
		second.Stop()
		t.Fatal("second instance must not acquire the lock")
	}
}
