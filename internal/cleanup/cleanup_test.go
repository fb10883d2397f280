package cleanup

import (
	"context"
	"errors"
	"testing"

	"capsuled/pkg/config"
	"capsuled/pkg/logger"
	"capsuled/pkg/models"
	"capsuled/pkg/store"
)

type fakeDeleter struct {
	fail    bool
	deleted []string
}

func (f *fakeDeleter) Delete(n *models.ExternalCleanupNotice) error {
	if f.fail {
		return errors.New("provider unavailable")
	}
	f.deleted = append(f.deleted, n.StorageKey)
	return nil
}

func setup(t *testing.T) {
	t.Helper()
	logger.Init()
	if err := store.Open(t.TempDir() + "/db"); err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
}

func queueNotice(t *testing.T, mem, key string) {
	t.Helper()
	if err := store.QueueExternalCleanup(&models.ExternalCleanupNotice{
		Memory:     mem,
		Capsule:    "cap_x",
		Provider:   "gdrive",
		StorageKey: key,
		QueuedTS:   1,
	}); err != nil {
		t.Fatalf("queue notice: %v", err)
	}
}

func TestRunOnceAcksDeletedNotices(t *testing.T) {
	setup(t)
	queueNotice(t, "mem_1", "file-1")
	queueNotice(t, "mem_2", "file-2")

	d := &fakeDeleter{}
	if err := RunOnce(config.CleanupConfig{}, d); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if len(d.deleted) != 2 {
		t.Fatalf("deleted = %d, want 2", len(d.deleted))
	}
	pending, err := store.ListExternalCleanup(0)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("pending after sweep = %d, want 0", len(pending))
	}
}

func TestRunOnceKeepsFailedNoticesQueued(t *testing.T) {
	setup(t)
	queueNotice(t, "mem_1", "file-1")

	if err := RunOnce(config.CleanupConfig{}, &fakeDeleter{fail: true}); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	pending, _ := store.ListExternalCleanup(0)
	if len(pending) != 1 {
		t.Fatalf("pending after failed sweep = %d, want 1", len(pending))
	}
}

func TestRunOnceDryRunLeavesQueue(t *testing.T) {
	setup(t)
	queueNotice(t, "mem_1", "file-1")

	d := &fakeDeleter{}
	if err := RunOnce(config.CleanupConfig{DryRun: true}, d); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if len(d.deleted) != 0 {
		t.Fatalf("dry run must not delete, got %d", len(d.deleted))
	}
	pending, _ := store.ListExternalCleanup(0)
	if len(pending) != 1 {
		t.Fatalf("pending after dry run = %d, want 1", len(pending))
	}
}

func TestRunOnceHonorsBatchSize(t *testing.T) {
	setup(t)
	queueNotice(t, "mem_1", "file-1")
	queueNotice(t, "mem_2", "file-2")
	queueNotice(t, "mem_3", "file-3")

	d := &fakeDeleter{}
	if err := RunOnce(config.CleanupConfig{BatchSize: 2}, d); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if len(d.deleted) != 2 {
		t.Fatalf("deleted = %d, want 2", len(d.deleted))
	}
	pending, _ := store.ListExternalCleanup(0)
	if len(pending) != 1 {
		t.Fatalf("pending after batched sweep = %d, want 1", len(pending))
	}
}

func TestStartRejectsInvalidCron(t *testing.T) {
	logger.Init()
	_, err := Start(context.Background(), config.CleanupConfig{Enabled: true, Cron: "not a cron"}, &fakeDeleter{})
	if err == nil {
		t.Fatalf("expected invalid cron error")
	}
}
