package services

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/clearpath-app/backend/internal/db"
	"github.com/clearpath-app/backend/internal/models"
	syncpkg "github.com/clearpath-app/backend/internal/sync"
)

func newTestService(t *testing.T) (*OfflineService, *db.Repository, *db.DB) {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "data"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := db.NewMigrator(database.DB).Up(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	repo := db.NewRepository(database.DB)
	t.Cleanup(func() { repo.Close() })
	return NewOfflineService(repo, nil, nil), repo, database
}

func TestSaveProgressAssignsLocalIDAndQueues(t *testing.T) {
	svc, repo, _ := newTestService(t)

	saved, err := svc.SaveProgress(&models.ProgressEntry{
		SyncMeta:  models.SyncMeta{UserID: "user-1"},
		Date:      "2026-08-29",
		SmokeFree: true,
		Mood:      4,
	})
	if err != nil {
		t.Fatalf("SaveProgress failed: %v", err)
	}
	if saved.LocalID == "" {
		t.Error("expected local ID to be assigned")
	}
	if saved.Synced {
		t.Error("expected saved record to be unsynced")
	}
	if saved.Operation != models.OperationCreate {
		t.Errorf("expected create operation, got %s", saved.Operation)
	}

	pending, err := repo.ListPendingQueue()
	if err != nil {
		t.Fatalf("ListPendingQueue failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending entry, got %d", len(pending))
	}
	if pending[0].StoreName != "progress_entries" {
		t.Errorf("unexpected store name: %s", pending[0].StoreName)
	}
	if pending[0].LocalID != saved.LocalID {
		t.Errorf("queue entry local ID mismatch: %s vs %s", pending[0].LocalID, saved.LocalID)
	}
	if pending[0].UserID != "user-1" {
		t.Errorf("queue entry user ID mismatch: %s", pending[0].UserID)
	}

	var snapshot models.ProgressEntry
	if err := json.Unmarshal(pending[0].Payload, &snapshot); err != nil {
		t.Fatalf("failed to decode payload snapshot: %v", err)
	}
	if snapshot.Date != "2026-08-29" || !snapshot.SmokeFree {
		t.Errorf("payload snapshot does not match saved record: %+v", snapshot)
	}
}

func TestSaveWithServerIDEnqueuesUpdate(t *testing.T) {
	svc, repo, _ := newTestService(t)

	saved, err := svc.SaveCraving(&models.CravingEntry{
		SyncMeta:   models.SyncMeta{UserID: "user-1", ServerID: "srv-42"},
		OccurredAt: time.Now().Unix(),
		Intensity:  7,
		Trigger:    "stress",
	})
	if err != nil {
		t.Fatalf("SaveCraving failed: %v", err)
	}
	if saved.Operation != models.OperationUpdate {
		t.Errorf("expected update operation for record with server ID, got %s", saved.Operation)
	}

	pending, err := repo.ListPendingQueue()
	if err != nil {
		t.Fatalf("ListPendingQueue failed: %v", err)
	}
	if len(pending) != 1 || pending[0].Operation != models.OperationUpdate {
		t.Fatalf("expected 1 pending update entry, got %+v", pending)
	}
}

func TestRepeatedSavesCollapseQueueEntries(t *testing.T) {
	svc, repo, _ := newTestService(t)

	saved, err := svc.SaveTask(&models.TaskEntry{
		SyncMeta: models.SyncMeta{UserID: "user-1"},
		Title:    "Go for a walk",
		DueDate:  "2026-08-30",
	})
	if err != nil {
		t.Fatalf("first SaveTask failed: %v", err)
	}

	saved.Title = "Go for a long walk"
	saved.Points = 10
	if _, err := svc.SaveTask(saved); err != nil {
		t.Fatalf("second SaveTask failed: %v", err)
	}

	pending, err := repo.ListPendingQueue()
	if err != nil {
		t.Fatalf("ListPendingQueue failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected repeated saves to collapse to 1 entry, got %d", len(pending))
	}

	var snapshot models.TaskEntry
	if err := json.Unmarshal(pending[0].Payload, &snapshot); err != nil {
		t.Fatalf("failed to decode payload snapshot: %v", err)
	}
	if snapshot.Title != "Go for a long walk" || snapshot.Points != 10 {
		t.Errorf("expected latest snapshot to win, got %+v", snapshot)
	}
}

func TestDeleteLocalOnlyRecordLeavesNoResidue(t *testing.T) {
	svc, repo, _ := newTestService(t)

	saved, err := svc.SaveConsumption(&models.ConsumptionLog{
		SyncMeta:  models.SyncMeta{UserID: "user-1"},
		ProductID: "patch-21mg",
		LoggedAt:  time.Now().Unix(),
		Quantity:  1,
	})
	if err != nil {
		t.Fatalf("SaveConsumption failed: %v", err)
	}

	if err := svc.Delete("consumption_logs", string(saved.LocalID), ""); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := repo.GetConsumptionLog(string(saved.LocalID)); err == nil {
		t.Error("expected record to be gone after local-only delete")
	}
	pending, err := repo.ListPendingQueue()
	if err != nil {
		t.Fatalf("ListPendingQueue failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected empty queue after local-only delete, got %d entries", len(pending))
	}
}

func TestDeleteSyncedRecordDefersRemoval(t *testing.T) {
	svc, repo, _ := newTestService(t)

	saved, err := svc.SaveProgress(&models.ProgressEntry{
		SyncMeta: models.SyncMeta{UserID: "user-1"},
		Date:     "2026-08-28",
	})
	if err != nil {
		t.Fatalf("SaveProgress failed: %v", err)
	}
	if err := repo.MarkRecordSynced("progress_entries", string(saved.LocalID), "srv-9"); err != nil {
		t.Fatalf("MarkRecordSynced failed: %v", err)
	}

	if err := svc.Delete("progress_entries", string(saved.LocalID), "srv-9"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	// Row survives, flagged for deferred deletion.
	got, err := repo.GetProgressEntry(string(saved.LocalID))
	if err != nil {
		t.Fatalf("expected record to survive deferred delete: %v", err)
	}
	if got.Operation != models.OperationDelete || got.Synced {
		t.Errorf("expected pending delete flags, got op=%s synced=%v", got.Operation, got.Synced)
	}

	pending, err := repo.ListPendingQueue()
	if err != nil {
		t.Fatalf("ListPendingQueue failed: %v", err)
	}
	if len(pending) != 1 || pending[0].Operation != models.OperationDelete {
		t.Fatalf("expected 1 pending delete entry, got %+v", pending)
	}
	if pending[0].UserID != "user-1" {
		t.Errorf("expected delete entry attributed to user-1, got %q", pending[0].UserID)
	}

	var payload map[string]string
	if err := json.Unmarshal(pending[0].Payload, &payload); err != nil {
		t.Fatalf("failed to decode delete payload: %v", err)
	}
	if payload["id"] != "srv-9" {
		t.Errorf("delete payload missing server ID: %v", payload)
	}
}

func TestSyncStatusAndPendingFlag(t *testing.T) {
	svc, _, _ := newTestService(t)

	has, err := svc.HasPendingSyncData()
	if err != nil {
		t.Fatalf("HasPendingSyncData failed: %v", err)
	}
	if has {
		t.Error("expected no pending data in fresh store")
	}

	if _, err := svc.SaveProgress(&models.ProgressEntry{
		SyncMeta: models.SyncMeta{UserID: "user-1"},
		Date:     "2026-08-29",
	}); err != nil {
		t.Fatalf("SaveProgress failed: %v", err)
	}

	has, err = svc.HasPendingSyncData()
	if err != nil {
		t.Fatalf("HasPendingSyncData failed: %v", err)
	}
	if !has {
		t.Error("expected pending data after save")
	}

	status, err := svc.GetSyncStatus()
	if err != nil {
		t.Fatalf("GetSyncStatus failed: %v", err)
	}
	if status.Total != 1 || status.Pending != 1 || status.Failed != 0 {
		t.Errorf("unexpected status: %+v", status)
	}
}

func TestCleanupOldSyncItems(t *testing.T) {
	svc, repo, database := newTestService(t)

	old := &models.SyncQueueEntry{
		StoreName: "progress_entries",
		LocalID:   models.UUID("local-old"),
		Payload:   json.RawMessage(`{}`),
		Operation: models.OperationCreate,
	}
	if err := repo.EnqueueSync(old); err != nil {
		t.Fatalf("EnqueueSync failed: %v", err)
	}
	if err := repo.MarkQueueSynced(string(old.ID)); err != nil {
		t.Fatalf("MarkQueueSynced failed: %v", err)
	}
	// Backdate past the default retention window.
	if _, err := database.Exec("UPDATE sync_queue SET created_at = ? WHERE id = ?",
		time.Now().AddDate(0, 0, -60).Unix(), old.ID); err != nil {
		t.Fatalf("failed to backdate entry: %v", err)
	}

	removed, err := svc.CleanupOldSyncItems(0)
	if err != nil {
		t.Fatalf("CleanupOldSyncItems failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed entry, got %d", removed)
	}
}

func TestClearUserDataScopesToUser(t *testing.T) {
	svc, repo, _ := newTestService(t)

	if _, err := svc.SaveProgress(&models.ProgressEntry{
		SyncMeta: models.SyncMeta{UserID: "user-a"},
		Date:     "2026-08-29",
	}); err != nil {
		t.Fatalf("SaveProgress user-a failed: %v", err)
	}
	if _, err := svc.SaveProgress(&models.ProgressEntry{
		SyncMeta: models.SyncMeta{UserID: "user-b"},
		Date:     "2026-08-29",
	}); err != nil {
		t.Fatalf("SaveProgress user-b failed: %v", err)
	}

	// A deferred delete for user-a must be wiped along with the rest.
	doomed, err := svc.SaveTask(&models.TaskEntry{
		SyncMeta: models.SyncMeta{UserID: "user-a"},
		Title:    "Review triggers",
	})
	if err != nil {
		t.Fatalf("SaveTask user-a failed: %v", err)
	}
	if err := repo.MarkRecordSynced("task_entries", string(doomed.LocalID), "srv-task-1"); err != nil {
		t.Fatalf("MarkRecordSynced failed: %v", err)
	}
	if err := svc.Delete("task_entries", string(doomed.LocalID), "srv-task-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if err := svc.ClearUserData("user-a"); err != nil {
		t.Fatalf("ClearUserData failed: %v", err)
	}

	gone, err := repo.ListProgressEntries("user-a", "", "")
	if err != nil {
		t.Fatalf("ListProgressEntries failed: %v", err)
	}
	if len(gone) != 0 {
		t.Errorf("expected user-a data gone, got %d entries", len(gone))
	}
	kept, err := repo.ListProgressEntries("user-b", "", "")
	if err != nil {
		t.Fatalf("ListProgressEntries failed: %v", err)
	}
	if len(kept) != 1 {
		t.Errorf("expected user-b data kept, got %d entries", len(kept))
	}

	entries, err := repo.ListQueue()
	if err != nil {
		t.Fatalf("ListQueue failed: %v", err)
	}
	for _, e := range entries {
		if e.UserID != "user-b" {
			t.Errorf("expected only user-b queue entries to survive, found %s owned by %q",
				e.ID, e.UserID)
		}
	}
}

func TestGetStorageStats(t *testing.T) {
	svc, _, _ := newTestService(t)

	if _, err := svc.SaveTask(&models.TaskEntry{
		SyncMeta: models.SyncMeta{UserID: "user-1"},
		Title:    "Drink water",
	}); err != nil {
		t.Fatalf("SaveTask failed: %v", err)
	}

	stats, err := svc.GetStorageStats()
	if err != nil {
		t.Fatalf("GetStorageStats failed: %v", err)
	}
	if stats["task_entries"].Records != 1 {
		t.Errorf("expected 1 task record, got %d", stats["task_entries"].Records)
	}
	if stats["task_entries"].EstimatedKB <= 0 {
		t.Error("expected non-zero estimated size for task store")
	}
	for _, store := range []string{"progress_entries", "craving_entries", "consumption_logs"} {
		if _, ok := stats[store]; !ok {
			t.Errorf("expected stats for empty store %s", store)
		}
	}
}

func TestGetProgressRangeFilter(t *testing.T) {
	svc, _, _ := newTestService(t)

	for _, day := range []string{"2026-08-01", "2026-08-15", "2026-08-29"} {
		if _, err := svc.SaveProgress(&models.ProgressEntry{
			SyncMeta: models.SyncMeta{UserID: "user-1"},
			Date:     day,
		}); err != nil {
			t.Fatalf("SaveProgress %s failed: %v", day, err)
		}
	}

	entries, err := svc.GetProgress("user-1", "2026-08-10", "2026-08-20")
	if err != nil {
		t.Fatalf("GetProgress failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Date != "2026-08-15" {
		t.Errorf("expected only the mid-month entry, got %+v", entries)
	}
}

func TestSyncDataDelegatesToEngine(t *testing.T) {
	svc, _, _ := newTestService(t)
	fake := &fakeEngine{completed: true}
	svc.engine = fake

	done, err := svc.SyncData(context.Background(), nil)
	if err != nil {
		t.Fatalf("SyncData failed: %v", err)
	}
	if !done || fake.calls != 1 {
		t.Errorf("expected delegated sync call, done=%v calls=%d", done, fake.calls)
	}
}

func TestSaveTriggersSyncPassWhenOnlineAndIdle(t *testing.T) {
	svc, _, _ := newTestService(t)
	fake := &fakeEngine{}
	svc.engine = fake

	if _, err := svc.SaveTask(&models.TaskEntry{
		SyncMeta: models.SyncMeta{UserID: "user-1"},
		Title:    "Stretch",
	}); err != nil {
		t.Fatalf("SaveTask failed: %v", err)
	}
	if fake.triggers != 1 {
		t.Errorf("expected 1 triggered pass after online save, got %d", fake.triggers)
	}
}

func TestSaveDoesNotTriggerSyncWhenOffline(t *testing.T) {
	svc, _, _ := newTestService(t)
	fake := &fakeEngine{}
	svc.engine = fake
	svc.online = func() bool { return false }

	if _, err := svc.SaveTask(&models.TaskEntry{
		SyncMeta: models.SyncMeta{UserID: "user-1"},
		Title:    "Stretch",
	}); err != nil {
		t.Fatalf("SaveTask failed: %v", err)
	}
	if fake.triggers != 0 {
		t.Errorf("expected no triggered pass while offline, got %d", fake.triggers)
	}
}

func TestSaveDoesNotTriggerSyncWhilePassRunning(t *testing.T) {
	svc, _, _ := newTestService(t)
	fake := &fakeEngine{state: syncpkg.StateRunning}
	svc.engine = fake

	if _, err := svc.SaveTask(&models.TaskEntry{
		SyncMeta: models.SyncMeta{UserID: "user-1"},
		Title:    "Stretch",
	}); err != nil {
		t.Fatalf("SaveTask failed: %v", err)
	}
	if fake.triggers != 0 {
		t.Errorf("expected no triggered pass while a pass runs, got %d", fake.triggers)
	}
}

type fakeEngine struct {
	calls     int
	triggers  int
	completed bool
	state     syncpkg.State
}

func (f *fakeEngine) Sync(ctx context.Context, progress syncpkg.ProgressFunc) (bool, error) {
	f.calls++
	return f.completed, nil
}

func (f *fakeEngine) TriggerAsync()        { f.triggers++ }
func (f *fakeEngine) Interrupt()           {}
func (f *fakeEngine) State() syncpkg.State { return f.state }
