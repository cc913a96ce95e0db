package db

import (
	"encoding/json"
	"testing"
	"time"

	apperrors "github.com/clearpath-app/backend/internal/errors"
	"github.com/clearpath-app/backend/internal/models"
	"github.com/clearpath-app/backend/internal/uuid"
)

func enqueueTestEntry(t *testing.T, repo *Repository, localID string, op models.Operation) *models.SyncQueueEntry {
	t.Helper()
	entry := &models.SyncQueueEntry{
		StoreName: "progress_entries",
		LocalID:   models.UUID(localID),
		UserID:    "user-1",
		Payload:   json.RawMessage(`{"date":"2026-08-29"}`),
		Operation: op,
	}
	if err := repo.EnqueueSync(entry); err != nil {
		t.Fatalf("EnqueueSync failed: %v", err)
	}
	return entry
}

func TestEnqueueSyncAssignsIDAndTimestamp(t *testing.T) {
	repo := newTestRepo(t)
	entry := enqueueTestEntry(t, repo, "local-1", models.OperationCreate)

	if entry.ID == "" {
		t.Error("expected entry ID to be assigned")
	}
	if entry.CreatedAt == 0 {
		t.Error("expected CreatedAt to be stamped")
	}
}

func TestEnqueueSyncRejectsInvalidOperation(t *testing.T) {
	repo := newTestRepo(t)
	err := repo.EnqueueSync(&models.SyncQueueEntry{
		StoreName: "progress_entries",
		LocalID:   "local-1",
		Payload:   json.RawMessage(`{}`),
		Operation: "upsert",
	})
	if !apperrors.Is(err, apperrors.ErrInvalid) {
		t.Errorf("expected invalid-operation error, got %v", err)
	}
}

func TestEnqueueSyncRejectsMalformedEntryID(t *testing.T) {
	repo := newTestRepo(t)
	err := repo.EnqueueSync(&models.SyncQueueEntry{
		ID:        "not-a-uuid",
		StoreName: "progress_entries",
		LocalID:   "local-1",
		Payload:   json.RawMessage(`{}`),
		Operation: models.OperationCreate,
	})
	if !apperrors.Is(err, apperrors.ErrInvalid) {
		t.Errorf("expected invalid-id error, got %v", err)
	}
}

func TestEnqueueSyncKeepsCallerAssignedID(t *testing.T) {
	repo := newTestRepo(t)
	id := models.UUID(uuid.New())
	entry := &models.SyncQueueEntry{
		ID:        id,
		StoreName: "progress_entries",
		LocalID:   "local-1",
		Payload:   json.RawMessage(`{}`),
		Operation: models.OperationCreate,
	}
	if err := repo.EnqueueSync(entry); err != nil {
		t.Fatalf("EnqueueSync failed: %v", err)
	}
	if entry.ID != id {
		t.Errorf("expected caller-assigned ID kept, got %s", entry.ID)
	}
}

func TestEnqueueSyncCollapsesPendingEntries(t *testing.T) {
	repo := newTestRepo(t)

	enqueueTestEntry(t, repo, "local-1", models.OperationCreate)
	second := &models.SyncQueueEntry{
		StoreName: "progress_entries",
		LocalID:   "local-1",
		UserID:    "user-1",
		Payload:   json.RawMessage(`{"date":"2026-08-30"}`),
		Operation: models.OperationUpdate,
	}
	if err := repo.EnqueueSync(second); err != nil {
		t.Fatalf("second EnqueueSync failed: %v", err)
	}

	pending, err := repo.ListPendingQueue()
	if err != nil {
		t.Fatalf("ListPendingQueue failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending entry after collapse, got %d", len(pending))
	}
	if pending[0].Operation != models.OperationUpdate {
		t.Errorf("expected latest operation to win, got %s", pending[0].Operation)
	}
}

func TestEnqueueSyncKeepsSyncedHistory(t *testing.T) {
	repo := newTestRepo(t)

	first := enqueueTestEntry(t, repo, "local-1", models.OperationCreate)
	if err := repo.MarkQueueSynced(string(first.ID)); err != nil {
		t.Fatalf("MarkQueueSynced failed: %v", err)
	}

	// A new save must not disturb the already-synced entry.
	enqueueTestEntry(t, repo, "local-1", models.OperationUpdate)

	all, err := repo.ListQueue()
	if err != nil {
		t.Fatalf("ListQueue failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected synced history to survive, got %d entries", len(all))
	}
}

func TestListPendingQueueOrdersOldestFirst(t *testing.T) {
	repo := newTestRepo(t)

	for i, localID := range []string{"a", "b", "c"} {
		entry := &models.SyncQueueEntry{
			StoreName: "task_entries",
			LocalID:   models.UUID(localID),
			Payload:   json.RawMessage(`{}`),
			Operation: models.OperationCreate,
			CreatedAt: int64(100 + i),
		}
		if err := repo.EnqueueSync(entry); err != nil {
			t.Fatalf("EnqueueSync failed: %v", err)
		}
	}

	pending, err := repo.ListPendingQueue()
	if err != nil {
		t.Fatalf("ListPendingQueue failed: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(pending))
	}
	for i, want := range []string{"a", "b", "c"} {
		if string(pending[i].LocalID) != want {
			t.Errorf("position %d: expected %s, got %s", i, want, pending[i].LocalID)
		}
	}
}

func TestMarkQueueSyncedMissingEntry(t *testing.T) {
	repo := newTestRepo(t)
	err := repo.MarkQueueSynced("missing")
	if !apperrors.Is(err, apperrors.ErrRecordNotFound) {
		t.Errorf("expected record-not-found, got %v", err)
	}
}

func TestRecordQueueFailureGivesUpAtCap(t *testing.T) {
	repo := newTestRepo(t)
	entry := enqueueTestEntry(t, repo, "local-1", models.OperationCreate)

	for i := 1; i < models.MaxSyncAttempts; i++ {
		attempts, gaveUp, err := repo.RecordQueueFailure(string(entry.ID))
		if err != nil {
			t.Fatalf("RecordQueueFailure %d failed: %v", i, err)
		}
		if attempts != i || gaveUp {
			t.Fatalf("attempt %d: got attempts=%d gaveUp=%v", i, attempts, gaveUp)
		}
	}

	attempts, gaveUp, err := repo.RecordQueueFailure(string(entry.ID))
	if err != nil {
		t.Fatalf("final RecordQueueFailure failed: %v", err)
	}
	if attempts != models.MaxSyncAttempts || !gaveUp {
		t.Fatalf("expected give-up at attempt %d, got attempts=%d gaveUp=%v",
			models.MaxSyncAttempts, attempts, gaveUp)
	}

	// The abandoned entry leaves the pending set but keeps its tombstone.
	got, err := repo.GetQueueEntry(string(entry.ID))
	if err != nil {
		t.Fatalf("GetQueueEntry failed: %v", err)
	}
	if !got.Synced || !got.GaveUp {
		t.Errorf("expected synced+gave_up flags, got %+v", got)
	}

	pending, err := repo.ListPendingQueue()
	if err != nil {
		t.Fatalf("ListPendingQueue failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected abandoned entry out of the pending set, got %d", len(pending))
	}
}

func TestQueueStatusSeparatesPendingAndFailed(t *testing.T) {
	repo := newTestRepo(t)

	enqueueTestEntry(t, repo, "pending-1", models.OperationCreate)

	doomed := enqueueTestEntry(t, repo, "doomed-1", models.OperationCreate)
	for i := 0; i < models.MaxSyncAttempts; i++ {
		if _, _, err := repo.RecordQueueFailure(string(doomed.ID)); err != nil {
			t.Fatalf("RecordQueueFailure failed: %v", err)
		}
	}

	done := enqueueTestEntry(t, repo, "done-1", models.OperationCreate)
	if err := repo.MarkQueueSynced(string(done.ID)); err != nil {
		t.Fatalf("MarkQueueSynced failed: %v", err)
	}

	status, err := repo.QueueStatus()
	if err != nil {
		t.Fatalf("QueueStatus failed: %v", err)
	}
	if status.Total != 3 || status.Pending != 1 || status.Failed != 1 {
		t.Errorf("unexpected status: %+v", status)
	}
}

func TestCleanupQueueSparesUnsyncedEntries(t *testing.T) {
	repo := newTestRepo(t)

	old := &models.SyncQueueEntry{
		StoreName: "progress_entries",
		LocalID:   "old-synced",
		Payload:   json.RawMessage(`{}`),
		Operation: models.OperationCreate,
		CreatedAt: time.Now().AddDate(0, 0, -60).Unix(),
	}
	if err := repo.EnqueueSync(old); err != nil {
		t.Fatalf("EnqueueSync failed: %v", err)
	}
	if err := repo.MarkQueueSynced(string(old.ID)); err != nil {
		t.Fatalf("MarkQueueSynced failed: %v", err)
	}

	stale := &models.SyncQueueEntry{
		StoreName: "progress_entries",
		LocalID:   "old-pending",
		Payload:   json.RawMessage(`{}`),
		Operation: models.OperationCreate,
		CreatedAt: time.Now().AddDate(0, 0, -60).Unix(),
	}
	if err := repo.EnqueueSync(stale); err != nil {
		t.Fatalf("EnqueueSync failed: %v", err)
	}

	removed, err := repo.CleanupQueue(time.Now().AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("CleanupQueue failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed entry, got %d", removed)
	}

	// The stale pending entry must survive regardless of age.
	if _, err := repo.GetQueueEntry(string(stale.ID)); err != nil {
		t.Errorf("expected pending entry to survive cleanup: %v", err)
	}
}

func TestDeleteUserDataRequiresUserID(t *testing.T) {
	repo := newTestRepo(t)
	if err := repo.DeleteUserData(""); !apperrors.Is(err, apperrors.ErrInvalid) {
		t.Errorf("expected invalid-input error, got %v", err)
	}
}

func TestClearAllWipesEverything(t *testing.T) {
	repo := newTestRepo(t)

	entry := &models.ProgressEntry{
		SyncMeta: models.SyncMeta{UserID: "user-1", Operation: models.OperationCreate},
		Date:     "2026-08-29",
	}
	if err := repo.CreateProgressEntry(entry); err != nil {
		t.Fatalf("CreateProgressEntry failed: %v", err)
	}
	enqueueTestEntry(t, repo, string(entry.LocalID), models.OperationCreate)

	if err := repo.ClearAll(); err != nil {
		t.Fatalf("ClearAll failed: %v", err)
	}

	entries, err := repo.ListProgressEntries("user-1", "", "")
	if err != nil {
		t.Fatalf("ListProgressEntries failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no records after ClearAll, got %d", len(entries))
	}
	status, err := repo.QueueStatus()
	if err != nil {
		t.Fatalf("QueueStatus failed: %v", err)
	}
	if status.Total != 0 {
		t.Errorf("expected empty queue after ClearAll, got %+v", status)
	}
}

func TestStoreStatsCountsRows(t *testing.T) {
	repo := newTestRepo(t)

	for i := 0; i < 3; i++ {
		entry := &models.CravingEntry{
			SyncMeta:   models.SyncMeta{UserID: "user-1", Operation: models.OperationCreate},
			OccurredAt: int64(i),
			Intensity:  i,
		}
		if err := repo.CreateCravingEntry(entry); err != nil {
			t.Fatalf("CreateCravingEntry failed: %v", err)
		}
	}

	stats, err := repo.StoreStats()
	if err != nil {
		t.Fatalf("StoreStats failed: %v", err)
	}
	if stats["craving_entries"].Records != 3 {
		t.Errorf("expected 3 craving records, got %d", stats["craving_entries"].Records)
	}
	if stats["craving_entries"].EstimatedKB <= 0 {
		t.Error("expected non-zero estimated size")
	}
	if stats["progress_entries"].Records != 0 {
		t.Errorf("expected empty progress store, got %d", stats["progress_entries"].Records)
	}
}
