// Package main provides the FFI bridge for embedding the offline store
// in a host application (Android/iOS/Electron via Dart or JS FFI).
// Build as a shared library:
//
//	go build -buildmode=c-shared -o libclearpath.so ./cmd/mobile
//
// Every exported function uses the C calling convention. Functions that
// return a *C.char hand ownership to the caller, who must release it
// with FreeString.
package main

/*
#include <stdlib.h>
*/
import "C"
import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"unsafe"

	"github.com/clearpath-app/backend/internal/db"
	"github.com/clearpath-app/backend/internal/logging"
	"github.com/clearpath-app/backend/internal/models"
	"github.com/clearpath-app/backend/internal/services"
	syncpkg "github.com/clearpath-app/backend/internal/sync"
)

var (
	mu       sync.Mutex
	database *db.DB
	svc      *services.OfflineService
	monitor  *syncpkg.Monitor
	engine   *syncpkg.Engine

	lastMu  sync.RWMutex
	lastErr string
)

func setLastError(format string, args ...interface{}) {
	lastMu.Lock()
	defer lastMu.Unlock()
	lastErr = fmt.Sprintf(format, args...)
}

// jsonResult marshals v and hands the string to the caller.
func jsonResult(v interface{}) *C.char {
	data, err := json.Marshal(v)
	if err != nil {
		setLastError("failed to serialize result: %v", err)
		return nil
	}
	return C.CString(string(data))
}

//export Init
// Init opens the local store at dataDir and wires the sync engine.
// backendURL may be empty, in which case the library runs queue-only:
// records persist locally and queue entries accumulate until a later
// Init provides a backend. Returns 0 on success, -1 on failure (see
// GetLastError).
func Init(dataDir, backendURL, apiKey, authToken *C.char) C.int {
	mu.Lock()
	defer mu.Unlock()

	if svc != nil {
		return 0
	}

	logging.Init(os.Stderr, logging.LevelInfo)

	var err error
	database, err = db.Open(C.GoString(dataDir))
	if err != nil {
		setLastError("failed to open database: %v", err)
		return -1
	}

	if err := db.NewMigrator(database.DB).Up(); err != nil {
		setLastError("failed to apply migrations: %v", err)
		database.Close()
		database = nil
		return -1
	}

	repo := db.NewRepository(database.DB)

	var remote syncpkg.RemoteStore
	if url := C.GoString(backendURL); url != "" {
		remote = syncpkg.NewRestClient(url, C.GoString(apiKey),
			syncpkg.StaticToken(C.GoString(authToken)))
	}

	monitor = syncpkg.NewMonitor(true)
	engine = syncpkg.NewEngine(repo, remote, syncpkg.DefaultCapabilities{}, monitor.IsOnline)
	monitor.SetEngine(engine)
	svc = services.NewOfflineService(repo, engine, monitor.IsOnline)
	return 0
}

//export Shutdown
// Shutdown closes the local store. Init may be called again afterwards.
func Shutdown() {
	mu.Lock()
	defer mu.Unlock()

	if database != nil {
		database.Close()
	}
	database = nil
	svc = nil
	monitor = nil
	engine = nil
}

//export GetLastError
// GetLastError returns the last error message. Free with FreeString.
func GetLastError() *C.char {
	lastMu.RLock()
	defer lastMu.RUnlock()
	return C.CString(lastErr)
}

//export FreeString
// FreeString releases a string returned by any function in this library.
func FreeString(s *C.char) {
	if s != nil {
		C.free(unsafe.Pointer(s))
	}
}

func service() *services.OfflineService {
	mu.Lock()
	defer mu.Unlock()
	if svc == nil {
		setLastError("library not initialized, call Init first")
	}
	return svc
}

// ===== Record Operations =====

//export SaveProgress
// SaveProgress persists a progress entry from its JSON form and returns
// the saved record as JSON (with localId and sync metadata filled in).
func SaveProgress(record *C.char) *C.char {
	s := service()
	if s == nil {
		return nil
	}
	var entry models.ProgressEntry
	if err := json.Unmarshal([]byte(C.GoString(record)), &entry); err != nil {
		setLastError("invalid progress record: %v", err)
		return nil
	}
	saved, err := s.SaveProgress(&entry)
	if err != nil {
		setLastError("failed to save progress: %v", err)
		return nil
	}
	return jsonResult(saved)
}

//export SaveCraving
func SaveCraving(record *C.char) *C.char {
	s := service()
	if s == nil {
		return nil
	}
	var entry models.CravingEntry
	if err := json.Unmarshal([]byte(C.GoString(record)), &entry); err != nil {
		setLastError("invalid craving record: %v", err)
		return nil
	}
	saved, err := s.SaveCraving(&entry)
	if err != nil {
		setLastError("failed to save craving: %v", err)
		return nil
	}
	return jsonResult(saved)
}

//export SaveTask
func SaveTask(record *C.char) *C.char {
	s := service()
	if s == nil {
		return nil
	}
	var entry models.TaskEntry
	if err := json.Unmarshal([]byte(C.GoString(record)), &entry); err != nil {
		setLastError("invalid task record: %v", err)
		return nil
	}
	saved, err := s.SaveTask(&entry)
	if err != nil {
		setLastError("failed to save task: %v", err)
		return nil
	}
	return jsonResult(saved)
}

//export SaveConsumption
func SaveConsumption(record *C.char) *C.char {
	s := service()
	if s == nil {
		return nil
	}
	var entry models.ConsumptionLog
	if err := json.Unmarshal([]byte(C.GoString(record)), &entry); err != nil {
		setLastError("invalid consumption record: %v", err)
		return nil
	}
	saved, err := s.SaveConsumption(&entry)
	if err != nil {
		setLastError("failed to save consumption: %v", err)
		return nil
	}
	return jsonResult(saved)
}

//export GetProgress
// GetProgress returns the user's progress entries as a JSON array.
// fromDay/toDay bound the date range and may be empty.
func GetProgress(userID, fromDay, toDay *C.char) *C.char {
	s := service()
	if s == nil {
		return nil
	}
	items, err := s.GetProgress(C.GoString(userID), C.GoString(fromDay), C.GoString(toDay))
	if err != nil {
		setLastError("failed to list progress: %v", err)
		return nil
	}
	return jsonResult(items)
}

//export GetCravings
// GetCravings returns craving entries in the [from, to] timestamp range;
// zero means unbounded on that side.
func GetCravings(userID *C.char, from, to C.longlong) *C.char {
	s := service()
	if s == nil {
		return nil
	}
	items, err := s.GetCravings(C.GoString(userID), int64(from), int64(to))
	if err != nil {
		setLastError("failed to list cravings: %v", err)
		return nil
	}
	return jsonResult(items)
}

//export GetTasks
func GetTasks(userID, fromDay, toDay *C.char) *C.char {
	s := service()
	if s == nil {
		return nil
	}
	items, err := s.GetTasks(C.GoString(userID), C.GoString(fromDay), C.GoString(toDay))
	if err != nil {
		setLastError("failed to list tasks: %v", err)
		return nil
	}
	return jsonResult(items)
}

//export GetConsumption
func GetConsumption(userID *C.char, from, to C.longlong) *C.char {
	s := service()
	if s == nil {
		return nil
	}
	items, err := s.GetConsumption(C.GoString(userID), int64(from), int64(to))
	if err != nil {
		setLastError("failed to list consumption: %v", err)
		return nil
	}
	return jsonResult(items)
}

//export DeleteRecord
// DeleteRecord removes a record. A record already known to the backend
// (backendID non-empty) is flagged locally and deleted remotely on the
// next sync pass; a local-only record disappears immediately. Returns 0
// on success, -1 on failure.
func DeleteRecord(store, localID, backendID *C.char) C.int {
	s := service()
	if s == nil {
		return -1
	}
	if err := s.Delete(C.GoString(store), C.GoString(localID), C.GoString(backendID)); err != nil {
		setLastError("failed to delete record: %v", err)
		return -1
	}
	return 0
}

// ===== Sync Operations =====

//export SyncNow
// SyncNow runs one synchronous sync pass and returns a JSON summary:
// {"completed": bool, "pending": n, "failed": n}.
func SyncNow() *C.char {
	s := service()
	if s == nil {
		return nil
	}
	completed, err := s.SyncData(context.Background(), nil)
	if err != nil {
		setLastError("sync failed: %v", err)
		return nil
	}
	status, err := s.GetSyncStatus()
	if err != nil {
		setLastError("failed to read sync status: %v", err)
		return nil
	}
	return jsonResult(map[string]interface{}{
		"completed": completed,
		"pending":   status.Pending,
		"failed":    status.Failed,
	})
}

//export SyncStatus
// SyncStatus returns queue counters as JSON.
func SyncStatus() *C.char {
	s := service()
	if s == nil {
		return nil
	}
	status, err := s.GetSyncStatus()
	if err != nil {
		setLastError("failed to read sync status: %v", err)
		return nil
	}
	return jsonResult(status)
}

//export SetOnline
// SetOnline feeds a connectivity transition from the host application.
// Going online triggers a background sync pass; going offline interrupts
// any running pass. online is treated as a boolean (0 = offline).
func SetOnline(online C.int) {
	mu.Lock()
	m := monitor
	mu.Unlock()
	if m != nil {
		m.SetOnline(online != 0)
	}
}

//export CleanupQueue
// CleanupQueue removes synced queue entries older than days (0 uses the
// default retention window). Returns the number removed, or -1 on error.
func CleanupQueue(days C.int) C.int {
	s := service()
	if s == nil {
		return -1
	}
	removed, err := s.CleanupOldSyncItems(int(days))
	if err != nil {
		setLastError("cleanup failed: %v", err)
		return -1
	}
	return C.int(removed)
}

// main is required for c-shared build mode but never runs when the
// output is loaded as a shared library.
func main() {}
