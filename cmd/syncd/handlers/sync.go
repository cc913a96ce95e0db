// Package handlers provides REST API handlers for sync operations.
package handlers

import (
	"net/http"
	"time"

	"github.com/clearpath-app/backend/internal/services"
	syncpkg "github.com/clearpath-app/backend/internal/sync"
)

// WSSyncBroadcaster is the WebSocket surface sync events are pushed through.
type WSSyncBroadcaster interface {
	BroadcastSyncStarted()
	BroadcastSyncProgress(completed, total int)
	BroadcastSyncCompleted(completed bool, duration time.Duration)
	BroadcastSyncFailed(errorCode string)
	BroadcastNetworkStatus(online bool)
}

// SyncHandler handles sync status and trigger endpoints.
type SyncHandler struct {
	svc     *services.OfflineService
	engine  syncpkg.SyncEngine
	monitor *syncpkg.Monitor
	wsHub   WSSyncBroadcaster
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(svc *services.OfflineService, engine syncpkg.SyncEngine, monitor *syncpkg.Monitor) *SyncHandler {
	return &SyncHandler{svc: svc, engine: engine, monitor: monitor}
}

// SetWebSocketHub sets the hub used for broadcasting sync events.
func (h *SyncHandler) SetWebSocketHub(hub WSSyncBroadcaster) {
	h.wsHub = hub
}

// GetStatus handles GET /sync/status
// Reports queue totals, the engine state, and connectivity. Entries that
// exhausted their retries surface here as "failed"; polling this endpoint
// is how the hosting application learns about them.
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status, err := h.svc.GetSyncStatus()
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":   status.Total,
		"pending": status.Pending,
		"failed":  status.Failed,
		"state":   h.engine.State().String(),
		"online":  h.monitor.IsOnline(),
	})
}

// TriggerSync handles POST /sync/now
// Runs one sync pass inline and reports whether it completed. A pass that
// declines because another is running or aborts offline is not an error.
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.wsHub != nil {
		h.wsHub.BroadcastSyncStarted()
	}

	start := time.Now()
	var progress syncpkg.ProgressFunc
	if h.wsHub != nil {
		progress = func(total, completed int) {
			h.wsHub.BroadcastSyncProgress(completed, total)
		}
	}

	completed, err := h.svc.SyncData(r.Context(), progress)
	if err != nil {
		if h.wsHub != nil {
			h.wsHub.BroadcastSyncFailed(err.Error())
		}
		writeError(w, err)
		return
	}

	if h.wsHub != nil {
		h.wsHub.BroadcastSyncCompleted(completed, time.Since(start))
	}

	status, statusErr := h.svc.GetSyncStatus()
	response := map[string]interface{}{
		"completed":   completed,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if statusErr == nil {
		response["pending"] = status.Pending
		response["failed"] = status.Failed
	}
	writeJSON(w, http.StatusOK, response)
}

// Network handles GET and POST /network
// The daemon has no direct view of the host's connectivity beyond its own
// probe, so the hosting application can push status transitions here.
// Going online triggers a background pass; going offline interrupts.
func (h *SyncHandler) Network(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]interface{}{"online": h.monitor.IsOnline()})

	case http.MethodPost:
		online := r.URL.Query().Get("online") == "true"
		h.monitor.SetOnline(online)
		if h.wsHub != nil {
			h.wsHub.BroadcastNetworkStatus(online)
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"online": h.monitor.IsOnline()})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
