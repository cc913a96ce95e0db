// Package handlers provides REST API handlers for storage maintenance.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/clearpath-app/backend/internal/services"
	"github.com/clearpath-app/backend/internal/telemetry"
)

// MaintenanceHandler handles queue cleanup and data wipe endpoints.
type MaintenanceHandler struct {
	svc *services.OfflineService
}

// NewMaintenanceHandler creates a new MaintenanceHandler.
func NewMaintenanceHandler(svc *services.OfflineService) *MaintenanceHandler {
	return &MaintenanceHandler{svc: svc}
}

// Cleanup handles POST /maintenance/cleanup
// Removes synced queue entries older than the requested age in days.
func (h *MaintenanceHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var request struct {
		Days int `json:"days"`
	}
	if r.Body != nil {
		// Empty body means the default retention window.
		_ = json.NewDecoder(r.Body).Decode(&request)
	}

	removed, err := h.svc.CleanupOldSyncItems(request.Days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"removed": removed})
}

// StorageStats handles GET /storage/stats
func (h *MaintenanceHandler) StorageStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats, err := h.svc.GetStorageStats()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"stores": stats})
}

// ClearUser handles DELETE /users/data
// Wipes one user's records across all stores, used on account sign-out.
func (h *MaintenanceHandler) ClearUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	if err := h.svc.ClearUserData(userID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "success"})
}

// Metrics handles GET /metrics
// Returns in-process sync counters. Everything here is local-only; no
// counter ever leaves the machine unless the caller reads it.
func (h *MaintenanceHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, telemetry.Collect())
}

// ClearAll handles DELETE /maintenance/all
func (h *MaintenanceHandler) ClearAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.svc.ClearAllData(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "success"})
}
