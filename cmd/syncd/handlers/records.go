// Package handlers provides REST API handlers for the offline record stores.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	apperrors "github.com/clearpath-app/backend/internal/errors"
	"github.com/clearpath-app/backend/internal/models"
	"github.com/clearpath-app/backend/internal/services"
)

// RecordsHandler handles CRUD over the four payload stores.
type RecordsHandler struct {
	svc *services.OfflineService
}

// NewRecordsHandler creates a new RecordsHandler.
func NewRecordsHandler(svc *services.OfflineService) *RecordsHandler {
	return &RecordsHandler{svc: svc}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps application error codes onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := apperrors.ErrInternal

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		code = appErr.Code
		switch appErr.Code {
		case apperrors.ErrRecordNotFound, apperrors.ErrNotFound:
			status = http.StatusNotFound
		case apperrors.ErrValidation, apperrors.ErrInvalid, apperrors.ErrUnknownStore:
			status = http.StatusBadRequest
		case apperrors.ErrSyncInProgress:
			status = http.StatusConflict
		}
	}

	writeJSON(w, status, map[string]interface{}{
		"error": err.Error(),
		"code":  string(code),
	})
}

func unixParam(r *http.Request, key string) int64 {
	v, _ := strconv.ParseInt(r.URL.Query().Get(key), 10, 64)
	return v
}

// Progress handles GET and POST /progress
func (h *RecordsHandler) Progress(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			http.Error(w, "user_id is required", http.StatusBadRequest)
			return
		}
		entries, err := h.svc.GetProgress(userID, r.URL.Query().Get("from"), r.URL.Query().Get("to"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"items": entries, "total": len(entries)})

	case http.MethodPost:
		var entry models.ProgressEntry
		if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if entry.UserID == "" || entry.Date == "" {
			http.Error(w, "user_id and date are required", http.StatusBadRequest)
			return
		}
		saved, err := h.svc.SaveProgress(&entry)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, saved)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Cravings handles GET and POST /cravings
func (h *RecordsHandler) Cravings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			http.Error(w, "user_id is required", http.StatusBadRequest)
			return
		}
		entries, err := h.svc.GetCravings(userID, unixParam(r, "from"), unixParam(r, "to"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"items": entries, "total": len(entries)})

	case http.MethodPost:
		var entry models.CravingEntry
		if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if entry.UserID == "" {
			http.Error(w, "user_id is required", http.StatusBadRequest)
			return
		}
		saved, err := h.svc.SaveCraving(&entry)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, saved)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Tasks handles GET and POST /tasks
func (h *RecordsHandler) Tasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			http.Error(w, "user_id is required", http.StatusBadRequest)
			return
		}
		entries, err := h.svc.GetTasks(userID, r.URL.Query().Get("from"), r.URL.Query().Get("to"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"items": entries, "total": len(entries)})

	case http.MethodPost:
		var entry models.TaskEntry
		if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if entry.UserID == "" || entry.Title == "" {
			http.Error(w, "user_id and title are required", http.StatusBadRequest)
			return
		}
		saved, err := h.svc.SaveTask(&entry)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, saved)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Consumption handles GET and POST /consumption
func (h *RecordsHandler) Consumption(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			http.Error(w, "user_id is required", http.StatusBadRequest)
			return
		}
		entries, err := h.svc.GetConsumption(userID, unixParam(r, "from"), unixParam(r, "to"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"items": entries, "total": len(entries)})

	case http.MethodPost:
		var entry models.ConsumptionLog
		if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if entry.UserID == "" {
			http.Error(w, "user_id is required", http.StatusBadRequest)
			return
		}
		saved, err := h.svc.SaveConsumption(&entry)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, saved)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Delete handles DELETE /records
// A record with a backend ID is flagged for deferred deletion; a local-only
// record is removed outright.
func (h *RecordsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	store := r.URL.Query().Get("store")
	localID := r.URL.Query().Get("local_id")
	if store == "" || localID == "" {
		http.Error(w, "store and local_id are required", http.StatusBadRequest)
		return
	}

	if err := h.svc.Delete(store, localID, r.URL.Query().Get("backend_id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "success"})
}
