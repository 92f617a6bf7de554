package server

import (
	"encoding/json"
	"net/http"

	"github.com/aristath/portfolio-tracker/internal/reliability"
	"github.com/rs/zerolog"
)

// BackupHandlers lists and creates database backups
type BackupHandlers struct {
	service *reliability.BackupService
	log     zerolog.Logger
}

// NewBackupHandlers creates backup handlers
func NewBackupHandlers(service *reliability.BackupService, log zerolog.Logger) *BackupHandlers {
	return &BackupHandlers{
		service: service,
		log:     log.With().Str("handler", "backup").Logger(),
	}
}

// HandleListBackups handles GET /api/backup
func (h *BackupHandlers) HandleListBackups(w http.ResponseWriter, r *http.Request) {
	backups, err := h.service.ListBackups(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list backups")
		http.Error(w, "Failed to list backups", http.StatusBadGateway)
		return
	}
	if backups == nil {
		backups = []reliability.BackupInfo{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"backups": backups,
		"count":   len(backups),
	})
}

// HandleCreateBackup handles POST /api/backup
func (h *BackupHandlers) HandleCreateBackup(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.CreateAndUploadBackup(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Backup failed")
		h.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	h.writeJSON(w, http.StatusCreated, info)
}

func (h *BackupHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
