package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/casetrail/casetrail/pkg/httputil"
)

// Settings is the sanitized runtime configuration exposed on the
// settings endpoint. Secrets never appear here.
type Settings struct {
	EvidenceBackend     string `json:"evidence_backend"`
	EvidenceMaxBytes    int64  `json:"evidence_max_upload_bytes"`
	CacheBackend        string `json:"cache_backend"`
	AuditRetentionDays  int    `json:"audit_retention_days"`
	MaintenanceSchedule string `json:"maintenance_schedule"`
	Version             string `json:"version"`
}

type settingsHandlers struct {
	settings *Settings
}

func newSettingsHandlers(settings *Settings) *settingsHandlers {
	return &settingsHandlers{settings: settings}
}

func (h *settingsHandlers) registerRoutes(router *mux.Router) {
	router.HandleFunc("/settings", h.getSettings).Methods("GET")
}

func (h *settingsHandlers) getSettings(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, h.settings)
}
