package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"toonarr/internal/models"
)

// StatusHandler handles status requests
type StatusHandler struct {
	db     *models.Database
	logger *logrus.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(db *models.Database, logger *logrus.Logger) *StatusHandler {
	return &StatusHandler{
		db:     db,
		logger: logger,
	}
}

// StatusResponse represents the status response
type StatusResponse struct {
	TotalSeries   int64            `json:"total_series"`
	TotalEpisodes int64            `json:"total_episodes"`
	SeriesByType  map[string]int64 `json:"series_by_type"`
}

// ServeHTTP handles the status endpoint
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	byType, err := h.db.CountSeriesByType()
	if err != nil {
		h.logger.WithError(err).Error("Failed to count series")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	episodes, err := h.db.CountEpisodes()
	if err != nil {
		h.logger.WithError(err).Error("Failed to count episodes")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	response := StatusResponse{
		TotalEpisodes: episodes,
		SeriesByType:  byType,
	}
	for _, count := range byType {
		response.TotalSeries += count
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
