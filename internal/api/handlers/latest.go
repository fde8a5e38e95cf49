package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"toonarr/internal/models"
)

// LatestHandler serves the latest episodes feed
type LatestHandler struct {
	db     *models.Database
	logger *logrus.Logger
}

// NewLatestHandler creates a new latest episodes handler
func NewLatestHandler(db *models.Database, logger *logrus.Logger) *LatestHandler {
	return &LatestHandler{
		db:     db,
		logger: logger,
	}
}

// LatestEpisodeEntry represents one feed entry
type LatestEpisodeEntry struct {
	SeriesSlug   string    `json:"series_slug"`
	SeriesTitle  string    `json:"series_title"`
	Season       int       `json:"season"`
	Episode      int       `json:"episode"`
	EpisodeTitle string    `json:"episode_title"`
	Thumbnail    string    `json:"thumbnail,omitempty"`
	AddedAt      time.Time `json:"added_at"`
}

// ServeHTTP handles the latest episodes endpoint
func (h *LatestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	latest, err := h.db.LatestEpisodes()
	if err != nil {
		h.logger.WithError(err).Error("Failed to get latest episodes")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	entries := make([]LatestEpisodeEntry, 0, len(latest))
	for _, row := range latest {
		entries = append(entries, LatestEpisodeEntry{
			SeriesSlug:   row.SeriesSlug,
			SeriesTitle:  row.SeriesTitle,
			Season:       row.Season,
			Episode:      row.Episode,
			EpisodeTitle: row.EpisodeTitle,
			Thumbnail:    row.Thumbnail,
			AddedAt:      row.AddedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}
