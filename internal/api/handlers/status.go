package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/0xlunar/roundup/internal/models"
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

// WatchlistEntry is one watchlisted item in the status response
type WatchlistEntry struct {
	ImdbID string `json:"imdb_id"`
	Title  string `json:"title"`
	Year   int    `json:"year"`
	Kind   string `json:"kind"`
}

// DownloadEntry is one download row in the status response
type DownloadEntry struct {
	ImdbID      string     `json:"imdb_id"`
	Kind        string     `json:"kind"`
	Season      int        `json:"season,omitempty"`
	Episode     int        `json:"episode,omitempty"`
	Quality     string     `json:"quality"`
	Hash        string     `json:"hash"`
	State       string     `json:"state"`
	Progress    float64    `json:"progress"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// StatusResponse represents the status response
type StatusResponse struct {
	WatchlistCount int              `json:"watchlist_count"`
	Downloading    int              `json:"downloading"`
	Completed      int              `json:"completed"`
	Failed         int              `json:"failed"`
	Watchlist      []WatchlistEntry `json:"watchlist"`
	Downloads      []DownloadEntry  `json:"downloads"`
}

// ServeHTTP handles the status endpoint
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	watchlist, err := h.db.GetWatchlist()
	if err != nil {
		h.logger.WithError(err).Error("Failed to get watchlist")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	downloads, err := h.db.GetAllDownloads()
	if err != nil {
		h.logger.WithError(err).Error("Failed to get downloads")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	response := StatusResponse{
		WatchlistCount: len(watchlist),
		Watchlist:      make([]WatchlistEntry, 0, len(watchlist)),
		Downloads:      make([]DownloadEntry, 0, len(downloads)),
	}

	for _, item := range watchlist {
		response.Watchlist = append(response.Watchlist, WatchlistEntry{
			ImdbID: item.ImdbID,
			Title:  item.Title,
			Year:   item.Year,
			Kind:   string(item.Kind),
		})
	}

	for _, d := range downloads {
		switch d.State {
		case models.DownloadStateNotStarted, models.DownloadStateDownloading:
			response.Downloading++
		case models.DownloadStateCompleted:
			response.Completed++
		case models.DownloadStateFailed:
			response.Failed++
		}

		entry := DownloadEntry{
			ImdbID:   d.ImdbID,
			Kind:     string(d.Kind),
			Season:   d.Season,
			Episode:  d.Episode,
			Quality:  d.Quality,
			Hash:     d.MagnetHash,
			State:    string(d.State),
			Progress: d.Progress,
		}
		entry.CompletedAt = d.CompletedAt
		response.Downloads = append(response.Downloads, entry)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
