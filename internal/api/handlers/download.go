package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/0xlunar/roundup/internal/controllers"
	"github.com/0xlunar/roundup/internal/models"
)

// DownloadHandler handles manual magnet submissions
type DownloadHandler struct {
	db      *models.Database
	gateway controllers.Gateway
	logger  *logrus.Logger
}

// NewDownloadHandler creates a new download handler
func NewDownloadHandler(db *models.Database, gateway controllers.Gateway, logger *logrus.Logger) *DownloadHandler {
	return &DownloadHandler{
		db:      db,
		gateway: gateway,
		logger:  logger,
	}
}

// DownloadRequest is a manual submission of a magnet for a known media item
type DownloadRequest struct {
	ImdbID    string `json:"imdb_id"`
	MagnetURI string `json:"magnet_uri"`
	Season    int    `json:"season,omitempty"`
	Episode   int    `json:"episode,omitempty"`
	Quality   string `json:"quality,omitempty"`
}

// ServeHTTP handles the manual download endpoint. It goes through the same
// submit-then-record path as the reconcile loop, so the one-in-flight rule
// holds for manual submissions too.
func (h *DownloadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}
	if req.ImdbID == "" || req.MagnetURI == "" {
		http.Error(w, "imdb_id and magnet_uri are required", http.StatusBadRequest)
		return
	}

	media, err := h.db.GetMediaByImdbID(req.ImdbID)
	if err != nil {
		h.logger.WithError(err).WithField("imdb_id", req.ImdbID).Warn("Manual download for unknown media")
		http.Error(w, "Unknown media", http.StatusNotFound)
		return
	}

	hash, err := h.gateway.Submit(r.Context(), req.MagnetURI)
	if err != nil {
		h.logger.WithError(err).Error("Manual submission failed")
		http.Error(w, "Submission failed", http.StatusBadGateway)
		return
	}

	download := &models.ActiveDownload{
		MediaID:    media.ID,
		ImdbID:     media.ImdbID,
		Kind:       media.Kind,
		Season:     req.Season,
		Episode:    req.Episode,
		Quality:    req.Quality,
		MagnetHash: hash,
		State:      models.DownloadStateNotStarted,
	}

	if err := h.db.InsertDownloadIfAbsent(download); err != nil {
		if errors.Is(err, models.ErrAlreadyInFlight) {
			if rmErr := h.gateway.Remove(r.Context(), hash); rmErr != nil {
				h.logger.WithError(rmErr).WithField("hash", hash).Warn("Failed to withdraw duplicate submission")
			}
			http.Error(w, "Download already in flight for this target", http.StatusConflict)
			return
		}
		h.logger.WithError(err).Error("Failed to record manual download")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if err := h.db.AdvanceDownload(download, models.DownloadStateDownloading, 0); err != nil {
		h.logger.WithError(err).WithField("hash", hash).Error("Failed to advance manual download")
	}

	h.logger.WithFields(logrus.Fields{
		"imdb_id": req.ImdbID,
		"hash":    hash,
	}).Info("Manual download started")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"hash": hash})
}
