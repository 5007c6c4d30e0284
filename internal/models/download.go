package models

import "time"

// ActiveDownload tracks one submitted torrent through its lifecycle.
// Season and Episode are zero for movies; together with MediaID they form
// the de-duplication tuple: at most one row per tuple may be in flight.
// Completed rows are kept as acquisition history.
type ActiveDownload struct {
	ID      uint64 `boltholdKey:"ID"`
	MediaID uint64 `boltholdIndex:"MediaID"`
	ImdbID  string

	Kind    MediaKind
	Season  int
	Episode int
	Quality string

	MagnetHash string `boltholdIndex:"MagnetHash"`

	State         DownloadState `boltholdIndex:"State"`
	Progress      float64       // [0,1], never decreases while downloading
	FailureReason string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}
