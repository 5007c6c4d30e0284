package models

import "time"

// MediaItem represents a catalog entry the engine may act on. Items with
// Watchlist=true are reconciliation targets; the engine flips the flag off
// for movies once their download completes and never touches it for shows.
type MediaItem struct {
	ID     uint64 `boltholdKey:"ID"`
	ImdbID string `boltholdIndex:"ImdbID"`

	Kind  MediaKind
	Title string
	Year  int

	Watchlist bool `boltholdIndex:"Watchlist"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
