package models

// MediaKind represents the type of media (movie or tv show)
type MediaKind string

const (
	MediaKindMovie  MediaKind = "movie"
	MediaKindTVShow MediaKind = "tvshow"
)

// DownloadState represents the lifecycle state of an active download
type DownloadState string

const (
	DownloadStateNotStarted  DownloadState = "not_started" // row created, submission confirmed but no activity seen yet
	DownloadStateDownloading DownloadState = "downloading" // client reports transfer activity
	DownloadStateCompleted   DownloadState = "completed"   // terminal
	DownloadStateFailed      DownloadState = "failed"      // terminal
)

// InFlight reports whether the state still counts against the
// one-download-per-target rule.
func (s DownloadState) InFlight() bool {
	return s == DownloadStateNotStarted || s == DownloadStateDownloading
}
