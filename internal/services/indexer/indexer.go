// Package indexer defines the contract every torrent source adapter
// implements, and the transient result type they all produce.
package indexer

import (
	"context"
	"errors"
	"fmt"

	"github.com/0xlunar/roundup/internal/models"
)

// Episode identifies one wanted episode of a show
type Episode struct {
	Season  int
	Episode int
}

// Query describes one search target. Episodes is nil for movies; for TV
// targets it lists the episodes the caller still wants, letting adapters
// discard everything else at the source.
type Query struct {
	ImdbID   string
	Title    string
	Year     int
	Kind     models.MediaKind
	Episodes []Episode
}

// Candidate is one discoverable torrent result. Candidates are produced
// fresh for every search and never cached across reconciliation cycles;
// source availability is too volatile for that.
type Candidate struct {
	Source    string
	Title     string
	MagnetURI string
	Quality   string
	Season    *int // nil for movies
	Episode   *int // nil for movies, utils.SeasonPackEpisode for season packs
	Seeders   int
	SizeBytes int64

	// SourceOrder is the item's position in the source's own result
	// ordering, a recency/popularity proxy used as a ranking tie-break.
	SourceOrder int
}

// Searcher is the capability every source adapter provides.
// "No results" is an empty slice, not an error.
type Searcher interface {
	// Name identifies the source in logs and reports.
	Name() string
	Search(ctx context.Context, query Query) ([]Candidate, error)
}

// ErrorKind classifies source failures for logging and retry policy
type ErrorKind int

const (
	// Transient covers network failures, timeouts and rate limiting;
	// worth retrying next cycle without operator attention.
	Transient ErrorKind = iota
	// Permanent covers parse and shape mismatches, the usual sign of
	// upstream markup drift an operator should look into.
	Permanent
)

func (k ErrorKind) String() string {
	if k == Permanent {
		return "permanent"
	}
	return "transient"
}

// SourceError wraps a failure from one source adapter
type SourceError struct {
	Source string
	Kind   ErrorKind
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s: %s failure: %v", e.Source, e.Kind, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// TransientError wraps err as a transient failure of the named source
func TransientError(source string, err error) *SourceError {
	return &SourceError{Source: source, Kind: Transient, Err: err}
}

// PermanentError wraps err as a permanent failure of the named source
func PermanentError(source string, err error) *SourceError {
	return &SourceError{Source: source, Kind: Permanent, Err: err}
}

// IsPermanent reports whether err is a permanent source failure
func IsPermanent(err error) bool {
	var srcErr *SourceError
	return errors.As(err, &srcErr) && srcErr.Kind == Permanent
}
