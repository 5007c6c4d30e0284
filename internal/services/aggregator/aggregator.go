// Package aggregator fans one search query out to every enabled source
// adapter and merges whatever comes back.
package aggregator

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/0xlunar/roundup/internal/services/indexer"
)

// Report records per-source outcomes of one aggregated search for
// observability; a failed source never fails the aggregation.
type Report struct {
	Errors map[string]error
	Counts map[string]int
}

// Aggregator runs the same query against all sources concurrently.
// Each source gets its own weighted semaphore so a burst of targets in one
// reconciliation cycle cannot hammer a single third-party site.
type Aggregator struct {
	sources  []indexer.Searcher
	limits   map[string]*semaphore.Weighted
	perLimit int64
	timeout  time.Duration
	logger   *logrus.Logger
}

// New creates an aggregator over the given source adapters.
// concurrency bounds simultaneous outbound searches per source.
func New(sources []indexer.Searcher, concurrency int, timeout time.Duration, logger *logrus.Logger) *Aggregator {
	limits := make(map[string]*semaphore.Weighted, len(sources))
	for _, s := range sources {
		limits[s.Name()] = semaphore.NewWeighted(int64(concurrency))
	}
	return &Aggregator{
		sources:  sources,
		limits:   limits,
		perLimit: int64(concurrency),
		timeout:  timeout,
		logger:   logger,
	}
}

// SearchAll queries every source concurrently and returns the merged
// candidates. Result ordering across sources is unspecified; ranking is the
// selector's job. A source that errors contributes nothing and is recorded
// in the report, transient failures at warn level and permanent parse
// failures at error level so upstream markup drift stands out in logs.
func (a *Aggregator) SearchAll(ctx context.Context, query indexer.Query) ([]indexer.Candidate, *Report) {
	report := &Report{
		Errors: make(map[string]error),
		Counts: make(map[string]int),
	}

	var (
		mu     sync.Mutex
		merged []indexer.Candidate
	)

	g := new(errgroup.Group)
	for _, source := range a.sources {
		source := source
		g.Go(func() error {
			sem := a.limits[source.Name()]
			if err := sem.Acquire(ctx, 1); err != nil {
				mu.Lock()
				report.Errors[source.Name()] = err
				mu.Unlock()
				return nil
			}
			defer sem.Release(1)

			// Each source times out on its own; a slow source should not
			// stop the others from contributing.
			searchCtx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			candidates, err := source.Search(searchCtx, query)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Errors[source.Name()] = err
				a.logSourceError(source.Name(), err)
				return nil
			}
			report.Counts[source.Name()] = len(candidates)
			merged = append(merged, candidates...)
			return nil
		})
	}

	_ = g.Wait()

	a.logger.WithFields(logrus.Fields{
		"title":   query.Title,
		"total":   len(merged),
		"sources": len(a.sources),
		"failed":  len(report.Errors),
	}).Debug("Aggregated search completed")

	return merged, report
}

func (a *Aggregator) logSourceError(source string, err error) {
	entry := a.logger.WithError(err).WithField("source", source)
	if indexer.IsPermanent(err) {
		// Parse failures usually mean upstream markup changed
		entry.Error("Source search failed permanently")
		return
	}
	entry.Warn("Source search failed, will retry next cycle")
}
