package aggregator

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xlunar/roundup/internal/services/indexer"
)

type stubSource struct {
	name       string
	candidates []indexer.Candidate
	err        error
	delay      time.Duration
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Search(ctx context.Context, _ indexer.Query) ([]indexer.Candidate, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.candidates, s.err
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestSearchAllMergesSources(t *testing.T) {
	a := New([]indexer.Searcher{
		&stubSource{name: "one", candidates: []indexer.Candidate{{Source: "one", Title: "A"}}},
		&stubSource{name: "two", candidates: []indexer.Candidate{{Source: "two", Title: "B"}, {Source: "two", Title: "C"}}},
	}, 2, time.Second, quietLogger())

	merged, report := a.SearchAll(context.Background(), indexer.Query{Title: "A"})
	assert.Len(t, merged, 3)
	assert.Empty(t, report.Errors)
	assert.Equal(t, 1, report.Counts["one"])
	assert.Equal(t, 2, report.Counts["two"])
}

func TestSearchAllToleratesFailedSource(t *testing.T) {
	boom := indexer.TransientError("two", context.DeadlineExceeded)
	a := New([]indexer.Searcher{
		&stubSource{name: "one", candidates: []indexer.Candidate{{Source: "one", Title: "A"}}},
		&stubSource{name: "two", err: boom},
	}, 2, time.Second, quietLogger())

	merged, report := a.SearchAll(context.Background(), indexer.Query{Title: "A"})
	require.Len(t, merged, 1, "a failed source never fails the aggregation")
	assert.Equal(t, "one", merged[0].Source)
	assert.Contains(t, report.Errors, "two")
}

func TestSearchAllTimesOutSlowSource(t *testing.T) {
	a := New([]indexer.Searcher{
		&stubSource{name: "fast", candidates: []indexer.Candidate{{Source: "fast", Title: "A"}}},
		&stubSource{name: "slow", delay: 5 * time.Second},
	}, 2, 50*time.Millisecond, quietLogger())

	start := time.Now()
	merged, report := a.SearchAll(context.Background(), indexer.Query{Title: "A"})
	assert.Less(t, time.Since(start), 2*time.Second, "slow source must be cut off by its own timeout")
	assert.Len(t, merged, 1)
	assert.Contains(t, report.Errors, "slow")
}

func TestSearchAllEmptyIsNotAnError(t *testing.T) {
	a := New([]indexer.Searcher{
		&stubSource{name: "one"},
	}, 2, time.Second, quietLogger())

	merged, report := a.SearchAll(context.Background(), indexer.Query{Title: "A"})
	assert.Empty(t, merged)
	assert.Empty(t, report.Errors)
	assert.Equal(t, 0, report.Counts["one"])
}
