// Package selector filters aggregated torrent candidates against a target
// and picks the best survivor.
package selector

import (
	"sort"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/0xlunar/roundup/internal/models"
	"github.com/0xlunar/roundup/internal/services/indexer"
	"github.com/0xlunar/roundup/internal/utils"
)

// Target is what the reconciliation loop wants to acquire: a movie, or one
// specific episode of a show.
type Target struct {
	Title   string
	Year    int
	Kind    models.MediaKind
	Season  *int
	Episode *int
}

// Selector ranks candidates by deployment policy. Quality preference is an
// ordered list that doubles as the allowed set: labels outside it are
// excluded entirely, not merely deprioritized.
type Selector struct {
	priority  []string
	rank      map[string]int
	threshold float64
}

// New creates a selector with the given quality priority order and
// normalized-title similarity threshold.
func New(qualityPriority []string, threshold float64) *Selector {
	rank := make(map[string]int, len(qualityPriority))
	for i, q := range qualityPriority {
		rank[strings.ToLower(q)] = i
	}
	return &Selector{
		priority:  qualityPriority,
		rank:      rank,
		threshold: threshold,
	}
}

// Select returns the best candidate for the target, or ok=false when
// nothing survives filtering. An empty selection is a normal outcome — the
// release simply is not out there yet — never an error.
//
// Ranking is deterministic: quality priority first, then seeders, then the
// source's own ordering, with the magnet URI as a final tie-break so equal
// candidates cannot swap places between invocations.
func (s *Selector) Select(candidates []indexer.Candidate, target Target) (indexer.Candidate, bool) {
	survivors := make([]indexer.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if s.matches(c, target) {
			survivors = append(survivors, c)
		}
	}
	if len(survivors) == 0 {
		return indexer.Candidate{}, false
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		a, b := survivors[i], survivors[j]

		qa := s.rank[strings.ToLower(a.Quality)]
		qb := s.rank[strings.ToLower(b.Quality)]
		if qa != qb {
			return qa < qb
		}
		if a.Seeders != b.Seeders {
			return a.Seeders > b.Seeders
		}
		if a.SourceOrder != b.SourceOrder {
			return a.SourceOrder < b.SourceOrder
		}
		return a.MagnetURI < b.MagnetURI
	})

	return survivors[0], true
}

func (s *Selector) matches(c indexer.Candidate, target Target) bool {
	if _, allowed := s.rank[strings.ToLower(c.Quality)]; !allowed {
		return false
	}

	if target.Kind == models.MediaKindTVShow {
		// Episode targets demand an exact match; season packs
		// (episode == SeasonPackEpisode) never equal a concrete episode
		if target.Season == nil || target.Episode == nil {
			return false
		}
		if c.Season == nil || c.Episode == nil {
			return false
		}
		if *c.Season != *target.Season || *c.Episode != *target.Episode {
			return false
		}
	} else {
		if c.Season != nil || c.Episode != nil {
			return false
		}
		if target.Year != 0 {
			if year := utils.ExtractYear(c.Title); year != 0 && year != target.Year {
				return false
			}
		}
	}

	return s.titleSimilarity(c.Title, target.Title) >= s.threshold
}

// titleSimilarity compares the leading words of a normalized release title
// against the normalized target title, so quality labels, years and release
// group suffixes do not drag the score down.
func (s *Selector) titleSimilarity(candidate, target string) float64 {
	nt := utils.NormalizeTitle(target)
	if nt == "" {
		return 0
	}

	ncWords := strings.Fields(utils.NormalizeTitle(candidate))
	ntWords := strings.Fields(nt)
	if len(ncWords) > len(ntWords) {
		ncWords = ncWords[:len(ntWords)]
	}
	nc := strings.Join(ncWords, " ")

	distance := matchr.Levenshtein(nc, nt)
	longest := len(nc)
	if len(nt) > longest {
		longest = len(nt)
	}
	if longest == 0 {
		return 0
	}

	return 1.0 - float64(distance)/float64(longest)
}
