package utils

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	yearRegex          = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
	seasonEpisodeRegex = regexp.MustCompile(`(?i)\bS(\d{1,2})[\s.]?E(\d{1,3})\b`)
	seasonPackRegex    = regexp.MustCompile(`(?i)\b(?:S(\d{1,2})|Season[\s.]?(\d{1,2}))\b`)
	nonAlnumRegex      = regexp.MustCompile(`[^a-z0-9]+`)
)

// SeasonPackEpisode marks a candidate covering a whole season rather than a
// single episode. Such candidates never match an episode target exactly.
const SeasonPackEpisode = -1

// NormalizeTitle lowercases a release title and strips punctuation, release
// group suffixes and redundant whitespace so titles from different indexes
// compare cleanly.
func NormalizeTitle(title string) string {
	lower := strings.ToLower(title)
	lower = nonAlnumRegex.ReplaceAllString(lower, " ")
	return strings.TrimSpace(lower)
}

// ExtractQuality finds the quality label in a release title.
// Returns "" when no recognizable label is present.
func ExtractQuality(title string) string {
	lower := strings.ToLower(title)
	for _, field := range strings.FieldsFunc(lower, func(r rune) bool {
		return r == ' ' || r == '.' || r == '[' || r == ']' || r == '(' || r == ')'
	}) {
		switch field {
		case "480p", "720p", "1080p", "2160p", "4320p":
			return field
		case "4k":
			return "2160p"
		case "8k":
			return "4320p"
		}
	}
	return ""
}

// ExtractYear extracts a 4-digit year from a release title.
// Returns 0 if no year is found.
func ExtractYear(title string) int {
	matches := yearRegex.FindStringSubmatch(title)
	if len(matches) > 1 {
		year, err := strconv.Atoi(matches[1])
		if err == nil {
			return year
		}
	}
	return 0
}

// ParseSeasonEpisode extracts season and episode numbers from a release
// title. Season packs ("Show S02 1080p", "Show Season 2 Complete") yield
// episode SeasonPackEpisode. Returns nils when the title carries no episode
// marker at all, which is the movie case.
func ParseSeasonEpisode(title string) (*int, *int) {
	if m := seasonEpisodeRegex.FindStringSubmatch(title); m != nil {
		season, err1 := strconv.Atoi(m[1])
		episode, err2 := strconv.Atoi(m[2])
		if err1 == nil && err2 == nil {
			return &season, &episode
		}
	}

	if m := seasonPackRegex.FindStringSubmatch(title); m != nil {
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		season, err := strconv.Atoi(raw)
		if err == nil {
			pack := SeasonPackEpisode
			return &season, &pack
		}
	}

	return nil, nil
}
