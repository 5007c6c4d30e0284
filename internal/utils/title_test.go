package utils

import "testing"

func TestNormalizeTitle(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"The.Matrix.1999.1080p.BluRay.x264-GROUP", "the matrix 1999 1080p bluray x264 group"},
		{"Alpha (2020) [1080p] [YTS.MX]", "alpha 2020 1080p yts mx"},
		{"  Spaced   Out  ", "spaced out"},
		{"Amélie", "am lie"},
	}
	for _, c := range cases {
		if got := NormalizeTitle(c.in); got != c.want {
			t.Errorf("NormalizeTitle(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestExtractQuality(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Alpha 2020 1080p WEB-DL", "1080p"},
		{"Alpha.2020.720p.BluRay", "720p"},
		{"Alpha 2020 [2160p]", "2160p"},
		{"Alpha 2020 4K HDR", "2160p"},
		{"Alpha 2020 8k remux", "4320p"},
		{"Alpha 2020 480p", "480p"},
		{"Alpha 2020 DVDRip", ""},
		{"Some 1080 piece", ""},
	}
	for _, c := range cases {
		if got := ExtractQuality(c.in); got != c.want {
			t.Errorf("ExtractQuality(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestExtractYear(t *testing.T) {
	if got := ExtractYear("The Matrix 1999 1080p"); got != 1999 {
		t.Errorf("expected 1999, got %d", got)
	}
	if got := ExtractYear("Alpha (2020)"); got != 2020 {
		t.Errorf("expected 2020, got %d", got)
	}
	if got := ExtractYear("No Year Here 108p"); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
}

func TestParseSeasonEpisode(t *testing.T) {
	season, episode := ParseSeasonEpisode("Show S01E02 1080p WEB-DL")
	if season == nil || *season != 1 || episode == nil || *episode != 2 {
		t.Fatalf("expected S01E02, got %v %v", season, episode)
	}

	season, episode = ParseSeasonEpisode("Show s03e10 720p")
	if season == nil || *season != 3 || episode == nil || *episode != 10 {
		t.Fatalf("expected S03E10, got %v %v", season, episode)
	}

	// Season packs carry the sentinel episode so they never match an
	// exact episode target
	season, episode = ParseSeasonEpisode("Show S02 1080p Complete")
	if season == nil || *season != 2 {
		t.Fatalf("expected season 2, got %v", season)
	}
	if episode == nil || *episode != SeasonPackEpisode {
		t.Fatalf("expected season pack sentinel, got %v", episode)
	}

	season, episode = ParseSeasonEpisode("Show Season 4 Complete 720p")
	if season == nil || *season != 4 || episode == nil || *episode != SeasonPackEpisode {
		t.Fatalf("expected season-4 pack, got %v %v", season, episode)
	}

	season, episode = ParseSeasonEpisode("Alpha 2020 1080p BluRay")
	if season != nil || episode != nil {
		t.Fatalf("movie title should yield nils, got %v %v", season, episode)
	}
}

func TestBlacklistBuiltins(t *testing.T) {
	b := NewBlacklist([]string{"x265"})

	if bad, term := b.IsBlacklisted("Alpha 2020 HDCAM 720p"); !bad || term != "hdcam" {
		t.Errorf("expected hdcam rejection, got %v %q", bad, term)
	}
	if bad, term := b.IsBlacklisted("Alpha 2020 1080p x265"); !bad || term != "x265" {
		t.Errorf("expected x265 rejection, got %v %q", bad, term)
	}
	if bad, _ := b.IsBlacklisted("Alpha 2020 1080p BluRay x264"); bad {
		t.Error("clean title should not be rejected")
	}
}
