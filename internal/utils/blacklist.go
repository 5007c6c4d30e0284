package utils

import (
	"bufio"
	"os"
	"strings"
)

// Cams and telesyncs are junk regardless of what the indexes claim;
// rejected even with an empty blacklist file.
var builtinTerms = []string{"hdcam", "hdts", "camrip", "telesync", "tsrip", "hd ts"}

// Blacklist holds terms used to reject torrent candidates by title
type Blacklist struct {
	terms []string
}

// NewBlacklist builds a blacklist from the given terms plus the built-ins
func NewBlacklist(terms []string) *Blacklist {
	return &Blacklist{terms: append(append([]string{}, builtinTerms...), terms...)}
}

// LoadBlacklist loads blacklist terms from a file, merging them with the
// built-in cam/telesync rejections. A missing file yields just the built-ins.
func LoadBlacklist(path string) (*Blacklist, error) {
	terms := append([]string{}, builtinTerms...)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &Blacklist{terms: terms}, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		term := strings.TrimSpace(scanner.Text())
		if term != "" && !strings.HasPrefix(term, "#") {
			terms = append(terms, term)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return &Blacklist{terms: terms}, nil
}

// IsBlacklisted checks if a candidate title matches any blacklist term.
// Returns (isBlacklisted, matchedTerm)
func (b *Blacklist) IsBlacklisted(title string) (bool, string) {
	titleLower := strings.ToLower(title)

	for _, term := range b.terms {
		if strings.Contains(titleLower, strings.ToLower(term)) {
			return true, term
		}
	}

	return false, ""
}
