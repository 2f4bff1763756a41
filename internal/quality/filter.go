// Package quality rejects articles not worth offering to learners.
package quality

import (
	"fmt"
	"strings"

	"FeedCrawler/internal/domain"
	"FeedCrawler/internal/ports"
)

// Config holds the thresholds of the filter.
type Config struct {
	MinWords      int
	MaxWords      int
	BannedPhrases []string
}

// DefaultBannedPhrases mark paywalls and consent walls that replace the article body.
var DefaultBannedPhrases = []string{
	"to continue reading",
	"subscribe to read",
	"this content is for subscribers",
	"log ind for at læse",
	"artiklen er kun for abonnenter",
	"please enable javascript",
	"accept cookies",
}

// Filter implements ports.QualityFilter.
type Filter struct {
	cfg Config
}

var _ ports.QualityFilter = (*Filter)(nil)

// New builds a filter; zero thresholds disable the matching check.
func New(cfg Config) *Filter {
	phrases := make([]string, 0, len(cfg.BannedPhrases))
	for _, p := range cfg.BannedPhrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			phrases = append(phrases, p)
		}
	}
	cfg.BannedPhrases = phrases
	return &Filter{cfg: cfg}
}

// Check returns false and a reason when the article should be dropped.
func (f *Filter) Check(article domain.ParsedArticle) (bool, string) {
	text := strings.TrimSpace(article.Text)
	if text == "" {
		return false, "empty text"
	}

	words := WordCount(text)
	if f.cfg.MinWords > 0 && words < f.cfg.MinWords {
		return false, fmt.Sprintf("too short (%d words)", words)
	}
	if f.cfg.MaxWords > 0 && words > f.cfg.MaxWords {
		return false, fmt.Sprintf("too long (%d words)", words)
	}

	lower := strings.ToLower(text)
	for _, phrase := range f.cfg.BannedPhrases {
		if strings.Contains(lower, phrase) {
			return false, fmt.Sprintf("contains %q", phrase)
		}
	}

	return true, ""
}

// WordCount counts whitespace separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
