package topics

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ahocorasick "github.com/cloudflare/ahocorasick"

	"FeedCrawler/internal/domain"
	"FeedCrawler/internal/ports"
)

const defaultCatalogTTL = 10 * time.Minute

// Catalog compiles stored localized topics into match rules and caches them
// per language. It is safe for concurrent use.
type Catalog struct {
	source ports.LocalizedTopicSource
	ttl    time.Duration
	now    func() time.Time

	mu      sync.RWMutex
	entries map[string]catalogEntry
}

type catalogEntry struct {
	rules    []domain.LocalizedRule
	loadedAt time.Time
}

var _ ports.TopicCatalog = (*Catalog)(nil)

// NewCatalog wraps a topic source; ttl <= 0 falls back to ten minutes.
func NewCatalog(source ports.LocalizedTopicSource, ttl time.Duration) *Catalog {
	if ttl <= 0 {
		ttl = defaultCatalogTTL
	}
	return &Catalog{
		source:  source,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]catalogEntry),
	}
}

// LocalizedTopicsFor returns the rules for language in source order.
func (c *Catalog) LocalizedTopicsFor(ctx context.Context, language string) ([]domain.LocalizedRule, error) {
	c.mu.RLock()
	entry, ok := c.entries[language]
	c.mu.RUnlock()
	if ok && c.now().Sub(entry.loadedAt) < c.ttl {
		return entry.rules, nil
	}

	stored, err := c.source.LocalizedTopics(ctx, language)
	if err != nil {
		return nil, fmt.Errorf("load localized topics for %s: %w", language, err)
	}

	rules := make([]domain.LocalizedRule, 0, len(stored))
	for _, lt := range stored {
		if lt.Language != language {
			continue
		}
		rules = append(rules, domain.LocalizedRule{
			Topic: lt.Topic,
			Match: NewMatcher(lt.Keywords).Matches,
		})
	}

	c.mu.Lock()
	c.entries[language] = catalogEntry{rules: rules, loadedAt: c.now()}
	c.mu.Unlock()

	return rules, nil
}

// Invalidate drops every cached language.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]catalogEntry)
	c.mu.Unlock()
}

// Matcher tests an article's URL and title against a keyword set.
type Matcher struct {
	matcher *ahocorasick.Matcher
}

// NewMatcher builds an Aho-Corasick automaton over the non-empty lowercased keywords.
func NewMatcher(keywords []string) *Matcher {
	cleaned := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			cleaned = append(cleaned, kw)
		}
	}
	if len(cleaned) == 0 {
		return &Matcher{}
	}
	return &Matcher{matcher: ahocorasick.NewStringMatcher(cleaned)}
}

// Matches reports whether any keyword occurs in the article URL or title.
func (m *Matcher) Matches(article domain.Article) bool {
	if m == nil || m.matcher == nil {
		return false
	}
	text := strings.ToLower(article.URL + " " + article.Title)
	return len(m.matcher.MatchThreadSafe([]byte(text))) > 0
}
