package topics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FeedCrawler/internal/domain"
)

type fakeTopicSource struct {
	mu     sync.Mutex
	topics map[string][]domain.LocalizedTopic
	err    error
	loads  int
}

func (f *fakeTopicSource) LocalizedTopics(ctx context.Context, language string) ([]domain.LocalizedTopic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.err != nil {
		return nil, f.err
	}
	return f.topics[language], nil
}

func TestMatcherMatchesURLAndTitle(t *testing.T) {
	t.Parallel()

	m := NewMatcher([]string{" Sport ", "", "fodbold"})

	assert.True(t, m.Matches(domain.Article{URL: "https://dr.dk/SPORT/x"}))
	assert.True(t, m.Matches(domain.Article{URL: "https://dr.dk/x", Title: "Stor Fodbold-kamp"}))
	assert.False(t, m.Matches(domain.Article{URL: "https://dr.dk/politik/x", Title: "Valg"}))
}

func TestMatcherWithoutKeywordsNeverMatches(t *testing.T) {
	t.Parallel()

	assert.False(t, NewMatcher(nil).Matches(domain.Article{URL: "https://dr.dk/sport"}))
	var m *Matcher
	assert.False(t, m.Matches(domain.Article{URL: "https://dr.dk/sport"}))
}

func TestCatalogCompilesAndCachesPerLanguage(t *testing.T) {
	t.Parallel()

	source := &fakeTopicSource{topics: map[string][]domain.LocalizedTopic{
		"da": {
			{Topic: domain.Topic{ID: 1, Title: "Sport"}, Language: "da", Keywords: []string{"sport"}},
			{Topic: domain.Topic{ID: 2, Title: "Politics"}, Language: "da", Keywords: []string{"politik"}},
			{Topic: domain.Topic{ID: 3, Title: "Stray"}, Language: "fr", Keywords: []string{"sport"}},
		},
	}}
	catalog := NewCatalog(source, time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	catalog.now = func() time.Time { return now }

	rules, err := catalog.LocalizedTopicsFor(context.Background(), "da")
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "Sport", rules[0].Topic.Title)
	assert.Equal(t, "Politics", rules[1].Topic.Title)
	assert.True(t, rules[0].Match(domain.Article{URL: "https://dr.dk/sport/a"}))
	assert.False(t, rules[1].Match(domain.Article{URL: "https://dr.dk/sport/a"}))

	_, err = catalog.LocalizedTopicsFor(context.Background(), "da")
	require.NoError(t, err)
	assert.Equal(t, 1, source.loads)

	now = now.Add(2 * time.Minute)
	_, err = catalog.LocalizedTopicsFor(context.Background(), "da")
	require.NoError(t, err)
	assert.Equal(t, 2, source.loads)

	catalog.Invalidate()
	_, err = catalog.LocalizedTopicsFor(context.Background(), "da")
	require.NoError(t, err)
	assert.Equal(t, 3, source.loads)
}

func TestCatalogPropagatesSourceError(t *testing.T) {
	t.Parallel()

	source := &fakeTopicSource{err: errors.New("db down")}
	_, err := NewCatalog(source, 0).LocalizedTopicsFor(context.Background(), "da")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestCatalogConcurrentReads(t *testing.T) {
	t.Parallel()

	source := &fakeTopicSource{topics: map[string][]domain.LocalizedTopic{
		"da": {{Topic: domain.Topic{ID: 1, Title: "Sport"}, Language: "da", Keywords: []string{"sport"}}},
		"fr": {{Topic: domain.Topic{ID: 2, Title: "Sport"}, Language: "fr", Keywords: []string{"sport"}}},
	}}
	catalog := NewCatalog(source, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			lang := "da"
			if i%2 == 0 {
				lang = "fr"
			}
			rules, err := catalog.LocalizedTopicsFor(context.Background(), lang)
			assert.NoError(t, err)
			if assert.Len(t, rules, 1) {
				assert.True(t, rules[0].Match(domain.Article{URL: "https://x.org/sport/y"}))
			}
		}(i)
	}
	wg.Wait()
}
