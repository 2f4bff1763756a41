package topics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FeedCrawler/internal/domain"
	"FeedCrawler/internal/ports"
)

var (
	topicSport    = domain.NewTopic{ID: 1, Title: "Sport"}
	topicCulture  = domain.NewTopic{ID: 2, Title: "Culture"}
	topicPolitics = domain.NewTopic{ID: 3, Title: "Politics"}
	topicScience  = domain.NewTopic{ID: 4, Title: "Science"}
	topicEight    = domain.NewTopic{ID: 8, Title: "Technology & Science"}
)

type fakeKeywords struct {
	result []domain.TopicKeyword
	err    error
	calls  int
}

func (f *fakeKeywords) TopicKeywordsForURL(ctx context.Context, rawURL, language string) ([]domain.TopicKeyword, error) {
	f.calls++
	return f.result, f.err
}

type fakeOracle struct {
	result  []domain.Neighbor
	err     error
	calls   int
	filters []domain.NeighborFilter
}

func (f *fakeOracle) NeighborsWithTopics(ctx context.Context, article domain.Article, filter domain.NeighborFilter) ([]domain.Neighbor, error) {
	f.calls++
	f.filters = append(f.filters, filter)
	return f.result, f.err
}

type fakeCatalog struct {
	rules []domain.LocalizedRule
	err   error
}

func (f *fakeCatalog) LocalizedTopicsFor(ctx context.Context, language string) ([]domain.LocalizedRule, error) {
	return f.rules, f.err
}

type newTopicCall struct {
	topic  domain.NewTopic
	origin domain.TopicOriginType
}

type recordingSink struct {
	mu        sync.Mutex
	topics    []domain.Topic
	newTopics []newTopicCall
	err       error
}

func (s *recordingSink) AddTopic(ctx context.Context, article domain.Article, topic domain.Topic) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.topics = append(s.topics, topic)
	return nil
}

func (s *recordingSink) AddNewTopic(ctx context.Context, article domain.Article, topic domain.NewTopic, origin domain.TopicOriginType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.newTopics = append(s.newTopics, newTopicCall{topic: topic, origin: origin})
	return nil
}

// txSink buffers writes and only applies them when the callback succeeds.
type txSink struct {
	recordingSink
	commits   int
	rollbacks int
}

func (s *txSink) WithinTx(ctx context.Context, fn func(sink ports.AssignmentSink) error) error {
	staged := &recordingSink{}
	if err := fn(staged); err != nil {
		s.rollbacks++
		return err
	}
	s.topics = append(s.topics, staged.topics...)
	s.newTopics = append(s.newTopics, staged.newTopics...)
	s.commits++
	return nil
}

func keyword(kw string, topic *domain.NewTopic) domain.TopicKeyword {
	return domain.TopicKeyword{Keyword: kw, Language: "da", Topic: topic}
}

func neighbor(id int64, topics ...domain.NewTopic) domain.Neighbor {
	n := domain.Neighbor{ArticleID: id}
	for _, t := range topics {
		n.Topics = append(n.Topics, domain.NewTopicAssignment{Topic: t, Origin: domain.OriginURLParsed})
	}
	return n
}

func legacyRule(id int64, title, needle string) domain.LocalizedRule {
	return domain.LocalizedRule{
		Topic: domain.Topic{ID: id, Title: title},
		Match: func(a domain.Article) bool { return strings.Contains(a.URL, needle) },
	}
}

func newArticle() *domain.Article {
	return &domain.Article{ID: 42, URL: "https://www.dr.dk/sporten/fodbold/slug", Language: "da", Title: "Kamp"}
}

func TestResolveHardcodedFeedWins(t *testing.T) {
	t.Parallel()

	kw := &fakeKeywords{result: []domain.TopicKeyword{keyword("sporten", &topicSport)}}
	oracle := &fakeOracle{result: []domain.Neighbor{neighbor(1, topicCulture)}}
	sink := &recordingSink{}
	r := NewResolver(ResolverDeps{
		Overrides: FeedOverrides{102: topicEight},
		Keywords:  kw,
		Neighbors: oracle,
		Catalog:   &fakeCatalog{rules: []domain.LocalizedRule{legacyRule(10, "Sport", "sporten")}},
		Sink:      sink,
	})

	res, err := r.Resolve(context.Background(), newArticle(), domain.Feed{ID: 102})
	require.NoError(t, err)

	assert.Equal(t, domain.OriginHardset, res.Origin)
	assert.Equal(t, []string{"Technology & Science"}, res.NewTopics)
	assert.Equal(t, []string{"Sport"}, res.LegacyTopics)
	assert.Zero(t, kw.calls, "keyword index must not be consulted")
	assert.Zero(t, oracle.calls, "oracle must not be consulted")
	require.Len(t, sink.newTopics, 1)
	assert.Equal(t, newTopicCall{topic: topicEight, origin: domain.OriginHardset}, sink.newTopics[0])
}

func TestResolveURLKeywordsBeatNeighbors(t *testing.T) {
	t.Parallel()

	kw := &fakeKeywords{result: []domain.TopicKeyword{
		keyword("ukendt", nil),
		keyword("sporten", &topicSport),
		keyword("fodbold", &topicSport),
		keyword("kultur", &topicCulture),
	}}
	oracle := &fakeOracle{result: []domain.Neighbor{neighbor(1, topicPolitics), neighbor(2, topicPolitics)}}
	sink := &recordingSink{}
	r := NewResolver(ResolverDeps{Keywords: kw, Neighbors: oracle, Sink: sink})

	res, err := r.Resolve(context.Background(), newArticle(), domain.Feed{ID: 7})
	require.NoError(t, err)

	assert.Equal(t, domain.OriginURLParsed, res.Origin)
	assert.Equal(t, []string{"Sport"}, res.NewTopics)
	assert.Equal(t, []string{"Sport", "Culture"}, res.Candidates)
	assert.Zero(t, oracle.calls)
	require.Len(t, sink.newTopics, 1)
	assert.Equal(t, topicSport, sink.newTopics[0].topic)
	assert.Equal(t, domain.OriginURLParsed, sink.newTopics[0].origin)
}

func TestResolveKeywordsOfOtherLanguageIgnored(t *testing.T) {
	t.Parallel()

	kw := &fakeKeywords{result: []domain.TopicKeyword{{Keyword: "sport", Language: "fr", Topic: &topicSport}}}
	r := NewResolver(ResolverDeps{Keywords: kw, Sink: &recordingSink{}})

	res, err := r.Resolve(context.Background(), newArticle(), domain.Feed{ID: 7})
	require.NoError(t, err)
	assert.Equal(t, domain.OriginNone, res.Origin)
}

func TestResolveInferredMostFrequent(t *testing.T) {
	t.Parallel()

	// Pooled neighbour topics: [A, B, A, C] -> A.
	oracle := &fakeOracle{result: []domain.Neighbor{
		neighbor(1, topicSport, topicCulture),
		neighbor(2, topicSport),
		neighbor(3, topicPolitics),
	}}
	sink := &recordingSink{}
	r := NewResolver(ResolverDeps{Keywords: &fakeKeywords{}, Neighbors: oracle, Sink: sink, NeighborLimit: 9})

	res, err := r.Resolve(context.Background(), newArticle(), domain.Feed{ID: 7})
	require.NoError(t, err)

	assert.Equal(t, domain.OriginInferred, res.Origin)
	assert.Equal(t, []string{"Sport"}, res.NewTopics)
	require.Len(t, oracle.filters, 1)
	assert.True(t, oracle.filters[0].Excludes(domain.OriginInferred), "oracle must be told to drop inferred topics")
	assert.Equal(t, 9, oracle.filters[0].Limit)
	require.Len(t, sink.newTopics, 1)
	assert.Equal(t, domain.OriginInferred, sink.newTopics[0].origin)
}

func TestResolveInferredTieGoesToFirstSeen(t *testing.T) {
	t.Parallel()

	oracle := &fakeOracle{result: []domain.Neighbor{
		neighbor(1, topicCulture),
		neighbor(2, topicScience),
		neighbor(3, topicScience, topicCulture),
	}}
	r := NewResolver(ResolverDeps{Neighbors: oracle, Sink: &recordingSink{}})

	res, err := r.Resolve(context.Background(), newArticle(), domain.Feed{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Culture"}, res.NewTopics)
}

func TestResolveInferredIgnoresInferredNeighborTopics(t *testing.T) {
	t.Parallel()

	oracle := &fakeOracle{result: []domain.Neighbor{
		{ArticleID: 1, Topics: []domain.NewTopicAssignment{
			{Topic: topicPolitics, Origin: domain.OriginInferred},
			{Topic: topicPolitics, Origin: domain.OriginInferred},
			{Topic: topicCulture, Origin: domain.OriginHardset},
		}},
	}}
	r := NewResolver(ResolverDeps{Neighbors: oracle, Sink: &recordingSink{}})

	res, err := r.Resolve(context.Background(), newArticle(), domain.Feed{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Culture"}, res.NewTopics)
}

func TestResolveNothingFound(t *testing.T) {
	t.Parallel()

	oracle := &fakeOracle{result: []domain.Neighbor{{ArticleID: 5}}}
	sink := &recordingSink{}
	r := NewResolver(ResolverDeps{Keywords: &fakeKeywords{}, Neighbors: oracle, Sink: sink})

	res, err := r.Resolve(context.Background(), newArticle(), domain.Feed{ID: 1})
	require.NoError(t, err)

	assert.Equal(t, domain.OriginNone, res.Origin)
	assert.Empty(t, res.NewTopics)
	assert.NotNil(t, res.NewTopics)
	assert.Empty(t, sink.newTopics)
}

func TestResolveLegacyIndependentOfNewTopic(t *testing.T) {
	t.Parallel()

	catalog := &fakeCatalog{rules: []domain.LocalizedRule{
		legacyRule(10, "Sport", "sporten"),
		legacyRule(11, "Politik", "politik"),
		legacyRule(12, "Fodbold", "fodbold"),
		legacyRule(10, "Sport", "dr.dk"),
	}}
	sink := &recordingSink{}
	r := NewResolver(ResolverDeps{Catalog: catalog, Sink: sink})

	article := newArticle()
	res, err := r.Resolve(context.Background(), article, domain.Feed{})
	require.NoError(t, err)

	assert.Equal(t, domain.OriginNone, res.Origin)
	assert.Empty(t, res.NewTopics)
	assert.Equal(t, []string{"Sport", "Fodbold"}, res.LegacyTopics)
	assert.Len(t, sink.topics, 2)
	assert.Len(t, article.Topics, 2)
}

func TestResolveIdempotent(t *testing.T) {
	t.Parallel()

	kw := &fakeKeywords{result: []domain.TopicKeyword{keyword("sporten", &topicSport)}}
	catalog := &fakeCatalog{rules: []domain.LocalizedRule{legacyRule(10, "Sport", "sporten")}}
	sink := &recordingSink{}
	r := NewResolver(ResolverDeps{Keywords: kw, Catalog: catalog, Sink: sink})

	article := newArticle()
	first, err := r.Resolve(context.Background(), article, domain.Feed{})
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), article, domain.Feed{})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, sink.topics, 1)
	assert.Len(t, sink.newTopics, 1)
	assert.Len(t, article.NewTopics, 1)
	assert.Equal(t, domain.OriginURLParsed, article.NewTopics[0].Origin)
}

func TestResolveCollaboratorFailureRecordsNothing(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")
	tests := []struct {
		name         string
		deps         ResolverDeps
		collaborator string
	}{
		{
			name:         "keyword index",
			deps:         ResolverDeps{Keywords: &fakeKeywords{err: boom}},
			collaborator: "keyword index",
		},
		{
			name:         "oracle",
			deps:         ResolverDeps{Neighbors: &fakeOracle{err: boom}},
			collaborator: "neighbor oracle",
		},
		{
			name: "catalog",
			deps: ResolverDeps{
				Overrides: FeedOverrides{1: topicSport},
				Catalog:   &fakeCatalog{err: boom},
			},
			collaborator: "topic catalog",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sink := &recordingSink{}
			tt.deps.Sink = sink
			r := NewResolver(tt.deps)

			article := newArticle()
			_, err := r.Resolve(context.Background(), article, domain.Feed{ID: 1})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrCollaboratorUnavailable)
			assert.ErrorIs(t, err, boom)

			var cerr *CollaboratorError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.collaborator, cerr.Collaborator)

			assert.Empty(t, sink.topics)
			assert.Empty(t, sink.newTopics)
			assert.Empty(t, article.Topics)
			assert.Empty(t, article.NewTopics)
		})
	}
}

func TestResolveSinkFailureRollsBack(t *testing.T) {
	t.Parallel()

	sink := &txSink{}
	catalog := &fakeCatalog{rules: []domain.LocalizedRule{legacyRule(10, "Sport", "sporten")}}
	failing := &failingTxSink{txSink: sink, failOnNew: true}
	r := NewResolver(ResolverDeps{Overrides: FeedOverrides{1: topicSport}, Catalog: catalog, Sink: failing})

	article := newArticle()
	_, err := r.Resolve(context.Background(), article, domain.Feed{ID: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCollaboratorUnavailable)
	assert.Equal(t, 1, sink.rollbacks)
	assert.Empty(t, sink.topics)
	assert.Empty(t, article.Topics)
	assert.Empty(t, article.NewTopics)
}

func TestResolveTransactionalSinkCommitsOnce(t *testing.T) {
	t.Parallel()

	sink := &txSink{}
	catalog := &fakeCatalog{rules: []domain.LocalizedRule{legacyRule(10, "Sport", "sporten")}}
	r := NewResolver(ResolverDeps{Overrides: FeedOverrides{1: topicSport}, Catalog: catalog, Sink: sink})

	_, err := r.Resolve(context.Background(), newArticle(), domain.Feed{ID: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, sink.commits)
	assert.Len(t, sink.topics, 1)
	assert.Len(t, sink.newTopics, 1)
}

func TestResolveNilArticle(t *testing.T) {
	t.Parallel()
	_, err := NewResolver(ResolverDeps{}).Resolve(context.Background(), nil, domain.Feed{})
	require.Error(t, err)
}

// failingTxSink runs the transaction against a sink that fails on AddNewTopic.
type failingTxSink struct {
	*txSink
	failOnNew bool
}

func (s *failingTxSink) WithinTx(ctx context.Context, fn func(sink ports.AssignmentSink) error) error {
	return s.txSink.WithinTx(ctx, func(inner ports.AssignmentSink) error {
		return fn(&failOnNewSink{AssignmentSink: inner, fail: s.failOnNew})
	})
}

type failOnNewSink struct {
	ports.AssignmentSink
	fail bool
}

func (s *failOnNewSink) AddNewTopic(ctx context.Context, article domain.Article, topic domain.NewTopic, origin domain.TopicOriginType) error {
	if s.fail {
		return errors.New("deadlock detected")
	}
	return s.AssignmentSink.AddNewTopic(ctx, article, topic, origin)
}
