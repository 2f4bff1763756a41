// Package topics decides which topics a freshly downloaded article gets.
//
// The new-taxonomy slot is filled by the first strategy that produces a topic:
// a per-feed override, then keywords parsed from the article URL, then the most
// frequent topic among semantically close articles. Legacy topics are matched
// independently through per-language keyword rules.
package topics

import (
	"context"
	"errors"
	"log/slog"

	"FeedCrawler/internal/domain"
	"FeedCrawler/internal/ports"
)

// FeedOverrides maps a feed id to the new topic all of its articles receive.
type FeedOverrides map[int64]domain.NewTopic

// Lookup returns the override configured for feed, if any.
func (o FeedOverrides) Lookup(feed domain.Feed) (domain.NewTopic, bool) {
	topic, ok := o[feed.ID]
	return topic, ok
}

// Resolution is the outcome of a single Resolve call.
type Resolution struct {
	Origin       domain.TopicOriginType
	NewTopics    []string
	LegacyTopics []string
	// Candidates lists every distinct topic derived from URL keywords; only
	// the first one is assigned.
	Candidates []string
}

// ResolverDeps wires the resolver collaborators. Nil lookups disable the
// strategy that needs them; a nil Sink resolves without recording.
type ResolverDeps struct {
	Overrides     FeedOverrides
	Keywords      ports.KeywordTopicIndex
	Neighbors     ports.NeighborTopicOracle
	Catalog       ports.TopicCatalog
	Sink          ports.AssignmentSink
	NeighborLimit int
	Logger        *slog.Logger
}

// Resolver assigns topics to one article at a time. It holds no mutable
// state and may be shared between goroutines.
type Resolver struct {
	overrides     FeedOverrides
	keywords      ports.KeywordTopicIndex
	neighbors     ports.NeighborTopicOracle
	catalog       ports.TopicCatalog
	sink          ports.AssignmentSink
	neighborLimit int
	logger        *slog.Logger
}

// NewResolver constructs the resolver.
func NewResolver(deps ResolverDeps) *Resolver {
	return &Resolver{
		overrides:     deps.Overrides,
		keywords:      deps.Keywords,
		neighbors:     deps.Neighbors,
		catalog:       deps.Catalog,
		sink:          deps.Sink,
		neighborLimit: deps.NeighborLimit,
		logger:        deps.Logger,
	}
}

// Resolve decides the topics of article, records them through the sink and
// mirrors the recorded assignments onto article. Nothing is recorded when a
// collaborator fails.
func (r *Resolver) Resolve(ctx context.Context, article *domain.Article, feed domain.Feed) (Resolution, error) {
	if article == nil {
		return Resolution{}, errors.New("resolve topics: nil article")
	}

	chosen, origin, candidates, err := r.decideNewTopic(ctx, *article, feed)
	if err != nil {
		return Resolution{}, err
	}

	legacy, err := r.matchLegacy(ctx, *article)
	if err != nil {
		return Resolution{}, err
	}

	if err := r.record(ctx, article, chosen, origin, legacy); err != nil {
		return Resolution{}, err
	}

	res := Resolution{
		Origin:       origin,
		NewTopics:    []string{},
		LegacyTopics: make([]string, 0, len(legacy)),
		Candidates:   make([]string, 0, len(candidates)),
	}
	if chosen != nil {
		res.NewTopics = append(res.NewTopics, chosen.Title)
	}
	for _, t := range legacy {
		res.LegacyTopics = append(res.LegacyTopics, t.Title)
	}
	for _, t := range candidates {
		res.Candidates = append(res.Candidates, t.Title)
	}

	r.debug("topics resolved",
		"url", article.URL,
		"origin", origin.String(),
		"new_topics", res.NewTopics,
		"legacy_topics", res.LegacyTopics,
		"candidates", res.Candidates)

	return res, nil
}

func (r *Resolver) decideNewTopic(ctx context.Context, article domain.Article, feed domain.Feed) (*domain.NewTopic, domain.TopicOriginType, []domain.NewTopic, error) {
	if topic, ok := r.overrides.Lookup(feed); ok {
		r.debug("used hardcoded feed topic", "feed_id", feed.ID, "topic_id", topic.ID)
		return &topic, domain.OriginHardset, nil, nil
	}

	candidates, err := r.keywordTopics(ctx, article)
	if err != nil {
		return nil, domain.OriginNone, nil, err
	}
	if len(candidates) > 0 {
		first := candidates[0]
		r.debug("used url keywords", "url", article.URL, "candidates", len(candidates))
		return &first, domain.OriginURLParsed, candidates, nil
	}

	inferred, err := r.inferFromNeighbors(ctx, article)
	if err != nil {
		return nil, domain.OriginNone, nil, err
	}
	if inferred != nil {
		r.debug("used neighbour inference", "url", article.URL, "topic_id", inferred.ID)
		return inferred, domain.OriginInferred, nil, nil
	}

	return nil, domain.OriginNone, nil, nil
}

// keywordTopics returns the distinct topics behind the URL keywords in order of discovery.
func (r *Resolver) keywordTopics(ctx context.Context, article domain.Article) ([]domain.NewTopic, error) {
	if r.keywords == nil {
		return nil, nil
	}

	found, err := r.keywords.TopicKeywordsForURL(ctx, article.URL, article.Language)
	if err != nil {
		return nil, unavailable("keyword index", err)
	}

	seen := make(map[int64]struct{}, len(found))
	topics := make([]domain.NewTopic, 0, len(found))
	for _, tk := range found {
		if tk.Topic == nil {
			continue
		}
		if tk.Language != "" && tk.Language != article.Language {
			continue
		}
		if _, ok := seen[tk.Topic.ID]; ok {
			continue
		}
		seen[tk.Topic.ID] = struct{}{}
		topics = append(topics, *tk.Topic)
	}
	return topics, nil
}

// inferFromNeighbors picks the most frequent topic among neighbours; ties go
// to the topic seen first. Inferred neighbour topics never count.
func (r *Resolver) inferFromNeighbors(ctx context.Context, article domain.Article) (*domain.NewTopic, error) {
	if r.neighbors == nil {
		return nil, nil
	}

	filter := domain.NeighborFilter{
		ExcludeOrigins: []domain.TopicOriginType{domain.OriginInferred},
		Limit:          r.neighborLimit,
	}
	neighbors, err := r.neighbors.NeighborsWithTopics(ctx, article, filter)
	if err != nil {
		return nil, unavailable("neighbor oracle", err)
	}

	counts := make(map[int64]int)
	var order []domain.NewTopic
	for _, n := range neighbors {
		for _, assigned := range n.Topics {
			if filter.Excludes(assigned.Origin) {
				continue
			}
			if _, ok := counts[assigned.Topic.ID]; !ok {
				order = append(order, assigned.Topic)
			}
			counts[assigned.Topic.ID]++
		}
	}

	var (
		best      *domain.NewTopic
		bestCount int
	)
	for i := range order {
		if c := counts[order[i].ID]; c > bestCount {
			best = &order[i]
			bestCount = c
		}
	}
	if bestCount < 1 {
		return nil, nil
	}
	r.debug("neighbour topic counts", "url", article.URL, "neighbors", len(neighbors), "top_count", bestCount)
	return best, nil
}

func (r *Resolver) matchLegacy(ctx context.Context, article domain.Article) ([]domain.Topic, error) {
	if r.catalog == nil {
		return nil, nil
	}

	rules, err := r.catalog.LocalizedTopicsFor(ctx, article.Language)
	if err != nil {
		return nil, unavailable("topic catalog", err)
	}

	seen := make(map[int64]struct{})
	var matched []domain.Topic
	for _, rule := range rules {
		if rule.Match == nil || !rule.Match(article) {
			continue
		}
		if _, ok := seen[rule.Topic.ID]; ok {
			continue
		}
		seen[rule.Topic.ID] = struct{}{}
		matched = append(matched, rule.Topic)
	}
	return matched, nil
}

func (r *Resolver) record(ctx context.Context, article *domain.Article, chosen *domain.NewTopic, origin domain.TopicOriginType, legacy []domain.Topic) error {
	var (
		addLegacy []domain.Topic
		addNew    *domain.NewTopic
	)
	for _, t := range legacy {
		if !article.HasTopic(t.ID) {
			addLegacy = append(addLegacy, t)
		}
	}
	if chosen != nil && !article.HasNewTopic(chosen.ID) {
		addNew = chosen
	}
	if r.sink == nil || (len(addLegacy) == 0 && addNew == nil) {
		return nil
	}

	write := func(sink ports.AssignmentSink) error {
		for _, t := range addLegacy {
			if err := sink.AddTopic(ctx, *article, t); err != nil {
				return unavailable("assignment sink", err)
			}
		}
		if addNew != nil {
			if err := sink.AddNewTopic(ctx, *article, *addNew, origin); err != nil {
				return unavailable("assignment sink", err)
			}
		}
		return nil
	}

	var err error
	if tx, ok := r.sink.(ports.TransactionalSink); ok {
		err = tx.WithinTx(ctx, write)
	} else {
		err = write(r.sink)
	}
	if err != nil {
		if !errors.Is(err, ErrCollaboratorUnavailable) {
			err = unavailable("assignment sink", err)
		}
		return err
	}

	article.Topics = append(article.Topics, addLegacy...)
	if addNew != nil {
		article.NewTopics = append(article.NewTopics, domain.NewTopicAssignment{Topic: *addNew, Origin: origin})
	}
	return nil
}

func (r *Resolver) debug(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}
