package ports

import (
	"context"
	"time"

	"FeedCrawler/internal/domain"
)

// FeedSource lists feeds to crawl and records crawl progress.
type FeedSource interface {
	FeedsToCrawl(ctx context.Context) ([]domain.Feed, error)
	UpdateLastCrawled(ctx context.Context, feedID int64, at time.Time) error
}

// FeedReader pulls items announced by a feed, newer than since.
type FeedReader interface {
	Items(ctx context.Context, feed domain.Feed, since time.Time) ([]domain.FeedItem, error)
}

// ArticleFetcher downloads and parses article pages.
type ArticleFetcher interface {
	ResolveURL(ctx context.Context, rawURL string) (string, error)
	Fetch(ctx context.Context, rawURL string) (domain.ParsedArticle, error)
}

// QualityFilter decides whether a parsed article is worth keeping.
type QualityFilter interface {
	Check(article domain.ParsedArticle) (bool, string)
}

// ArticleStore persists articles and the URL keywords linked to them.
type ArticleStore interface {
	ArticleExists(ctx context.Context, url string) (bool, error)
	SaveArticle(ctx context.Context, article *domain.Article) error
	LinkTopicKeywords(ctx context.Context, articleID int64, language string, keywords []string) error
	NewTopicsByID(ctx context.Context, ids []int64) (map[int64]domain.NewTopic, error)
}

// LocalizedTopicSource loads stored legacy topic rules for a language.
type LocalizedTopicSource interface {
	LocalizedTopics(ctx context.Context, language string) ([]domain.LocalizedTopic, error)
}

// TopicCatalog yields legacy topic rules with ready-to-use match predicates.
type TopicCatalog interface {
	LocalizedTopicsFor(ctx context.Context, language string) ([]domain.LocalizedRule, error)
}

// KeywordTopicIndex maps keywords found in an article URL to new topics.
type KeywordTopicIndex interface {
	TopicKeywordsForURL(ctx context.Context, rawURL, language string) ([]domain.TopicKeyword, error)
}

// NeighborTopicOracle returns semantically close articles with their new topics.
type NeighborTopicOracle interface {
	NeighborsWithTopics(ctx context.Context, article domain.Article, filter domain.NeighborFilter) ([]domain.Neighbor, error)
}

// AssignmentSink records topic assignments. Implementations must be
// idempotent and safe for concurrent calls on different articles.
type AssignmentSink interface {
	AddTopic(ctx context.Context, article domain.Article, topic domain.Topic) error
	AddNewTopic(ctx context.Context, article domain.Article, topic domain.NewTopic, origin domain.TopicOriginType) error
}

// TransactionalSink is an AssignmentSink able to group writes atomically.
type TransactionalSink interface {
	AssignmentSink
	WithinTx(ctx context.Context, fn func(sink AssignmentSink) error) error
}

// SearchIndexer pushes articles into the search store.
type SearchIndexer interface {
	Index(ctx context.Context, article domain.Article) error
}

// Embedder turns text into a semantic vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Notifier announces newly retrieved articles.
type Notifier interface {
	NotifyArticleRetrieved(ctx context.Context, article domain.Article) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
