package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"FeedCrawler/internal/domain"
	"FeedCrawler/internal/keywords"
	"FeedCrawler/internal/ports"
	"FeedCrawler/internal/quality"
	"FeedCrawler/internal/topics"
)

const (
	maxSummaryRunes = 300
	minSummaryRunes = 10
)

// TopicResolver attaches topics to a freshly stored article.
type TopicResolver interface {
	Resolve(ctx context.Context, article *domain.Article, feed domain.Feed) (topics.Resolution, error)
}

// PipelineConfig tunes a crawl. Zero LimitPerFeed and MaxArticleAge disable
// the matching limit; Workers below one crawl feeds one at a time.
type PipelineConfig struct {
	LimitPerFeed      int
	Workers           int
	BannedURLPrefixes []string
	MaxArticleAge     time.Duration
	SaveInElastic     bool
}

// PipelineDeps wires all driven adapters into the ingestion pipeline.
// Indexer, Notifier and Logger are optional.
type PipelineDeps struct {
	Feeds    ports.FeedSource
	Reader   ports.FeedReader
	Fetcher  ports.ArticleFetcher
	Quality  ports.QualityFilter
	Store    ports.ArticleStore
	Resolver TopicResolver
	Indexer  ports.SearchIndexer
	Notifier ports.Notifier
	Logger   *slog.Logger
	Config   PipelineConfig
	Now      func() time.Time
}

// Pipeline implements the feed-ingestion workflow.
type Pipeline struct {
	feeds    ports.FeedSource
	reader   ports.FeedReader
	fetcher  ports.ArticleFetcher
	quality  ports.QualityFilter
	store    ports.ArticleStore
	resolver TopicResolver
	indexer  ports.SearchIndexer
	notifier ports.Notifier
	logger   *slog.Logger
	cfg      PipelineConfig
	now      func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		feeds:    deps.Feeds,
		reader:   deps.Reader,
		fetcher:  deps.Fetcher,
		quality:  deps.Quality,
		store:    deps.Store,
		resolver: deps.Resolver,
		indexer:  deps.Indexer,
		notifier: deps.Notifier,
		logger:   deps.Logger,
		cfg:      deps.Config,
		now:      now,
	}
}

// CrawlAll crawls every feed with bounded parallelism. A failing feed is
// logged and counted; it never stops the others.
func (p *Pipeline) CrawlAll(ctx context.Context) (domain.CrawlStats, error) {
	var total domain.CrawlStats

	feeds, err := p.feeds.FeedsToCrawl(ctx)
	if err != nil {
		return total, fmt.Errorf("list feeds: %w", err)
	}

	workers := p.cfg.Workers
	if workers < 1 {
		workers = 1
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(workers)

	for _, feed := range feeds {
		feed := feed
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			stats, err := p.CrawlFeed(ctx, feed)
			if err != nil {
				p.warn("feed crawl failed", "feed_id", feed.ID, "url", feed.URL, "error", err)
			}

			mu.Lock()
			total.Add(stats)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return total, err
	}

	p.info("crawl finished",
		"feeds", len(feeds),
		"downloaded", total.Downloaded,
		"low_quality", total.LowQuality,
		"already_in_store", total.AlreadyInStore,
		"skipped", total.Skipped,
		"failed", total.Failed)
	return total, nil
}

// CrawlFeed turns the new items of one feed into stored articles.
func (p *Pipeline) CrawlFeed(ctx context.Context, feed domain.Feed) (domain.CrawlStats, error) {
	var stats domain.CrawlStats

	items, err := p.reader.Items(ctx, feed, feed.LastCrawledAt)
	if err != nil {
		return stats, fmt.Errorf("read feed %d: %w", feed.ID, err)
	}

	now := p.now()
	newest := feed.LastCrawledAt

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		if p.cfg.LimitPerFeed > 0 && stats.Downloaded >= p.cfg.LimitPerFeed {
			p.debug("download limit reached", "feed_id", feed.ID, "limit", p.cfg.LimitPerFeed)
			break
		}

		if !item.PublishedAt.After(now) && item.PublishedAt.After(newest) {
			newest = item.PublishedAt
		}

		err := p.ingest(ctx, feed, item, now)
		var lowQuality *domain.LowQualityError
		switch {
		case err == nil:
			stats.Downloaded++
		case errors.Is(err, domain.ErrAlreadyInStore):
			stats.AlreadyInStore++
		case errors.As(err, &lowQuality):
			stats.LowQuality++
			p.debug("low quality article", "url", item.URL, "reason", lowQuality.Reason)
		case errors.Is(err, domain.ErrFromTheFuture), errors.Is(err, domain.ErrTooOld), errors.Is(err, domain.ErrBannedURL):
			stats.Skipped++
			p.debug("item skipped", "url", item.URL, "reason", err)
		default:
			stats.Failed++
			p.warn("item failed", "feed_id", feed.ID, "url", item.URL, "error", err)
		}
	}

	if newest.After(feed.LastCrawledAt) {
		if err := p.feeds.UpdateLastCrawled(ctx, feed.ID, newest); err != nil {
			return stats, fmt.Errorf("update last crawled time of feed %d: %w", feed.ID, err)
		}
	}

	p.debug("feed crawled", "feed_id", feed.ID, "items", len(items), "downloaded", stats.Downloaded)
	return stats, nil
}

func (p *Pipeline) ingest(ctx context.Context, feed domain.Feed, item domain.FeedItem, now time.Time) error {
	if item.PublishedAt.After(now) {
		return domain.ErrFromTheFuture
	}
	if p.cfg.MaxArticleAge > 0 && now.Sub(item.PublishedAt) > p.cfg.MaxArticleAge {
		return domain.ErrTooOld
	}

	url, err := p.fetcher.ResolveURL(ctx, item.URL)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", item.URL, err)
	}
	if p.banned(url) {
		return domain.ErrBannedURL
	}

	exists, err := p.store.ArticleExists(ctx, url)
	if err != nil {
		return fmt.Errorf("check article %s: %w", url, err)
	}
	if exists {
		return domain.ErrAlreadyInStore
	}

	parsed, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	if p.quality != nil {
		if ok, reason := p.quality.Check(parsed); !ok {
			return &domain.LowQualityError{Reason: reason}
		}
	}

	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = parsed.Title
	}

	article := &domain.Article{
		URL:         url,
		Title:       title,
		Authors:     strings.Join(parsed.Authors, ", "),
		Content:     parsed.Text,
		Summary:     buildSummary(item.Summary, parsed.Text),
		HTMLContent: parsed.HTML,
		ImageURL:    parsed.TopImage,
		Language:    feed.Language,
		FeedID:      feed.ID,
		WordCount:   quality.WordCount(parsed.Text),
		PublishedAt: item.PublishedAt,
	}

	if err := p.store.SaveArticle(ctx, article); err != nil {
		return fmt.Errorf("save %s: %w", url, err)
	}

	if kws := keywords.FromURL(url); len(kws) > 0 {
		if err := p.store.LinkTopicKeywords(ctx, article.ID, article.Language, kws); err != nil {
			p.warn("linking url keywords failed", "article_id", article.ID, "error", err)
		}
	}

	if p.resolver != nil {
		if _, err := p.resolver.Resolve(ctx, article, feed); err != nil {
			p.warn("topic resolution failed", "article_id", article.ID, "url", url, "error", err)
		}
	}

	if p.cfg.SaveInElastic && p.indexer != nil {
		if err := p.indexer.Index(ctx, *article); err != nil {
			p.warn("search indexing failed", "article_id", article.ID, "error", err)
		}
	}

	if p.notifier != nil {
		if err := p.notifier.NotifyArticleRetrieved(ctx, *article); err != nil {
			p.warn("notification failed", "article_id", article.ID, "error", err)
		}
	}

	return nil
}

func (p *Pipeline) banned(url string) bool {
	for _, prefix := range p.cfg.BannedURLPrefixes {
		if prefix != "" && strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
}

// buildSummary clips the feed summary; a missing or near-empty one is
// replaced by the start of the article text.
func buildSummary(feedSummary, text string) string {
	summary := strings.TrimSpace(feedSummary)
	if len([]rune(summary)) < minSummaryRunes {
		summary = strings.TrimSpace(text)
	}
	return clipRunes(summary, maxSummaryRunes)
}

func clipRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}

func (p *Pipeline) debug(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}

func (p *Pipeline) info(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}

func (p *Pipeline) warn(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}
