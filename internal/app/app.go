package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"FeedCrawler/internal/config"
	"FeedCrawler/internal/domain"
	"FeedCrawler/internal/infrastructure/ml"
	"FeedCrawler/internal/infrastructure/parser"
	"FeedCrawler/internal/infrastructure/scheduler"
	"FeedCrawler/internal/infrastructure/search"
	"FeedCrawler/internal/infrastructure/storage"
	"FeedCrawler/internal/infrastructure/telegram"
	"FeedCrawler/internal/logging"
	"FeedCrawler/internal/ports"
	"FeedCrawler/internal/quality"
	"FeedCrawler/internal/topics"
	"FeedCrawler/internal/usecase"
)

const shutdownTimeout = 30 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg     config.Config
	logger  *slog.Logger
	crawler usecase.Crawler
	driver  ports.Scheduler
	closers []func() error
}

// New connects the stores and builds the crawl pipeline.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	db, err := storage.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	repo := storage.NewPostgresRepository(db)

	application := &Application{
		cfg:     cfg,
		logger:  baseLogger,
		closers: []func() error{db.Close},
	}

	httpClient := &http.Client{Timeout: cfg.Crawl.Timeout}

	var embedder ports.Embedder
	if cfg.ML.InferenceURL != "" {
		embedder = ml.NewClient(cfg.ML.InferenceURL, cfg.ML.APIKey)
	}

	var (
		indexer ports.SearchIndexer
		oracle  ports.NeighborTopicOracle
	)
	if cfg.Elasticsearch.URL != "" {
		client, err := search.NewClient(cfg.Elasticsearch.URL)
		if err != nil {
			_ = application.Close()
			return nil, err
		}

		dims := 0
		if embedder != nil {
			dims = cfg.Elasticsearch.VectorDims
		}
		if err := search.EnsureIndex(ctx, client, cfg.Elasticsearch.Index, dims); err != nil {
			baseLogger.Warn("search index unavailable", "index", cfg.Elasticsearch.Index, "error", err)
		}

		searchLogger := baseLogger.With("component", "search")
		indexer = search.NewIndexer(client, cfg.Elasticsearch.Index, embedder, searchLogger)
		oracle = search.NewNeighborOracle(client, cfg.Elasticsearch.Index, embedder, searchLogger)
	}

	overrides, err := loadOverrides(ctx, repo, cfg.Topics.FeedOverrides, baseLogger)
	if err != nil {
		_ = application.Close()
		return nil, err
	}

	resolver := topics.NewResolver(topics.ResolverDeps{
		Overrides:     overrides,
		Keywords:      repo,
		Neighbors:     oracle,
		Catalog:       topics.NewCatalog(repo, cfg.Topics.CatalogTTL),
		Sink:          repo,
		NeighborLimit: cfg.Elasticsearch.Neighbors,
		Logger:        baseLogger.With("component", "topics"),
	})

	phrases := cfg.Quality.BannedPhrases
	if len(phrases) == 0 {
		phrases = quality.DefaultBannedPhrases
	}

	var notifier ports.Notifier
	if cfg.Notifications.Telegram.Enabled() {
		notifier = telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID)
	}

	application.crawler = usecase.NewPipeline(usecase.PipelineDeps{
		Feeds:   repo,
		Reader:  parser.NewFeedReader(httpClient, baseLogger.With("component", "feed_reader")),
		Fetcher: parser.NewArticleFetcher(httpClient),
		Quality: quality.New(quality.Config{
			MinWords:      cfg.Quality.MinWords,
			MaxWords:      cfg.Quality.MaxWords,
			BannedPhrases: phrases,
		}),
		Store:    repo,
		Resolver: resolver,
		Indexer:  indexer,
		Notifier: notifier,
		Logger:   baseLogger.With("component", "pipeline"),
		Config: usecase.PipelineConfig{
			LimitPerFeed:      cfg.Crawl.LimitPerFeed,
			Workers:           cfg.Crawl.Workers,
			BannedURLPrefixes: cfg.Crawl.BannedURLPrefixes,
			MaxArticleAge:     cfg.Crawl.MaxArticleAge,
			SaveInElastic:     cfg.Crawl.SaveInElastic,
		},
	})

	if cfg.Scheduler.Enabled {
		driver, err := scheduler.NewCronScheduler(cfg.Scheduler.CronExpression, cfg.Scheduler.Location().String(),
			baseLogger.With("component", "scheduler"))
		if err != nil {
			_ = application.Close()
			return nil, err
		}
		application.driver = driver
	}

	return application, nil
}

// Run crawls once, or keeps crawling on schedule until ctx is done when a
// scheduler is configured.
func (a *Application) Run(ctx context.Context) error {
	if a.crawler == nil {
		return nil
	}

	if a.driver == nil {
		_, err := a.crawler.CrawlAll(ctx)
		return err
	}

	var schedLogger *slog.Logger
	if a.logger != nil {
		schedLogger = a.logger.With("component", "scheduler")
	}
	sched := usecase.NewScheduler(a.driver, a.crawler, schedLogger)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return sched.Stop(stopCtx)
}

// Close releases connections opened by New.
func (a *Application) Close() error {
	var firstErr error
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}

type topicLookup interface {
	NewTopicsByID(ctx context.Context, ids []int64) (map[int64]domain.NewTopic, error)
}

// loadOverrides turns configured feed overrides into topics. Overrides naming
// an unknown topic are dropped with a warning.
func loadOverrides(ctx context.Context, store topicLookup, configured []config.FeedOverride, log *slog.Logger) (topics.FeedOverrides, error) {
	overrides := topics.FeedOverrides{}
	if len(configured) == 0 {
		return overrides, nil
	}

	ids := make([]int64, 0, len(configured))
	for _, o := range configured {
		ids = append(ids, o.TopicID)
	}

	known, err := store.NewTopicsByID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load feed override topics: %w", err)
	}

	for _, o := range configured {
		topic, ok := known[o.TopicID]
		if !ok {
			if log != nil {
				log.Warn("feed override names unknown topic", "feed_id", o.FeedID, "topic_id", o.TopicID)
			}
			continue
		}
		overrides[o.FeedID] = topic
	}
	return overrides, nil
}
