package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"

	"FeedCrawler/internal/domain"
	"FeedCrawler/internal/ports"
)

// psql builds Postgres-flavoured statements.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresRepository persists feeds, articles and topic assignments into Postgres.
type PostgresRepository struct {
	db *sql.DB
}

var (
	_ ports.FeedSource           = (*PostgresRepository)(nil)
	_ ports.ArticleStore         = (*PostgresRepository)(nil)
	_ ports.LocalizedTopicSource = (*PostgresRepository)(nil)
	_ ports.KeywordTopicIndex    = (*PostgresRepository)(nil)
	_ ports.TransactionalSink    = (*PostgresRepository)(nil)
)

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// FeedsToCrawl returns every active feed ordered by id.
func (r *PostgresRepository) FeedsToCrawl(ctx context.Context) ([]domain.Feed, error) {
	query, args, err := psql.
		Select("id", "title", "url", "language_code", "last_crawled_time").
		From("feed").
		Where(sq.Eq{"deactivated": false}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build feeds query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query feeds: %w", err)
	}

	var feeds []domain.Feed
	for rows.Next() {
		var (
			feed        domain.Feed
			lastCrawled sql.NullTime
		)
		if err := rows.Scan(&feed.ID, &feed.Title, &feed.URL, &feed.Language, &lastCrawled); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan feed: %w", err)
		}
		if lastCrawled.Valid {
			feed.LastCrawledAt = lastCrawled.Time
		}
		feeds = append(feeds, feed)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return feeds, nil
}

// UpdateLastCrawled stores the newest item time seen for a feed.
func (r *PostgresRepository) UpdateLastCrawled(ctx context.Context, feedID int64, at time.Time) error {
	query, args, err := psql.
		Update("feed").
		Set("last_crawled_time", at).
		Where(sq.Eq{"id": feedID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build feed update: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update feed %d: %w", feedID, err)
	}
	return nil
}

// ArticleExists reports whether an article with url is already stored.
func (r *PostgresRepository) ArticleExists(ctx context.Context, url string) (bool, error) {
	query, args, err := psql.
		Select("1").
		Prefix("SELECT EXISTS (").
		From("article").
		Where(sq.Eq{"url": url}).
		Suffix(")").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists query: %w", err)
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("query article exists: %w", err)
	}
	return exists, nil
}

// SaveArticle inserts the article and sets its ID.
func (r *PostgresRepository) SaveArticle(ctx context.Context, article *domain.Article) error {
	if article == nil {
		return fmt.Errorf("save article: nil article")
	}

	query, args, err := psql.
		Insert("article").
		Columns("url", "title", "authors", "content", "summary", "html_content",
			"img_url", "language_code", "feed_id", "word_count", "published_time").
		Values(article.URL, article.Title, article.Authors, article.Content, article.Summary, article.HTMLContent,
			article.ImageURL, article.Language, article.FeedID, article.WordCount, article.PublishedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("build article insert: %w", err)
	}

	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&article.ID); err != nil {
		return fmt.Errorf("insert article: %w", err)
	}
	return nil
}

// LinkTopicKeywords records the URL keywords of an article, creating unknown
// keywords without a topic so they can be mapped later.
func (r *PostgresRepository) LinkTopicKeywords(ctx context.Context, articleID int64, language string, keywords []string) error {
	if len(keywords) == 0 {
		return nil
	}

	return r.withinTx(ctx, func(tx execer) error {
		for rank, kw := range keywords {
			upsert, args, err := psql.
				Insert("topic_keyword").
				Columns("keyword", "language_code").
				Values(kw, language).
				Suffix("ON CONFLICT (keyword, language_code) DO UPDATE SET keyword = EXCLUDED.keyword RETURNING id").
				ToSql()
			if err != nil {
				return fmt.Errorf("build keyword upsert: %w", err)
			}

			var keywordID int64
			if err := tx.QueryRowContext(ctx, upsert, args...).Scan(&keywordID); err != nil {
				return fmt.Errorf("upsert keyword %q: %w", kw, err)
			}

			link, args, err := psql.
				Insert("article_topic_keyword_map").
				Columns("article_id", "topic_keyword_id", "rank").
				Values(articleID, keywordID, rank).
				Suffix("ON CONFLICT DO NOTHING").
				ToSql()
			if err != nil {
				return fmt.Errorf("build keyword link: %w", err)
			}
			if _, err := tx.ExecContext(ctx, link, args...); err != nil {
				return fmt.Errorf("link keyword %q: %w", kw, err)
			}
		}
		return nil
	})
}

// NewTopicsByID loads new topics by id; unknown ids are absent from the result.
func (r *PostgresRepository) NewTopicsByID(ctx context.Context, ids []int64) (map[int64]domain.NewTopic, error) {
	result := make(map[int64]domain.NewTopic, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query, args, err := psql.
		Select("id", "title").
		From("new_topic").
		Where(sq.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build new topics query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query new topics: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var topic domain.NewTopic
		if err := rows.Scan(&topic.ID, &topic.Title); err != nil {
			return nil, fmt.Errorf("scan new topic: %w", err)
		}
		result[topic.ID] = topic
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) withinTx(ctx context.Context, fn func(tx execer) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
