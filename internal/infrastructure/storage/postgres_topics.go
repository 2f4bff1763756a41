package storage

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"FeedCrawler/internal/domain"
	"FeedCrawler/internal/keywords"
	"FeedCrawler/internal/ports"
)

// LocalizedTopics returns the legacy topic rules of a language in rule id order.
func (r *PostgresRepository) LocalizedTopics(ctx context.Context, language string) ([]domain.LocalizedTopic, error) {
	query, args, err := psql.
		Select("t.id", "t.title", "lt.language_code", "lt.keywords").
		From("localized_topic lt").
		Join("topic t ON t.id = lt.topic_id").
		Where(sq.Eq{"lt.language_code": language}).
		OrderBy("lt.id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build localized topics query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query localized topics: %w", err)
	}
	defer rows.Close()

	var result []domain.LocalizedTopic
	for rows.Next() {
		var lt domain.LocalizedTopic
		if err := rows.Scan(&lt.Topic.ID, &lt.Topic.Title, &lt.Language, pq.Array(&lt.Keywords)); err != nil {
			return nil, fmt.Errorf("scan localized topic: %w", err)
		}
		result = append(result, lt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return result, nil
}

// TopicKeywordsForURL extracts keywords from rawURL and looks up their topics
// in language. The result follows keyword order; unknown or unmapped keywords
// carry a nil Topic.
func (r *PostgresRepository) TopicKeywordsForURL(ctx context.Context, rawURL, language string) ([]domain.TopicKeyword, error) {
	found := keywords.FromURL(rawURL)
	if len(found) == 0 {
		return nil, nil
	}

	query, args, err := psql.
		Select("tk.keyword", "nt.id", "nt.title").
		From("topic_keyword tk").
		LeftJoin("new_topic nt ON nt.id = tk.new_topic_id").
		Where(sq.Eq{"tk.language_code": language, "tk.keyword": found}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build topic keyword query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query topic keywords: %w", err)
	}
	defer rows.Close()

	byKeyword := make(map[string]*domain.NewTopic, len(found))
	for rows.Next() {
		var (
			kw    string
			id    sql.NullInt64
			title sql.NullString
		)
		if err := rows.Scan(&kw, &id, &title); err != nil {
			return nil, fmt.Errorf("scan topic keyword: %w", err)
		}
		if id.Valid {
			byKeyword[kw] = &domain.NewTopic{ID: id.Int64, Title: title.String}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	result := make([]domain.TopicKeyword, 0, len(found))
	for _, kw := range found {
		result = append(result, domain.TopicKeyword{Keyword: kw, Language: language, Topic: byKeyword[kw]})
	}
	return result, nil
}

// AddTopic links a legacy topic to an article; repeated calls are no-ops.
func (r *PostgresRepository) AddTopic(ctx context.Context, article domain.Article, topic domain.Topic) error {
	return addTopic(ctx, r.db, article, topic)
}

// AddNewTopic links a new topic with its origin; an existing link keeps its original origin.
func (r *PostgresRepository) AddNewTopic(ctx context.Context, article domain.Article, topic domain.NewTopic, origin domain.TopicOriginType) error {
	return addNewTopic(ctx, r.db, article, topic, origin)
}

// WithinTx runs fn against a sink bound to a single transaction.
func (r *PostgresRepository) WithinTx(ctx context.Context, fn func(sink ports.AssignmentSink) error) error {
	return r.withinTx(ctx, func(tx execer) error {
		return fn(&txSink{tx: tx})
	})
}

type txSink struct {
	tx execer
}

func (s *txSink) AddTopic(ctx context.Context, article domain.Article, topic domain.Topic) error {
	return addTopic(ctx, s.tx, article, topic)
}

func (s *txSink) AddNewTopic(ctx context.Context, article domain.Article, topic domain.NewTopic, origin domain.TopicOriginType) error {
	return addNewTopic(ctx, s.tx, article, topic, origin)
}

func addTopic(ctx context.Context, db execer, article domain.Article, topic domain.Topic) error {
	query, args, err := psql.
		Insert("article_topic_map").
		Columns("article_id", "topic_id").
		Values(article.ID, topic.ID).
		Suffix("ON CONFLICT DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build topic link: %w", err)
	}
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("link topic %d to article %d: %w", topic.ID, article.ID, err)
	}
	return nil
}

func addNewTopic(ctx context.Context, db execer, article domain.Article, topic domain.NewTopic, origin domain.TopicOriginType) error {
	query, args, err := psql.
		Insert("new_article_topic_map").
		Columns("article_id", "new_topic_id", "origin_type").
		Values(article.ID, topic.ID, int(origin)).
		Suffix("ON CONFLICT (article_id, new_topic_id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build new topic link: %w", err)
	}
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("link new topic %d to article %d: %w", topic.ID, article.ID, err)
	}
	return nil
}
