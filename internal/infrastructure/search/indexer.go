package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"

	"FeedCrawler/internal/domain"
	"FeedCrawler/internal/ports"
)

// document is the stored form of an article.
type document struct {
	Title          string          `json:"title"`
	Author         string          `json:"author"`
	Content        string          `json:"content"`
	Summary        string          `json:"summary"`
	WordCount      int             `json:"word_count"`
	PublishedTime  time.Time       `json:"published_time"`
	Topics         []string        `json:"topics"`
	TopicsInferred []string        `json:"topics_inferred"`
	NewTopics      []topicDocument `json:"new_topics"`
	LegacyTopics   []string        `json:"legacy_topics"`
	Language       string          `json:"language"`
	URL            string          `json:"url"`
	SemVec         []float32       `json:"sem_vec,omitempty"`
}

type topicDocument struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Origin string `json:"origin"`
}

func newDocument(article domain.Article) document {
	doc := document{
		Title:          article.Title,
		Author:         article.Authors,
		Content:        article.Content,
		Summary:        article.Summary,
		WordCount:      article.WordCount,
		PublishedTime:  article.PublishedAt,
		Topics:         []string{},
		TopicsInferred: []string{},
		NewTopics:      make([]topicDocument, 0, len(article.NewTopics)),
		LegacyTopics:   make([]string, 0, len(article.Topics)),
		Language:       article.Language,
		URL:            article.URL,
	}

	for _, assigned := range article.NewTopics {
		doc.NewTopics = append(doc.NewTopics, topicDocument{
			ID:     assigned.Topic.ID,
			Title:  assigned.Topic.Title,
			Origin: assigned.Origin.String(),
		})
		if assigned.Origin == domain.OriginInferred {
			doc.TopicsInferred = append(doc.TopicsInferred, assigned.Topic.Title)
		} else {
			doc.Topics = append(doc.Topics, assigned.Topic.Title)
		}
	}
	for _, t := range article.Topics {
		doc.LegacyTopics = append(doc.LegacyTopics, t.Title)
	}
	return doc
}

// Indexer upserts articles into an index, keyed by article id.
type Indexer struct {
	client   *es.Client
	index    string
	embedder ports.Embedder
	logger   *slog.Logger
}

var _ ports.SearchIndexer = (*Indexer)(nil)

// NewIndexer wires the client. embedder may be nil, in which case documents
// carry no semantic vector.
func NewIndexer(client *es.Client, index string, embedder ports.Embedder, log *slog.Logger) *Indexer {
	return &Indexer{client: client, index: index, embedder: embedder, logger: log}
}

// Index stores article. A failing embedder only costs the vector.
func (i *Indexer) Index(ctx context.Context, article domain.Article) error {
	doc := newDocument(article)

	if i.embedder != nil {
		vec, err := i.embedder.Embed(ctx, embeddingText(article))
		if err != nil {
			i.warn("embedding failed", "url", article.URL, "error", err)
		} else {
			doc.SemVec = vec
		}
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	res, err := i.client.Index(
		i.index,
		bytes.NewReader(body),
		i.client.Index.WithContext(ctx),
		i.client.Index.WithDocumentID(strconv.FormatInt(article.ID, 10)),
	)
	if err != nil {
		return fmt.Errorf("index article %d: %w", article.ID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index article %d: %s", article.ID, res.String())
	}
	return nil
}

func (i *Indexer) warn(msg string, args ...interface{}) {
	if i.logger != nil {
		i.logger.Warn(msg, args...)
	}
}

func embeddingText(article domain.Article) string {
	return article.Title + "\n\n" + article.Content
}
