package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	es "github.com/elastic/go-elasticsearch/v8"

	"FeedCrawler/internal/domain"
	"FeedCrawler/internal/ports"
)

const defaultNeighbors = 9

// maxLikeRunes bounds the text sent as a more_like_this seed.
const maxLikeRunes = 5000

var assignableOrigins = []domain.TopicOriginType{
	domain.OriginHardset,
	domain.OriginURLParsed,
	domain.OriginInferred,
}

// NeighborOracle finds articles close to a given one in the same language and
// reports the new topics they carry.
type NeighborOracle struct {
	client   *es.Client
	index    string
	embedder ports.Embedder
	logger   *slog.Logger
}

var _ ports.NeighborTopicOracle = (*NeighborOracle)(nil)

// NewNeighborOracle wires the client. With an embedder the oracle runs a kNN
// search on sem_vec, otherwise a more_like_this query on title and content.
func NewNeighborOracle(client *es.Client, index string, embedder ports.Embedder, log *slog.Logger) *NeighborOracle {
	return &NeighborOracle{client: client, index: index, embedder: embedder, logger: log}
}

// NeighborsWithTopics returns up to filter.Limit neighbours of article. Topics
// whose origin the filter excludes are never returned.
func (o *NeighborOracle) NeighborsWithTopics(ctx context.Context, article domain.Article, filter domain.NeighborFilter) ([]domain.Neighbor, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultNeighbors
	}

	allowed := make([]string, 0, len(assignableOrigins))
	for _, origin := range assignableOrigins {
		if !filter.Excludes(origin) {
			allowed = append(allowed, origin.String())
		}
	}
	if len(allowed) == 0 {
		return nil, nil
	}

	query, err := o.buildQuery(ctx, article, allowed, limit)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	res, err := o.client.Search(
		o.client.Search.WithContext(ctx),
		o.client.Search.WithIndex(o.index),
		o.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("search neighbours: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search neighbours: %s", res.String())
	}

	var result struct {
		Hits struct {
			Hits []struct {
				ID     string `json:"_id"`
				Source struct {
					URL       string          `json:"url"`
					NewTopics []topicDocument `json:"new_topics"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode neighbours: %w", err)
	}

	neighbors := make([]domain.Neighbor, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		if hit.Source.URL == article.URL {
			continue
		}

		id, _ := strconv.ParseInt(hit.ID, 10, 64)
		n := domain.Neighbor{ArticleID: id, URL: hit.Source.URL}
		for _, t := range hit.Source.NewTopics {
			origin, err := domain.ParseTopicOrigin(t.Origin)
			if err != nil || origin == domain.OriginNone || filter.Excludes(origin) {
				continue
			}
			n.Topics = append(n.Topics, domain.NewTopicAssignment{
				Topic:  domain.NewTopic{ID: t.ID, Title: t.Title},
				Origin: origin,
			})
		}
		neighbors = append(neighbors, n)
	}

	o.debug("neighbours found", "url", article.URL, "hits", len(result.Hits.Hits), "neighbours", len(neighbors))
	return neighbors, nil
}

func (o *NeighborOracle) buildQuery(ctx context.Context, article domain.Article, allowed []string, limit int) (map[string]any, error) {
	filters := []any{
		map[string]any{"term": map[string]any{"language": article.Language}},
		map[string]any{"terms": map[string]any{"new_topics.origin": allowed}},
	}
	mustNot := []any{
		map[string]any{"term": map[string]any{"url": article.URL}},
	}
	source := []string{"url", "new_topics"}

	if o.embedder != nil {
		vec, err := o.embedder.Embed(ctx, embeddingText(article))
		if err != nil {
			return nil, fmt.Errorf("embed article: %w", err)
		}
		return map[string]any{
			"size":    limit,
			"_source": source,
			"knn": map[string]any{
				"field":          "sem_vec",
				"query_vector":   vec,
				"k":              limit,
				"num_candidates": limit * 10,
				"filter": map[string]any{
					"bool": map[string]any{"filter": filters, "must_not": mustNot},
				},
			},
		}, nil
	}

	return map[string]any{
		"size":    limit,
		"_source": source,
		"query": map[string]any{
			"bool": map[string]any{
				"must": map[string]any{
					"more_like_this": map[string]any{
						"fields":        []string{"title", "content"},
						"like":          clip(article.Title+"\n\n"+article.Content, maxLikeRunes),
						"min_term_freq": 1,
						"min_doc_freq":  1,
					},
				},
				"filter":   filters,
				"must_not": mustNot,
			},
		},
	}, nil
}

func (o *NeighborOracle) debug(msg string, args ...interface{}) {
	if o.logger != nil {
		o.logger.Debug(msg, args...)
	}
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
