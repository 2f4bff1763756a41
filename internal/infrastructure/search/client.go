// Package search keeps articles in Elasticsearch and looks up semantically
// close articles for topic inference.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	es "github.com/elastic/go-elasticsearch/v8"
)

// NewClient connects to the cluster at url.
func NewClient(url string) (*es.Client, error) {
	client, err := es.NewClient(es.Config{Addresses: []string{url}})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return client, nil
}

// Mapping returns the article index mapping. A zero dims leaves sem_vec out.
func Mapping(dims int) map[string]any {
	properties := map[string]any{
		"title":           map[string]any{"type": "text"},
		"author":          map[string]any{"type": "text"},
		"content":         map[string]any{"type": "text"},
		"summary":         map[string]any{"type": "text"},
		"word_count":      map[string]any{"type": "integer"},
		"published_time":  map[string]any{"type": "date"},
		"topics":          map[string]any{"type": "keyword"},
		"topics_inferred": map[string]any{"type": "keyword"},
		"legacy_topics":   map[string]any{"type": "keyword"},
		"language":        map[string]any{"type": "keyword"},
		"url":             map[string]any{"type": "keyword"},
		"new_topics": map[string]any{
			"properties": map[string]any{
				"id":     map[string]any{"type": "long"},
				"title":  map[string]any{"type": "keyword"},
				"origin": map[string]any{"type": "keyword"},
			},
		},
	}
	if dims > 0 {
		properties["sem_vec"] = map[string]any{
			"type":       "dense_vector",
			"dims":       dims,
			"index":      true,
			"similarity": "cosine",
		}
	}
	return map[string]any{"mappings": map[string]any{"properties": properties}}
}

// EnsureIndex creates index with the article mapping unless it already exists.
func EnsureIndex(ctx context.Context, client *es.Client, index string, dims int) error {
	res, err := client.Indices.Exists([]string{index}, client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index %s: %w", index, err)
	}
	res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
	default:
		return fmt.Errorf("check index %s: %s", index, res.Status())
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(Mapping(dims)); err != nil {
		return fmt.Errorf("encode mapping: %w", err)
	}

	res, err = client.Indices.Create(
		index,
		client.Indices.Create.WithContext(ctx),
		client.Indices.Create.WithBody(&buf),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %w", index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("create index %s: %s", index, res.String())
	}
	return nil
}
