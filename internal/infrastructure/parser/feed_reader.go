package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"FeedCrawler/internal/domain"
	"FeedCrawler/internal/ports"
)

const userAgent = "FeedCrawler/1.0"

// FeedReader reads RSS and Atom feeds.
type FeedReader struct {
	client *http.Client
	parser *gofeed.Parser
	now    func() time.Time
	logger *slog.Logger
}

var _ ports.FeedReader = (*FeedReader)(nil)

// NewFeedReader wires an HTTP client; a nil client gets a 10 second timeout.
func NewFeedReader(client *http.Client, log *slog.Logger) *FeedReader {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &FeedReader{
		client: client,
		parser: gofeed.NewParser(),
		now:    time.Now,
		logger: log,
	}
}

// Items returns feed entries published after since, in feed order. Entries
// without a date are stamped with the current time. Summaries are plain text.
func (r *FeedReader) Items(ctx context.Context, feed domain.Feed, since time.Time) ([]domain.FeedItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s returned %s", feed.URL, resp.Status)
	}

	parsed, err := r.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	items := make([]domain.FeedItem, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		link := extractLink(entry)
		if link == "" {
			continue
		}

		published := r.now().UTC()
		switch {
		case entry.PublishedParsed != nil:
			published = entry.PublishedParsed.UTC()
		case entry.UpdatedParsed != nil:
			published = entry.UpdatedParsed.UTC()
		}
		if !since.IsZero() && !published.After(since) {
			continue
		}

		summary := entry.Description
		if summary == "" {
			summary = entry.Content
		}
		summary = TextFromHTML(summary)

		items = append(items, domain.FeedItem{
			URL:         link,
			Title:       strings.TrimSpace(entry.Title),
			Summary:     summary,
			PublishedAt: published,
		})
	}

	r.debug("feed read", "feed", feed.URL, "entries", len(parsed.Items), "new", len(items))
	return items, nil
}

func extractLink(entry *gofeed.Item) string {
	if entry.Link != "" {
		return strings.TrimSpace(entry.Link)
	}
	if strings.HasPrefix(entry.GUID, "http") {
		return strings.TrimSpace(entry.GUID)
	}
	return ""
}

func (r *FeedReader) debug(msg string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}
