package domain

import "time"

// Feed is a crawled news source. Language is the code of the language its
// articles are written in.
type Feed struct {
	ID            int64
	Title         string
	URL           string
	Language      string
	LastCrawledAt time.Time
}

// FeedItem is a single entry announced by a feed.
type FeedItem struct {
	URL         string
	Title       string
	Summary     string
	PublishedAt time.Time
}

// ParsedArticle is the result of downloading and parsing an article page.
type ParsedArticle struct {
	URL      string
	Title    string
	Authors  []string
	Text     string
	HTML     string
	TopImage string
}

// Article is a core entity describing a downloaded article and its topic assignments.
type Article struct {
	ID          int64
	URL         string
	Title       string
	Authors     string
	Content     string
	Summary     string
	HTMLContent string
	ImageURL    string
	Language    string
	FeedID      int64
	WordCount   int
	PublishedAt time.Time

	Topics    []Topic
	NewTopics []NewTopicAssignment
}

// HasTopic reports whether the legacy topic is already assigned.
func (a Article) HasTopic(id int64) bool {
	for _, t := range a.Topics {
		if t.ID == id {
			return true
		}
	}
	return false
}

// HasNewTopic reports whether the new topic is already assigned, whatever its origin.
func (a Article) HasNewTopic(id int64) bool {
	for _, t := range a.NewTopics {
		if t.Topic.ID == id {
			return true
		}
	}
	return false
}

// CrawlStats counts outcomes of a single feed crawl.
type CrawlStats struct {
	Downloaded     int
	LowQuality     int
	AlreadyInStore int
	Skipped        int
	Failed         int
}

// Add merges other into s.
func (s *CrawlStats) Add(other CrawlStats) {
	s.Downloaded += other.Downloaded
	s.LowQuality += other.LowQuality
	s.AlreadyInStore += other.AlreadyInStore
	s.Skipped += other.Skipped
	s.Failed += other.Failed
}
