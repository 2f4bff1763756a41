package domain

import "fmt"

// Topic is a label of the legacy taxonomy. It carries no provenance.
type Topic struct {
	ID    int64
	Title string
}

// NewTopic is a label of the newer taxonomy; an article carries at most one
// assigned by the resolver.
type NewTopic struct {
	ID    int64
	Title string
}

// TopicOriginType records why a NewTopic was attached to an article.
// The numeric values are persisted.
type TopicOriginType int

const (
	OriginNone TopicOriginType = iota
	OriginHardset
	OriginURLParsed
	OriginInferred
)

func (o TopicOriginType) String() string {
	switch o {
	case OriginNone:
		return "NONE"
	case OriginHardset:
		return "HARDSET"
	case OriginURLParsed:
		return "URL_PARSED"
	case OriginInferred:
		return "INFERRED"
	default:
		return fmt.Sprintf("TopicOriginType(%d)", int(o))
	}
}

// ParseTopicOrigin is the inverse of TopicOriginType.String.
func ParseTopicOrigin(s string) (TopicOriginType, error) {
	switch s {
	case "HARDSET":
		return OriginHardset, nil
	case "URL_PARSED":
		return OriginURLParsed, nil
	case "INFERRED":
		return OriginInferred, nil
	case "", "NONE":
		return OriginNone, nil
	}
	return OriginNone, fmt.Errorf("unknown topic origin %q", s)
}

// NewTopicAssignment is a NewTopic attached to an article together with its origin.
type NewTopicAssignment struct {
	Topic  NewTopic
	Origin TopicOriginType
}

// TopicKeyword maps a normalized URL keyword in a language to a NewTopic.
// Topic is nil for keywords nobody has mapped yet.
type TopicKeyword struct {
	Keyword  string
	Language string
	Topic    *NewTopic
}

// LocalizedTopic is the stored form of a legacy topic rule for one language.
type LocalizedTopic struct {
	Topic    Topic
	Language string
	Keywords []string
}

// Neighbor is a semantically close article together with the new topics it already carries.
type Neighbor struct {
	ArticleID int64
	URL       string
	Topics    []NewTopicAssignment
}

// NeighborFilter restricts which neighbour topics an oracle may return.
type NeighborFilter struct {
	ExcludeOrigins []TopicOriginType
	Limit          int
}

// Excludes reports whether topics with origin must be dropped.
func (f NeighborFilter) Excludes(origin TopicOriginType) bool {
	for _, o := range f.ExcludeOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

// LocalizedRule is a legacy topic together with its match predicate.
type LocalizedRule struct {
	Topic Topic
	Match func(Article) bool
}
