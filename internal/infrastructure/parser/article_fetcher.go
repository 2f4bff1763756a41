package parser

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"FeedCrawler/internal/domain"
	"FeedCrawler/internal/ports"
)

// minParagraphLen drops captions, bylines and button labels from the body text.
const minParagraphLen = 40

// ArticleFetcher downloads article pages and extracts their readable text.
type ArticleFetcher struct {
	client *http.Client
}

var _ ports.ArticleFetcher = (*ArticleFetcher)(nil)

// NewArticleFetcher wires an HTTP client; a nil client gets a 10 second timeout.
func NewArticleFetcher(client *http.Client) *ArticleFetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &ArticleFetcher{client: client}
}

// ResolveURL follows redirects and returns the final URL. It asks with HEAD
// first and falls back to GET for servers that refuse HEAD.
func (f *ArticleFetcher) ResolveURL(ctx context.Context, rawURL string) (string, error) {
	resp, err := f.do(ctx, http.MethodHead, rawURL)
	if err == nil && resp.StatusCode < http.StatusBadRequest {
		resp.Body.Close()
		return resp.Request.URL.String(), nil
	}
	if err == nil {
		resp.Body.Close()
	}

	resp, err = f.do(ctx, http.MethodGet, rawURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	return resp.Request.URL.String(), nil
}

// Fetch downloads rawURL once and parses it.
func (f *ArticleFetcher) Fetch(ctx context.Context, rawURL string) (domain.ParsedArticle, error) {
	resp, err := f.do(ctx, http.MethodGet, rawURL)
	if err != nil {
		return domain.ParsedArticle{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.ParsedArticle{}, fmt.Errorf("article %s returned %s", rawURL, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return domain.ParsedArticle{}, fmt.Errorf("parse document: %w", err)
	}

	parsed := ParseDocument(doc)
	parsed.URL = resp.Request.URL.String()
	return parsed, nil
}

func (f *ArticleFetcher) do(ctx context.Context, method, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request article: %w", err)
	}
	return resp, nil
}

// ParseDocument extracts title, authors, top image and body text. The body is
// taken from the <article> element when the page has one.
func ParseDocument(doc *goquery.Document) domain.ParsedArticle {
	title := metaContent(doc, `meta[property="og:title"]`)
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	var authors []string
	seen := map[string]struct{}{}
	doc.Find(`meta[name="author"], meta[property="article:author"]`).Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("content")
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		authors = append(authors, name)
	})

	root := doc.Find("article").First()
	if root.Length() == 0 {
		root = doc.Find("body").First()
	}
	root.Find("script, style, nav, aside, footer, figure").Remove()

	var paragraphs []string
	root.Find("p").Each(func(_ int, s *goquery.Selection) {
		text := collapseSpaces(s.Text())
		if len([]rune(text)) >= minParagraphLen {
			paragraphs = append(paragraphs, text)
		}
	})

	html, _ := root.Html()

	return domain.ParsedArticle{
		Title:    title,
		Authors:  authors,
		Text:     strings.Join(paragraphs, "\n\n"),
		HTML:     strings.TrimSpace(html),
		TopImage: metaContent(doc, `meta[property="og:image"]`),
	}
}

// TextFromHTML returns the visible text of an HTML fragment with whitespace
// collapsed. Malformed markup is tolerated.
func TextFromHTML(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return collapseSpaces(fragment)
	}
	return collapseSpaces(doc.Text())
}

func metaContent(doc *goquery.Document, selector string) string {
	v, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(v)
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
