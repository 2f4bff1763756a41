// Package keywords extracts topic keywords from article URLs.
//
// News sites tend to file articles under section paths such as
// /sport/fodbold/<slug>; those section segments are the keywords. The last
// path segment is the article slug and never counts.
package keywords

import (
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

const (
	minKeywordLen = 3
	maxKeywordLen = 40
)

// sectionParams are query parameters some sites use instead of path sections.
var sectionParams = []string{"section", "category", "cat", "rubrik"}

// excluded holds segments that appear in URLs of every kind of article.
var excluded = map[string]struct{}{
	"news":         {},
	"nyheder":      {},
	"article":      {},
	"articles":     {},
	"artikel":      {},
	"live":         {},
	"video":        {},
	"videos":       {},
	"amp":          {},
	"www":          {},
	"index":        {},
	"html":         {},
	"seneste":      {},
	"actualite":    {},
	"actualites":   {},
	"nachrichten":  {},
	"noticias":     {},
	"notizie":      {},
	"story":        {},
	"stories":      {},
	"content":      {},
	"en":           {},
	"da":           {},
	"de":           {},
	"fr":           {},
	"es":           {},
	"it":           {},
	"nl":           {},
}

var folder = cases.Lower(language.Und)

// Normalize lowercases s, applies NFC and turns '-' and '_' into spaces.
func Normalize(s string) string {
	s = norm.NFC.String(strings.TrimSpace(s))
	s = strings.Map(func(r rune) rune {
		if r == '-' || r == '_' || r == '+' {
			return ' '
		}
		return r
	}, s)
	s = strings.Join(strings.Fields(s), " ")
	return folder.String(s)
}

// FromURL returns the normalized keywords found in rawURL, in order of
// appearance and without duplicates. Unparseable URLs yield nil.
func FromURL(rawURL string) []string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil
	}

	path := parsed.Path
	if unescaped, err := url.PathUnescape(path); err == nil {
		path = unescaped
	}

	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) > 0 {
		segments = segments[:len(segments)-1]
	}

	query := parsed.Query()
	for _, p := range sectionParams {
		if v := query.Get(p); v != "" {
			segments = append(segments, v)
		}
	}

	seen := make(map[string]struct{}, len(segments))
	result := make([]string, 0, len(segments))
	for _, segment := range segments {
		keyword := Normalize(segment)
		if !acceptable(keyword) {
			continue
		}
		if _, ok := seen[keyword]; ok {
			continue
		}
		seen[keyword] = struct{}{}
		result = append(result, keyword)
	}
	return result
}

func acceptable(keyword string) bool {
	n := len([]rune(keyword))
	if n < minKeywordLen || n > maxKeywordLen {
		return false
	}
	if _, ok := excluded[keyword]; ok {
		return false
	}
	if strings.Contains(keyword, ".") {
		return false
	}
	hasLetter := false
	for _, r := range keyword {
		if unicode.IsLetter(r) {
			hasLetter = true
			break
		}
	}
	return hasLetter
}
