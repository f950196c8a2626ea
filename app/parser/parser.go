package parser

import (
	"bytes"
	"html"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mmcdole/gofeed"
)

// Parser turns raw RSS/Atom bytes into normalized candidates.
type Parser struct {
	gofeedParser *gofeed.Parser
	htmlTagRegex *regexp.Regexp
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
		htmlTagRegex: regexp.MustCompile(`<[^>]*>`),
	}
}

// Parse parses feed data and returns normalized candidates. Entries without
// a link are dropped; entries without a parseable date fall back to now.
func (p *Parser) Parse(data []byte) ([]Candidate, error) {
	feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	now := time.Now()
	candidates := make([]Candidate, 0, len(feed.Items))
	for _, item := range feed.Items {
		url := strings.TrimSpace(item.Link)
		if url == "" {
			continue
		}

		publishedAt := now
		if item.PublishedParsed != nil {
			publishedAt = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			publishedAt = *item.UpdatedParsed
		}

		candidates = append(candidates, Candidate{
			Title:       p.cleanText(item.Title),
			URL:         url,
			Snippet:     p.Snippet(item.Description, item.Content),
			PublishedAt: publishedAt,
			Categories:  item.Categories,
		})
	}

	return candidates, nil
}

// Snippet builds the stored summary from the first non-empty text,
// HTML-stripped and truncated to SnippetMaxLen.
func (p *Parser) Snippet(texts ...string) string {
	for _, t := range texts {
		cleaned := p.cleanText(t)
		if cleaned == "" {
			continue
		}
		if utf8.RuneCountInString(cleaned) > SnippetMaxLen {
			runes := []rune(cleaned)
			cleaned = strings.TrimSpace(string(runes[:SnippetMaxLen]))
		}
		return cleaned
	}
	return ""
}

// cleanText removes HTML tags, unescapes entities and collapses whitespace.
func (p *Parser) cleanText(input string) string {
	cleaned := p.htmlTagRegex.ReplaceAllString(input, " ")
	cleaned = html.UnescapeString(cleaned)
	return strings.Join(strings.Fields(cleaned), " ")
}
