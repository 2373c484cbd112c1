package feed

import (
	"html"
	"regexp"
	"strings"
)

// Item is one headline from a syndication feed.
type Item struct {
	Title  string `json:"title"`
	Link   string `json:"link"`
	Source string `json:"source,omitempty"`
}

// Headline returns the title without the trailing " - <source>" suffix that
// aggregators append.
func (it Item) Headline() string {
	if it.Source == "" {
		return it.Title
	}
	if h, ok := strings.CutSuffix(it.Title, " - "+it.Source); ok && h != "" {
		return h
	}
	return it.Title
}

var (
	blockRe    = regexp.MustCompile(`(?is)<item\b[^>]*>(.*?)</item\s*>|<entry\b[^>]*>(.*?)</entry\s*>`)
	titleRe    = regexp.MustCompile(`(?is)<title\b[^>]*>(.*?)</title\s*>`)
	linkTextRe = regexp.MustCompile(`(?is)<link\b[^>]*>(.*?)</link\s*>`)
	linkTagRe  = regexp.MustCompile(`(?is)<link\b([^>]*)>`)
	hrefRe     = regexp.MustCompile(`(?is)\bhref\s*=\s*["']([^"']+)["']`)
	relRe      = regexp.MustCompile(`(?is)\brel\s*=\s*["']([^"']*)["']`)
	sourceRe   = regexp.MustCompile(`(?is)<source\b[^>]*>(.*?)</source\s*>`)
	cdataRe    = regexp.MustCompile(`(?s)<!\[CDATA\[(.*?)\]\]>`)
	tagRe      = regexp.MustCompile(`(?s)<[^>]*>`)
)

// ParseFeed extracts items from an RSS or Atom document in document order.
// The scan is structural rather than schema-validating: blocks missing a
// title or link are skipped and malformed input yields an empty slice.
func ParseFeed(doc []byte) []Item {
	return parseFeed(doc, -1)
}

// parseFeed stops after limit items; a negative limit means no cap.
func parseFeed(doc []byte, limit int) []Item {
	items := []Item{}
	if limit == 0 {
		return items
	}
	for _, m := range blockRe.FindAllSubmatch(doc, -1) {
		block := m[1]
		if block == nil {
			block = m[2]
		}
		it, ok := parseBlock(string(block))
		if !ok {
			continue
		}
		items = append(items, it)
		if limit > 0 && len(items) >= limit {
			break
		}
	}
	return items
}

func parseBlock(block string) (Item, bool) {
	var it Item

	// An Atom <source> carries its own <title>; scan the entry title outside it.
	outer := sourceRe.ReplaceAllString(block, "")
	if m := titleRe.FindStringSubmatch(outer); m != nil {
		it.Title = text(m[1])
	}

	if m := linkTextRe.FindStringSubmatch(block); m != nil {
		it.Link = text(m[1])
	}
	if it.Link == "" {
		it.Link = atomLink(block)
	}

	if m := sourceRe.FindStringSubmatch(block); m != nil {
		inner := m[1]
		if t := titleRe.FindStringSubmatch(inner); t != nil {
			inner = t[1]
		}
		it.Source = text(inner)
	}

	if it.Title == "" || it.Link == "" {
		return Item{}, false
	}
	return it, true
}

// atomLink picks the article link among an entry's <link href> tags. A link
// with rel="alternate" or no rel wins; otherwise the first href is used.
func atomLink(block string) string {
	var first string
	for _, m := range linkTagRe.FindAllStringSubmatch(block, -1) {
		h := hrefRe.FindStringSubmatch(m[1])
		if h == nil {
			continue
		}
		href := html.UnescapeString(strings.TrimSpace(h[1]))
		rel := ""
		if r := relRe.FindStringSubmatch(m[1]); r != nil {
			rel = strings.ToLower(strings.TrimSpace(r[1]))
		}
		if rel == "" || rel == "alternate" {
			return href
		}
		if first == "" {
			first = href
		}
	}
	return first
}

// text unwraps CDATA, drops markup and unescapes entities.
func text(raw string) string {
	s := strings.TrimSpace(raw)
	if cdataRe.MatchString(s) {
		s = cdataRe.ReplaceAllString(s, "$1")
	} else {
		s = tagRe.ReplaceAllString(s, "")
		s = html.UnescapeString(s)
	}
	return strings.Join(strings.Fields(s), " ")
}
